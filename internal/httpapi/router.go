package httpapi

import (
	"net/http"
	"time"

	"cyris/internal/chat"
	"cyris/internal/metrics"
	"cyris/internal/middleware"
	"cyris/internal/providers"
	"cyris/internal/ratelimit"
	"cyris/internal/routing"
	"cyris/internal/storage"
	"cyris/internal/utils"
)

// HealthCheck reports whether one backing service is reachable
type HealthCheck func(r *http.Request) error

// Dependencies aggregates all services the HTTP layer needs.
type Dependencies struct {
	Chats    storage.ChatStore
	Guests   *storage.GuestStore
	Service  *chat.Service
	Migrator *chat.Migrator
	Registry *providers.ModelRegistry
	Images   routing.ImageGenerator

	RateLimit ratelimit.Limiter
	Metrics   metrics.Metrics
	AccessLog middleware.AccessLogger

	// HealthChecks are run by /health, keyed by service name
	HealthChecks map[string]HealthCheck

	SessionSecret     []byte
	ShareBaseURL      string
	RoundTripTimeout  time.Duration
	MessagesPerMinute int

	logger *utils.Logger
}

func (d *Dependencies) log() *utils.Logger {
	if d.logger == nil {
		d.logger = utils.NewLogger("httpapi")
	}
	return d.logger
}

// NewRouter registers every route on a new mux and wraps it with the
// access middleware.
func NewRouter(deps *Dependencies) http.Handler {
	if deps.Metrics == nil {
		deps.Metrics = metrics.NewNoopMetrics()
	}
	if deps.RateLimit == nil {
		deps.RateLimit = ratelimit.NewNoopLimiter()
	}
	if deps.Migrator == nil {
		deps.Migrator = chat.NewMigrator(deps.Metrics)
	}
	deps.log()

	mux := http.NewServeMux()
	registerRoutes(mux, deps)
	return middleware.Access(deps.Metrics, deps.AccessLog)(mux)
}

func registerRoutes(mux *http.ServeMux, deps *Dependencies) {
	session := middleware.SessionMiddleware(deps.SessionSecret)
	anyCaller := func(h http.HandlerFunc) http.Handler {
		return session(middleware.RequireSession(h))
	}
	userOnly := func(h http.HandlerFunc) http.Handler {
		return session(middleware.RequireUser(h))
	}

	// Chats of the caller: account store for users, guest store for guests
	mux.Handle("GET /api/chats", anyCaller(deps.handleListChats))
	mux.Handle("POST /api/chats", anyCaller(deps.handleCreateChat))
	mux.Handle("GET /api/chats/{id}", anyCaller(deps.handleGetChat))
	mux.Handle("PUT /api/chats/{id}", anyCaller(deps.handleUpdateChat))
	mux.Handle("DELETE /api/chats/{id}", anyCaller(deps.handleDeleteChat))
	mux.Handle("POST /api/chat/message", anyCaller(deps.handleSendMessage))

	// Account-only operations
	mux.Handle("POST /api/chats/{id}/share", userOnly(deps.handleShareChat))
	mux.Handle("DELETE /api/chats/{id}/share", userOnly(deps.handleUnshareChat))
	mux.Handle("POST /api/chats/migrate", userOnly(deps.handleMigrateChats))

	mux.HandleFunc("POST /api/guest-session", deps.handleNewGuestSession)

	// Public shared chats
	mux.HandleFunc("GET /api/shared/{shareId}", deps.handleGetSharedChat)
	mux.HandleFunc("GET /shared/{shareId}", deps.handleSharedChatPage)

	mux.HandleFunc("GET /api/models", deps.handleListModels)
	mux.HandleFunc("POST /api/generate-image", deps.handleGenerateImage)

	mux.HandleFunc("GET /health", deps.handleHealth)
	mux.Handle("GET /metrics", deps.Metrics.HTTPHandler())
}
