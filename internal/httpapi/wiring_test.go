package httpapi

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cyris/internal/config"
	"cyris/internal/models"
)

func testConfig(t *testing.T, upstreamURL string) *config.Config {
	t.Helper()
	return &config.Config{
		HTTPPort:   "0",
		JWTSecret:  testSecret,
		SessionTTL: time.Hour,
		Provider: config.ProviderConfig{
			BaseURL:        upstreamURL,
			APIKey:         "or-test",
			Title:          "Cyris AI",
			RequestTimeout: 5 * time.Second,
		},
		Routing: config.RoutingConfig{
			RouterModel:      testRouterModel,
			RoundTripTimeout: 10 * time.Second,
		},
		Share:     config.ShareConfig{BaseURL: "https://cyris.example"},
		RateLimit: config.RateLimitConfig{MessagesPerMinute: 5},
		Guest:     config.GuestConfig{TTL: time.Hour},
		Queue: config.QueueConfig{
			BatchSize:    10,
			BatchTimeout: 100 * time.Millisecond,
			MaxRetries:   1,
			RetryBackoff: 10 * time.Millisecond,
		},
	}
}

func newUpstream(t *testing.T) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"Hello from the router"}}]}`))
	}))
	t.Cleanup(server.Close)
	return server
}

func TestNewServer_RequiresProviderKey(t *testing.T) {
	cfg := testConfig(t, "http://127.0.0.1:1")
	cfg.Provider.APIKey = ""

	_, err := NewServer(cfg)
	assert.Error(t, err)
}

func TestNewServer_InMemory(t *testing.T) {
	srv, err := NewServer(testConfig(t, newUpstream(t).URL))
	require.NoError(t, err)
	defer srv.Close()

	api := &testAPI{handler: srv.Handler}

	w := api.do(t, "POST", "/api/chat/message", SendMessageRequest{MessageContent: "hi"}, asGuest(testGuestToken))
	expectStatus(t, w, http.StatusOK)
	got := decode[*models.Chat](t, w)
	require.Len(t, got.Messages, 2)
	assert.Equal(t, "Hello from the router", got.Messages[1].Content)
	assert.Empty(t, got.Messages[1].ModelID)

	w = api.do(t, "GET", "/health", nil)
	expectStatus(t, w, http.StatusOK)

	w = api.do(t, "GET", "/metrics", nil)
	expectStatus(t, w, http.StatusOK)
	assert.Contains(t, w.Body.String(), `cyris_round_trips_total{fallback="router_text",persisted="true"} 1`)
}

func TestNewServer_RedisAndAccessLog(t *testing.T) {
	mr := miniredis.RunT(t)
	dir := t.TempDir()

	cfg := testConfig(t, newUpstream(t).URL)
	cfg.Redis = config.RedisConfig{
		Address:      mr.Addr(),
		PoolSize:     2,
		DialTimeout:  time.Second,
		ReadTimeout:  time.Second,
		WriteTimeout: time.Second,
	}
	cfg.Logging = config.LoggingConfig{
		AccessFile:      filepath.Join(dir, "access-%s.jsonl"),
		AccessMaxSizeMB: 1,
		AccessMaxFiles:  2,
	}

	srv, err := NewServer(cfg)
	require.NoError(t, err)

	api := &testAPI{handler: srv.Handler}
	api.createChat(t, CreateChatRequest{ID: "g1", Title: "Kept in Redis"}, asGuest(testGuestToken))

	keys := mr.Keys()
	assert.NotEmpty(t, keys)
	for _, k := range keys {
		assert.NotContains(t, k, testGuestToken)
	}

	w := api.do(t, "GET", "/health", nil)
	expectStatus(t, w, http.StatusOK)
	assert.Contains(t, w.Body.String(), `"redis":"ok"`)

	require.NoError(t, srv.Close())

	files, err := filepath.Glob(filepath.Join(dir, "access-*.jsonl"))
	require.NoError(t, err)
	require.Len(t, files, 1)
	data, err := os.ReadFile(files[0])
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	assert.Len(t, lines, 2)
	assert.Contains(t, lines[0], `"route":"POST /api/chats"`)
	assert.NotContains(t, string(data), testGuestToken)
}
