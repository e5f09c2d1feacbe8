package httpapi

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/hashicorp/go-multierror"

	"cyris/internal/chat"
	"cyris/internal/config"
	"cyris/internal/logging"
	"cyris/internal/metrics"
	"cyris/internal/models"
	"cyris/internal/providers"
	"cyris/internal/queue"
	"cyris/internal/ratelimit"
	"cyris/internal/routing"
	"cyris/internal/storage"
)

const (
	accessLogBuffer        = 1024
	accessLogFlushInterval = time.Second
)

// Server is a fully wired HTTP API plus the background work it owns
type Server struct {
	Handler http.Handler
	Deps    *Dependencies

	cancel  context.CancelFunc
	closers []func() error
}

// NewServer wires every component from configuration: Postgres or the
// in-memory account store, Redis or in-memory guest storage, the audit
// queue and its worker, the model registry and its file watcher.
func NewServer(cfg *config.Config) (*Server, error) {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{cancel: cancel}

	deps, err := s.build(ctx, cfg)
	if err != nil {
		s.Close()
		return nil, err
	}

	s.Deps = deps
	s.Handler = NewRouter(deps)
	return s, nil
}

// Close stops background work and releases connections, newest first. The
// background context is cancelled last so the usage worker can drain.
func (s *Server) Close() error {
	var errs *multierror.Error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			errs = multierror.Append(errs, err)
		}
	}
	s.closers = nil
	s.cancel()
	return errs.ErrorOrNil()
}

// RoundTripQueueName is the queue carrying audit records to the usage worker
const RoundTripQueueName = "cyris:round-trips"

// RoundTripQueueConfig returns the audit queue settings
func RoundTripQueueConfig(cfg *config.Config) *queue.Config {
	queueCfg := queue.DefaultConfig(RoundTripQueueName)
	queueCfg.BatchSize = cfg.Queue.BatchSize
	queueCfg.BatchTimeout = cfg.Queue.BatchTimeout
	queueCfg.MaxRetries = cfg.Queue.MaxRetries
	queueCfg.RetryBackoff = cfg.Queue.RetryBackoff
	return queueCfg
}

// RedisConfig maps the Redis section of the configuration onto client options
func RedisConfig(cfg *config.Config) storage.RedisConfig {
	redisConfig := storage.DefaultRedisConfig()
	redisConfig.Address = cfg.Redis.Address
	redisConfig.Password = cfg.Redis.Password
	redisConfig.DB = cfg.Redis.DB
	redisConfig.PoolSize = cfg.Redis.PoolSize
	redisConfig.MinIdleConns = cfg.Redis.MinIdleConns
	redisConfig.DialTimeout = cfg.Redis.DialTimeout
	redisConfig.ReadTimeout = cfg.Redis.ReadTimeout
	redisConfig.WriteTimeout = cfg.Redis.WriteTimeout
	return redisConfig
}

func (s *Server) onClose(fn func() error) {
	s.closers = append(s.closers, fn)
}

func (s *Server) build(ctx context.Context, cfg *config.Config) (*Dependencies, error) {
	m := metrics.NewPrometheusMetrics()
	deps := &Dependencies{
		Metrics:           m,
		HealthChecks:      map[string]HealthCheck{},
		SessionSecret:     cfg.JWTSecret,
		ShareBaseURL:      cfg.Share.BaseURL,
		RoundTripTimeout:  cfg.Routing.RoundTripTimeout,
		MessagesPerMinute: cfg.RateLimit.MessagesPerMinute,
		RateLimit:         ratelimit.NewNoopLimiter(),
	}
	logger := deps.log()

	// Account chats and the round-trip audit trail
	var usageWriter storage.UsageWriter
	if cfg.UseDatabase() {
		dbConfig := storage.DefaultDBConfig()
		dbConfig.DSN = cfg.Database.URL
		dbConfig.MaxOpenConns = cfg.Database.MaxOpenConns
		dbConfig.MaxIdleConns = cfg.Database.MaxIdleConns
		dbConfig.ConnMaxLifetime = cfg.Database.ConnMaxLifetime
		dbConfig.ConnMaxIdleTime = cfg.Database.ConnMaxIdleTime
		dbConfig.SharedChatCacheSize = cfg.Cache.SharedChatCacheSize
		dbConfig.SharedChatCacheTTL = cfg.Cache.SharedChatCacheTTL

		db, err := storage.NewDB(dbConfig)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize database: %w", err)
		}
		s.onClose(db.Close)

		if cfg.Database.AutoMigrate {
			n, err := db.Migrate()
			if err != nil {
				return nil, fmt.Errorf("failed to apply migrations: %w", err)
			}
			logger.Info("Applied migrations", "count", n)
		}

		deps.Chats = db.NewChatRepository()
		usageWriter = db.NewUsageRepository()
		deps.HealthChecks["postgres"] = func(r *http.Request) error { return db.Health(r.Context()) }
	} else {
		logger.Warn("DATABASE_URL is not set, account chats are kept in memory")
		deps.Chats = storage.NewMemoryChatRepository()
	}

	// Guest chats, the audit queue and the rate limiter share Redis
	var roundTrips queue.Queue[models.RoundTripRecord]
	var deadLetters queue.DeadLetterQueue[models.RoundTripRecord]
	queueCfg := RoundTripQueueConfig(cfg)

	if cfg.UseRedis() {
		redisClient, err := storage.NewRedisClient(RedisConfig(cfg))
		if err != nil {
			return nil, fmt.Errorf("failed to initialize Redis: %w", err)
		}
		s.onClose(redisClient.Close)
		client := redisClient.Client()

		deps.Guests = storage.NewGuestStore(storage.NewRedisGuestBackend(client, cfg.Guest.TTL))
		deps.RateLimit = ratelimit.NewRateLimiter(client)
		deps.HealthChecks["redis"] = func(r *http.Request) error { return redisClient.Health(r.Context()) }

		if roundTrips, err = queue.NewRedisQueue[models.RoundTripRecord](client, queueCfg); err != nil {
			return nil, fmt.Errorf("failed to create round-trip queue: %w", err)
		}
		if deadLetters, err = queue.NewRedisDeadLetterQueue[models.RoundTripRecord](client, queueCfg); err != nil {
			return nil, fmt.Errorf("failed to create round-trip DLQ: %w", err)
		}
	} else {
		logger.Warn("REDIS_ADDRESS is not set, guest chats are kept in memory and sends are not rate limited")
		deps.Guests = storage.NewGuestStore(storage.NewMemoryGuestBackend(cfg.Guest.TTL))
		roundTrips = queue.NewMemoryQueue[models.RoundTripRecord](queueCfg)
		deadLetters = queue.NewMemoryDeadLetterQueue[models.RoundTripRecord]()
	}

	var recorder chat.UsageRecorder
	if usageWriter != nil {
		worker := storage.NewUsageQueueWorker(roundTrips, deadLetters, usageWriter, queueCfg)
		worker.Start(ctx)
		s.onClose(roundTrips.Close)
		s.onClose(deadLetters.Close)
		s.onClose(worker.Stop)
		recorder = worker
	}

	// Model registry, optionally loaded from and watched on disk
	registry := providers.NewModelRegistry()
	if path := cfg.Routing.ModelsFile; path != "" {
		if err := registry.LoadFile(path); err != nil {
			return nil, err
		}
		if cfg.Routing.WatchModelsFile {
			watcher, err := providers.NewRegistryWatcher(registry, path)
			if err != nil {
				return nil, err
			}
			go watcher.Run(ctx)
		}
	}
	deps.Registry = registry

	// Upstreams
	completer, err := providers.NewOpenRouterClient(providers.OpenRouterConfig{
		BaseURL: cfg.Provider.BaseURL,
		APIKey:  cfg.Provider.APIKey,
		Referer: cfg.Provider.Referer,
		Title:   cfg.Provider.Title,
		Timeout: cfg.Provider.RequestTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize OpenRouter client: %w", err)
	}
	s.onClose(completer.Close)
	deps.Images = providers.NewImageClient(cfg.Provider.ImageBaseURL, nil)

	forwarder := routing.NewForwarder(routing.ForwarderConfig{
		Completer:   completer,
		Images:      deps.Images,
		Catalog:     registry,
		RouterModel: cfg.Routing.RouterModel,
	})
	deps.Service = chat.NewService(chat.ServiceConfig{
		Resolver: forwarder,
		Recorder: recorder,
		Metrics:  m,
	})
	deps.Migrator = chat.NewMigrator(m)

	if cfg.Logging.AccessFile != "" {
		accessLog, err := logging.NewAccessLogger(
			cfg.Logging.AccessFile,
			int64(cfg.Logging.AccessMaxSizeMB)<<20,
			cfg.Logging.AccessMaxFiles,
			accessLogBuffer,
			accessLogFlushInterval,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize access log: %w", err)
		}
		s.onClose(func() error {
			accessLog.Shutdown()
			return nil
		})
		deps.AccessLog = accessLog
	}

	return deps, nil
}
