package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v9"
)

// Config holds configuration for the chat server.
type Config struct {
	HTTPPort        string        `env:"HTTP_PORT" envDefault:"8080"`
	SessionSecret   string        `env:"JWT_SECRET" envDefault:"supersecretkey"`
	SessionTTL      time.Duration `env:"SESSION_TTL" envDefault:"720h"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"30s"`

	// JWTSecret is SessionSecret as bytes, filled in by Load
	JWTSecret []byte

	Database  DatabaseConfig  `envPrefix:"DB_"`
	Cache     CacheConfig     `envPrefix:"CACHE_"`
	Redis     RedisConfig     `envPrefix:"REDIS_"`
	Provider  ProviderConfig  `envPrefix:"PROVIDER_"`
	Routing   RoutingConfig   `envPrefix:"ROUTING_"`
	Share     ShareConfig     `envPrefix:"SHARE_"`
	RateLimit RateLimitConfig `envPrefix:"RATE_LIMIT_"`
	Guest     GuestConfig     `envPrefix:"GUEST_"`
	Queue     QueueConfig     `envPrefix:"USAGE_QUEUE_"`
	Logging   LoggingConfig   `envPrefix:"LOG_"`
}

// DatabaseConfig holds database connection settings.
// An empty URL keeps account chats in memory.
type DatabaseConfig struct {
	URL             string        `env:"URL,expand" envDefault:"${DATABASE_URL}"`
	MaxOpenConns    int           `env:"MAX_OPEN_CONNS" envDefault:"25"`
	MaxIdleConns    int           `env:"MAX_IDLE_CONNS" envDefault:"5"`
	ConnMaxLifetime time.Duration `env:"CONN_MAX_LIFETIME" envDefault:"5m"`
	ConnMaxIdleTime time.Duration `env:"CONN_MAX_IDLE_TIME" envDefault:"1m"`
	AutoMigrate     bool          `env:"AUTO_MIGRATE" envDefault:"true"`
}

// CacheConfig holds cache settings
type CacheConfig struct {
	SharedChatCacheSize int           `env:"SHARED_CHAT_SIZE" envDefault:"500"`
	SharedChatCacheTTL  time.Duration `env:"SHARED_CHAT_TTL" envDefault:"5m"`
}

// RedisConfig holds Redis connection settings. An empty address disables Redis
// and every Redis-backed component falls back to its in-memory variant.
type RedisConfig struct {
	Address      string        `env:"ADDRESS"`
	Password     string        `env:"PASSWORD"`
	DB           int           `env:"DB" envDefault:"0"`
	PoolSize     int           `env:"POOL_SIZE" envDefault:"10"`
	MinIdleConns int           `env:"MIN_IDLE_CONNS" envDefault:"2"`
	DialTimeout  time.Duration `env:"DIAL_TIMEOUT" envDefault:"5s"`
	ReadTimeout  time.Duration `env:"READ_TIMEOUT" envDefault:"3s"`
	WriteTimeout time.Duration `env:"WRITE_TIMEOUT" envDefault:"3s"`
}

// ProviderConfig holds settings for the OpenAI-compatible upstream (OpenRouter)
type ProviderConfig struct {
	BaseURL        string        `env:"BASE_URL" envDefault:"https://openrouter.ai/api/v1"`
	APIKey         string        `env:"API_KEY,expand" envDefault:"${OPENROUTER_API_KEY}"`
	Referer        string        `env:"REFERER,expand" envDefault:"${PUBLIC_API_URL}"`
	Title          string        `env:"TITLE" envDefault:"Cyris AI"`
	RequestTimeout time.Duration `env:"REQUEST_TIMEOUT" envDefault:"60s"`
	ImageBaseURL   string        `env:"IMAGE_BASE_URL"`
}

// RoutingConfig holds settings for model routing
type RoutingConfig struct {
	RouterModel      string        `env:"ROUTER_MODEL" envDefault:"deepseek/deepseek-chat-v3-0324:free"`
	ModelsFile       string        `env:"MODELS_FILE"`
	WatchModelsFile  bool          `env:"WATCH_MODELS_FILE" envDefault:"true"`
	RoundTripTimeout time.Duration `env:"ROUND_TRIP_TIMEOUT" envDefault:"2m"`
}

// ShareConfig holds settings for public share links
type ShareConfig struct {
	BaseURL string `env:"BASE_URL,expand" envDefault:"${NEXTAUTH_URL}"`
}

// RateLimitConfig holds per-owner message send limits (requests per minute)
type RateLimitConfig struct {
	MessagesPerMinute int `env:"MESSAGES_PER_MINUTE" envDefault:"20"`
}

// GuestConfig holds settings for the server-side guest chat store
type GuestConfig struct {
	TTL time.Duration `env:"TTL" envDefault:"720h"`
}

// QueueConfig holds settings for the round-trip audit queue
type QueueConfig struct {
	BatchSize    int           `env:"BATCH_SIZE" envDefault:"100"`
	BatchTimeout time.Duration `env:"BATCH_TIMEOUT" envDefault:"5s"`
	MaxRetries   int           `env:"MAX_RETRIES" envDefault:"3"`
	RetryBackoff time.Duration `env:"RETRY_BACKOFF" envDefault:"1s"`
}

// LoggingConfig holds process logger settings
type LoggingConfig struct {
	Level  string `env:"LEVEL" envDefault:"info"`
	Pretty bool   `env:"PRETTY" envDefault:"false"`

	// AccessFile enables the JSONL access log; it must contain %s for the
	// rotation timestamp
	AccessFile      string `env:"ACCESS_FILE"`
	AccessMaxSizeMB int    `env:"ACCESS_MAX_SIZE_MB" envDefault:"50"`
	AccessMaxFiles  int    `env:"ACCESS_MAX_FILES" envDefault:"10"`
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parsing env config: %w", err)
	}

	cfg.JWTSecret = []byte(cfg.SessionSecret)
	if cfg.Share.BaseURL == "" {
		cfg.Share.BaseURL = "http://localhost:3000"
	}
	cfg.Share.BaseURL = strings.TrimRight(cfg.Share.BaseURL, "/")
	cfg.Provider.BaseURL = strings.TrimRight(cfg.Provider.BaseURL, "/")

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks settings that have no usable default.
func (c *Config) Validate() error {
	if len(c.JWTSecret) == 0 {
		return fmt.Errorf("JWT_SECRET is required")
	}
	if c.Routing.RouterModel == "" {
		return fmt.Errorf("ROUTING_ROUTER_MODEL is required")
	}
	if c.Logging.AccessFile != "" && !strings.Contains(c.Logging.AccessFile, "%s") {
		return fmt.Errorf("LOG_ACCESS_FILE must contain %%s")
	}
	if c.RateLimit.MessagesPerMinute < 0 {
		return fmt.Errorf("RATE_LIMIT_MESSAGES_PER_MINUTE must not be negative")
	}
	return nil
}

// UseRedis reports whether Redis-backed components are enabled
func (c *Config) UseRedis() bool {
	return c.Redis.Address != ""
}

// UseDatabase reports whether account chats are stored in Postgres
func (c *Config) UseDatabase() bool {
	return c.Database.URL != ""
}
