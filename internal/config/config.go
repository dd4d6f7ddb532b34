// Package config provides centralized configuration management for the application.
// It loads configuration from environment variables with sensible defaults and
// validates all settings on startup to fail fast on misconfiguration.
package config

import (
	"strconv"
	"time"
)

// Config holds all application configuration.
// All settings can be configured via environment variables.
type Config struct {
	Server   ServerConfig
	Store    StoreConfig
	Sheets   SheetsConfig
	Sync     SyncConfig
	Backfill BackfillConfig
	Cache    CacheConfig
	Events   EventsConfig
	Rate     RateLimitConfig
	Security SecurityConfig
	Logging  LoggingConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	// Host is the interface to bind to (default: 0.0.0.0)
	Host string `env:"SERVER_HOST" default:"0.0.0.0"`

	// Port is the port to listen on (default: 8080)
	Port int `env:"SERVER_PORT" default:"8080"`

	// ReadTimeout is the maximum duration for reading request body (default: 15s)
	ReadTimeout time.Duration `env:"SERVER_READ_TIMEOUT" default:"15s"`

	// WriteTimeout is the maximum duration for writing response (default: 0 for SSE)
	WriteTimeout time.Duration `env:"SERVER_WRITE_TIMEOUT" default:"0s"`

	// IdleTimeout is the keep-alive timeout (default: 60s)
	IdleTimeout time.Duration `env:"SERVER_IDLE_TIMEOUT" default:"60s"`

	// ShutdownTimeout is the maximum duration to wait for graceful shutdown (default: 30s)
	ShutdownTimeout time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT" default:"30s"`

	// RequestTimeout is the middleware timeout for non-sync requests (default: 60s)
	RequestTimeout time.Duration `env:"SERVER_REQUEST_TIMEOUT" default:"60s"`
}

// StoreConfig selects and configures the document store.
type StoreConfig struct {
	// Backend is one of: firestore, postgres, memory (default: firestore)
	Backend string `env:"STORE_BACKEND" default:"firestore"`

	// ProjectID is the Google Cloud project hosting Firestore
	ProjectID string `env:"FIRESTORE_PROJECT_ID" envAlt:"GOOGLE_CLOUD_PROJECT"`

	// CredentialsFile is a service account key; empty uses default credentials
	CredentialsFile string `env:"GOOGLE_APPLICATION_CREDENTIALS"`

	// DatabaseURL is the PostgreSQL connection string (postgres backend only)
	DatabaseURL string `env:"DATABASE_URL" envAlt:"DB_URL"`

	// MaxConns is the maximum number of connections in the pool (default: 20)
	MaxConns int `env:"DB_MAX_CONNS" default:"20"`

	// MinConns is the minimum number of connections to keep open (default: 4)
	MinConns int `env:"DB_MIN_CONNS" default:"4"`

	// MaxConnLifetime is the maximum lifetime of a connection (default: 1h)
	MaxConnLifetime time.Duration `env:"DB_MAX_CONN_LIFETIME" default:"1h"`

	// MaxConnIdleTime is the maximum idle time before a connection is closed (default: 30m)
	MaxConnIdleTime time.Duration `env:"DB_MAX_CONN_IDLE_TIME" default:"30m"`
}

// SheetsConfig holds Google Sheets API settings.
type SheetsConfig struct {
	// Enabled turns on sheet-driven sync endpoints (default: true)
	Enabled bool `env:"SHEETS_ENABLED" default:"true"`

	// CredentialsFile is the service account key used for the Sheets API
	CredentialsFile string `env:"SHEETS_CREDENTIALS_FILE" envAlt:"GOOGLE_APPLICATION_CREDENTIALS"`

	// MaxRetries is the number of attempts on rate-limit responses (default: 5)
	MaxRetries int `env:"SHEETS_MAX_RETRIES" default:"5"`

	// MaxBackoff caps the exponential backoff between attempts (default: 60s)
	MaxBackoff time.Duration `env:"SHEETS_MAX_BACKOFF" default:"60s"`
}

// SyncConfig holds sync engine settings.
type SyncConfig struct {
	// ExistenceBatchSize is the number of concurrent existence checks (default: 50)
	ExistenceBatchSize int `env:"SYNC_EXISTENCE_BATCH_SIZE" default:"50"`

	// WriteBatchSize is the number of documents per commit, at most 500 (default: 500)
	WriteBatchSize int `env:"SYNC_WRITE_BATCH_SIZE" default:"500"`

	// ProgressInterval is the minimum gap between progress callbacks (default: 500ms)
	ProgressInterval time.Duration `env:"SYNC_PROGRESS_INTERVAL" default:"500ms"`

	// TokenizeOnSync writes searchTokens alongside every synced row (default: true)
	TokenizeOnSync bool `env:"SYNC_TOKENIZE" default:"true"`

	// MaxConcurrent is the maximum number of parallel sync runs (default: 5)
	MaxConcurrent int `env:"SYNC_MAX_CONCURRENT" default:"5"`

	// MaxWaitTime is how long to wait for a sync slot (default: 30s)
	MaxWaitTime time.Duration `env:"SYNC_MAX_WAIT_TIME" default:"30s"`

	// Timeout is the maximum duration for a single sync run (default: 10m)
	Timeout time.Duration `env:"SYNC_TIMEOUT" default:"10m"`
}

// BackfillConfig holds search-token backfill settings.
type BackfillConfig struct {
	// BatchSize is the default page size, 1-2000 (default: 1000)
	BatchSize int `env:"BACKFILL_BATCH_SIZE" default:"1000"`

	// MaxDocs is the default cap on documents visited per run (default: 100000)
	MaxDocs int `env:"BACKFILL_MAX_DOCS" default:"100000"`

	// SchedulerEnabled runs a periodic backfill of every sheet tab (default: false)
	SchedulerEnabled bool `env:"BACKFILL_SCHEDULER_ENABLED" default:"false"`

	// Interval is how often the scheduler runs (default: 24h)
	Interval time.Duration `env:"BACKFILL_INTERVAL" default:"24h"`
}

// CacheConfig holds read-through cache settings.
type CacheConfig struct {
	// TTL is the fixed lifetime of cached entries (default: 10m)
	TTL time.Duration `env:"CACHE_TTL" default:"10m"`

	// RedisAddr enables the shared Redis cache when set
	RedisAddr string `env:"REDIS_ADDR"`

	// RedisPassword authenticates to Redis
	RedisPassword string `env:"REDIS_PASSWORD"`

	// RedisDB selects the Redis database (default: 0)
	RedisDB int `env:"REDIS_DB" default:"0"`

	// Prefix namespaces every cache key (default: sheetsync:)
	Prefix string `env:"CACHE_PREFIX" default:"sheetsync:"`
}

// EventsConfig holds message broker settings.
type EventsConfig struct {
	// AMQPURL enables event publishing when set
	AMQPURL string `env:"AMQP_URL" envAlt:"RABBIT_HOST"`

	// Exchange is the topic exchange events are published to (default: sheetsync)
	Exchange string `env:"AMQP_EXCHANGE" default:"sheetsync"`
}

// RateLimitConfig holds rate limiting settings per time window.
type RateLimitConfig struct {
	// Enabled controls whether rate limiting is active (default: true)
	Enabled bool `env:"RATE_LIMIT_ENABLED" default:"true"`

	// RequestsPerMinute is the default rate limit per IP (default: 100)
	RequestsPerMinute int `env:"RATE_LIMIT_REQUESTS_PER_MINUTE" default:"100"`

	// SyncLimit is requests per minute for sync and backfill endpoints (default: 10)
	SyncLimit int `env:"RATE_LIMIT_SYNC" default:"10"`
}

// SecurityConfig holds security-related settings.
type SecurityConfig struct {
	// TrustedProxies is a comma-separated list of trusted proxy CIDRs
	TrustedProxies []string `env:"TRUSTED_PROXIES"`

	// RequireAPIKey rejects API requests without a valid X-API-Key (default: false)
	RequireAPIKey bool `env:"REQUIRE_API_KEY" default:"false"`

	// APIKeys is a comma-separated list of accepted API keys
	APIKeys []string `env:"API_KEYS"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn, error (default: info)
	Level string `env:"LOG_LEVEL" default:"info"`

	// Format is the log format: text or json (default: text)
	Format string `env:"LOG_FORMAT" default:"text"`
}

// Addr returns the server listen address in host:port format.
func (c *ServerConfig) Addr() string {
	return c.Host + ":" + strconv.Itoa(c.Port)
}
