package config

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"
)

// MaxWriteBatchSize is the storage backend's per-transaction write limit.
const MaxWriteBatchSize = 500

// MaxBackfillBatchSize is the largest accepted backfill page size.
const MaxBackfillBatchSize = 2000

// Load reads configuration from environment variables.
// It applies defaults for unset values and validates the result.
// Returns an error if required values are missing or validation fails.
func Load() (*Config, error) {
	cfg := &Config{}

	if err := loadStruct(reflect.ValueOf(cfg).Elem(), os.Getenv); err != nil {
		return nil, fmt.Errorf("config load: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return cfg, nil
}

// Defaults returns a configuration built only from the default tags, without
// reading the environment or validating. Intended for tests and tools.
func Defaults() *Config {
	cfg := &Config{}
	noEnv := func(string) string { return "" }
	if err := loadStruct(reflect.ValueOf(cfg).Elem(), noEnv); err != nil {
		panic(fmt.Sprintf("invalid config defaults: %v", err))
	}
	return cfg
}

// loadStruct recursively populates struct fields from environment variables.
func loadStruct(v reflect.Value, lookup func(string) string) error {
	t := v.Type()

	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		fieldVal := v.Field(i)

		// Skip unexported fields
		if !fieldVal.CanSet() {
			continue
		}

		// Recurse into nested structs
		if field.Type.Kind() == reflect.Struct && field.Type != reflect.TypeOf(time.Time{}) {
			if err := loadStruct(fieldVal, lookup); err != nil {
				return err
			}
			continue
		}

		// Get tags
		envName := field.Tag.Get("env")
		envAlt := field.Tag.Get("envAlt")
		defaultVal := field.Tag.Get("default")
		required := field.Tag.Get("required") == "true"

		if envName == "" {
			continue
		}

		// Try primary env var, then alternate
		value := lookup(envName)
		if value == "" && envAlt != "" {
			value = lookup(envAlt)
		}

		// Apply default if not set
		if value == "" {
			if required {
				return fmt.Errorf("required environment variable %s is not set", envName)
			}
			value = defaultVal
		}

		if value == "" {
			continue
		}

		// Set the field value
		if err := setField(fieldVal, value); err != nil {
			return fmt.Errorf("invalid value for %s=%q: %w", envName, value, err)
		}
	}

	return nil
}

// setField sets a reflect.Value from a string based on its type.
func setField(field reflect.Value, value string) error {
	switch field.Kind() {
	case reflect.String:
		field.SetString(value)

	case reflect.Int, reflect.Int64:
		// Handle time.Duration specially
		if field.Type() == reflect.TypeOf(time.Duration(0)) {
			d, err := time.ParseDuration(value)
			if err != nil {
				return fmt.Errorf("invalid duration: %w", err)
			}
			field.Set(reflect.ValueOf(d))
		} else {
			i, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return fmt.Errorf("invalid integer: %w", err)
			}
			field.SetInt(i)
		}

	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("invalid boolean: %w", err)
		}
		field.SetBool(b)

	case reflect.Slice:
		if field.Type().Elem().Kind() == reflect.String {
			// Split comma-separated values, trim whitespace
			parts := strings.Split(value, ",")
			result := make([]string, 0, len(parts))
			for _, p := range parts {
				p = strings.TrimSpace(p)
				if p != "" {
					result = append(result, p)
				}
			}
			field.Set(reflect.ValueOf(result))
		} else {
			return fmt.Errorf("unsupported slice type: %s", field.Type().Elem().Kind())
		}

	default:
		return fmt.Errorf("unsupported field type: %s", field.Kind())
	}

	return nil
}

// Validate checks that the configuration is valid.
// Returns an error describing all validation failures.
func (c *Config) Validate() error {
	var errs []string

	// Store validation
	switch strings.ToLower(c.Store.Backend) {
	case "firestore":
		if c.Store.ProjectID == "" {
			errs = append(errs, "FIRESTORE_PROJECT_ID is required for the firestore backend")
		}
	case "postgres":
		if c.Store.DatabaseURL == "" {
			errs = append(errs, "DATABASE_URL is required for the postgres backend")
		}
		if c.Store.MaxConns <= 0 {
			errs = append(errs, "DB_MAX_CONNS must be positive")
		}
		if c.Store.MinConns < 0 {
			errs = append(errs, "DB_MIN_CONNS must be non-negative")
		}
		if c.Store.MaxConns < c.Store.MinConns {
			errs = append(errs, fmt.Sprintf("DB_MAX_CONNS (%d) must be >= DB_MIN_CONNS (%d)",
				c.Store.MaxConns, c.Store.MinConns))
		}
	case "memory":
	default:
		errs = append(errs, fmt.Sprintf("STORE_BACKEND (%q) must be one of: firestore, postgres, memory", c.Store.Backend))
	}

	// Server validation
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Sprintf("SERVER_PORT (%d) must be 1-65535", c.Server.Port))
	}
	if c.Server.ReadTimeout < 0 {
		errs = append(errs, "SERVER_READ_TIMEOUT must be non-negative")
	}
	if c.Server.ShutdownTimeout <= 0 {
		errs = append(errs, "SERVER_SHUTDOWN_TIMEOUT must be positive")
	}

	// Sync validation
	if c.Sync.WriteBatchSize <= 0 || c.Sync.WriteBatchSize > MaxWriteBatchSize {
		errs = append(errs, fmt.Sprintf("SYNC_WRITE_BATCH_SIZE (%d) must be 1-%d", c.Sync.WriteBatchSize, MaxWriteBatchSize))
	}
	if c.Sync.ExistenceBatchSize <= 0 {
		errs = append(errs, "SYNC_EXISTENCE_BATCH_SIZE must be positive")
	}
	if c.Sync.ProgressInterval < 0 {
		errs = append(errs, "SYNC_PROGRESS_INTERVAL must be non-negative")
	}
	if c.Sync.MaxConcurrent <= 0 {
		errs = append(errs, "SYNC_MAX_CONCURRENT must be positive")
	}
	if c.Sync.MaxWaitTime <= 0 {
		errs = append(errs, "SYNC_MAX_WAIT_TIME must be positive")
	}
	if c.Sync.Timeout <= 0 {
		errs = append(errs, "SYNC_TIMEOUT must be positive")
	}

	// Backfill validation
	if c.Backfill.BatchSize <= 0 || c.Backfill.BatchSize > MaxBackfillBatchSize {
		errs = append(errs, fmt.Sprintf("BACKFILL_BATCH_SIZE (%d) must be 1-%d", c.Backfill.BatchSize, MaxBackfillBatchSize))
	}
	if c.Backfill.MaxDocs <= 0 {
		errs = append(errs, "BACKFILL_MAX_DOCS must be positive")
	}
	if c.Backfill.SchedulerEnabled && c.Backfill.Interval <= 0 {
		errs = append(errs, "BACKFILL_INTERVAL must be positive when the scheduler is enabled")
	}

	// Cache validation
	if c.Cache.TTL <= 0 {
		errs = append(errs, "CACHE_TTL must be positive")
	}

	// Rate limit validation
	if c.Rate.Enabled && c.Rate.RequestsPerMinute <= 0 {
		errs = append(errs, "RATE_LIMIT_REQUESTS_PER_MINUTE must be positive when rate limiting is enabled")
	}
	if c.Rate.Enabled && c.Rate.SyncLimit <= 0 {
		errs = append(errs, "RATE_LIMIT_SYNC must be positive when rate limiting is enabled")
	}

	// Security validation
	if c.Security.RequireAPIKey && len(c.Security.APIKeys) == 0 {
		errs = append(errs, "REQUIRE_API_KEY is true but API_KEYS is empty; configure at least one API key or disable auth")
	}

	// Logging validation
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Logging.Level)] {
		errs = append(errs, fmt.Sprintf("LOG_LEVEL (%q) must be one of: debug, info, warn, error", c.Logging.Level))
	}

	validFormats := map[string]bool{"text": true, "json": true}
	if !validFormats[strings.ToLower(c.Logging.Format)] {
		errs = append(errs, fmt.Sprintf("LOG_FORMAT (%q) must be one of: text, json", c.Logging.Format))
	}

	if len(errs) > 0 {
		return fmt.Errorf("validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}

	return nil
}

// String returns a safe string representation of the config for logging.
// Connection strings and secrets are masked.
func (c *Config) String() string {
	var b strings.Builder
	b.WriteString("Config{")
	fmt.Fprintf(&b, "Server: {Host: %q, Port: %d}, ", c.Server.Host, c.Server.Port)
	fmt.Fprintf(&b, "Store: {Backend: %q, ProjectID: %q, DatabaseURL: %s}, ",
		c.Store.Backend, c.Store.ProjectID, mask(c.Store.DatabaseURL))
	fmt.Fprintf(&b, "Sync: {ExistenceBatchSize: %d, WriteBatchSize: %d, MaxConcurrent: %d}, ",
		c.Sync.ExistenceBatchSize, c.Sync.WriteBatchSize, c.Sync.MaxConcurrent)
	fmt.Fprintf(&b, "Cache: {TTL: %s, Redis: %s}, ", c.Cache.TTL, mask(c.Cache.RedisAddr))
	fmt.Fprintf(&b, "Events: {AMQP: %s}, ", mask(c.Events.AMQPURL))
	fmt.Fprintf(&b, "Logging: {Level: %q, Format: %q}", c.Logging.Level, c.Logging.Format)
	b.WriteString("}")
	return b.String()
}

func mask(s string) string {
	if s == "" {
		return "[UNSET]"
	}
	return "[MASKED]"
}
