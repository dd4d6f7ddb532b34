package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/JonMunkholm/sheetsync/internal/cache"
	"github.com/JonMunkholm/sheetsync/internal/config"
	"github.com/JonMunkholm/sheetsync/internal/core"
	"github.com/JonMunkholm/sheetsync/internal/events"
	"github.com/JonMunkholm/sheetsync/internal/logging"
	"github.com/JonMunkholm/sheetsync/internal/sheets"
	"github.com/JonMunkholm/sheetsync/internal/store"
	"github.com/JonMunkholm/sheetsync/internal/web"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"google.golang.org/api/option"
	sheetsapi "google.golang.org/api/sheets/v4"
)

func main() {
	// Load .env file if it exists (Overload overwrites existing env vars)
	if err := godotenv.Overload(); err != nil {
		slog.Info("no .env file found, using environment variables")
	} else {
		slog.Info("loaded .env file (overwriting existing env vars)")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	logging.Setup(cfg.Logging.Level, cfg.Logging.Format)

	slog.Info("configuration loaded",
		"port", cfg.Server.Port,
		"store_backend", cfg.Store.Backend,
		"sheets_enabled", cfg.Sheets.Enabled,
		"sync_max_concurrent", cfg.Sync.MaxConcurrent,
		"rate_limit_enabled", cfg.Rate.Enabled,
	)

	ctx := context.Background()

	st, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		slog.Error("failed to open document store", "backend", cfg.Store.Backend, "error", err)
		os.Exit(1)
	}
	defer closeStore()

	opts := []core.ServiceOption{}

	if cfg.Sheets.Enabled {
		reader, err := openSheets(ctx, cfg)
		if err != nil {
			slog.Error("failed to create sheets client", "error", err)
			os.Exit(1)
		}
		opts = append(opts, core.WithSheetReader(reader))
	}

	if cfg.Cache.RedisAddr != "" {
		rc := cache.NewRedis[[]core.SearchHit](cfg.Cache.RedisAddr, cfg.Cache.RedisPassword, cfg.Cache.RedisDB, cfg.Cache.Prefix)
		defer rc.Close()
		if err := rc.Ping(ctx); err != nil {
			slog.Warn("redis unreachable, falling back to in-process cache", "addr", cfg.Cache.RedisAddr, "error", err)
		} else {
			opts = append(opts, core.WithSearchCache(rc))
			slog.Info("using redis search cache", "addr", cfg.Cache.RedisAddr)
		}
	}

	if cfg.Events.AMQPURL != "" {
		pub, err := events.NewAMQP(cfg.Events.AMQPURL, cfg.Events.Exchange)
		if err != nil {
			slog.Error("failed to connect to message broker", "error", err)
			os.Exit(1)
		}
		defer pub.Close()
		opts = append(opts, core.WithPublisher(pub))
	}

	service := core.NewService(st, cfg, opts...)
	server := web.NewServer(service, cfg)

	// Cancellable context for background jobs
	jobCtx, cancelJobs := context.WithCancel(context.Background())
	defer cancelJobs()

	if cfg.Backfill.SchedulerEnabled {
		go service.StartBackfillScheduler(jobCtx, cfg.Backfill.Interval)
	}

	// Graceful shutdown
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh

		slog.Info("shutting down...")
		cancelJobs()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		limiter := service.Limiter()
		if active := limiter.ActiveCount(); active > 0 {
			slog.Info("waiting for syncs to complete", "active", active)
			if err := limiter.WaitForDrain(shutdownCtx); err != nil {
				slog.Warn("syncs did not complete in time", "error", err)
			} else {
				slog.Info("all syncs completed")
			}
		}

		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("shutdown error", "error", err)
		}
	}()

	if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("server stopped", "error", err)
		os.Exit(1)
	}
	slog.Info("server stopped")
}

// openStore connects the configured document store backend.
func openStore(ctx context.Context, cfg *config.Config) (store.Store, func(), error) {
	switch cfg.Store.Backend {
	case "firestore":
		fs, err := store.NewFirestore(ctx, cfg.Store.ProjectID, cfg.Store.CredentialsFile)
		if err != nil {
			return nil, nil, err
		}
		slog.Info("connected to firestore", "project", cfg.Store.ProjectID)
		return fs, func() { _ = fs.Close() }, nil

	case "postgres":
		poolConfig, err := pgxpool.ParseConfig(cfg.Store.DatabaseURL)
		if err != nil {
			return nil, nil, fmt.Errorf("parse database URL: %w", err)
		}
		poolConfig.MaxConns = int32(cfg.Store.MaxConns)
		poolConfig.MinConns = int32(cfg.Store.MinConns)
		poolConfig.MaxConnLifetime = cfg.Store.MaxConnLifetime
		poolConfig.MaxConnIdleTime = cfg.Store.MaxConnIdleTime

		pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
		if err != nil {
			return nil, nil, fmt.Errorf("connect to database: %w", err)
		}
		if err := pool.Ping(ctx); err != nil {
			pool.Close()
			return nil, nil, fmt.Errorf("ping database: %w", err)
		}
		pg, err := store.NewPostgres(ctx, pool)
		if err != nil {
			pool.Close()
			return nil, nil, err
		}
		slog.Info("connected to postgres", "max_conns", poolConfig.MaxConns)
		return pg, pool.Close, nil

	case "memory":
		slog.Warn("using in-memory document store; data is lost on restart")
		return store.NewMemory(), func() {}, nil
	}
	return nil, nil, fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
}

// openSheets creates a read-only Sheets API client.
func openSheets(ctx context.Context, cfg *config.Config) (*sheets.Client, error) {
	clientOpts := []option.ClientOption{option.WithScopes(sheetsapi.SpreadsheetsReadonlyScope)}
	if cfg.Sheets.CredentialsFile != "" {
		clientOpts = append(clientOpts, option.WithCredentialsFile(cfg.Sheets.CredentialsFile))
	}
	return sheets.NewClient(ctx, sheets.Options{
		MaxRetries: cfg.Sheets.MaxRetries,
		MaxBackoff: cfg.Sheets.MaxBackoff,
	}, clientOpts...)
}
