// Package web provides the HTTP API for the sync engine.
package web

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/JonMunkholm/sheetsync/internal/config"
	"github.com/JonMunkholm/sheetsync/internal/core"
	appmw "github.com/JonMunkholm/sheetsync/internal/web/middleware"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/puzpuzpuz/xsync/v3"
)

// MaxRequestBodySize caps JSON request bodies (32MB).
const MaxRequestBodySize = 32 << 20

// Server is the HTTP server for the sync API.
type Server struct {
	service *core.Service
	cfg     *config.Config
	router  *chi.Mux
	server  *http.Server
	stop    context.CancelFunc
}

// NewServer creates a new Server instance.
func NewServer(service *core.Service, cfg *config.Config) *Server {
	ctx, stop := context.WithCancel(context.Background())
	s := &Server{
		service: service,
		cfg:     cfg,
		router:  chi.NewRouter(),
		stop:    stop,
	}
	s.setupMiddleware()
	s.setupRoutes(ctx)
	return s
}

// setupMiddleware configures middleware for all routes.
func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(appmw.TrustedRealIP(s.cfg.Security.TrustedProxies))
	s.router.Use(appmw.Logger)
	s.router.Use(middleware.Recoverer)
	s.router.Use(securityHeaders)
}

// setupRoutes configures all HTTP routes.
func (s *Server) setupRoutes(ctx context.Context) {
	s.router.Get("/healthz", s.handleHealth)
	s.router.Handle("/metrics", promhttp.Handler())

	var general, heavy func(http.Handler) http.Handler
	if s.cfg.Rate.Enabled {
		general = newRateLimiter(ctx, s.cfg.Rate.RequestsPerMinute, time.Minute).middleware
		heavy = newRateLimiter(ctx, s.cfg.Rate.SyncLimit, time.Minute).middleware
	}

	s.router.Route("/api", func(r chi.Router) {
		r.Use(appmw.APIKeyAuth(&s.cfg.Security))
		if general != nil {
			r.Use(general)
		}

		r.Get("/status", s.handleStatus)

		// Read and configuration routes run under the request timeout; sync
		// and backfill are bounded by their own run timeout instead.
		r.Group(func(r chi.Router) {
			if s.cfg.Server.RequestTimeout > 0 {
				r.Use(middleware.Timeout(s.cfg.Server.RequestTimeout))
			}
			r.Get("/sheet-tabs/{tabID}", s.handleGetSheetTab)
			r.Put("/sheet-tabs/{tabID}", s.handleSaveSheetTab)
			r.Put("/sheet-tabs/{tabID}/columns", s.handleUpdateColumns)
			r.Delete("/sheet-tabs/{tabID}", s.handleDeleteSheetTab)
			r.Get("/sheet-tabs/{tabID}/search", s.handleSearch)
		})

		r.Group(func(r chi.Router) {
			if heavy != nil {
				r.Use(heavy)
			}
			r.Post("/collections/{collection}/sync", s.handleSyncCollection)
			r.Post("/sheet-tabs/{tabID}/sync", s.handleSyncSheetTab)
			r.Post("/sheet-tabs/{tabID}/backfill", s.handleBackfill)
		})
	})
}

// Start begins listening for HTTP requests on the configured address.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:         s.cfg.Server.Addr(),
		Handler:      s.router,
		ReadTimeout:  s.cfg.Server.ReadTimeout,
		WriteTimeout: s.cfg.Server.WriteTimeout, // 0 keeps SSE streams open
		IdleTimeout:  s.cfg.Server.IdleTimeout,
	}

	slog.Info("starting server", "addr", s.server.Addr)
	return s.server.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.stop()
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// Router returns the underlying chi router for testing.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// securityHeaders adds security headers to all responses.
func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "no-referrer")
		next.ServeHTTP(w, r)
	})
}

// rateLimiter implements a fixed-window request budget per client IP.
type rateLimiter struct {
	visitors *xsync.MapOf[string, *visitor]
	rate     int           // requests per window
	window   time.Duration // time window
	now      func() time.Time
}

type visitor struct {
	tokens    int
	lastReset time.Time
}

// newRateLimiter creates a rate limiter with the specified rate per window.
// Stale visitors are swept until ctx is cancelled.
func newRateLimiter(ctx context.Context, rate int, window time.Duration) *rateLimiter {
	rl := &rateLimiter{
		visitors: newVisitorMap(),
		rate:     rate,
		window:   window,
		now:      time.Now,
	}
	go rl.cleanup(ctx)
	return rl
}

func newVisitorMap() *xsync.MapOf[string, *visitor] {
	return xsync.NewMapOf[string, *visitor]()
}

// cleanup removes visitors idle for more than two windows.
func (rl *rateLimiter) cleanup(ctx context.Context) {
	ticker := time.NewTicker(rl.window)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			now := rl.now()
			rl.visitors.Range(func(ip string, v *visitor) bool {
				rl.visitors.Compute(ip, func(cur *visitor, loaded bool) (*visitor, bool) {
					return cur, !loaded || now.Sub(cur.lastReset) > rl.window*2
				})
				return true
			})
		}
	}
}

// allow checks if the request should be allowed and consumes a token if so.
func (rl *rateLimiter) allow(ip string) bool {
	now := rl.now()
	allowed := false
	rl.visitors.Compute(ip, func(v *visitor, loaded bool) (*visitor, bool) {
		if !loaded || now.Sub(v.lastReset) > rl.window {
			v = &visitor{tokens: rl.rate, lastReset: now}
		}
		if v.tokens > 0 {
			v.tokens--
			allowed = true
		}
		return v, false
	})
	return allowed
}

// middleware returns an HTTP middleware that rate limits by IP.
// RemoteAddr has already been rewritten by TrustedRealIP.
func (rl *rateLimiter) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !rl.allow(appmw.ClientIP(r)) {
			w.Header().Set("Retry-After", "60")
			writeError(w, r, http.StatusTooManyRequests, "RATE001", "rate limit exceeded")
			return
		}
		next.ServeHTTP(w, r)
	})
}
