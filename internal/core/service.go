package core

import (
	"context"
	"time"

	"github.com/JonMunkholm/sheetsync/internal/cache"
	"github.com/JonMunkholm/sheetsync/internal/config"
	"github.com/JonMunkholm/sheetsync/internal/events"
	"github.com/JonMunkholm/sheetsync/internal/logging"
	"github.com/JonMunkholm/sheetsync/internal/sheets"
	"github.com/JonMunkholm/sheetsync/internal/store"
)

// Service is the entry point of the sync engine. It is safe for concurrent
// use; every operation takes a context that cancels its storage calls.
type Service struct {
	store   store.Store
	limiter *SyncLimiter

	existenceBatchSize int
	writeBatchSize     int
	progressInterval   time.Duration
	tokenizeOnSync     bool
	syncTimeout        time.Duration

	backfillBatchSize int
	backfillMaxDocs   int

	cacheTTL    time.Duration
	searchCache cache.Cache[[]SearchHit]
	publisher   events.Publisher
	sheets      sheets.Reader
	now         func() time.Time
}

// ServiceOption customises a Service.
type ServiceOption func(*Service)

// WithPublisher sends run completion events to p.
func WithPublisher(p events.Publisher) ServiceOption {
	return func(s *Service) { s.publisher = p }
}

// WithSearchCache replaces the in-process search result cache.
func WithSearchCache(c cache.Cache[[]SearchHit]) ServiceOption {
	return func(s *Service) { s.searchCache = c }
}

// WithSheetReader enables sheet-driven syncs.
func WithSheetReader(r sheets.Reader) ServiceOption {
	return func(s *Service) { s.sheets = r }
}

// WithClock replaces time.Now for progress throttling and run timing.
func WithClock(now func() time.Time) ServiceOption {
	return func(s *Service) { s.now = now }
}

// NewService creates a Service writing to st, tuned by cfg.
func NewService(st store.Store, cfg *config.Config, opts ...ServiceOption) *Service {
	s := &Service{
		store:              st,
		limiter:            NewSyncLimiter(cfg.Sync.MaxConcurrent, cfg.Sync.MaxWaitTime),
		existenceBatchSize: cfg.Sync.ExistenceBatchSize,
		writeBatchSize:     min(cfg.Sync.WriteBatchSize, store.MaxBatchWrites),
		progressInterval:   cfg.Sync.ProgressInterval,
		tokenizeOnSync:     cfg.Sync.TokenizeOnSync,
		syncTimeout:        cfg.Sync.Timeout,
		backfillBatchSize:  cfg.Backfill.BatchSize,
		backfillMaxDocs:    cfg.Backfill.MaxDocs,
		cacheTTL:           cfg.Cache.TTL,
		publisher:          events.Nop{},
		now:                time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.existenceBatchSize <= 0 {
		s.existenceBatchSize = 50
	}
	if s.writeBatchSize <= 0 {
		s.writeBatchSize = store.MaxBatchWrites
	}
	if s.backfillBatchSize <= 0 {
		s.backfillBatchSize = DefaultBackfillBatchSize
	}
	if s.backfillMaxDocs <= 0 {
		s.backfillMaxDocs = DefaultBackfillMaxDocs
	}
	if s.searchCache == nil {
		s.searchCache = cache.NewMemory[[]SearchHit](cache.Clock(s.now))
	}
	return s
}

// Limiter exposes the sync concurrency limiter for status reporting and
// graceful shutdown.
func (s *Service) Limiter() *SyncLimiter {
	return s.limiter
}

// SheetsEnabled reports whether sheet-driven syncs are available.
func (s *Service) SheetsEnabled() bool {
	return s.sheets != nil
}

// publish sends an event. Broker failures never fail the run that produced
// the event; they are logged and dropped.
func (s *Service) publish(ctx context.Context, topic string, payload any) {
	if err := s.publisher.Publish(ctx, topic, payload); err != nil {
		logging.FromContext(ctx).Warn("event publish failed", "topic", topic, "error", err)
	}
}
