package core

// scheduler.go runs search-token backfills in the background.
//
// Every interval the scheduler walks the sheet-tab configurations and
// backfills each tab's collection with the default options, so documents
// written without tokens (or by other writers) become searchable. Failures of
// one tab are logged and do not stop the others or the scheduler.
//
// A pass holds one sync slot while it runs. When every slot is taken by
// running syncs the pass is skipped and retried on the next tick.

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/JonMunkholm/sheetsync/internal/store"
)

// StartBackfillScheduler runs a backfill pass immediately, then every
// interval, until ctx is cancelled.
func (s *Service) StartBackfillScheduler(ctx context.Context, interval time.Duration) {
	slog.Info("backfill scheduler started", "interval", interval.String())

	s.runBackfillJob(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("backfill scheduler stopped")
			return
		case <-ticker.C:
			s.runBackfillJob(ctx)
		}
	}
}

// runBackfillJob performs one pass over every sheet tab.
func (s *Service) runBackfillJob(ctx context.Context) {
	if !s.limiter.TryAcquire() {
		slog.Info("backfill job skipped: all sync slots busy", "active", s.limiter.ActiveCount())
		return
	}
	defer s.limiter.Release()

	start := time.Now()
	tabs, failed := 0, 0

	cursor := ""
	for {
		page, err := s.store.Page(ctx, store.SheetTabsCollection, cursor, 100)
		if err != nil {
			slog.Error("backfill job: list sheet tabs failed", "error", err)
			return
		}
		if len(page) == 0 {
			break
		}

		for _, doc := range page {
			if ctx.Err() != nil {
				return
			}
			tabs++
			if _, err := s.Backfill(ctx, doc.ID, BackfillOptions{}); err != nil {
				if errors.Is(err, ErrConfigurationMissing) {
					slog.Debug("backfill job: skipping incomplete sheet tab", "sheet_tab_id", doc.ID)
					continue
				}
				failed++
				slog.Error("backfill job: sheet tab failed", "sheet_tab_id", doc.ID, "error", err)
			}
		}
		cursor = page[len(page)-1].ID
	}

	slog.Info("backfill job completed",
		"sheet_tabs", tabs,
		"failed", failed,
		"duration_ms", time.Since(start).Milliseconds(),
	)
}
