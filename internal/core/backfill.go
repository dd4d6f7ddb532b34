package core

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/JonMunkholm/sheetsync/internal/events"
	"github.com/JonMunkholm/sheetsync/internal/logging"
	"github.com/JonMunkholm/sheetsync/internal/metrics"
	"github.com/JonMunkholm/sheetsync/internal/store"
)

// Backfill limits.
const (
	DefaultBackfillBatchSize = 1000
	MaxBackfillBatchSize     = 2000
	DefaultBackfillMaxDocs   = 100000
)

// BackfillCompleted is the payload published after a successful backfill.
type BackfillCompleted struct {
	RunID      string `json:"runId"`
	SheetTabID string `json:"sheetTabId"`
	Collection string `json:"collection"`
	Processed  int    `json:"processed"`
	Updated    int    `json:"updated"`
	DurationMs int64  `json:"durationMs"`
}

// Backfill computes and stores search tokens for the documents of a sheet
// tab's collection.
//
// Documents are visited in ascending ID order, one page at a time, each page
// starting after the last document of the previous one. With Overwrite unset,
// documents that already carry a non-empty token list are skipped. Tokens are
// written as a field update, never as a full document replace. The scan ends
// when the collection is exhausted or MaxDocs documents have been visited.
//
// Documents deleted behind the cursor during a scan can shift later pages;
// documents inserted ahead of it are picked up. A document deleted between
// reading its page and writing its tokens is skipped and not counted as
// updated.
func (s *Service) Backfill(ctx context.Context, tabID string, opts BackfillOptions) (BackfillResult, error) {
	opts, err := s.backfillOptions(opts)
	if err != nil {
		return BackfillResult{}, err
	}

	tab, err := s.GetSheetTab(ctx, tabID)
	if err != nil {
		return BackfillResult{}, err
	}

	runID := uuid.NewString()
	ctx = logging.ContextWithRunID(ctx, runID)
	logger := logging.WithFields(ctx,
		"sheet_tab_id", tabID,
		"collection", tab.CollectionName,
	)
	logger.Info("backfill started", "batch_size", opts.BatchSize, "max_docs", opts.MaxDocs, "overwrite", opts.Overwrite)
	start := s.now()

	result := BackfillResult{RunID: runID}
	cursor := ""
	for result.Processed < opts.MaxDocs {
		if err := ctx.Err(); err != nil {
			return BackfillResult{}, err
		}

		pageSize := min(opts.BatchSize, opts.MaxDocs-result.Processed)
		docs, err := s.store.Page(ctx, tab.CollectionName, cursor, pageSize)
		if err != nil {
			logger.Error("backfill failed", "error", err, "processed", result.Processed)
			return BackfillResult{}, storageError("read page", err)
		}
		if len(docs) == 0 {
			break
		}

		updates := make([]store.FieldUpdate, 0, len(docs))
		for _, d := range docs {
			if !opts.Overwrite && len(store.TokensOf(d.Fields)) > 0 {
				continue
			}
			updates = append(updates, store.FieldUpdate{
				ID:    d.ID,
				Field: store.SearchTokensField,
				Value: BuildSearchTokens(d.Fields),
			})
		}

		written := 0
		for _, chunk := range Chunk(updates, store.MaxBatchWrites) {
			n, err := s.writeTokens(ctx, tab.CollectionName, chunk)
			if err != nil {
				logger.Error("backfill failed", "error", err, "processed", result.Processed)
				return BackfillResult{}, storageError("write tokens", err)
			}
			written += n
		}

		result.Processed += len(docs)
		result.Updated += written
		metrics.BackfillPage(len(docs), written)
		logger.Debug("backfill page done", "page_size", len(docs), "updated", written, "processed", result.Processed)

		if len(docs) < pageSize {
			break
		}
		cursor = docs[len(docs)-1].ID
	}

	duration := s.now().Sub(start).Milliseconds()
	logger.Info("backfill completed",
		"processed", result.Processed,
		"updated", result.Updated,
		"duration_ms", duration,
	)
	s.publish(ctx, events.TopicBackfillCompleted, BackfillCompleted{
		RunID:      runID,
		SheetTabID: tabID,
		Collection: tab.CollectionName,
		Processed:  result.Processed,
		Updated:    result.Updated,
		DurationMs: duration,
	})
	return result, nil
}

// writeTokens applies one chunk of token updates and returns how many
// documents were written. A document deleted after its page was read fails
// the batch with ErrNotFound; the chunk is then retried one document at a time
// and the missing documents are skipped.
func (s *Service) writeTokens(ctx context.Context, collection string, chunk []store.FieldUpdate) (int, error) {
	err := s.store.Update(ctx, collection, chunk)
	if err == nil {
		return len(chunk), nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return 0, err
	}

	written := 0
	for _, u := range chunk {
		err := s.store.Update(ctx, collection, []store.FieldUpdate{u})
		switch {
		case err == nil:
			written++
		case errors.Is(err, store.ErrNotFound):
			logging.FromContext(ctx).Debug("backfill: document deleted during scan", "document_id", u.ID)
		default:
			return written, err
		}
	}
	return written, nil
}

// backfillOptions applies defaults and rejects out-of-range values.
func (s *Service) backfillOptions(opts BackfillOptions) (BackfillOptions, error) {
	switch {
	case opts.BatchSize == 0:
		opts.BatchSize = s.backfillBatchSize
	case opts.BatchSize < 0 || opts.BatchSize > MaxBackfillBatchSize:
		return opts, validationError("batchSize must be between 1 and %d, got %d", MaxBackfillBatchSize, opts.BatchSize)
	}
	switch {
	case opts.MaxDocs == 0:
		opts.MaxDocs = s.backfillMaxDocs
	case opts.MaxDocs < 0:
		return opts, validationError("maxDocs must be positive, got %d", opts.MaxDocs)
	}
	return opts, nil
}
