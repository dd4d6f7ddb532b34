package core

import (
	"context"
	"maps"

	"github.com/google/uuid"

	"github.com/JonMunkholm/sheetsync/internal/events"
	"github.com/JonMunkholm/sheetsync/internal/logging"
	"github.com/JonMunkholm/sheetsync/internal/metrics"
	"github.com/JonMunkholm/sheetsync/internal/store"
)

// SyncCompleted is the payload published after a successful sync run.
type SyncCompleted struct {
	RunID      string `json:"runId"`
	Collection string `json:"collection"`
	SheetTabID string `json:"sheetTabId,omitempty"`
	Created    int    `json:"created"`
	Updated    int    `json:"updated"`
	DurationMs int64  `json:"durationMs"`
}

// Sync merge-upserts rows into collection and reports how many documents were
// created and updated.
//
// Rows are split into write batches of at most 500 documents. Each write batch
// is split into existence groups that are checked concurrently, one group at a
// time, and then committed atomically. Batches run strictly in input order. A
// failing batch aborts the run: earlier batches stay committed and the error is
// returned without counts. Re-running is safe because every write is a merge.
//
// onProgress may be nil. When set it receives throttled snapshots and always
// receives the final one.
func (s *Service) Sync(ctx context.Context, collection string, rows []Row, onProgress ProgressFunc) (SyncResult, error) {
	return s.sync(ctx, collection, "", rows, onProgress)
}

func (s *Service) sync(ctx context.Context, collection, sheetTabID string, rows []Row, onProgress ProgressFunc) (result SyncResult, err error) {
	if collection == "" {
		return SyncResult{}, validationError("collection name is required")
	}
	rows, dupes, err := normalizeRows(rows)
	if err != nil {
		return SyncResult{}, err
	}

	if err := s.limiter.Acquire(ctx); err != nil {
		return SyncResult{}, err
	}
	defer s.limiter.Release()

	if s.syncTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.syncTimeout)
		defer cancel()
	}

	runID := uuid.NewString()
	ctx = logging.ContextWithRunID(ctx, runID)
	logger := logging.WithFields(ctx, "collection", collection, "rows", len(rows))
	if sheetTabID != "" {
		logger = logger.With("sheet_tab_id", sheetTabID)
	}
	if dupes > 0 {
		logger.Warn("duplicate row ids collapsed", "duplicates", dupes)
	}

	start := s.now()
	logger.Info("sync started")
	defer func() {
		elapsed := s.now().Sub(start)
		metrics.SyncFinished(elapsed.Seconds(), err)
		if err != nil {
			logger.Error("sync failed", "error", err, "duration_ms", elapsed.Milliseconds())
		}
	}()

	reporter := newProgressReporter(onProgress, len(rows), s.progressInterval, s.now)
	result.RunID = runID

	for _, batch := range planBatches(rows, s.writeBatchSize, s.existenceBatchSize) {
		if err := ctx.Err(); err != nil {
			return SyncResult{}, err
		}

		classified := make([]classifiedRow, 0, batch.size())
		for _, group := range batch {
			c, err := s.resolveExistence(ctx, collection, group)
			if err != nil {
				return SyncResult{}, err
			}
			classified = append(classified, c...)
		}

		created, updated, err := s.commitBatch(ctx, collection, classified)
		if err != nil {
			return SyncResult{}, err
		}
		result.Created += created
		result.Updated += updated

		logger.Debug("batch committed", "created", created, "updated", updated)
		reporter.add(created, updated)
	}
	reporter.finish()

	elapsed := s.now().Sub(start)
	result.DurationMs = elapsed.Milliseconds()
	logger.Info("sync completed",
		"created", result.Created,
		"updated", result.Updated,
		"duration_ms", result.DurationMs,
	)

	s.publish(ctx, events.TopicSyncCompleted, SyncCompleted{
		RunID:      runID,
		Collection: collection,
		SheetTabID: sheetTabID,
		Created:    result.Created,
		Updated:    result.Updated,
		DurationMs: result.DurationMs,
	})
	return result, nil
}

// writeBatch is one commit's worth of rows, split into existence groups.
type writeBatch [][]Row

func (b writeBatch) size() int {
	n := 0
	for _, g := range b {
		n += len(g)
	}
	return n
}

// planBatches splits rows into write batches of at most writeSize rows, each
// split into existence groups of at most groupSize rows. Groups never span
// two write batches.
func planBatches(rows []Row, writeSize, groupSize int) []writeBatch {
	writeSize = min(writeSize, store.MaxBatchWrites)
	batches := Chunk(rows, writeSize)
	plan := make([]writeBatch, len(batches))
	for i, b := range batches {
		plan[i] = Chunk(b, groupSize)
	}
	return plan
}

// normalizeRows rejects rows without an ID and collapses repeated IDs. The
// surviving row keeps the position of the first occurrence and the fields of
// all occurrences merged in order, matching what sequential merge writes
// would leave behind.
func normalizeRows(rows []Row) ([]Row, int, error) {
	index := make(map[string]int, len(rows))
	out := make([]Row, 0, len(rows))
	for i, r := range rows {
		if r.ID == "" {
			return nil, 0, validationError("row %d has an empty id", i)
		}
		if pos, ok := index[r.ID]; ok {
			merged := maps.Clone(out[pos].Data)
			if merged == nil {
				merged = make(map[string]any, len(r.Data))
			}
			maps.Copy(merged, r.Data)
			out[pos].Data = merged
			continue
		}
		index[r.ID] = len(out)
		out = append(out, r)
	}
	return out, len(rows) - len(out), nil
}
