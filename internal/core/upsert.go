package core

import (
	"context"
	"fmt"
	"maps"

	"github.com/JonMunkholm/sheetsync/internal/metrics"
	"github.com/JonMunkholm/sheetsync/internal/store"
)

// commitBatch writes one classified write batch as a single atomic merge.
//
// Counts come from the classification made before the write, so a document
// created by a concurrent writer between the check and the commit is still
// counted as created here.
func (s *Service) commitBatch(ctx context.Context, collection string, batch []classifiedRow) (created, updated int, err error) {
	if len(batch) > store.MaxBatchWrites {
		return 0, 0, fmt.Errorf("write batch of %d exceeds limit of %d: %w", len(batch), store.MaxBatchWrites, store.ErrBatchTooLarge)
	}

	docs := make([]store.Document, len(batch))
	for i, c := range batch {
		docs[i] = store.Document{ID: c.Row.ID, Fields: s.documentFields(c)}
		if c.Exists {
			updated++
		} else {
			created++
		}
	}

	if err := s.store.CommitMerge(ctx, collection, docs); err != nil {
		return 0, 0, storageError("commit batch", err)
	}

	metrics.BatchCommitted(created, updated)
	return created, updated, nil
}

// documentFields returns the fields written for a row, with search tokens
// attached when tokenize-on-sync is enabled. The tokens are built over the
// document as it will read after the merge: stored fields overlaid with the
// row's data.
func (s *Service) documentFields(c classifiedRow) map[string]any {
	if !s.tokenizeOnSync {
		return c.Row.Data
	}

	merged := maps.Clone(c.Existing)
	if merged == nil {
		merged = make(map[string]any, len(c.Row.Data))
	}
	delete(merged, store.SearchTokensField)
	maps.Copy(merged, c.Row.Data)
	delete(merged, store.SearchTokensField)

	fields := maps.Clone(c.Row.Data)
	if fields == nil {
		fields = make(map[string]any, 1)
	}
	fields[store.SearchTokensField] = BuildSearchTokens(merged)
	return fields
}
