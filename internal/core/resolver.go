package core

import (
	"context"
	"errors"
	"fmt"

	"github.com/JonMunkholm/sheetsync/internal/store"
	"golang.org/x/sync/errgroup"
)

// classifiedRow is a row together with whether its document existed when it
// was checked. Existing holds the stored fields when they were read.
type classifiedRow struct {
	Row      Row
	Exists   bool
	Existing map[string]any
}

// resolveExistence looks up every row of one existence group concurrently.
// The result has the same order as rows. Any failed lookup fails the whole
// group; no partial classification is returned.
//
// With tokenize-on-sync the documents are read rather than only checked, so
// search tokens can cover fields the incoming row leaves untouched.
func (s *Service) resolveExistence(ctx context.Context, collection string, rows []Row) ([]classifiedRow, error) {
	out := make([]classifiedRow, len(rows))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.existenceBatchSize)
	for i, row := range rows {
		g.Go(func() error {
			c, err := s.lookup(gctx, collection, row)
			if err != nil {
				return fmt.Errorf("document %q: %w", row.ID, err)
			}
			out[i] = c
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, storageError("check existence", err)
	}
	return out, nil
}

func (s *Service) lookup(ctx context.Context, collection string, row Row) (classifiedRow, error) {
	if !s.tokenizeOnSync {
		exists, err := s.store.Exists(ctx, collection, row.ID)
		return classifiedRow{Row: row, Exists: exists}, err
	}

	doc, err := s.store.Get(ctx, collection, row.ID)
	switch {
	case errors.Is(err, store.ErrNotFound):
		return classifiedRow{Row: row}, nil
	case err != nil:
		return classifiedRow{}, err
	}
	return classifiedRow{Row: row, Exists: true, Existing: doc.Fields}, nil
}
