package core

import (
	"context"
	"fmt"

	"github.com/JonMunkholm/sheetsync/internal/store"
)

// Search limits.
const (
	DefaultSearchLimit = 20
	MaxSearchLimit     = 100
)

// Search returns documents of the tab's collection whose search tokens
// contain the normalised first word of query. Results are cached per tab,
// token and limit for the configured TTL; a sync does not invalidate them.
func (s *Service) Search(ctx context.Context, tabID, query string, limit int) ([]SearchHit, error) {
	token := searchToken(query)
	if token == "" {
		return nil, validationError("search query must contain a letter or digit")
	}
	switch {
	case limit == 0:
		limit = DefaultSearchLimit
	case limit < 0 || limit > MaxSearchLimit:
		return nil, validationError("limit must be between 1 and %d", MaxSearchLimit)
	}

	tab, err := s.GetSheetTab(ctx, tabID)
	if err != nil {
		return nil, err
	}

	key := fmt.Sprintf("search:%s:%s:%d", tabID, token, limit)
	return s.searchCache.GetOrCompute(ctx, key, s.cacheTTL, func(ctx context.Context) ([]SearchHit, error) {
		docs, err := s.store.FindByToken(ctx, tab.CollectionName, token, limit)
		if err != nil {
			return nil, storageError("search", err)
		}
		hits := make([]SearchHit, len(docs))
		for i, d := range docs {
			delete(d.Fields, store.SearchTokensField)
			hits[i] = SearchHit{ID: d.ID, Fields: d.Fields}
		}
		return hits, nil
	})
}
