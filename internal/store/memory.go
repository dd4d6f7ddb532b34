package store

import (
	"context"
	"maps"
	"slices"
	"sort"
	"sync"

	"github.com/puzpuzpuz/xsync/v3"
)

// Memory is an in-process Store. It has no durability and exists to stand in
// for the real document database in development and tests.
//
// FailHook, when set, is consulted before every operation; a non-nil return
// aborts the operation with that error.
type Memory struct {
	collections *xsync.MapOf[string, *memCollection]

	FailHook func(op, collection string) error

	mu      sync.Mutex
	commits []int
}

type memCollection struct {
	mu   sync.RWMutex
	docs map[string]map[string]any
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{collections: xsync.NewMapOf[string, *memCollection]()}
}

func (m *Memory) collection(name string) *memCollection {
	c, _ := m.collections.LoadOrCompute(name, func() *memCollection {
		return &memCollection{docs: make(map[string]map[string]any)}
	})
	return c
}

func (m *Memory) fail(op, collection string) error {
	if m.FailHook == nil {
		return nil
	}
	return m.FailHook(op, collection)
}

// Exists implements Store.
func (m *Memory) Exists(ctx context.Context, collection, id string) (bool, error) {
	if err := m.fail("exists", collection); err != nil {
		return false, err
	}
	if err := ctx.Err(); err != nil {
		return false, err
	}
	c := m.collection(collection)
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.docs[id]
	return ok, nil
}

// Get implements Store.
func (m *Memory) Get(ctx context.Context, collection, id string) (Document, error) {
	if err := m.fail("get", collection); err != nil {
		return Document{}, err
	}
	c := m.collection(collection)
	c.mu.RLock()
	defer c.mu.RUnlock()
	fields, ok := c.docs[id]
	if !ok {
		return Document{}, ErrNotFound
	}
	return Document{ID: id, Fields: cloneFields(fields)}, nil
}

// CommitMerge implements Store.
func (m *Memory) CommitMerge(ctx context.Context, collection string, docs []Document) error {
	if err := checkBatch(len(docs)); err != nil {
		return err
	}
	if err := m.fail("commit", collection); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	c := m.collection(collection)
	c.mu.Lock()
	for _, d := range docs {
		existing, ok := c.docs[d.ID]
		if !ok {
			existing = make(map[string]any, len(d.Fields))
			c.docs[d.ID] = existing
		}
		for k, v := range cloneFields(d.Fields) {
			existing[k] = v
		}
	}
	c.mu.Unlock()

	m.mu.Lock()
	m.commits = append(m.commits, len(docs))
	m.mu.Unlock()
	return nil
}

// Update implements Store. Updating a missing document fails the whole batch.
func (m *Memory) Update(ctx context.Context, collection string, updates []FieldUpdate) error {
	if err := checkBatch(len(updates)); err != nil {
		return err
	}
	if err := m.fail("update", collection); err != nil {
		return err
	}

	c := m.collection(collection)
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, u := range updates {
		if _, ok := c.docs[u.ID]; !ok {
			return ErrNotFound
		}
	}
	for _, u := range updates {
		c.docs[u.ID][u.Field] = cloneValue(u.Value)
	}
	return nil
}

// Delete implements Store.
func (m *Memory) Delete(ctx context.Context, collection string, ids []string) error {
	if err := checkBatch(len(ids)); err != nil {
		return err
	}
	if err := m.fail("delete", collection); err != nil {
		return err
	}
	c := m.collection(collection)
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, id := range ids {
		delete(c.docs, id)
	}
	return nil
}

// Page implements Store.
func (m *Memory) Page(ctx context.Context, collection, after string, limit int) ([]Document, error) {
	if err := m.fail("page", collection); err != nil {
		return nil, err
	}
	c := m.collection(collection)
	c.mu.RLock()
	defer c.mu.RUnlock()

	ids := make([]string, 0, len(c.docs))
	for id := range c.docs {
		if id > after {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	if limit > 0 && len(ids) > limit {
		ids = ids[:limit]
	}

	out := make([]Document, len(ids))
	for i, id := range ids {
		out[i] = Document{ID: id, Fields: cloneFields(c.docs[id])}
	}
	return out, nil
}

// FindByToken implements Store.
func (m *Memory) FindByToken(ctx context.Context, collection, token string, limit int) ([]Document, error) {
	if err := m.fail("find", collection); err != nil {
		return nil, err
	}
	c := m.collection(collection)
	c.mu.RLock()
	defer c.mu.RUnlock()

	ids := slices.Sorted(maps.Keys(c.docs))
	var out []Document
	for _, id := range ids {
		if limit > 0 && len(out) >= limit {
			break
		}
		fields := c.docs[id]
		if slices.Contains(TokensOf(fields), token) {
			out = append(out, Document{ID: id, Fields: cloneFields(fields)})
		}
	}
	return out, nil
}

// Close implements Store.
func (m *Memory) Close() error { return nil }

// Commits returns the size of every successful CommitMerge call, in order.
func (m *Memory) Commits() []int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.commits)
}

// Len returns the number of documents in a collection.
func (m *Memory) Len(collection string) int {
	c := m.collection(collection)
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.docs)
}

// TokensOf reads the search tokens field from a document, accepting the
// slice shapes produced by the different backends.
func TokensOf(fields map[string]any) []string {
	switch v := fields[SearchTokensField].(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, t := range v {
			if s, ok := t.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

func cloneFields(in map[string]any) map[string]any {
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case []string:
		return slices.Clone(t)
	case []any:
		return slices.Clone(t)
	case map[string]any:
		return cloneFields(t)
	default:
		return v
	}
}
