package cache

import (
	"context"
	"time"

	"github.com/puzpuzpuz/xsync/v3"
)

type entry[V any] struct {
	value   V
	expires time.Time
}

// Memory is a process-local Cache.
type Memory[V any] struct {
	entries *xsync.MapOf[string, entry[V]]
	now     Clock
}

// NewMemory creates an in-memory cache. A nil clock uses time.Now.
func NewMemory[V any](now Clock) *Memory[V] {
	if now == nil {
		now = time.Now
	}
	return &Memory[V]{
		entries: xsync.NewMapOf[string, entry[V]](),
		now:     now,
	}
}

// GetOrCompute implements Cache. Concurrent misses on the same key may each
// call compute; the last result wins.
func (m *Memory[V]) GetOrCompute(ctx context.Context, key string, ttl time.Duration, compute ComputeFunc[V]) (V, error) {
	if e, ok := m.entries.Load(key); ok {
		if m.now().Before(e.expires) {
			return e.value, nil
		}
		m.entries.Delete(key)
	}

	v, err := compute(ctx)
	if err != nil {
		var zero V
		return zero, err
	}

	m.entries.Store(key, entry[V]{value: v, expires: m.now().Add(effectiveTTL(ttl))})
	return v, nil
}

// Invalidate implements Cache.
func (m *Memory[V]) Invalidate(_ context.Context, key string) {
	m.entries.Delete(key)
}

// Len returns the number of stored entries, including expired ones not yet
// touched.
func (m *Memory[V]) Len() int {
	return m.entries.Size()
}
