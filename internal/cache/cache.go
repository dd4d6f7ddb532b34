// Package cache provides a read-through cache with a fixed TTL per entry.
//
// Entries are only removed when they expire; there is no size-based eviction.
// Memory takes its notion of "now" from an injectable Clock so expiry can be
// tested without sleeping. Redis leaves expiry to the server's key TTL.
package cache

import (
	"context"
	"time"
)

// DefaultTTL is the expiry applied when callers pass a zero TTL.
const DefaultTTL = 10 * time.Minute

// Clock returns the current time.
type Clock func() time.Time

// ComputeFunc produces the value for a missing or expired key.
type ComputeFunc[V any] func(ctx context.Context) (V, error)

// Cache is a get-or-compute cache keyed by composite strings.
type Cache[V any] interface {
	// GetOrCompute returns the cached value for key, or calls compute, stores
	// its result for ttl, and returns it. Errors from compute are not cached.
	GetOrCompute(ctx context.Context, key string, ttl time.Duration, compute ComputeFunc[V]) (V, error)

	// Invalidate drops key so the next lookup recomputes it.
	Invalidate(ctx context.Context, key string)
}

func effectiveTTL(ttl time.Duration) time.Duration {
	if ttl <= 0 {
		return DefaultTTL
	}
	return ttl
}
