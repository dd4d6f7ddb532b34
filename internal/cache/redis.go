package cache

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/bytedance/sonic"
	"github.com/redis/go-redis/v9"
)

// Redis is a Cache shared between processes. Values are stored as JSON under
// prefix+key with the Redis TTL set to the entry TTL.
//
// Redis failures never fail a lookup: the value is computed and returned, and
// the failure is logged.
type Redis[V any] struct {
	client *redis.Client
	prefix string
}

// NewRedis connects a Redis-backed cache.
func NewRedis[V any](addr, password string, db int, prefix string) *Redis[V] {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	return &Redis[V]{client: rdb, prefix: prefix}
}

// GetOrCompute implements Cache.
func (r *Redis[V]) GetOrCompute(ctx context.Context, key string, ttl time.Duration, compute ComputeFunc[V]) (V, error) {
	k := r.prefix + key

	data, err := r.client.Get(ctx, k).Bytes()
	switch {
	case err == nil:
		var v V
		uerr := sonic.Unmarshal(data, &v)
		if uerr == nil {
			return v, nil
		}
		slog.Warn("cache: discarding undecodable entry", "key", k, "error", uerr)
	case !errors.Is(err, redis.Nil):
		slog.Warn("cache: redis get failed", "key", k, "error", err)
	}

	v, err := compute(ctx)
	if err != nil {
		var zero V
		return zero, err
	}

	encoded, err := sonic.Marshal(v)
	if err != nil {
		slog.Warn("cache: encode failed", "key", k, "error", err)
		return v, nil
	}
	if err := r.client.Set(ctx, k, encoded, effectiveTTL(ttl)).Err(); err != nil {
		slog.Warn("cache: redis set failed", "key", k, "error", err)
	}
	return v, nil
}

// Invalidate implements Cache.
func (r *Redis[V]) Invalidate(ctx context.Context, key string) {
	if err := r.client.Del(ctx, r.prefix+key).Err(); err != nil {
		slog.Warn("cache: redis del failed", "key", r.prefix+key, "error", err)
	}
}

// Ping checks connectivity.
func (r *Redis[V]) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Close closes the underlying client.
func (r *Redis[V]) Close() error {
	return r.client.Close()
}
