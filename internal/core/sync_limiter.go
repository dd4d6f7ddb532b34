package core

// sync_limiter.go bounds the number of sync runs executing at once.
//
// Each run holds one slot of a buffered-channel semaphore for its whole
// duration. When every slot is taken, a new run waits up to maxWait and then
// fails with ErrTooManySyncs. WaitForDrain lets shutdown wait for in-flight
// runs.

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/JonMunkholm/sheetsync/internal/metrics"
)

// ErrTooManySyncs is returned when no sync slot frees up within the wait
// time. Clients should retry after a short delay.
var ErrTooManySyncs = errors.New("too many concurrent syncs, please try again later")

// DefaultMaxConcurrentSyncs is the default limit for parallel sync runs.
const DefaultMaxConcurrentSyncs = 5

// DefaultMaxWaitTime is how long to wait for a slot before rejecting.
const DefaultMaxWaitTime = 30 * time.Second

// SyncLimiter is a counting semaphore for sync runs.
type SyncLimiter struct {
	slots   chan struct{}
	maxWait time.Duration
	active  atomic.Int64
}

// SyncLimiterStatus is a point-in-time view of the limiter.
type SyncLimiterStatus struct {
	Active        int `json:"active"`
	Available     int `json:"available"`
	MaxConcurrent int `json:"maxConcurrent"`
}

// NewSyncLimiter creates a limiter admitting at most maxConcurrent runs.
func NewSyncLimiter(maxConcurrent int, maxWait time.Duration) *SyncLimiter {
	if maxConcurrent <= 0 {
		maxConcurrent = DefaultMaxConcurrentSyncs
	}
	if maxWait <= 0 {
		maxWait = DefaultMaxWaitTime
	}
	return &SyncLimiter{
		slots:   make(chan struct{}, maxConcurrent),
		maxWait: maxWait,
	}
}

// Acquire takes a slot, waiting up to the configured maximum.
// The caller must call Release exactly once after a nil return.
func (l *SyncLimiter) Acquire(ctx context.Context) error {
	timer := time.NewTimer(l.maxWait)
	defer timer.Stop()

	select {
	case l.slots <- struct{}{}:
		metrics.SetActiveSyncs(int(l.active.Add(1)))
		return nil
	case <-timer.C:
		return ErrTooManySyncs
	case <-ctx.Done():
		return ctx.Err()
	}
}

// TryAcquire takes a slot only if one is free right now.
func (l *SyncLimiter) TryAcquire() bool {
	select {
	case l.slots <- struct{}{}:
		metrics.SetActiveSyncs(int(l.active.Add(1)))
		return true
	default:
		return false
	}
}

// Release returns a slot taken by Acquire or TryAcquire.
func (l *SyncLimiter) Release() {
	metrics.SetActiveSyncs(int(l.active.Add(-1)))
	<-l.slots
}

// ActiveCount returns the number of runs holding a slot.
func (l *SyncLimiter) ActiveCount() int {
	return int(l.active.Load())
}

// Status returns the current limiter state for monitoring.
func (l *SyncLimiter) Status() SyncLimiterStatus {
	return SyncLimiterStatus{
		Active:        l.ActiveCount(),
		Available:     cap(l.slots) - len(l.slots),
		MaxConcurrent: cap(l.slots),
	}
}

// WaitForDrain blocks until no run holds a slot or ctx is done.
func (l *SyncLimiter) WaitForDrain(ctx context.Context) error {
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		if l.ActiveCount() == 0 {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
