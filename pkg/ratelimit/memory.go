package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/wallpaperhq/ingest/pkg/clock"
	"github.com/wallpaperhq/ingest/pkg/errtypes"
)

// MemoryLimiter is a single-process fixed-window limiter backed by a local
// map. It shares no state across process instances and is acceptable for
// tests or single-instance deployments, per spec.md's isolation note.
type MemoryLimiter struct {
	max      int
	window   time.Duration
	clock    clock.Clock
	mu       sync.Mutex
	counters map[string]*windowCounter
}

type windowCounter struct {
	count   int
	resetAt time.Time
}

// NewMemoryLimiter returns a limiter allowing max requests per window per
// userId.
func NewMemoryLimiter(max int, window time.Duration, c clock.Clock) *MemoryLimiter {
	return &MemoryLimiter{
		max:      max,
		window:   window,
		clock:    c,
		counters: make(map[string]*windowCounter),
	}
}

// CheckAndIncrement implements Limiter.
func (l *MemoryLimiter) CheckAndIncrement(_ context.Context, userID string) (Result, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock.Now()
	c, ok := l.counters[userID]
	if !ok || !now.Before(c.resetAt) {
		c = &windowCounter{count: 0, resetAt: now.Add(l.window)}
		l.counters[userID] = c
	}

	if c.count >= l.max {
		remaining := c.resetAt.Sub(now)
		return Result{}, errtypes.RateLimited{
			UserID: userID,
			// Ceil, not floor: a sub-second remainder must still report a
			// positive retryAfter rather than collapsing to 0.
			RetryAfter: int64((remaining + time.Second - time.Nanosecond) / time.Second),
			Reset:      c.resetAt.Unix(),
			Max:        l.max,
		}
	}

	c.count++
	remaining := l.max - c.count
	if remaining < 0 {
		remaining = 0
	}
	return Result{Remaining: remaining, ResetAt: c.resetAt}, nil
}
