// Package ratelimit implements the per-user fixed-window upload counter.
// Both implementations satisfy Limiter and must be atomic: a concurrent
// pair of increments must never both observe "below threshold" when their
// sum would exceed it.
package ratelimit

import (
	"context"
	"time"
)

// Result is returned on a successful check-and-increment.
type Result struct {
	Remaining int
	ResetAt   time.Time
}

// Limiter is namespaced per userId; there is no global ceiling.
type Limiter interface {
	// CheckAndIncrement atomically increments the caller's counter for the
	// current window and returns the remaining allowance, or fails with
	// errtypes.RateLimited if the window maximum would be exceeded.
	CheckAndIncrement(ctx context.Context, userID string) (Result, error)
}
