package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/wallpaperhq/ingest/pkg/errtypes"
)

// checkAndIncrementScript performs the read-check-increment cycle in one
// round trip, satisfying spec.md's atomicity requirement across process
// instances sharing the same Redis. KEYS[1] is the per-user window key;
// ARGV[1] is max, ARGV[2] is the window in milliseconds.
//
// It returns {allowed(0/1), count, pttl_ms}.
var checkAndIncrementScript = redis.NewScript(`
local max = tonumber(ARGV[1])
local window_ms = tonumber(ARGV[2])
local count = redis.call('GET', KEYS[1])
if count == false then
	redis.call('SET', KEYS[1], 1, 'PX', window_ms)
	return {1, 1, window_ms}
end
count = tonumber(count)
if count >= max then
	local ttl = redis.call('PTTL', KEYS[1])
	return {0, count, ttl}
end
local newCount = redis.call('INCR', KEYS[1])
local ttl = redis.call('PTTL', KEYS[1])
return {1, newCount, ttl}
`)

// RedisLimiter is a distributed fixed-window limiter shared across process
// instances via Redis, using a server-side script so the check-then-write
// is a single atomic round trip.
type RedisLimiter struct {
	rdb       redis.Cmdable
	max       int
	window    time.Duration
	keyPrefix string
}

// NewRedisLimiter returns a limiter allowing max requests per window per
// userId, namespaced under keyPrefix (e.g. "ratelimit:upload:").
func NewRedisLimiter(rdb redis.Cmdable, max int, window time.Duration, keyPrefix string) *RedisLimiter {
	return &RedisLimiter{rdb: rdb, max: max, window: window, keyPrefix: keyPrefix}
}

// CheckAndIncrement implements Limiter.
func (l *RedisLimiter) CheckAndIncrement(ctx context.Context, userID string) (Result, error) {
	key := l.keyPrefix + userID
	windowMs := l.window.Milliseconds()

	res, err := checkAndIncrementScript.Run(ctx, l.rdb, []string{key}, l.max, windowMs).Slice()
	if err != nil {
		return Result{}, fmt.Errorf("rate limit script: %w", err)
	}
	if len(res) != 3 {
		return Result{}, fmt.Errorf("rate limit script: unexpected result shape %v", res)
	}

	allowed := toInt64(res[0]) == 1
	count := toInt64(res[1])
	pttl := toInt64(res[2])
	ttl := time.Duration(pttl) * time.Millisecond
	resetAt := time.Now().Add(ttl)

	if !allowed {
		return Result{}, errtypes.RateLimited{
			UserID: userID,
			// Ceil, not round: a sub-second TTL must still report a positive
			// retryAfter rather than collapsing to 0.
			RetryAfter: int64((ttl + time.Second - time.Nanosecond) / time.Second),
			Reset:      resetAt.Unix(),
			Max:        l.max,
		}
	}

	remaining := l.max - int(count)
	if remaining < 0 {
		remaining = 0
	}
	return Result{Remaining: remaining, ResetAt: resetAt}, nil
}

func toInt64(v interface{}) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case int:
		return int64(n)
	default:
		return 0
	}
}
