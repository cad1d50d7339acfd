package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wallpaperhq/ingest/pkg/errtypes"
)

func newTestRedisLimiter(t *testing.T, max int, window time.Duration) (*RedisLimiter, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	return NewRedisLimiter(rdb, max, window, "test:ratelimit:"), mr
}

func TestRedisLimiter_AllowsUpToMax(t *testing.T) {
	l, _ := newTestRedisLimiter(t, 10, 10*time.Second)
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		res, err := l.CheckAndIncrement(ctx, "u1")
		require.NoError(t, err)
		assert.Equal(t, 10-(i+1), res.Remaining)
	}

	_, err := l.CheckAndIncrement(ctx, "u1")
	assert.Error(t, err)
	var rl errtypes.IsRateLimited
	require.ErrorAs(t, err, &rl)
	limited := err.(errtypes.RateLimited)
	assert.Greater(t, limited.RetryAfter, int64(0), "a rejected request over a 10s window must report a positive retryAfter")
	assert.LessOrEqual(t, limited.RetryAfter, int64(10))
}

func TestRedisLimiter_SharedAcrossInstances(t *testing.T) {
	// Three "process instances" sharing a single Redis must see the same
	// counter, per spec.md's multi-process rate-limit test scenario.
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	newInstance := func() *RedisLimiter {
		rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
		t.Cleanup(func() { _ = rdb.Close() })
		return NewRedisLimiter(rdb, 10, 10*time.Second, "test:ratelimit:")
	}

	instances := []*RedisLimiter{newInstance(), newInstance(), newInstance()}
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		_, err := instances[i%3].CheckAndIncrement(ctx, "u1")
		require.NoError(t, err)
	}

	_, err = instances[0].CheckAndIncrement(ctx, "u1")
	assert.Error(t, err)
}

func TestRedisLimiter_WindowExpires(t *testing.T) {
	l, mr := newTestRedisLimiter(t, 1, 10*time.Second)
	ctx := context.Background()

	_, err := l.CheckAndIncrement(ctx, "u1")
	require.NoError(t, err)

	_, err = l.CheckAndIncrement(ctx, "u1")
	assert.Error(t, err)

	mr.FastForward(11 * time.Second)

	_, err = l.CheckAndIncrement(ctx, "u1")
	assert.NoError(t, err)
}
