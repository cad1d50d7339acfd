package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/wallpaperhq/ingest/pkg/clock"
	"github.com/wallpaperhq/ingest/pkg/errtypes"
)

func TestMemoryLimiter_AllowsUpToMax(t *testing.T) {
	c := clock.NewFake(time.Unix(0, 0))
	l := NewMemoryLimiter(3, 10*time.Second, c)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		res, err := l.CheckAndIncrement(ctx, "u1")
		assert.NoError(t, err)
		assert.Equal(t, 3-(i+1), res.Remaining)
	}

	_, err := l.CheckAndIncrement(ctx, "u1")
	assert.Error(t, err)
	var rl errtypes.IsRateLimited
	assert.ErrorAs(t, err, &rl)
}

func TestMemoryLimiter_WindowResets(t *testing.T) {
	c := clock.NewFake(time.Unix(0, 0))
	l := NewMemoryLimiter(1, 10*time.Second, c)
	ctx := context.Background()

	_, err := l.CheckAndIncrement(ctx, "u1")
	assert.NoError(t, err)

	_, err = l.CheckAndIncrement(ctx, "u1")
	assert.Error(t, err)

	c.Advance(11 * time.Second)
	_, err = l.CheckAndIncrement(ctx, "u1")
	assert.NoError(t, err)
}

func TestMemoryLimiter_NamespacedPerUser(t *testing.T) {
	c := clock.NewFake(time.Unix(0, 0))
	l := NewMemoryLimiter(1, 10*time.Second, c)
	ctx := context.Background()

	_, err := l.CheckAndIncrement(ctx, "u1")
	assert.NoError(t, err)

	_, err = l.CheckAndIncrement(ctx, "u2")
	assert.NoError(t, err, "u2's counter must be independent of u1's")
}
