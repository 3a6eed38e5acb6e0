package validation

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
)

func TestRateLimiter(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	ctx := context.Background()
	l := NewRateLimiter(rdb, 2)

	assert.True(t, l.Allow(ctx, "alpha-shop"))
	assert.True(t, l.Allow(ctx, "alpha-shop"))
	assert.False(t, l.Allow(ctx, "alpha-shop"))
	assert.True(t, l.Allow(ctx, "beta-shop"), "limits are per website")

	mr.FastForward(time.Second)
	assert.True(t, l.Allow(ctx, "alpha-shop"))
}

func TestRateLimiter_AllowsWithoutRedis(t *testing.T) {
	assert.True(t, NewRateLimiter(nil, 1).Allow(context.Background(), "w"))

	rdb := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", DialTimeout: 50 * time.Millisecond, MaxRetries: -1})
	defer rdb.Close()
	assert.True(t, NewRateLimiter(rdb, 1).Allow(context.Background(), "w"), "errors fail open")
}
