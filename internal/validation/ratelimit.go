package validation

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// RateLimiter caps submissions per website with a one-second Redis counter.
type RateLimiter struct {
	redis     *redis.Client
	perSecond int
}

// NewRateLimiter returns a limiter. A nil client allows everything.
func NewRateLimiter(rdb *redis.Client, perSecond int) *RateLimiter {
	return &RateLimiter{redis: rdb, perSecond: perSecond}
}

func (l *RateLimiter) Allow(ctx context.Context, website string) bool {
	if l == nil || l.redis == nil || l.perSecond <= 0 {
		return true
	}
	key := "ratelimit:" + website

	// Increment counter
	count, err := l.redis.Incr(ctx, key).Result()
	if err != nil {
		return true // Allow on error
	}

	// Set expiry on first request
	if count == 1 {
		l.redis.Expire(ctx, key, time.Second)
	}

	return count <= int64(l.perSecond)
}
