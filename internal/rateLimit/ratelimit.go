package rateLimit

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	redisadapter "github.com/robertarktes/cinema-reservations/internal/adapters/redis"
)

// RateLimiter is a fixed-window counter per key.
type RateLimiter struct {
	client *redis.Client
	rate   int
	period time.Duration
}

func NewRateLimiter(cache *redisadapter.Cache, rate int, period time.Duration) *RateLimiter {
	return &RateLimiter{client: cache.Client(), rate: rate, period: period}
}

func (rl *RateLimiter) Period() time.Duration { return rl.period }

func (rl *RateLimiter) Allow(ctx context.Context, key string) (bool, error) {
	fullKey := "rl:" + key

	pipe := rl.client.TxPipeline()
	incr := pipe.Incr(ctx, fullKey)
	pipe.ExpireNX(ctx, fullKey, rl.period)

	if _, err := pipe.Exec(ctx); err != nil {
		return false, err
	}
	return incr.Val() <= int64(rl.rate), nil
}
