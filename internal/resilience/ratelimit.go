package resilience

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RateLimiter implements per-key admission control using Redis INCR +
// EXPIRE, the same fixed-window pattern the login rate limiter uses. The
// limit and window come from the caller; there is no built-in default
// and no separate burst allowance.
type RateLimiter struct {
	redis  *redis.Client
	limit  int
	window time.Duration
}

// NewRateLimiter creates a rate limiter allowing limit requests per
// window, per key.
func NewRateLimiter(rdb *redis.Client, limit int, window time.Duration) *RateLimiter {
	return &RateLimiter{redis: rdb, limit: limit, window: window}
}

// RateLimitResult holds the outcome of an Allow check.
type RateLimitResult struct {
	Allowed   bool
	Remaining int
	RetryAt   time.Time
}

// Allow increments the counter for key and reports whether the caller
// may proceed. A denied result is a retryable RATE_LIMITED condition;
// RetryAt tells the caller when the window resets (surfaced as Retry-After).
func (rl *RateLimiter) Allow(ctx context.Context, key string) (*RateLimitResult, error) {
	redisKey := fmt.Sprintf("ratelimit:%s", key)

	count, err := rl.redis.Incr(ctx, redisKey).Result()
	if err != nil {
		return nil, fmt.Errorf("incrementing rate limit counter: %w", err)
	}
	if count == 1 {
		if err := rl.redis.Expire(ctx, redisKey, rl.window).Err(); err != nil {
			return nil, fmt.Errorf("setting rate limit expiry: %w", err)
		}
	}

	if int(count) > rl.limit {
		ttl, err := rl.redis.TTL(ctx, redisKey).Result()
		if err != nil && !errors.Is(err, redis.Nil) {
			return nil, fmt.Errorf("getting rate limit TTL: %w", err)
		}
		return &RateLimitResult{Allowed: false, Remaining: 0, RetryAt: time.Now().Add(ttl)}, nil
	}

	return &RateLimitResult{Allowed: true, Remaining: rl.limit - int(count)}, nil
}
