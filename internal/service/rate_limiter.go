package service

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/avelkine/identity-service/pkg/database"
)

// RateDecision is the outcome of a rate limit check.
type RateDecision struct {
	Allowed   bool
	Remaining int
	// RetryAfter is how long until the window frees a slot. Zero unless the
	// request was refused.
	RetryAfter time.Duration
}

// RateLimiter applies a sliding-window limit backed by a Redis sorted set
// per key.
type RateLimiter struct {
	redis *database.Redis
}

// NewRateLimiter creates a new rate limiter
func NewRateLimiter(redis *database.Redis) *RateLimiter {
	return &RateLimiter{redis: redis}
}

// Allow records the request against the key's window and reports whether it
// fits the limit. Refused requests are not recorded.
func (r *RateLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (RateDecision, error) {
	now := time.Now()
	windowStart := now.Add(-window)
	redisKey := "identity:ratelimit:" + key

	pipe := r.redis.Client.TxPipeline()
	pipe.ZRemRangeByScore(ctx, redisKey, "0", strconv.FormatInt(windowStart.UnixNano(), 10))
	countCmd := pipe.ZCard(ctx, redisKey)
	if _, err := pipe.Exec(ctx); err != nil {
		return RateDecision{}, fmt.Errorf("failed to read rate limit window: %w", err)
	}

	count := int(countCmd.Val())
	if count >= limit {
		retryAfter := window
		oldest, err := r.redis.Client.ZRangeWithScores(ctx, redisKey, 0, 0).Result()
		if err == nil && len(oldest) > 0 {
			oldestAt := time.Unix(0, int64(oldest[0].Score))
			retryAfter = window - now.Sub(oldestAt)
			if retryAfter < 0 {
				retryAfter = 0
			}
		}
		return RateDecision{Allowed: false, Remaining: 0, RetryAfter: retryAfter}, nil
	}

	member := fmt.Sprintf("%d-%s", now.UnixNano(), key)
	pipe = r.redis.Client.TxPipeline()
	pipe.ZAdd(ctx, redisKey, redis.Z{Score: float64(now.UnixNano()), Member: member})
	pipe.Expire(ctx, redisKey, window+time.Minute)
	if _, err := pipe.Exec(ctx); err != nil {
		return RateDecision{}, fmt.Errorf("failed to record request: %w", err)
	}

	return RateDecision{Allowed: true, Remaining: limit - count - 1}, nil
}
