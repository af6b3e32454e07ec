// Package ratelimit backs the rate_limit node with Redis-based sliding- and
// fixed-window counters.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	ErrInvalidLimit  = errors.New("limit must be greater than 0")
	ErrInvalidWindow = errors.New("window must be greater than 0")
	ErrInvalidKey    = errors.New("rate limit key cannot be empty")
)

// Limiter is satisfied by both window strategies so the rate_limit handler
// can be built against either without caring which was configured.
type Limiter interface {
	Allow(ctx context.Context, key string, limit int64, window time.Duration) (bool, error)
}

// SlidingWindowLimiter rate-limits with a Redis sorted set holding one
// entry per request timestamp in the trailing window.
type SlidingWindowLimiter struct {
	client *redis.Client
}

func NewSlidingWindowLimiter(client *redis.Client) *SlidingWindowLimiter {
	return &SlidingWindowLimiter{client: client}
}

func (l *SlidingWindowLimiter) Allow(ctx context.Context, key string, limit int64, window time.Duration) (bool, error) {
	if err := validate(key, limit, window); err != nil {
		return false, err
	}

	redisKey := "ratelimit:sliding:" + key
	now := time.Now().UnixNano()
	windowStart := now - window.Nanoseconds()

	script := redis.NewScript(`
		redis.call('ZREMRANGEBYSCORE', KEYS[1], '-inf', ARGV[1])
		local count = redis.call('ZCARD', KEYS[1])
		if tonumber(count) < tonumber(ARGV[3]) then
			redis.call('ZADD', KEYS[1], ARGV[2], ARGV[2])
			redis.call('EXPIRE', KEYS[1], ARGV[4])
			return 1
		else
			return 0
		end
	`)

	result, err := script.Run(ctx, l.client, []string{redisKey},
		windowStart,
		now,
		limit,
		int(window.Seconds())+1,
	).Result()
	if err != nil {
		return false, fmt.Errorf("rate limit check failed: %w", err)
	}

	resultInt, ok := result.(int64)
	if !ok {
		return false, fmt.Errorf("unexpected result type from rate limit script")
	}
	return resultInt == 1, nil
}

// FixedWindowLimiter rate-limits with a single Redis counter per window
// bucket, reset by letting the key expire.
type FixedWindowLimiter struct {
	client *redis.Client
}

func NewFixedWindowLimiter(client *redis.Client) *FixedWindowLimiter {
	return &FixedWindowLimiter{client: client}
}

func (l *FixedWindowLimiter) Allow(ctx context.Context, key string, limit int64, window time.Duration) (bool, error) {
	if err := validate(key, limit, window); err != nil {
		return false, err
	}

	bucket := time.Now().Unix() / int64(window.Seconds())
	redisKey := fmt.Sprintf("ratelimit:fixed:%s:%d", key, bucket)

	count, err := l.client.Incr(ctx, redisKey).Result()
	if err != nil {
		return false, fmt.Errorf("rate limit check failed: %w", err)
	}
	if count == 1 {
		l.client.Expire(ctx, redisKey, window)
	}
	return count <= limit, nil
}

func validate(key string, limit int64, window time.Duration) error {
	if key == "" {
		return ErrInvalidKey
	}
	if limit <= 0 {
		return ErrInvalidLimit
	}
	if window <= 0 {
		return ErrInvalidWindow
	}
	return nil
}
