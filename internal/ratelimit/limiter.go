// Package ratelimit implements a Redis-backed sliding window rate limiter.
package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/planmate-app/backend/internal/cache"
)

// Limiter enforces a per-identifier request cap over a sliding window
type Limiter struct {
	cache  *cache.Redis
	limit  int
	window time.Duration
}

// New creates a limiter allowing limit requests per window
func New(c *cache.Redis, limit int, window time.Duration) *Limiter {
	return &Limiter{cache: c, limit: limit, window: window}
}

// Allow records a request for the identifier and reports whether it fits
// the window, along with the remaining allowance.
func (l *Limiter) Allow(ctx context.Context, identifier string) (bool, int, error) {
	key := fmt.Sprintf("ratelimit:%s", identifier)
	now := time.Now()
	windowStart := now.Add(-l.window)

	// Drop entries that have slid out of the window
	if err := l.cache.ZRemRangeByScore(ctx, key, "0", strconv.FormatInt(windowStart.UnixNano(), 10)); err != nil {
		return false, 0, fmt.Errorf("failed to trim window: %w", err)
	}

	count, err := l.cache.ZCard(ctx, key)
	if err != nil {
		return false, 0, fmt.Errorf("failed to count window: %w", err)
	}

	if count >= int64(l.limit) {
		return false, 0, nil
	}

	member := redis.Z{
		Score:  float64(now.UnixNano()),
		Member: strconv.FormatInt(now.UnixNano(), 10),
	}
	if err := l.cache.ZAdd(ctx, key, member); err != nil {
		return false, 0, fmt.Errorf("failed to record request: %w", err)
	}
	if err := l.cache.Expire(ctx, key, l.window); err != nil {
		return false, 0, fmt.Errorf("failed to expire key: %w", err)
	}

	remaining := l.limit - int(count) - 1
	if remaining < 0 {
		remaining = 0
	}
	return true, remaining, nil
}

// Limit returns the configured cap per window
func (l *Limiter) Limit() int {
	return l.limit
}
