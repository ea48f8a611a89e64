package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Redis wraps the redis client
type Redis struct {
	client *redis.Client
}

// NewRedisFromURL creates a new Redis client from a URL
func NewRedisFromURL(redisURL string) (*Redis, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}

	client := redis.NewClient(opt)

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &Redis{client: client}, nil
}

// Client returns the underlying redis client
func (r *Redis) Client() *redis.Client {
	return r.client
}

// Close closes the Redis connection
func (r *Redis) Close() error {
	return r.client.Close()
}

// Health checks the Redis health
func (r *Redis) Health(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// ZAdd adds members to a sorted set
func (r *Redis) ZAdd(ctx context.Context, key string, members ...redis.Z) error {
	return r.client.ZAdd(ctx, key, members...).Err()
}

// ZRemRangeByScore removes members from a sorted set by score range
func (r *Redis) ZRemRangeByScore(ctx context.Context, key, min, max string) error {
	return r.client.ZRemRangeByScore(ctx, key, min, max).Err()
}

// ZCard returns the number of members in a sorted set
func (r *Redis) ZCard(ctx context.Context, key string) (int64, error) {
	return r.client.ZCard(ctx, key).Result()
}

// Expire sets expiration on a key
func (r *Redis) Expire(ctx context.Context, key string, expiration time.Duration) error {
	return r.client.Expire(ctx, key, expiration).Err()
}
