// Package ratelimit implements fixed-window limiters backed by Redis.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"referrski/internal/domain"
)

// Config holds the Redis connection and window settings.
type Config struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
	Limit    int64
	Window   time.Duration
}

// NewClient connects to Redis and checks the connection.
func NewClient(ctx context.Context, cfg Config) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping %s: %w", cfg.Addr, err)
	}
	return client, nil
}

type redisLimiter struct {
	client *redis.Client
	prefix string
	limit  int64
	window time.Duration
}

// NewRedisLimiter allows cfg.Limit actions per key in each cfg.Window.
func NewRedisLimiter(client *redis.Client, cfg Config) domain.RateLimiter {
	if cfg.Prefix == "" {
		cfg.Prefix = "referrski:ratelimit"
	}
	if cfg.Limit <= 0 {
		cfg.Limit = 5
	}
	if cfg.Window <= 0 {
		cfg.Window = time.Minute
	}
	return &redisLimiter{client: client, prefix: cfg.Prefix, limit: cfg.Limit, window: cfg.Window}
}

// Allow increments the key's counter for the current window. The window starts
// with the first increment and does not slide. A counter found without a TTL
// gets one, so a failed EXPIRE is repaired on the next call.
func (l *redisLimiter) Allow(ctx context.Context, key string) (bool, error) {
	k := l.prefix + ":" + key
	var incr *redis.IntCmd
	var ttl *redis.DurationCmd
	_, err := l.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		incr = p.Incr(ctx, k)
		ttl = p.TTL(ctx, k)
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("rate limit %s: %w", key, err)
	}
	if ttl.Val() == noExpiry {
		if err := l.client.Expire(ctx, k, l.window).Err(); err != nil {
			return false, fmt.Errorf("rate limit %s: set window: %w", key, err)
		}
	}
	return incr.Val() <= l.limit, nil
}

// noExpiry is what TTL reports for a key that exists without an expiry.
const noExpiry = time.Duration(-1)
