package infra

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Cache calls run on the request path.
const (
	redisDialTimeout = 3 * time.Second
	redisIOTimeout   = 500 * time.Millisecond
)

// NewRedisClient connects the cache used for idempotency keys and rate
// limits, and verifies connectivity.
func NewRedisClient(ctx context.Context, rawURL string) (*redis.Client, error) {
	if rawURL == "" {
		return nil, errors.New("redis url is required")
	}

	opt, err := redis.ParseURL(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url %s: %w", redactURL(rawURL), err)
	}
	if opt.DialTimeout == 0 || opt.DialTimeout > redisDialTimeout {
		opt.DialTimeout = redisDialTimeout
	}
	opt.ReadTimeout = redisIOTimeout
	opt.WriteTimeout = redisIOTimeout

	client := redis.NewClient(opt)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis %s: %w", redactURL(rawURL), err)
	}
	return client, nil
}
