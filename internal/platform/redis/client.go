// Package redis opens the optional Redis connection backing name records.
package redis

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"ccns/internal/platform/config"
)

// Enabled reports whether a Redis URL is configured.
func Enabled(cfg config.RedisConfig) bool {
	return cfg.URL != ""
}

func options(cfg config.RedisConfig) (*redis.Options, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	if cfg.PoolSize > 0 {
		opts.PoolSize = cfg.PoolSize
	}
	opts.MinIdleConns = cfg.MinIdleConns
	opts.DialTimeout = cfg.DialTimeout
	opts.ReadTimeout = cfg.ReadTimeout
	opts.WriteTimeout = cfg.WriteTimeout
	return opts, nil
}

// Open connects and pings. The caller owns the returned client.
func Open(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	opts, err := options(cfg)
	if err != nil {
		return nil, err
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

// Health pings the server.
func Health(ctx context.Context, client *redis.Client) error {
	return client.Ping(ctx).Err()
}
