package cache

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/wichananm65/referral-tracker/internal/config"
)

// NewRedis builds a client from cfg and checks it with a ping. REDIS_URL
// takes precedence over the discrete address settings.
func NewRedis(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	opts, err := options(cfg)
	if err != nil {
		return nil, err
	}

	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return rdb, nil
}

func options(cfg config.RedisConfig) (*redis.Options, error) {
	if cfg.URL != "" {
		opts, err := redis.ParseURL(cfg.URL)
		if err != nil {
			return nil, fmt.Errorf("REDIS_URL: %w", err)
		}
		return opts, nil
	}
	if cfg.Addr == "" {
		return nil, fmt.Errorf("REDIS_ADDR or REDIS_URL is required")
	}
	return &redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	}, nil
}
