// Package redis connects the optional pub/sub backplane that carries
// notifications to adapters running in other processes.
package redis

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"corridor-server/internal/shared/config"

	"github.com/redis/go-redis/v9"
)

type Client struct {
	*redis.Client
	// Channel is the pub/sub channel notifications are published on.
	Channel string
}

func options(cfg config.RedisConfig) (*redis.Options, error) {
	if cfg.URL != "" {
		opts, err := redis.ParseURL(cfg.URL)
		if err != nil {
			return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
		}
		return opts, nil
	}
	return &redis.Options{
		Addr:         fmt.Sprintf("%s:%s", cfg.Host, cfg.Port),
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
		MinIdleConns: 2,
	}, nil
}

// Connect returns nil, nil when Redis is disabled; notifications then only
// reach adapters on the in-process stream.
func Connect(ctx context.Context) (*Client, error) {
	cfg := config.GlobalConfig.Redis
	logger := slog.With("component", "redis", "operation", "connect")

	if !cfg.Enabled {
		logger.Info("Redis disabled, notifications stay in-process")
		return nil, nil
	}

	opts, err := options(cfg)
	if err != nil {
		logger.Error("Invalid Redis configuration", "error", err)
		return nil, err
	}
	logger.Debug("Connecting to Redis", "addr", opts.Addr, "db", opts.DB)

	rdb := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		logger.Error("Failed to ping Redis", "error", err)
		return nil, fmt.Errorf("failed to ping Redis: %w", err)
	}

	logger.Info("Redis connection established", "channel", cfg.Channel)
	return &Client{Client: rdb, Channel: cfg.Channel}, nil
}

// PingContext lets the health check probe the backplane.
func (c *Client) PingContext(ctx context.Context) error {
	return c.Ping(ctx).Err()
}

func (c *Client) Close() error {
	if c == nil || c.Client == nil {
		return nil
	}
	return c.Client.Close()
}
