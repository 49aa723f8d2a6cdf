// internal/infrastructure/database/redis/connection.go
package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/your-org/photo-print-storefront/internal/config"
)

const (
	defaultDialTimeout = 5 * time.Second
	defaultIOTimeout   = 3 * time.Second
	defaultPoolTimeout = 4 * time.Second
)

// Client owns the cache connection. Ping and Health are bounded by the dial and IO timeouts.
type Client struct {
	Redis *redis.Client

	dialTimeout time.Duration
	ioTimeout   time.Duration
}

// NewConnection dials Redis and fails fast when the cache does not answer a ping
func NewConnection(cfg *config.Config, log logrus.FieldLogger) (*Client, error) {
	opts := Options(cfg)
	c := &Client{
		Redis:       redis.NewClient(opts),
		dialTimeout: opts.DialTimeout,
		ioTimeout:   opts.ReadTimeout,
	}

	ctx, cancel := context.WithTimeout(context.Background(), c.dialTimeout)
	defer cancel()
	if err := c.Redis.Ping(ctx).Err(); err != nil {
		_ = c.Redis.Close()
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", opts.Addr, err)
	}

	if log != nil {
		log.WithFields(logrus.Fields{
			"addr":      opts.Addr,
			"db":        opts.DB,
			"pool_size": opts.PoolSize,
		}).Info("Redis cart cache connected")
	}
	return c, nil
}

// Options maps the cache configuration onto client options. Unset timeouts fall back to defaults.
func Options(cfg *config.Config) *redis.Options {
	rc := cfg.Redis
	return &redis.Options{
		Addr:         cfg.GetRedisAddr(),
		Password:     rc.Password,
		DB:           rc.DB,
		PoolSize:     rc.PoolSize,
		MinIdleConns: rc.MinIdleConns,
		DialTimeout:  orDefault(rc.DialTimeout, defaultDialTimeout),
		ReadTimeout:  orDefault(rc.IOTimeout, defaultIOTimeout),
		WriteTimeout: orDefault(rc.IOTimeout, defaultIOTimeout),
		PoolTimeout:  orDefault(rc.PoolTimeout, defaultPoolTimeout),
	}
}

func orDefault(d, fallback time.Duration) time.Duration {
	if d > 0 {
		return d
	}
	return fallback
}

// Close releases the pool
func (c *Client) Close() error {
	return c.Redis.Close()
}

// Health pings the cache within the IO timeout
func (c *Client) Health(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, c.ioTimeout)
	defer cancel()
	return c.Redis.Ping(ctx).Err()
}
