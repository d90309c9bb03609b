// Package redis backs the engine's cache, lock, rate-limit, and signal-bus
// interfaces with go-redis/v9.
package redis

import (
	"context"
	"crypto/tls"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// ClientConfig holds connection parameters for the Redis client.
type ClientConfig struct {
	Addr       string
	Password   string
	DB         int
	PoolSize   int
	MaxRetries int
	TLSEnabled bool
}

// Client owns the driver connection shared by every component in this
// package.
type Client struct {
	raw *redis.Client
}

// New dials Redis and verifies the connection with a ping before returning.
func New(ctx context.Context, cfg ClientConfig) (*Client, error) {
	opts := &redis.Options{
		Addr:       cfg.Addr,
		Password:   cfg.Password,
		DB:         cfg.DB,
		PoolSize:   cfg.PoolSize,
		MaxRetries: cfg.MaxRetries,
	}
	if cfg.TLSEnabled {
		opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}

	c := &Client{raw: redis.NewClient(opts)}
	if err := c.Ping(ctx); err != nil {
		_ = c.raw.Close()
		return nil, err
	}
	return c, nil
}

// Ping checks connectivity; wire-up and health checks call it.
func (c *Client) Ping(ctx context.Context) error {
	if err := c.raw.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis: ping: %w", err)
	}
	return nil
}

// Close releases the underlying connection pool.
func (c *Client) Close() error {
	return c.raw.Close()
}
