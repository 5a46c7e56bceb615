// Package redis provides the distributed run lock, so two loaders never
// write the same warehouse concurrently.
package redis

import (
	"context"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/redis/go-redis/v9"
)

// Client wraps the redis connection with logging.
type Client struct {
	rdb    *redis.Client
	logger ectologger.Logger
}

// Config holds redis connection settings.
type Config struct {
	Addr     string
	Password string
	DB       int
}

// NewClient connects to redis and verifies the connection.
func NewClient(ctx context.Context, cfg Config, logger ectologger.Logger) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, err
	}

	return &Client{rdb: rdb, logger: logger}, nil
}

// Ping checks connectivity.
func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

// Close closes the connection.
func (c *Client) Close() error {
	return c.rdb.Close()
}
