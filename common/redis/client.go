package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/nodewave/flowrunner/common/config"
	"github.com/nodewave/flowrunner/common/logger"
	"github.com/redis/go-redis/v9"
)

// Client wraps redis.Client with the task event fan-out the engine needs
type Client struct {
	redis *redis.Client
	log   *logger.Logger
}

// New creates a Redis client from config and verifies the connection
func New(ctx context.Context, cfg *config.Config, log *logger.Logger) (*Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	log.Info("redis connected", "addr", cfg.Redis.Addr)

	return &Client{redis: client, log: log}, nil
}

// NewFromClient wraps an existing redis.Client
func NewFromClient(client *redis.Client, log *logger.Logger) *Client {
	return &Client{redis: client, log: log}
}

// GetUnderlying returns the underlying redis.Client for advanced operations
func (c *Client) GetUnderlying() *redis.Client {
	return c.redis
}

// Publish publishes a message to a pub/sub channel
func (c *Client) Publish(ctx context.Context, channel, payload string) error {
	if err := c.redis.Publish(ctx, channel, payload).Err(); err != nil {
		c.log.Error("redis PUBLISH failed", "channel", channel, "error", err)
		return fmt.Errorf("publish to %s: %w", channel, err)
	}
	c.log.Debug("redis PUBLISH", "channel", channel)
	return nil
}

// Close closes the underlying connection
func (c *Client) Close() error {
	return c.redis.Close()
}
