package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/redis/go-redis/v9"
)

// Nil is returned by Get when the key does not exist
const Nil = redis.Nil

// Config holds Redis connection configuration
type Config struct {
	Host     string
	Port     int
	Password string
	DB       int
}

// Client wraps the Redis client with logging and common operations
type Client struct {
	rdb    *redis.Client
	logger ectologger.Logger
}

// NewClient creates a new Redis client. The connection is verified by Start.
func NewClient(cfg Config, logger ectologger.Logger) *Client {
	return &Client{
		rdb: redis.NewClient(&redis.Options{
			Addr:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
			Password: cfg.Password,
			DB:       cfg.DB,
		}),
		logger: logger,
	}
}

// NewClientFromRedis wraps an existing go-redis client
func NewClientFromRedis(rdb *redis.Client, logger ectologger.Logger) *Client {
	return &Client{rdb: rdb, logger: logger}
}

// GetName implements startup.Dependency
func (c *Client) GetName() string {
	return "redis"
}

// DependsOn implements startup.Dependency
func (c *Client) DependsOn() []string {
	return nil
}

// Start verifies the connection
func (c *Client) Start(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := c.rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("failed to connect to Redis at %s: %w", c.rdb.Options().Addr, err)
	}
	c.logger.Infof("Connected to Redis at %s", c.rdb.Options().Addr)
	return nil
}

// Stop closes the Redis connection
func (c *Client) Stop(_ context.Context) error {
	return c.rdb.Close()
}

// Ping checks if Redis is reachable
func (c *Client) Ping() error {
	return c.rdb.Ping(context.Background()).Err()
}

// Get retrieves a value by key
func (c *Client) Get(ctx context.Context, key string) (string, error) {
	return c.rdb.Get(ctx, key).Result()
}

// Set sets a value with optional expiration
func (c *Client) Set(ctx context.Context, key string, value any, expiration time.Duration) error {
	return c.rdb.Set(ctx, key, value, expiration).Err()
}

// Del deletes one or more keys
func (c *Client) Del(ctx context.Context, keys ...string) error {
	return c.rdb.Del(ctx, keys...).Err()
}
