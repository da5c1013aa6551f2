package assets

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/redis"
)

// RedisCache stores asset handles as JSON strings in Redis.
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisCache creates a RedisCache. A zero ttl keeps entries forever.
func NewRedisCache(client *redis.Client, ttl time.Duration) *RedisCache {
	return &RedisCache{client: client, ttl: ttl}
}

func (c *RedisCache) Get(ctx context.Context, key string) (*models.AssetHandle, error) {
	raw, err := c.client.Get(ctx, key)
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var handle models.AssetHandle
	if err := json.Unmarshal([]byte(raw), &handle); err != nil {
		return nil, fmt.Errorf("corrupt asset cache entry %s: %w", key, err)
	}
	return &handle, nil
}

func (c *RedisCache) Set(ctx context.Context, key string, handle *models.AssetHandle) error {
	data, err := json.Marshal(handle)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, key, string(data), c.ttl)
}
