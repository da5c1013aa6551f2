package assets

import (
	"context"
	"sync"

	"github.com/Ramsey-B/fern/pkg/models"
)

// MemoryCache is a process-local Cache. Entries do not survive the process.
type MemoryCache struct {
	mu      sync.RWMutex
	entries map[string]models.AssetHandle
}

// NewMemoryCache creates an empty MemoryCache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{entries: make(map[string]models.AssetHandle)}
}

func (c *MemoryCache) Get(_ context.Context, key string) (*models.AssetHandle, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	handle, ok := c.entries[key]
	if !ok {
		return nil, nil
	}
	return &handle, nil
}

func (c *MemoryCache) Set(_ context.Context, key string, handle *models.AssetHandle) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = *handle
	return nil
}

// Len returns the number of cached entries.
func (c *MemoryCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
