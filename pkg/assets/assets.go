// Package assets materializes remote files referenced by CMS records and
// deduplicates downloads through a persistent, URL-keyed cache.
package assets

import (
	"context"
	"errors"

	"github.com/Ramsey-B/fern/pkg/models"
)

// ErrFetch marks a failure to fetch an asset's bytes from upstream. Callers
// treat it as recoverable; every other store error is fatal.
var ErrFetch = errors.New("asset fetch failed")

// KeyPrefix namespaces asset entries in the persistent cache.
const KeyPrefix = models.TypePrefix + "__Media__"

// CacheKey returns the persistent cache key for a remote URL.
func CacheKey(url string) string {
	return KeyPrefix + url
}

// Cache persists url to handle mappings across runs. Get returns nil, nil on a miss.
type Cache interface {
	Get(ctx context.Context, key string) (*models.AssetHandle, error)
	Set(ctx context.Context, key string, handle *models.AssetHandle) error
}

// Store downloads and durably stores the bytes behind an asset request.
type Store interface {
	Materialize(ctx context.Context, req models.AssetRequest) (*models.AssetHandle, error)
}

// Sink receives newly materialized asset nodes and liveness signals for reused ones.
type Sink interface {
	Emit(ctx context.Context, node *models.Node) error
	Touch(ctx context.Context, assetID string) error
}
