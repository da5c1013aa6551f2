package assets

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/huandu/go-sqlbuilder"

	"github.com/Ramsey-B/fern/pkg/database"
	"github.com/Ramsey-B/fern/pkg/models"
)

const assetCacheTable = "asset_cache"

// SQLCache stores asset handles in the asset_cache table of a postgres or
// sqlite database.
type SQLCache struct {
	db     *database.Database
	flavor sqlbuilder.Flavor
}

// NewSQLCache creates a SQLCache. The asset_cache migration must have been applied.
func NewSQLCache(db *database.Database) *SQLCache {
	return &SQLCache{db: db, flavor: db.Flavor()}
}

func (c *SQLCache) Get(ctx context.Context, key string) (*models.AssetHandle, error) {
	sb := c.flavor.NewSelectBuilder()
	sb.Select("handle").From(assetCacheTable).Where(sb.Equal("cache_key", key))
	query, args := sb.Build()

	var raw string
	err := c.db.GetContext(ctx, &raw, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
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

func (c *SQLCache) Set(ctx context.Context, key string, handle *models.AssetHandle) error {
	data, err := json.Marshal(handle)
	if err != nil {
		return err
	}

	ib := c.flavor.NewInsertBuilder()
	ib.InsertInto(assetCacheTable).
		Cols("cache_key", "handle", "updated_at").
		Values(key, string(data), time.Now().UTC().Format(time.RFC3339Nano))
	ib.SQL(fmt.Sprintf("ON CONFLICT (cache_key) DO UPDATE SET handle = %s, updated_at = %s",
		database.Excluded("handle"), database.Excluded("updated_at")))
	query, args := ib.Build()

	_, err = c.db.ExecContext(ctx, query, args...)
	return err
}
