package assets

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Gobusters/ectologger"
	"golang.org/x/sync/singleflight"

	"github.com/Ramsey-B/fern/pkg/metrics"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

// Stats summarizes what a Downloader did during a run.
type Stats struct {
	Downloads int64 `json:"downloads"`
	CacheHits int64 `json:"cache_hits"`
	Failures  int64 `json:"failures"`
}

// Downloader wraps a Store with the persistent Cache, per-run memoization and
// request coalescing. It is run-scoped: create one per sourcing run.
type Downloader struct {
	cache   Cache
	store   Store
	sink    Sink
	logger  ectologger.Logger
	enabled bool

	group singleflight.Group

	mu       sync.Mutex
	resolved map[string]*models.AssetHandle // nil value records a failed fetch

	downloads atomic.Int64
	hits      atomic.Int64
	failures  atomic.Int64
}

// NewDownloader creates a Downloader. When enabled is false Materialize never
// touches the cache or the store.
func NewDownloader(cache Cache, store Store, sink Sink, logger ectologger.Logger, enabled bool) *Downloader {
	return &Downloader{
		cache:    cache,
		store:    store,
		sink:     sink,
		logger:   logger,
		enabled:  enabled,
		resolved: make(map[string]*models.AssetHandle),
	}
}

// Enabled reports whether asset downloading is turned on.
func (d *Downloader) Enabled() bool {
	return d != nil && d.enabled
}

// Materialize returns the handle for req.URL, downloading it at most once per
// run. A nil handle with a nil error means the asset is absent: downloads are
// disabled, the request has no URL, or the fetch failed.
func (d *Downloader) Materialize(ctx context.Context, req models.AssetRequest) (*models.AssetHandle, error) {
	if !d.Enabled() {
		metrics.RecordAsset("disabled")
		return nil, nil
	}
	if req.URL == "" {
		return nil, nil
	}

	key := CacheKey(req.URL)
	if handle, ok := d.lookup(key); ok {
		metrics.RecordAsset("coalesced")
		return handle, nil
	}

	// The shared fetch must not inherit one caller's cancellation; each caller
	// stops waiting on its own context instead.
	fetchCtx := context.WithoutCancel(ctx)
	ch := d.group.DoChan(key, func() (any, error) {
		return d.materialize(fetchCtx, key, req)
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		if res.Shared {
			metrics.RecordAsset("coalesced")
		}
		return res.Val.(*models.AssetHandle), nil
	}
}

// Stats returns the run's counters.
func (d *Downloader) Stats() Stats {
	return Stats{
		Downloads: d.downloads.Load(),
		CacheHits: d.hits.Load(),
		Failures:  d.failures.Load(),
	}
}

func (d *Downloader) lookup(key string) (*models.AssetHandle, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	handle, ok := d.resolved[key]
	return handle, ok
}

func (d *Downloader) remember(key string, handle *models.AssetHandle) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.resolved[key] = handle
}

func (d *Downloader) materialize(ctx context.Context, key string, req models.AssetRequest) (*models.AssetHandle, error) {
	ctx, span := tracing.StartSpan(ctx, "assets.Downloader.materialize")
	defer span.End()

	// A concurrent caller may have finished between lookup and Do.
	if handle, ok := d.lookup(key); ok {
		return handle, nil
	}

	log := d.logger.WithContext(ctx).WithField("url", req.URL)

	cached, err := d.cache.Get(ctx, key)
	if err != nil {
		tracing.RecordError(span, err)
		return nil, fmt.Errorf("failed to read asset cache for %s: %w", req.URL, err)
	}
	if cached != nil {
		if err := d.sink.Touch(ctx, cached.ID); err != nil {
			return nil, fmt.Errorf("failed to touch asset %s: %w", cached.ID, err)
		}
		d.hits.Add(1)
		metrics.RecordAsset("hit")
		log.WithField("asset_id", cached.ID).Debug("Reusing cached asset")
		d.remember(key, cached)
		return cached, nil
	}

	start := time.Now()
	handle, err := d.store.Materialize(ctx, req)
	metrics.AssetDownloadDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		if errors.Is(err, ErrFetch) {
			d.failures.Add(1)
			metrics.RecordAsset("failed")
			log.WithError(err).Warn("Failed to download asset, leaving it unresolved")
			d.remember(key, nil)
			return nil, nil
		}
		tracing.RecordError(span, err)
		return nil, fmt.Errorf("failed to store asset %s: %w", req.URL, err)
	}

	if err := d.cache.Set(ctx, key, handle); err != nil {
		return nil, fmt.Errorf("failed to write asset cache for %s: %w", req.URL, err)
	}
	if err := d.sink.Emit(ctx, handle.Node()); err != nil {
		return nil, fmt.Errorf("failed to emit asset node %s: %w", handle.ID, err)
	}

	d.downloads.Add(1)
	metrics.RecordAsset("miss")
	log.WithField("asset_id", handle.ID).Debug("Downloaded asset")
	d.remember(key, handle)
	return handle, nil
}
