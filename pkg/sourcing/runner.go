// Package sourcing drives a full run: it walks every enabled collection of a
// site, materializes each record and hands the nodes to the sink.
package sourcing

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/Gobusters/ectologger"
	"golang.org/x/sync/errgroup"

	"github.com/Ramsey-B/fern/pkg/assets"
	"github.com/Ramsey-B/fern/pkg/graph"
	"github.com/Ramsey-B/fern/pkg/materializer"
	"github.com/Ramsey-B/fern/pkg/metrics"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/source"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

// Options selects what a run fetches.
type Options struct {
	Site            string
	Groups          []models.Group
	IncludeChannels []string
	ExcludeChannels []string
	Verbose         bool
}

// AssetStats reports what the asset downloader did.
type AssetStats interface {
	Stats() assets.Stats
}

// Locker serializes runs for the same site across processes.
type Locker interface {
	WithLock(ctx context.Context, key string, ttl time.Duration, fn func(ctx context.Context) error) error
}

// LockKey returns the run lock key for a site.
func LockKey(site string) string {
	return "run:" + site
}

// Runner executes one sourcing run. It is not reusable.
type Runner struct {
	source       source.Source
	materializer *materializer.Materializer
	sink         graph.Sink
	assets       AssetStats
	opts         Options
	logger       ectologger.Logger
	counts       counter

	locker  Locker
	lockTTL time.Duration
}

// NewRunner creates a Runner. An empty Groups runs every group.
func NewRunner(src source.Source, m *materializer.Materializer, sink graph.Sink, assetStats AssetStats, opts Options, logger ectologger.Logger) *Runner {
	if len(opts.Groups) == 0 {
		opts.Groups = models.AllGroups
	}
	return &Runner{
		source:       src,
		materializer: m,
		sink:         sink,
		assets:       assetStats,
		opts:         opts,
		logger:       logger.WithField("site", opts.Site),
	}
}

// WithLock makes Run hold the site's run lock for up to ttl.
func (r *Runner) WithLock(locker Locker, ttl time.Duration) *Runner {
	r.locker = locker
	r.lockTTL = ttl
	return r
}

// Run fetches and materializes every enabled group, groups running
// concurrently. A failed upstream request aborts the run and is reported,
// not returned; any other failure is returned.
func (r *Runner) Run(ctx context.Context) (*Report, error) {
	if r.locker == nil {
		return r.run(ctx)
	}

	var (
		report *Report
		runErr error
	)
	err := r.locker.WithLock(ctx, LockKey(r.opts.Site), r.lockTTL, func(ctx context.Context) error {
		report, runErr = r.run(ctx)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to acquire run lock for site %s: %w", r.opts.Site, err)
	}
	return report, runErr
}

func (r *Runner) run(ctx context.Context) (*Report, error) {
	ctx, span := tracing.StartSpan(ctx, "sourcing.Runner.Run")
	defer span.End()

	report := &Report{Site: r.opts.Site, StartedAt: time.Now()}
	r.logger.WithContext(ctx).Info("Starting to fetch data from Nimbu")

	g, gctx := errgroup.WithContext(ctx)
	for _, group := range r.opts.Groups {
		switch group {
		case models.GroupContent:
			g.Go(func() error { return r.content(gctx) })
		case models.GroupShop:
			g.Go(func() error { return r.shop(gctx) })
		case models.GroupChannels:
			g.Go(func() error { return r.channels(gctx) })
		}
	}
	err := g.Wait()

	report.Duration = time.Since(report.StartedAt).Round(time.Millisecond).String()
	report.Nodes = r.counts.snapshot()
	if r.assets != nil {
		report.Assets = r.assets.Stats()
	}

	log := r.logger.WithContext(ctx).WithFields(map[string]any{
		"duration": report.Duration,
		"nodes":    report.Total(),
	})

	if err != nil {
		tracing.RecordError(span, err)
		report.Aborted = true
		report.Error = err.Error()
		log.WithError(err).Error("An error occurred while sourcing data")

		if source.IsRequestError(err) {
			metrics.RunsTotal.WithLabelValues("aborted").Inc()
			return report, nil
		}
		metrics.RunsTotal.WithLabelValues("failed").Inc()
		return report, err
	}

	metrics.RunsTotal.WithLabelValues("success").Inc()
	log.Info("Finished fetching data from Nimbu")
	return report, nil
}

func (r *Runner) content(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return r.blogs(gctx) })
	g.Go(func() error {
		return r.each(gctx, models.TypeMenu, url.Values{"nested": {"1"}}, r.materializer.Menu)
	})
	g.Go(func() error { return r.each(gctx, models.TypeTranslation, nil, r.materializer.Translation) })
	g.Go(func() error { return r.each(gctx, models.TypePage, nil, r.materializer.Page) })
	return g.Wait()
}

func (r *Runner) blogs(ctx context.Context) error {
	endpoint := source.MapEndpoint(models.TypeBlog, nil, nil)
	return r.collect(ctx, models.TypeBlog, endpoint, func(ctx context.Context, blog models.Record) error {
		var articleIDs []string
		articles := source.MapEndpoint(models.TypeArticle, map[string]string{"blog": blog.String("slug")}, nil)
		err := r.collect(ctx, models.TypeArticle, articles, func(ctx context.Context, article models.Record) error {
			node, err := r.materializer.Article(ctx, article, blog.ID())
			if err != nil {
				return err
			}
			articleIDs = append(articleIDs, article.ID())
			return r.emit(ctx, node)
		})
		if err != nil {
			return err
		}

		node, err := r.materializer.Blog(ctx, blog, articleIDs)
		if err != nil {
			return err
		}
		return r.emit(ctx, node)
	})
}

// shop materializes products before collections so the collection pass can
// read the sealed product memberships.
func (r *Runner) shop(ctx context.Context) error {
	memberships := materializer.NewAccumulator()

	products := source.MapEndpoint(models.TypeProduct, nil, nil)
	err := r.collect(ctx, models.TypeProduct, products, func(ctx context.Context, rec models.Record) error {
		product, variants, err := r.materializer.Product(ctx, rec, memberships)
		if err != nil {
			return err
		}
		if err := r.emit(ctx, product); err != nil {
			return err
		}
		for _, variant := range variants {
			if err := r.emit(ctx, variant); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	memberships.Seal()

	return r.each(ctx, models.TypeCollection, nil, func(ctx context.Context, rec models.Record) (*models.Node, error) {
		return r.materializer.Collection(ctx, rec, memberships)
	})
}

func (r *Runner) channels(ctx context.Context) error {
	filter := source.ChannelFilter(r.opts.IncludeChannels, r.opts.ExcludeChannels)
	endpoint := source.MapEndpoint(models.TypeChannel, nil, filter)

	return r.collect(ctx, models.TypeChannel, endpoint, func(ctx context.Context, channel models.Record) error {
		slug := channel.String("slug")
		entryType := models.MapNodeType(slug)

		var entryIDs []string
		entries := source.MapEndpoint(models.TypeChannelEntry, map[string]string{"channel": slug}, nil)
		err := r.collect(ctx, entryType, entries, func(ctx context.Context, entry models.Record) error {
			node, err := r.materializer.ChannelEntry(ctx, entry, channel)
			if err != nil {
				return err
			}
			entryIDs = append(entryIDs, entry.ID())
			return r.emit(ctx, node)
		})
		if err != nil {
			return err
		}

		node, err := r.materializer.Channel(ctx, channel, entryIDs)
		if err != nil {
			return err
		}
		return r.emit(ctx, node)
	})
}

// collect runs fn over every record of endpoint, one at a time in source order.
func (r *Runner) collect(ctx context.Context, typeTag, endpoint string, fn func(ctx context.Context, rec models.Record) error) error {
	start := time.Now()
	err := r.source.Each(ctx, endpoint, fn)
	elapsed := time.Since(start)
	metrics.CollectionDuration.WithLabelValues(typeTag).Observe(elapsed.Seconds())

	if err == nil && r.opts.Verbose {
		r.logger.WithContext(ctx).Infof("Fetched and processed %s nodes in %s", endpoint, elapsed.Round(time.Millisecond))
	}
	return err
}

// each emits one node per record of a top-level collection.
func (r *Runner) each(ctx context.Context, typeTag string, query url.Values, build func(ctx context.Context, rec models.Record) (*models.Node, error)) error {
	endpoint := source.MapEndpoint(typeTag, nil, query)
	return r.collect(ctx, typeTag, endpoint, func(ctx context.Context, rec models.Record) error {
		node, err := build(ctx, rec)
		if err != nil {
			return err
		}
		return r.emit(ctx, node)
	})
}

func (r *Runner) emit(ctx context.Context, node *models.Node) error {
	if err := r.sink.Emit(ctx, node); err != nil {
		return err
	}
	r.counts.add(node.Type)
	metrics.RecordNode(node.Type)
	return nil
}
