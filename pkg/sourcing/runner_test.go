package sourcing

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/fern/pkg/assets"
	"github.com/Ramsey-B/fern/pkg/graph"
	"github.com/Ramsey-B/fern/pkg/logging"
	"github.com/Ramsey-B/fern/pkg/materializer"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/nodeid"
	"github.com/Ramsey-B/fern/pkg/resolver"
	"github.com/Ramsey-B/fern/pkg/rewriter"
	"github.com/Ramsey-B/fern/pkg/source"
)

type fakeSource struct {
	records map[string][]models.Record
	errs    map[string]error

	mu   sync.Mutex
	seen []string
}

func (s *fakeSource) Each(ctx context.Context, endpoint string, fn func(ctx context.Context, record models.Record) error) error {
	s.mu.Lock()
	s.seen = append(s.seen, endpoint)
	s.mu.Unlock()

	if err := s.errs[endpoint]; err != nil {
		return err
	}
	for _, rec := range s.records[endpoint] {
		if err := fn(ctx, rec.Clone()); err != nil {
			return err
		}
	}
	return nil
}

func (s *fakeSource) endpoints() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.seen...)
}

type fakeStore struct {
	err error
}

func (s *fakeStore) Materialize(_ context.Context, req models.AssetRequest) (*models.AssetHandle, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &models.AssetHandle{
		ID:         nodeid.For(models.TypeFile, req.URL),
		URL:        req.URL,
		PublicPath: "/static/" + req.Filename,
	}, nil
}

type fakeLocker struct {
	keys []string
	err  error
}

func (l *fakeLocker) WithLock(ctx context.Context, key string, _ time.Duration, fn func(ctx context.Context) error) error {
	l.keys = append(l.keys, key)
	if l.err != nil {
		return l.err
	}
	return fn(ctx)
}

func siteRecords() map[string][]models.Record {
	return map[string][]models.Record{
		"/blogs": {
			{"id": "b1", "slug": "news", "title": "News"},
		},
		"/blogs/news/articles": {
			{"id": "a1", "title": "First", "header": map[string]any{"url": "https://cdn.nimbu.io/s/a1.png"}},
			{"id": "a2", "title": "Second"},
		},
		"/menus?nested=1": {
			{"id": "m1", "name": "main"},
		},
		"/translations": {
			{"id": "t1", "key": "hello", "value": "Hallo"},
		},
		"/pages?resolve=1": {
			{"id": "p1", "title": "Home", "items": map[string]any{}},
		},
		"/products": {
			{
				"id":          "pr1",
				"name":        "Shoe",
				"variants":    []any{map[string]any{"id": "v1", "name": "small"}},
				"collections": []any{map[string]any{"id": "c1"}},
			},
			{"id": "pr2", "name": "Sock", "collections": []any{map[string]any{"id": "c1"}}},
		},
		"/collections": {
			{"id": "c1", "name": "Footwear"},
		},
		"/channels": {
			{"id": "ch1", "slug": "events"},
		},
		"/channels/events/entries": {
			{"id": "e1", "title": "Launch"},
		},
	}
}

func newTestRunner(src source.Source, store assets.Store, opts Options) (*Runner, *graph.MemorySink, *assets.Downloader) {
	sink := graph.NewMemorySink()
	downloader := assets.NewDownloader(assets.NewMemoryCache(), store, sink, logging.Nop(), true)
	rw := rewriter.New(downloader, "", logging.Nop())
	res := resolver.New(downloader, rw, 0, logging.Nop())
	m := materializer.New(res, logging.Nop())
	return NewRunner(src, m, sink, downloader, opts, logging.Nop()), sink, downloader
}

func TestRunner_Run(t *testing.T) {
	src := &fakeSource{records: siteRecords()}
	runner, sink, _ := newTestRunner(src, &fakeStore{}, Options{Site: "demo", Verbose: true})

	report, err := runner.Run(context.Background())
	require.NoError(t, err)
	require.NotNil(t, report)

	assert.False(t, report.Aborted)
	assert.Equal(t, "demo", report.Site)
	assert.Equal(t, map[string]int{
		"NimbuArticle":             2,
		"NimbuBlog":                1,
		"NimbuChannel":             1,
		"NimbuCollection":          1,
		"NimbuMenu":                1,
		"NimbuPage":                1,
		"NimbuProduct":             2,
		"NimbuProductVariant":      1,
		"NimbuTranslation":         1,
		"NimbuEvents_ChannelEntry": 1,
	}, report.Nodes)
	assert.Equal(t, int64(1), report.Assets.Downloads)
	assert.Len(t, sink.ByType("NimbuFile"), 1)

	t.Run("blog links its articles", func(t *testing.T) {
		blog := sink.Get(nodeid.For(models.TypeBlog, "b1"))
		require.NotNil(t, blog)
		assert.Equal(t, nodeid.ForAll(models.TypeArticle, []string{"a1", "a2"}), blog.Fields["articles___NODE"])

		article := sink.Get(nodeid.For(models.TypeArticle, "a1"))
		require.NotNil(t, article)
		assert.Equal(t, blog.ID, article.Fields["blog___NODE"])
	})

	t.Run("collection links accumulated products", func(t *testing.T) {
		collection := sink.Get(nodeid.For(models.TypeCollection, "c1"))
		require.NotNil(t, collection)
		assert.Equal(t, nodeid.ForAll(models.TypeProduct, []string{"pr1", "pr2"}), collection.Fields["products___NODE"])
	})

	t.Run("channel links its entries", func(t *testing.T) {
		entryType := models.MapNodeType("events")
		channel := sink.Get(nodeid.For(models.TypeChannel, "ch1"))
		require.NotNil(t, channel)
		assert.Equal(t, []string{nodeid.For(entryType, "e1")}, channel.Fields["entries___NODE"])

		entry := sink.Get(nodeid.For(entryType, "e1"))
		require.NotNil(t, entry)
		assert.Equal(t, channel.ID, entry.Fields["channel___NODE"])
	})

	t.Run("children are emitted before their parents", func(t *testing.T) {
		order := make(map[string]int)
		for i, n := range sink.Nodes() {
			order[n.ID] = i
		}
		assert.Less(t, order[nodeid.For(models.TypeArticle, "a2")], order[nodeid.For(models.TypeBlog, "b1")])
		assert.Less(t, order[nodeid.For(models.TypeProduct, "pr1")], order[nodeid.For(models.TypeProductVariant, "v1")])
		assert.Less(t, order[nodeid.For(models.TypeProduct, "pr2")], order[nodeid.For(models.TypeCollection, "c1")])
	})
}

func TestRunner_OnlySelectedGroups(t *testing.T) {
	src := &fakeSource{records: siteRecords()}
	runner, _, _ := newTestRunner(src, &fakeStore{}, Options{Groups: []models.Group{models.GroupShop}})

	report, err := runner.Run(context.Background())
	require.NoError(t, err)

	assert.ElementsMatch(t, []string{"/products", "/collections"}, src.endpoints())
	assert.ElementsMatch(t, []string{"NimbuProduct", "NimbuProductVariant", "NimbuCollection"}, report.Types())
}

func TestRunner_ChannelFilter(t *testing.T) {
	records := siteRecords()
	records["/channels?slug.in=events"] = records["/channels"]
	src := &fakeSource{records: records}
	runner, _, _ := newTestRunner(src, &fakeStore{}, Options{
		Groups:          []models.Group{models.GroupChannels},
		IncludeChannels: []string{"events"},
		ExcludeChannels: []string{"news"},
	})

	report, err := runner.Run(context.Background())
	require.NoError(t, err)

	assert.Contains(t, src.endpoints(), "/channels?slug.in=events")
	assert.Equal(t, 2, report.Total())
}

func TestRunner_FailedDownloadLeavesFieldUnresolved(t *testing.T) {
	src := &fakeSource{records: siteRecords()}
	store := &fakeStore{err: fmt.Errorf("%w: boom", assets.ErrFetch)}
	runner, sink, _ := newTestRunner(src, store, Options{Groups: []models.Group{models.GroupContent}})

	report, err := runner.Run(context.Background())
	require.NoError(t, err)
	assert.False(t, report.Aborted)
	assert.Equal(t, int64(1), report.Assets.Failures)

	article := sink.Get(nodeid.For(models.TypeArticle, "a1"))
	require.NotNil(t, article)
	header := article.Fields["header"].(map[string]any)
	assert.NotContains(t, header, resolver.LocalFileField+models.EdgeSuffix)
	assert.Empty(t, sink.ByType("NimbuFile"))
}

func TestRunner_FatalAssetErrorFailsRun(t *testing.T) {
	src := &fakeSource{records: siteRecords()}
	store := &fakeStore{err: errors.New("disk full")}
	runner, _, _ := newTestRunner(src, store, Options{Groups: []models.Group{models.GroupContent}})

	report, err := runner.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
	require.NotNil(t, report)
	assert.True(t, report.Aborted)
}

func TestRunner_RequestErrorAbortsWithoutError(t *testing.T) {
	src := &fakeSource{
		records: siteRecords(),
		errs: map[string]error{
			"/products": source.NewRequestError("GET", "/products", errors.New("bad gateway")).AddStatus(502),
		},
	}
	runner, _, _ := newTestRunner(src, &fakeStore{}, Options{Groups: []models.Group{models.GroupShop}})

	report, err := runner.Run(context.Background())
	require.NoError(t, err)
	require.NotNil(t, report)
	assert.True(t, report.Aborted)
	assert.Contains(t, report.Error, "bad gateway")
}

func TestRunner_WithLock(t *testing.T) {
	t.Run("runs under the site lock", func(t *testing.T) {
		locker := &fakeLocker{}
		src := &fakeSource{records: siteRecords()}
		runner, _, _ := newTestRunner(src, &fakeStore{}, Options{Site: "demo", Groups: []models.Group{models.GroupShop}})

		report, err := runner.WithLock(locker, time.Minute).Run(context.Background())
		require.NoError(t, err)
		assert.Equal(t, []string{"run:demo"}, locker.keys)
		assert.Equal(t, 4, report.Total())
	})

	t.Run("lock held elsewhere", func(t *testing.T) {
		locker := &fakeLocker{err: errors.New("lock not acquired")}
		src := &fakeSource{records: siteRecords()}
		runner, _, _ := newTestRunner(src, &fakeStore{}, Options{Site: "demo"})

		report, err := runner.WithLock(locker, time.Minute).Run(context.Background())
		require.Error(t, err)
		assert.Nil(t, report)
		assert.Empty(t, src.endpoints())
	})
}
