package rewriter

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/fern/pkg/logging"
	"github.com/Ramsey-B/fern/pkg/models"
)

type fakeAssets struct {
	enabled  bool
	failURLs map[string]bool
	err      error
	requests []models.AssetRequest
}

func (f *fakeAssets) Enabled() bool { return f.enabled }

func (f *fakeAssets) Materialize(_ context.Context, req models.AssetRequest) (*models.AssetHandle, error) {
	f.requests = append(f.requests, req)
	if f.err != nil {
		return nil, f.err
	}
	if f.failURLs[req.URL] {
		return nil, nil
	}
	return &models.AssetHandle{ID: "id-" + req.Filename, PublicPath: "/static/abc/" + req.Filename}, nil
}

func TestRewrite_CDNImage(t *testing.T) {
	assets := &fakeAssets{enabled: true}
	r := New(assets, "", logging.Nop())

	in := `<p><img src="//cdn.nimbu.io/x/y.png?v=3" srcset="//cdn.nimbu.io/x/y@2x.png 2x" sizes="100vw" alt="y"></p>`
	out, err := r.Rewrite(context.Background(), in)
	require.NoError(t, err)

	assert.Contains(t, out, `src="/static/abc/y.png"`)
	assert.Contains(t, out, `alt="y"`)
	assert.NotContains(t, out, "srcset")
	assert.NotContains(t, out, "sizes")

	require.Len(t, assets.requests, 1)
	assert.Equal(t, models.AssetRequest{URL: "//cdn.nimbu.io/x/y.png?v=3", Filename: "y.png", Version: "v=3"}, assets.requests[0])
}

func TestRewrite_UnrelatedImageUntouched(t *testing.T) {
	assets := &fakeAssets{enabled: true}
	r := New(assets, "", logging.Nop())

	in := `<IMG SRC="https://unrelated.example.com/z.png"  class=x>`
	out, err := r.Rewrite(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, in, out)
	assert.Empty(t, assets.requests)
}

func TestRewrite_OnlyMatchedTagsChange(t *testing.T) {
	assets := &fakeAssets{enabled: true}
	r := New(assets, "", logging.Nop())

	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "mixed document",
			in:   `<p>Price&nbsp;list<br><img src="https://unrelated.example.com/z.png"></p><td>kept?</td><img src="//cdn.nimbu.io/x/y.png?v=3" srcset="//cdn.nimbu.io/x/y@2x.png 2x">`,
			want: `<p>Price&nbsp;list<br><img src="https://unrelated.example.com/z.png"></p><td>kept?</td><img src="/static/abc/y.png">`,
		},
		{
			name: "unquoted anchor keeps its other attributes",
			in:   `<A HREF=https://cdn.nimbu.io/s/doc.pdf class='btn'>Download</A> &amp; more`,
			want: `<A HREF="/static/abc/doc.pdf" class='btn' data-swapped="true">Download</A> &amp; more`,
		},
		{
			name: "self-closing image",
			in:   `<img sizes="50vw" src="//cdn.nimbu.io/x/y.png" />`,
			want: `<img src="/static/abc/y.png" />`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := r.Rewrite(context.Background(), tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, out)
		})
	}
}

func TestRewrite_AnchorIsSwapped(t *testing.T) {
	assets := &fakeAssets{enabled: true}
	r := New(assets, "", logging.Nop())

	in := `<a href="https://cdn.nimbu.io/s/doc.pdf">one</a><a href="https://cdn.nimbu.io/s/doc.pdf">two</a>`
	out, err := r.Rewrite(context.Background(), in)
	require.NoError(t, err)

	assert.Equal(t, 2, strings.Count(out, `href="/static/abc/doc.pdf"`))
	assert.Equal(t, 2, strings.Count(out, `data-swapped="true"`))
	assert.Len(t, assets.requests, 1, "duplicate urls are requested once")
	assert.Equal(t, models.DefaultAssetVersion, assets.requests[0].Version)
}

func TestRewrite_RelativeLinksDetectedNotRewritten(t *testing.T) {
	assets := &fakeAssets{enabled: true}
	r := New(assets, "", logging.Nop())

	in := `<a href="/about">About</a> <a href="contact.html">Contact</a>`
	out, err := r.Rewrite(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, in, out)
	assert.Empty(t, assets.requests)
}

func TestRewrite_Disabled(t *testing.T) {
	assets := &fakeAssets{enabled: false}
	r := New(assets, "", logging.Nop())

	in := `<img src="//cdn.nimbu.io/x/y.png">`
	out, err := r.Rewrite(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, in, out)
	assert.Empty(t, assets.requests)
}

func TestRewrite_FailedDownloadKeepsURL(t *testing.T) {
	assets := &fakeAssets{enabled: true, failURLs: map[string]bool{"//cdn.nimbu.io/x/broken.png": true}}
	r := New(assets, "", logging.Nop())

	in := `<img src="//cdn.nimbu.io/x/broken.png"><img src="//cdn.nimbu.io/x/ok.png">`
	out, err := r.Rewrite(context.Background(), in)
	require.NoError(t, err)
	assert.Contains(t, out, `src="//cdn.nimbu.io/x/broken.png"`)
	assert.Contains(t, out, `src="/static/abc/ok.png"`)
}

func TestRewrite_FatalErrorPropagates(t *testing.T) {
	assets := &fakeAssets{enabled: true, err: errors.New("cache down")}
	r := New(assets, "", logging.Nop())

	in := `<img src="//cdn.nimbu.io/x/y.png">`
	out, err := r.Rewrite(context.Background(), in)
	assert.Error(t, err)
	assert.Equal(t, in, out)
}

func TestRewrite_PlainTextUnchanged(t *testing.T) {
	r := New(&fakeAssets{enabled: true}, "", logging.Nop())

	for _, in := range []string{"", "hello world", "a < b"} {
		out, err := r.Rewrite(context.Background(), in)
		require.NoError(t, err)
		assert.Equal(t, in, out)
	}
}

func TestRequestFor(t *testing.T) {
	tests := []struct {
		raw      string
		filename string
		version  string
	}{
		{"//cdn.nimbu.io/s/a.png", "a.png", models.DefaultAssetVersion},
		{"https://cdn.nimbu.io/s/dir/b.jpg?thumb", "b.jpg", "thumb"},
		{"//cdn.nimbu.io/c.gif?x=1?large", "c.gif", "large"},
		{"//cdn.nimbu.io/", "", models.DefaultAssetVersion},
		{"https://cdn.nimbu.io/?v=2", "", "v=2"},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			req := RequestFor(tt.raw)
			assert.Equal(t, tt.raw, req.URL)
			assert.Equal(t, tt.filename, req.Filename)
			assert.Equal(t, tt.version, req.Version)
		})
	}
}
