package source

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"testing"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/fern/pkg/httpclient"
	"github.com/Ramsey-B/fern/pkg/logging"
	"github.com/Ramsey-B/fern/pkg/models"
)

func newTestClient(t *testing.T, handler http.HandlerFunc, pageSize int) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := NewClient(httpclient.NewClient(httpclient.DefaultConfig(), logging.Nop()), Config{
		BaseURL:  server.URL,
		Token:    "secret",
		PageSize: pageSize,
	}, logging.Nop())
	require.NoError(t, err)
	return client
}

func TestNewClient_RequiresToken(t *testing.T) {
	_, err := NewClient(httpclient.NewClient(httpclient.DefaultConfig(), logging.Nop()), Config{}, logging.Nop())
	assert.ErrorIs(t, err, ErrMissingToken)
}

func TestEach_Paginates(t *testing.T) {
	var pages []string
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		assert.Equal(t, "1", r.Header.Get("X-Nimbu-Client-Version"))
		assert.Equal(t, "/pages", r.URL.Path)
		assert.Equal(t, "1", r.URL.Query().Get("resolve"))
		assert.Equal(t, "2", r.URL.Query().Get("per_page"))

		page, _ := strconv.Atoi(r.URL.Query().Get("page"))
		pages = append(pages, r.URL.Query().Get("page"))

		var records []map[string]any
		switch page {
		case 1:
			records = []map[string]any{{"id": "1"}, {"id": "2"}}
		case 2:
			records = []map[string]any{{"id": "3"}}
		}
		_ = json.NewEncoder(w).Encode(records)
	}, 2)

	var ids []string
	err := client.Each(context.Background(), MapEndpoint(models.TypePage, nil, nil), func(_ context.Context, r models.Record) error {
		ids = append(ids, r.ID())
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"1", "2", "3"}, ids)
	assert.Equal(t, []string{"1", "2"}, pages)
}

func TestEach_CallbackErrorStops(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`[{"id":"1"},{"id":"2"}]`))
	}, 10)

	calls := 0
	err := client.Each(context.Background(), "/blogs", func(context.Context, models.Record) error {
		calls++
		return fmt.Errorf("boom")
	})
	assert.EqualError(t, err, "boom")
	assert.Equal(t, 1, calls)
	assert.False(t, IsRequestError(err))
}

func TestEach_StatusErrorIsRequestError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"message":"invalid token"}`))
	}, 10)

	err := client.Each(context.Background(), "/blogs", func(context.Context, models.Record) error { return nil })
	require.Error(t, err)
	assert.True(t, IsRequestError(err))

	var requestErr *RequestError
	require.ErrorAs(t, err, &requestErr)
	assert.Equal(t, http.StatusUnauthorized, requestErr.StatusCode)
	assert.Equal(t, http.StatusUnauthorized, httperror.GetStatusCode(requestErr.ToHTTPError()))
}

func TestEach_TransportErrorIsRequestError(t *testing.T) {
	client, err := NewClient(httpclient.NewClient(httpclient.DefaultConfig(), logging.Nop()), Config{
		BaseURL: "http://127.0.0.1:1",
		Token:   "secret",
	}, logging.Nop())
	require.NoError(t, err)

	err = client.Each(context.Background(), "/blogs", func(context.Context, models.Record) error { return nil })
	assert.True(t, IsRequestError(err))
}

func TestSite(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/sites", r.URL.Path)
		_, _ = w.Write([]byte(`[{"id":"s1","subdomain":"demo"}]`))
	}, 10)

	site, err := client.Site(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "demo", site)
}

func TestMapEndpoint(t *testing.T) {
	tests := []struct {
		name     string
		typeTag  string
		vars     map[string]string
		query    url.Values
		expected string
	}{
		{"blogs", models.TypeBlog, nil, nil, "/blogs"},
		{"articles of a blog", models.TypeArticle, map[string]string{"blog": "news"}, nil, "/blogs/news/articles"},
		{"pages keep resolve", models.TypePage, nil, url.Values{"x": {"1"}}, "/pages?resolve=1&x=1"},
		{"menus nested", models.TypeMenu, nil, url.Values{"nested": {"1"}}, "/menus?nested=1"},
		{"unknown is channel entry", "events_ChannelEntry", map[string]string{"channel": "events"}, nil, "/channels/events/entries"},
		{"channel filter", models.TypeChannel, nil, ChannelFilter([]string{"a", "b"}, []string{"c"}), "/channels?slug.in=a%2Cb"},
		{"channel exclude", models.TypeChannel, nil, ChannelFilter(nil, []string{"c"}), "/channels?slug.nin=c"},
		{"no channel filter", models.TypeChannel, nil, ChannelFilter(nil, nil), "/channels"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, MapEndpoint(tt.typeTag, tt.vars, tt.query))
		})
	}
}
