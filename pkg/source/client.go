// Package source reads records from the Nimbu API.
package source

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"go.opentelemetry.io/otel/attribute"

	"github.com/Ramsey-B/fern/pkg/httpclient"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

const (
	DefaultBaseURL  = "https://api.nimbu.io"
	DefaultPageSize = 250
	clientVersion   = "1"
)

// ErrMissingToken is returned when no access token is configured.
var ErrMissingToken = errors.New("a valid Nimbu access token is required")

// Config holds the Nimbu API connection settings.
type Config struct {
	BaseURL  string
	Token    string
	PageSize int
}

// Source yields the records of an endpoint one at a time.
type Source interface {
	Each(ctx context.Context, endpoint string, fn func(ctx context.Context, record models.Record) error) error
}

// Client is a Nimbu API client.
type Client struct {
	http     *httpclient.Client
	baseURL  string
	token    string
	pageSize int
	logger   ectologger.Logger
}

// NewClient creates a Client.
func NewClient(httpClient *httpclient.Client, cfg Config, logger ectologger.Logger) (*Client, error) {
	if cfg.Token == "" {
		return nil, ErrMissingToken
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = DefaultPageSize
	}

	return &Client{
		http:     httpClient,
		baseURL:  strings.TrimSuffix(cfg.BaseURL, "/"),
		token:    cfg.Token,
		pageSize: cfg.PageSize,
		logger:   logger,
	}, nil
}

// Site returns the subdomain of the site the token belongs to.
func (c *Client) Site(ctx context.Context) (string, error) {
	var sites []models.Record
	if err := c.get(ctx, "/sites", &sites); err != nil {
		return "", err
	}
	if len(sites) == 0 {
		return "", NewRequestError(http.MethodGet, c.baseURL+"/sites", errors.New("token has no accessible site"))
	}
	return sites[0].String("subdomain"), nil
}

// Each fetches every page of endpoint and calls fn for each record in order.
// It stops at the first short page or at the first error from fn.
func (c *Client) Each(ctx context.Context, endpoint string, fn func(ctx context.Context, record models.Record) error) error {
	ctx, span := tracing.StartSpan(ctx, "source.Client.Each", attribute.String("endpoint", endpoint))
	defer span.End()

	for page := 1; ; page++ {
		query := url.Values{}
		query.Set("page", strconv.Itoa(page))
		query.Set("per_page", strconv.Itoa(c.pageSize))

		var records []models.Record
		if err := c.get(ctx, withQuery(endpoint, query), &records); err != nil {
			tracing.RecordError(span, err)
			return err
		}

		for _, record := range records {
			if err := fn(ctx, record); err != nil {
				return err
			}
		}

		if len(records) < c.pageSize {
			return nil
		}
	}
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	fullURL := c.baseURL + path
	resp, err := c.http.Get(ctx, fullURL, map[string]string{
		"Authorization":          "Bearer " + c.token,
		"X-Nimbu-Client-Version": clientVersion,
		"Accept":                 "application/json",
	})
	if err != nil {
		return NewRequestError(http.MethodGet, fullURL, err)
	}

	if !httpclient.IsSuccessStatus(resp.StatusCode) {
		cause := httperror.NewHTTPErrorf(resp.StatusCode, "nimbu api error: %s", truncate(string(resp.Body), 256))
		return NewRequestError(http.MethodGet, fullURL, cause).AddStatus(resp.StatusCode)
	}

	if err := json.Unmarshal(resp.Body, out); err != nil {
		return fmt.Errorf("failed to decode response of %s: %w", fullURL, err)
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
