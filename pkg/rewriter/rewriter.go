// Package rewriter swaps CDN asset URLs embedded in HTML content for the
// paths of their locally materialized copies.
package rewriter

import (
	"context"
	"net/url"
	"path"
	"strings"

	"github.com/Gobusters/ectologger"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/Ramsey-B/fern/pkg/metrics"
	"github.com/Ramsey-B/fern/pkg/models"
)

// DefaultCDNPrefix is the scheme-less prefix of URLs served by the Nimbu CDN.
const DefaultCDNPrefix = "//cdn.nimbu.io/"

// SwappedAttr marks anchors whose href now points at a local copy.
const SwappedAttr = "data-swapped"

// Materializer resolves an asset request to a local handle. A nil handle means absent.
type Materializer interface {
	Enabled() bool
	Materialize(ctx context.Context, req models.AssetRequest) (*models.AssetHandle, error)
}

// Rewriter rewrites asset URLs found in a[href] and img[src].
type Rewriter struct {
	assets    Materializer
	cdnPrefix string
	logger    ectologger.Logger
}

// New creates a Rewriter. An empty cdnPrefix uses DefaultCDNPrefix.
func New(assets Materializer, cdnPrefix string, logger ectologger.Logger) *Rewriter {
	if cdnPrefix == "" {
		cdnPrefix = DefaultCDNPrefix
	}
	return &Rewriter{assets: assets, cdnPrefix: cdnPrefix, logger: logger}
}

type urlKind int

const (
	kindIgnored urlKind = iota
	kindRelative
	kindCDN
)

type target struct {
	publicPath string
	assetID    string
}

// Rewrite returns text with every downloadable CDN URL replaced by its local
// path. Only the matched tags change; every other byte of text is copied
// through as is. It returns text unchanged when downloads are disabled or when
// nothing was rewritten. Only errors from the asset materializer that are not
// fetch failures are returned.
func (r *Rewriter) Rewrite(ctx context.Context, text string) (string, error) {
	if !r.assets.Enabled() || !strings.Contains(text, "<") {
		return text, nil
	}

	tags := scanTags(text)

	var urls []string
	seen := make(map[string]bool)
	for _, t := range tags {
		if seen[t.url] {
			continue
		}
		seen[t.url] = true
		urls = append(urls, t.url)
	}

	log := r.logger.WithContext(ctx)
	targets := make(map[string]target)
	for _, raw := range urls {
		switch r.classify(raw) {
		case kindRelative:
			metrics.RecordURL("relative")
			continue
		case kindIgnored:
			metrics.RecordURL("external")
			continue
		}

		handle, err := r.assets.Materialize(ctx, RequestFor(raw))
		if err != nil {
			return text, err
		}
		if handle == nil {
			metrics.RecordURL("failed")
			log.WithField("url", raw).Warn("Could not materialize embedded asset, keeping remote url")
			continue
		}
		metrics.RecordURL("rewritten")
		targets[raw] = target{publicPath: handle.PublicPath, assetID: handle.ID}
	}
	if len(targets) == 0 {
		return text, nil
	}

	var b strings.Builder
	b.Grow(len(text))
	last := 0
	for _, t := range tags {
		dest, ok := targets[t.url]
		if !ok {
			continue
		}
		b.WriteString(text[last:t.start])
		b.WriteString(t.rewrite(text[t.start:t.end], dest.publicPath))
		last = t.end
	}
	b.WriteString(text[last:])
	return b.String(), nil
}

// classify accepts page-relative URLs and CDN URLs; everything else is ignored.
func (r *Rewriter) classify(raw string) urlKind {
	u, err := url.Parse(raw)
	if err != nil {
		return kindIgnored
	}
	if u.Scheme == "" && u.Host == "" {
		return kindRelative
	}
	withoutScheme := raw
	if u.Scheme != "" {
		withoutScheme = strings.TrimPrefix(raw[len(u.Scheme):], ":")
	}
	if strings.HasPrefix(withoutScheme, r.cdnPrefix) {
		return kindCDN
	}
	return kindIgnored
}

// RequestFor builds the asset request for an embedded CDN URL: the filename is
// the last path segment and the version is whatever follows the last "?".
func RequestFor(raw string) models.AssetRequest {
	req := models.AssetRequest{URL: raw, Version: models.DefaultAssetVersion}

	pathPart := raw
	if i := strings.LastIndex(raw, "?"); i >= 0 {
		pathPart = raw[:i]
		if v := raw[i+1:]; v != "" {
			req.Version = v
		}
	}
	if i := strings.Index(pathPart, "?"); i >= 0 {
		pathPart = pathPart[:i]
	}
	p := pathPart
	if u, err := url.Parse(pathPart); err == nil {
		p = u.Path
	}
	// a URL without a file segment leaves the name to the store
	if name := path.Base(p); name != "/" && name != "." {
		req.Filename = name
	}
	return req
}

// tag is an a[href] or img[src] start tag found in the input. start and end
// are byte offsets into the input; attribute offsets are relative to start.
type tag struct {
	start, end int
	img        bool
	urlAttr    string
	url        string
	attrs      []attrSpan
}

// attrSpan locates one attribute inside a raw tag. [start, end) covers the
// attribute and the whitespace before it; valStart is -1 when it has no value.
type attrSpan struct {
	key              string
	start, end       int
	valStart, valEnd int
}

// scanTags tokenizes text and returns the tags that carry a candidate URL, in
// input order. The URL is the tokenizer's decoded attribute value.
func scanTags(text string) []tag {
	var tags []tag
	z := html.NewTokenizer(strings.NewReader(text))
	offset := 0
	for {
		tt := z.Next()
		if tt == html.ErrorToken {
			return tags
		}
		start := offset
		offset += len(z.Raw())
		if offset > len(text) {
			return tags
		}
		if tt != html.StartTagToken && tt != html.SelfClosingTagToken {
			continue
		}

		name, hasAttr := z.TagName()
		var urlAttr string
		switch atom.Lookup(name) {
		case atom.A:
			urlAttr = "href"
		case atom.Img:
			urlAttr = "src"
		default:
			continue
		}

		var value string
		found := false
		for hasAttr {
			var key, val []byte
			key, val, hasAttr = z.TagAttr()
			if !found && string(key) == urlAttr {
				value, found = string(val), true
			}
		}
		if value == "" {
			continue
		}

		tags = append(tags, tag{
			start:   start,
			end:     offset,
			img:     urlAttr == "src",
			urlAttr: urlAttr,
			url:     value,
			attrs:   scanAttrs(text[start:offset]),
		})
	}
}

// rewrite returns raw with the URL attribute pointing at publicPath. Images
// lose srcset and sizes; anchors gain the swapped marker.
func (t tag) rewrite(raw, publicPath string) string {
	var b strings.Builder
	last := 0
	replaced, marked := false, false
	insertAt := len(raw)
	if len(t.attrs) > 0 {
		insertAt = t.attrs[len(t.attrs)-1].end
	}

	for _, a := range t.attrs {
		switch {
		case a.key == t.urlAttr && !replaced && a.valStart >= 0:
			b.WriteString(raw[last:a.valStart])
			b.WriteString(`"` + html.EscapeString(publicPath) + `"`)
			last = a.valEnd
			replaced = true
		case t.img && (a.key == "srcset" || a.key == "sizes"):
			b.WriteString(raw[last:a.start])
			last = a.end
		case a.key == SwappedAttr:
			marked = true
		}
	}

	if !t.img && !marked {
		b.WriteString(raw[last:insertAt])
		b.WriteString(" " + SwappedAttr + `="true"`)
		last = insertAt
	}
	b.WriteString(raw[last:])
	return b.String()
}

// scanAttrs finds the attribute spans of a raw start tag the way the HTML
// tokenizer splits them. The tokenizer reports decoded values but no offsets.
func scanAttrs(raw string) []attrSpan {
	i := 1
	for i < len(raw) && !isSpace(raw[i]) && raw[i] != '/' && raw[i] != '>' {
		i++
	}

	var attrs []attrSpan
	for i < len(raw) {
		ws := i
		for i < len(raw) && (isSpace(raw[i]) || raw[i] == '/') {
			i++
		}
		if i >= len(raw) || raw[i] == '>' {
			break
		}

		keyStart := i
		i++
		for i < len(raw) && !isSpace(raw[i]) && raw[i] != '/' && raw[i] != '>' && raw[i] != '=' {
			i++
		}
		a := attrSpan{key: strings.ToLower(raw[keyStart:i]), start: ws, valStart: -1}

		j := i
		for j < len(raw) && isSpace(raw[j]) {
			j++
		}
		if j < len(raw) && raw[j] == '=' {
			j++
			for j < len(raw) && isSpace(raw[j]) {
				j++
			}
			a.valStart = j
			if j < len(raw) && (raw[j] == '"' || raw[j] == '\'') {
				quote := raw[j]
				j++
				for j < len(raw) && raw[j] != quote {
					j++
				}
				if j < len(raw) {
					j++
				}
			} else {
				for j < len(raw) && !isSpace(raw[j]) && raw[j] != '>' {
					j++
				}
			}
			a.valEnd = j
			i = j
		}
		a.end = i
		attrs = append(attrs, a)
	}
	return attrs
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r' || c == '\f'
}
