// Package resolver turns tagged record fields and page-builder items into
// graph edges and resolved asset ids.
package resolver

import (
	"context"
	"sort"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/nodeid"
)

// DefaultMaxDepth bounds canvas nesting when no limit is configured.
const DefaultMaxDepth = 32

// LocalFileField holds the asset id on a resolved file object.
const LocalFileField = "localFile"

// Assets resolves a file to a local handle. A nil handle means absent.
type Assets interface {
	Materialize(ctx context.Context, req models.AssetRequest) (*models.AssetHandle, error)
}

// Rewriter rewrites asset URLs embedded in text.
type Rewriter interface {
	Rewrite(ctx context.Context, text string) (string, error)
}

// Resolver classifies and resolves record fields.
type Resolver struct {
	assets   Assets
	rewriter Rewriter
	maxDepth int
	logger   ectologger.Logger
}

// New creates a Resolver. maxDepth <= 0 uses DefaultMaxDepth.
func New(assets Assets, rewriter Rewriter, maxDepth int, logger ectologger.Logger) *Resolver {
	if maxDepth <= 0 {
		maxDepth = DefaultMaxDepth
	}
	return &Resolver{
		assets:   assets,
		rewriter: rewriter,
		maxDepth: maxDepth,
		logger:   logger,
	}
}

// ResolveFields replaces the tagged fields of fields in place:
//   - Reference becomes a to-one edge
//   - Relation becomes a to-many edge
//   - File with a url gets a localFile edge to its asset
//   - Gallery is left as is
//   - any other string goes through the rewriter
func (r *Resolver) ResolveFields(ctx context.Context, fields map[string]any) error {
	for _, key := range sortedKeys(fields) {
		if models.IsEdgeKey(key) {
			continue
		}
		switch f := models.DecodeField(fields[key]).(type) {
		case models.Reference:
			delete(fields, key)
			fields[models.EdgeKey(key)] = nodeid.For(models.MapNodeType(f.ClassName), f.ID)
		case models.Relation:
			delete(fields, key)
			fields[models.EdgeKey(key)] = nodeid.ForAll(models.MapNodeType(f.ClassName), f.IDs)
		case models.File:
			if err := r.attach(ctx, f); err != nil {
				return err
			}
		case models.Gallery:
			// passed through untouched
		case models.Plain:
			text, ok := f.Value.(string)
			if !ok {
				continue
			}
			rewritten, err := r.rewriter.Rewrite(ctx, text)
			if err != nil {
				return err
			}
			fields[key] = rewritten
		}
	}
	return nil
}

// AttachFile resolves an untagged file-like object, such as a blog header.
func (r *Resolver) AttachFile(ctx context.Context, obj map[string]any) error {
	if obj == nil {
		return nil
	}
	return r.attach(ctx, models.DecodeFile(obj))
}

func (r *Resolver) attach(ctx context.Context, f models.File) error {
	if f.URL == "" {
		return nil
	}
	handle, err := r.assets.Materialize(ctx, f.Request())
	if err != nil {
		return err
	}
	if handle != nil {
		f.Attrs[models.EdgeKey(LocalFileField)] = handle.ID
	}
	return nil
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
