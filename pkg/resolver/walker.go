package resolver

import (
	"context"
	"fmt"

	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/nodeid"
)

// Page-builder item types.
const (
	ItemCanvas    = "canvas"
	ItemFile      = "file"
	ItemReference = "reference"
)

// WalkItems resolves a page-builder items tree in place. Canvas items recurse
// into each repeatable's own items.
func (r *Resolver) WalkItems(ctx context.Context, items map[string]any) error {
	return r.walk(ctx, items, "items", 0)
}

func (r *Resolver) walk(ctx context.Context, items map[string]any, path string, depth int) error {
	if depth > r.maxDepth {
		return NewStructureError(fmt.Sprintf("canvas nesting exceeds limit of %d", r.maxDepth)).
			AddPath(path).
			AddDepth(depth)
	}

	for _, key := range sortedKeys(items) {
		item, ok := items[key].(map[string]any)
		if !ok {
			continue
		}
		itemPath := path + "." + key

		switch models.StringValue(item["type"]) {
		case ItemCanvas:
			repeatables, _ := item["repeatables"].([]any)
			for i, rep := range repeatables {
				repeatable, ok := rep.(map[string]any)
				if !ok {
					continue
				}
				nested, ok := repeatable["items"].(map[string]any)
				if !ok {
					continue
				}
				nestedPath := fmt.Sprintf("%s.repeatables[%d].items", itemPath, i)
				if err := r.walk(ctx, nested, nestedPath, depth+1); err != nil {
					return err
				}
			}
		case ItemFile:
			file, _ := item["file"].(map[string]any)
			if err := r.AttachFile(ctx, file); err != nil {
				return err
			}
		case ItemReference:
			resolveReferenceItem(items, key, item)
		default:
			content, ok := item["content"].(string)
			if !ok {
				continue
			}
			rewritten, err := r.rewriter.Rewrite(ctx, content)
			if err != nil {
				return err
			}
			item["content"] = rewritten
		}
	}
	return nil
}

// resolveReferenceItem replaces a reference item with an edge on its parent.
func resolveReferenceItem(items map[string]any, key string, item map[string]any) {
	typeTag := models.MapNodeType(models.StringValue(item["reference_type"]))

	if id, ok := item["reference_id"]; ok && id != nil {
		delete(items, key)
		items[models.EdgeKey(key)] = nodeid.For(typeTag, models.StringValue(id))
		return
	}
	if ids, ok := item["reference_ids"]; ok && ids != nil {
		delete(items, key)
		items[models.EdgeKey(key)] = nodeid.ForAll(typeTag, models.StringSlice(ids))
	}
}
