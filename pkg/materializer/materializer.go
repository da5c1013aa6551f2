// Package materializer builds graph nodes from Nimbu records, one builder per
// entity kind.
package materializer

import (
	"context"
	"fmt"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/fern/pkg/fingerprint"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/nodeid"
)

// Resolver resolves tagged fields, file objects and page-builder items in place.
type Resolver interface {
	ResolveFields(ctx context.Context, fields map[string]any) error
	AttachFile(ctx context.Context, obj map[string]any) error
	WalkItems(ctx context.Context, items map[string]any) error
}

// Materializer turns records into nodes.
type Materializer struct {
	resolver Resolver
	logger   ectologger.Logger
}

// New creates a Materializer.
func New(resolver Resolver, logger ectologger.Logger) *Materializer {
	return &Materializer{resolver: resolver, logger: logger}
}

// NewNode builds the base node for a record: a deterministic id, the full
// type name, the upstream id and a digest of the raw record. Fields is a deep
// copy of the record without its id.
func NewNode(typeTag string, record models.Record) *models.Node {
	fields := record.Clone()
	delete(fields, "id")
	if fields == nil {
		fields = models.Record{}
	}

	return &models.Node{
		ID:            nodeid.For(typeTag, record.ID()),
		Type:          models.TypeName(typeTag),
		ExternalID:    record.ID(),
		ContentDigest: fingerprint.Digest(record),
		Fields:        fields,
	}
}

// Blog builds a blog node linked to the given article ids. Article ids already
// present on the record come first.
func (m *Materializer) Blog(ctx context.Context, record models.Record, articleIDs []string) (*models.Node, error) {
	node := NewNode(models.TypeBlog, record)

	ids := append(models.StringSlice(node.Fields["articles"]), articleIDs...)
	delete(node.Fields, "articles")
	if len(ids) > 0 {
		node.AppendEdges("articles", nodeid.ForAll(models.TypeArticle, ids)...)
	}

	if err := m.attachFiles(ctx, node, "header"); err != nil {
		return nil, err
	}
	if err := m.resolver.ResolveFields(ctx, node.Fields); err != nil {
		return nil, fmt.Errorf("failed to resolve blog %s: %w", node.ExternalID, err)
	}
	return node, nil
}

// Article builds an article node pointing at its blog. An empty blogID falls
// back to the id of the record's own blog object.
func (m *Materializer) Article(ctx context.Context, record models.Record, blogID string) (*models.Node, error) {
	node := NewNode(models.TypeArticle, record)

	if blogID == "" {
		if blog, ok := node.Fields["blog"].(map[string]any); ok {
			blogID = models.StringValue(blog["id"])
		}
	}
	if blogID != "" {
		node.SetEdge("blog", nodeid.For(models.TypeBlog, blogID))
	}

	if err := m.attachFiles(ctx, node, "header", "thumbnail", "og_image"); err != nil {
		return nil, err
	}
	if err := m.resolver.ResolveFields(ctx, node.Fields); err != nil {
		return nil, fmt.Errorf("failed to resolve article %s: %w", node.ExternalID, err)
	}
	return node, nil
}

// Menu builds a menu node. Menus carry no special fields.
func (m *Materializer) Menu(_ context.Context, record models.Record) (*models.Node, error) {
	return NewNode(models.TypeMenu, record), nil
}

// Translation builds a translation node. Translations carry no special fields.
func (m *Materializer) Translation(_ context.Context, record models.Record) (*models.Node, error) {
	return NewNode(models.TypeTranslation, record), nil
}

// Page builds a page node, walking its page-builder items.
func (m *Materializer) Page(ctx context.Context, record models.Record) (*models.Node, error) {
	node := NewNode(models.TypePage, record)

	if items, ok := node.Fields["items"].(map[string]any); ok {
		if err := m.resolver.WalkItems(ctx, items); err != nil {
			return nil, fmt.Errorf("failed to walk items of page %s: %w", node.ExternalID, err)
		}
	}
	if err := m.resolver.ResolveFields(ctx, node.Fields); err != nil {
		return nil, fmt.Errorf("failed to resolve page %s: %w", node.ExternalID, err)
	}
	return node, nil
}

// Product builds a product node and its variant nodes. Each collection the
// product belongs to is recorded in collections for the later Collection pass.
func (m *Materializer) Product(ctx context.Context, record models.Record, collections *Accumulator) (*models.Node, []*models.Node, error) {
	node := NewNode(models.TypeProduct, record)

	var variants []map[string]any
	if raw, ok := node.Fields["variants"]; ok {
		variants = objectList(raw)
		delete(node.Fields, "variants")
		variantIDs := make([]string, 0, len(variants))
		for _, v := range variants {
			variantIDs = append(variantIDs, models.StringValue(v["id"]))
		}
		node.AppendEdges("variants", nodeid.ForAll(models.TypeProductVariant, variantIDs)...)
	}

	if raw, ok := node.Fields["collections"]; ok {
		memberships := objectList(raw)
		delete(node.Fields, "collections")
		collectionIDs := make([]string, 0, len(memberships))
		for _, c := range memberships {
			id := models.StringValue(c["id"])
			collectionIDs = append(collectionIDs, id)
			if err := collections.Append(id, node.ExternalID); err != nil {
				return nil, nil, fmt.Errorf("failed to record collection %s of product %s: %w", id, node.ExternalID, err)
			}
		}
		node.AppendEdges("collections", nodeid.ForAll(models.TypeCollection, collectionIDs)...)
	}

	if err := m.resolver.ResolveFields(ctx, node.Fields); err != nil {
		return nil, nil, fmt.Errorf("failed to resolve product %s: %w", node.ExternalID, err)
	}

	variantNodes := make([]*models.Node, 0, len(variants))
	for _, v := range variants {
		variant, err := m.ProductVariant(ctx, models.Record(v), node)
		if err != nil {
			return nil, nil, err
		}
		variantNodes = append(variantNodes, variant)
	}
	return node, variantNodes, nil
}

// ProductVariant builds a variant node with a back edge to its product.
func (m *Materializer) ProductVariant(ctx context.Context, record models.Record, product *models.Node) (*models.Node, error) {
	node := NewNode(models.TypeProductVariant, record)
	node.SetEdge("product", product.ID)

	if err := m.resolver.ResolveFields(ctx, node.Fields); err != nil {
		return nil, fmt.Errorf("failed to resolve variant %s: %w", node.ExternalID, err)
	}
	return node, nil
}

// Collection builds a collection node linked to the products accumulated for it.
func (m *Materializer) Collection(ctx context.Context, record models.Record, products *Accumulator) (*models.Node, error) {
	node := NewNode(models.TypeCollection, record)

	productIDs, err := products.Get(node.ExternalID)
	if err != nil {
		return nil, fmt.Errorf("failed to read products of collection %s: %w", node.ExternalID, err)
	}
	if len(productIDs) > 0 {
		delete(node.Fields, "products")
		node.AppendEdges("products", nodeid.ForAll(models.TypeProduct, productIDs)...)
	}

	if err := m.resolver.ResolveFields(ctx, node.Fields); err != nil {
		return nil, fmt.Errorf("failed to resolve collection %s: %w", node.ExternalID, err)
	}
	return node, nil
}

// Channel builds a channel node linked to the given entry ids.
func (m *Materializer) Channel(_ context.Context, record models.Record, entryIDs []string) (*models.Node, error) {
	node := NewNode(models.TypeChannel, record)

	entryType := models.MapNodeType(record.String("slug"))
	ids := append(models.StringSlice(node.Fields["entries"]), entryIDs...)
	delete(node.Fields, "entries")
	if len(ids) > 0 {
		node.AppendEdges("entries", nodeid.ForAll(entryType, ids)...)
	}
	return node, nil
}

// ChannelEntry builds an entry node of the channel's dynamic type with an edge
// to the channel.
func (m *Materializer) ChannelEntry(ctx context.Context, record models.Record, channel models.Record) (*models.Node, error) {
	node := NewNode(models.MapNodeType(channel.String("slug")), record)
	node.SetEdge("channel", nodeid.For(models.TypeChannel, channel.ID()))

	if err := m.resolver.ResolveFields(ctx, node.Fields); err != nil {
		return nil, fmt.Errorf("failed to resolve %s entry %s: %w", channel.String("slug"), node.ExternalID, err)
	}
	return node, nil
}

func (m *Materializer) attachFiles(ctx context.Context, node *models.Node, fields ...string) error {
	for _, field := range fields {
		obj, ok := node.Fields[field].(map[string]any)
		if !ok {
			continue
		}
		if err := m.resolver.AttachFile(ctx, obj); err != nil {
			return fmt.Errorf("failed to attach %s of %s %s: %w", field, node.Type, node.ExternalID, err)
		}
	}
	return nil
}

func objectList(v any) []map[string]any {
	list, _ := v.([]any)
	out := make([]map[string]any, 0, len(list))
	for _, item := range list {
		if obj, ok := item.(map[string]any); ok {
			out = append(out, obj)
		}
	}
	return out
}
