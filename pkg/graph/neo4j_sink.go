package graph

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/Gobusters/ectologger"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/Ramsey-B/fern/pkg/metrics"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

// NodeLabel is carried by every node fern writes.
const NodeLabel = "NimbuNode"

// Neo4jSink writes nodes as labelled graph nodes and their edges as relationships.
type Neo4jSink struct {
	client *Client
	logger ectologger.Logger
}

func NewNeo4jSink(client *Client, logger ectologger.Logger) *Neo4jSink {
	return &Neo4jSink{client: client, logger: logger}
}

// Emit upserts the node and replaces its outgoing relationships. Edge targets
// that have not been written yet are created as bare nodes.
func (s *Neo4jSink) Emit(ctx context.Context, node *models.Node) error {
	ctx, span := tracing.StartSpan(ctx, "graph.Neo4jSink.Emit")
	defer span.End()

	props, err := Properties(node)
	if err != nil {
		return err
	}

	upsert := fmt.Sprintf(`
		MERGE (n:%s {id: $id})
		SET n = $props, n:%s
	`, NodeLabel, sanitizeLabel(node.Type))

	detach := fmt.Sprintf(`
		MATCH (n:%s {id: $id})-[r]->()
		DELETE r
	`, NodeLabel)

	edges := node.Edges()

	_, err = s.client.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		if _, err := runAndConsume(ctx, tx, upsert, map[string]any{"id": node.ID, "props": props}); err != nil {
			return nil, err
		}
		if _, err := runAndConsume(ctx, tx, detach, map[string]any{"id": node.ID}); err != nil {
			return nil, err
		}
		for _, edge := range edges {
			link := fmt.Sprintf(`
				MATCH (n:%s {id: $id})
				UNWIND range(0, size($targets) - 1) AS i
				MERGE (t:%s {id: $targets[i]})
				CREATE (n)-[r:%s {path: $path, position: i}]->(t)
			`, NodeLabel, NodeLabel, RelationshipType(edge.Path))
			params := map[string]any{"id": node.ID, "targets": edge.Targets, "path": edge.Path}
			if _, err := runAndConsume(ctx, tx, link, params); err != nil {
				return nil, err
			}
		}
		return nil, nil
	})
	metrics.RecordSinkWrite("neo4j", err)
	if err != nil {
		tracing.RecordError(span, err)
		s.logger.WithContext(ctx).WithError(err).WithField("node_id", node.ID).Error("Failed to write node to graph")
		return fmt.Errorf("failed to write node %s to graph: %w", node.ID, err)
	}
	return nil
}

// Touch stamps a reused asset node.
func (s *Neo4jSink) Touch(ctx context.Context, assetID string) error {
	cypher := fmt.Sprintf(`
		MATCH (n:%s {id: $id})
		SET n.touched_at = datetime()
	`, NodeLabel)

	_, err := s.client.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		return runAndConsume(ctx, tx, cypher, map[string]any{"id": assetID})
	})
	metrics.RecordSinkWrite("neo4j", err)
	if err != nil {
		return fmt.Errorf("failed to touch asset %s: %w", assetID, err)
	}
	return nil
}

// Properties flattens a node into graph properties. Edge fields are left out,
// nested objects and lists are stored as JSON strings.
func Properties(node *models.Node) (map[string]any, error) {
	props := make(map[string]any, len(node.Fields)+4)
	for k, v := range node.Fields {
		if models.IsEdgeKey(k) {
			continue
		}
		switch val := v.(type) {
		case nil:
			continue
		case string, bool, float64, int, int64:
			props[k] = val
		case []string:
			props[k] = val
		default:
			data, err := json.Marshal(val)
			if err != nil {
				return nil, fmt.Errorf("failed to encode field %s of node %s: %w", k, node.ID, err)
			}
			props[k] = string(data)
		}
	}

	props["id"] = node.ID
	props["internal_type"] = node.Type
	props["nimbuId"] = node.ExternalID
	props["contentDigest"] = node.ContentDigest
	return props, nil
}

// RelationshipType turns an edge path like "items.hero.file.localFile" into
// a relationship type like "ITEMS_HERO_FILE_LOCALFILE".
func RelationshipType(path string) string {
	return strings.ToUpper(sanitizeLabel(strings.ReplaceAll(path, ".", "_")))
}

func runAndConsume(ctx context.Context, tx neo4j.ManagedTransaction, cypher string, params map[string]any) (any, error) {
	result, err := tx.Run(ctx, cypher, params)
	if err != nil {
		return nil, err
	}
	return result.Consume(ctx)
}

func sanitizeLabel(label string) string {
	var b strings.Builder
	for _, c := range label {
		if (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9') || c == '_' {
			b.WriteRune(c)
		}
	}
	if b.Len() == 0 {
		return "Node"
	}
	return b.String()
}
