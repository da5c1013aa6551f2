package models

import (
	"sort"
	"strings"
)

// EdgeSuffix marks a field whose value is one or more node ids.
const EdgeSuffix = "___NODE"

// Node is a materialized graph unit.
type Node struct {
	ID            string         `json:"id"`
	Type          string         `json:"type"`
	ExternalID    string         `json:"nimbuId,omitempty"`
	ContentDigest string         `json:"contentDigest"`
	Fields        map[string]any `json:"fields"`
}

// Edge is a resolved link found on a node. Path is the dotted location of the
// edge field with the suffix removed, e.g. "blog" or "header.localFile".
type Edge struct {
	Path    string
	Targets []string
	Many    bool
}

// EdgeKey returns the field name under which an edge for field is stored.
func EdgeKey(field string) string {
	return field + EdgeSuffix
}

// IsEdgeKey reports whether a field name holds an edge.
func IsEdgeKey(key string) bool {
	return strings.HasSuffix(key, EdgeSuffix)
}

// SetEdge stores a to-one edge and removes the raw field.
func (n *Node) SetEdge(field, target string) {
	delete(n.Fields, field)
	n.Fields[EdgeKey(field)] = target
}

// AppendEdges appends targets to a to-many edge, creating it when missing.
func (n *Node) AppendEdges(field string, targets ...string) {
	key := EdgeKey(field)
	existing, _ := n.Fields[key].([]string)
	n.Fields[key] = append(existing, targets...)
}

// Edges returns every edge on the node, including edges nested inside
// objects and lists, sorted by path.
func (n *Node) Edges() []Edge {
	var edges []Edge
	collectEdges(n.Fields, "", &edges)
	sort.SliceStable(edges, func(i, j int) bool { return edges[i].Path < edges[j].Path })
	return edges
}

func collectEdges(v any, prefix string, edges *[]Edge) {
	switch val := v.(type) {
	case map[string]any:
		for k, child := range val {
			path := k
			if prefix != "" {
				path = prefix + "." + k
			}
			if IsEdgeKey(k) {
				path = strings.TrimSuffix(path, EdgeSuffix)
				switch targets := child.(type) {
				case string:
					*edges = append(*edges, Edge{Path: path, Targets: []string{targets}})
				case []string:
					*edges = append(*edges, Edge{Path: path, Targets: targets, Many: true})
				}
				continue
			}
			collectEdges(child, path, edges)
		}
	case []any:
		for _, child := range val {
			collectEdges(child, prefix, edges)
		}
	}
}
