// Package graph holds the sinks finished nodes are written to.
package graph

import (
	"context"
	"encoding/json"
	"io"
	"sort"
	"sync"

	"github.com/Ramsey-B/fern/pkg/models"
)

// Sink accepts finished nodes and liveness signals for reused assets.
type Sink interface {
	Emit(ctx context.Context, node *models.Node) error
	Touch(ctx context.Context, assetID string) error
}

// MultiSink fans every call out to each sink in order, stopping at the first error.
type MultiSink []Sink

func (m MultiSink) Emit(ctx context.Context, node *models.Node) error {
	for _, s := range m {
		if err := s.Emit(ctx, node); err != nil {
			return err
		}
	}
	return nil
}

func (m MultiSink) Touch(ctx context.Context, assetID string) error {
	for _, s := range m {
		if err := s.Touch(ctx, assetID); err != nil {
			return err
		}
	}
	return nil
}

// MemorySink keeps every node in memory.
type MemorySink struct {
	mu      sync.RWMutex
	nodes   []*models.Node
	byID    map[string]*models.Node
	touched []string
}

func NewMemorySink() *MemorySink {
	return &MemorySink{byID: make(map[string]*models.Node)}
}

func (s *MemorySink) Emit(_ context.Context, node *models.Node) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nodes = append(s.nodes, node)
	s.byID[node.ID] = node
	return nil
}

func (s *MemorySink) Touch(_ context.Context, assetID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touched = append(s.touched, assetID)
	return nil
}

// Nodes returns the emitted nodes in emission order.
func (s *MemorySink) Nodes() []*models.Node {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]*models.Node(nil), s.nodes...)
}

// Get returns the node with the given id, or nil.
func (s *MemorySink) Get(id string) *models.Node {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.byID[id]
}

// ByType returns the emitted nodes of one type in emission order.
func (s *MemorySink) ByType(nodeType string) []*models.Node {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.Node
	for _, n := range s.nodes {
		if n.Type == nodeType {
			out = append(out, n)
		}
	}
	return out
}

// Touched returns the touched asset ids.
func (s *MemorySink) Touched() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string(nil), s.touched...)
}

// Types returns the distinct emitted node types, sorted.
func (s *MemorySink) Types() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	seen := make(map[string]bool)
	var types []string
	for _, n := range s.nodes {
		if !seen[n.Type] {
			seen[n.Type] = true
			types = append(types, n.Type)
		}
	}
	sort.Strings(types)
	return types
}

// JSONSink writes one JSON object per line.
type JSONSink struct {
	mu  sync.Mutex
	enc *json.Encoder
}

type jsonLine struct {
	Event string       `json:"event"`
	Node  *models.Node `json:"node,omitempty"`
	ID    string       `json:"id,omitempty"`
}

func NewJSONSink(w io.Writer) *JSONSink {
	return &JSONSink{enc: json.NewEncoder(w)}
}

func (s *JSONSink) Emit(_ context.Context, node *models.Node) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.enc.Encode(jsonLine{Event: "node", Node: node})
}

func (s *JSONSink) Touch(_ context.Context, assetID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.enc.Encode(jsonLine{Event: "touch", ID: assetID})
}
