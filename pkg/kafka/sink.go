// Package kafka publishes node lifecycle events.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Ramsey-B/fern/pkg/metrics"
	"github.com/Ramsey-B/fern/pkg/models"
)

// SchemaVersion is the current event schema version
const SchemaVersion = "1.0"

const (
	EventNodeMaterialized = "node.materialized"
	EventAssetTouched     = "asset.touched"
)

// NodeEvent is the payload of every event published by Sink
type NodeEvent struct {
	EventType     string       `json:"event_type"`
	SchemaVersion string       `json:"schema_version"`
	Site          string       `json:"site"`
	NodeID        string       `json:"node_id"`
	NodeType      string       `json:"node_type,omitempty"`
	ContentDigest string       `json:"content_digest,omitempty"`
	Node          *models.Node `json:"node,omitempty"`
	Timestamp     time.Time    `json:"timestamp"`
}

// Sink publishes every emitted node and every touched asset as an event
type Sink struct {
	producer *Producer
	site     string
	now      func() time.Time
}

// NewSink creates a Sink tagging events with site
func NewSink(producer *Producer, site string) *Sink {
	return &Sink{producer: producer, site: site, now: time.Now}
}

func (s *Sink) Emit(ctx context.Context, node *models.Node) error {
	return s.publish(ctx, NodeEvent{
		EventType:     EventNodeMaterialized,
		NodeID:        node.ID,
		NodeType:      node.Type,
		ContentDigest: node.ContentDigest,
		Node:          node,
	})
}

func (s *Sink) Touch(ctx context.Context, assetID string) error {
	return s.publish(ctx, NodeEvent{
		EventType: EventAssetTouched,
		NodeID:    assetID,
		NodeType:  models.TypeName(models.TypeFile),
	})
}

func (s *Sink) publish(ctx context.Context, event NodeEvent) error {
	event.SchemaVersion = SchemaVersion
	event.Site = s.site
	event.Timestamp = s.now().UTC()

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to encode %s event for %s: %w", event.EventType, event.NodeID, err)
	}

	err = s.producer.Publish(ctx, event.NodeID, data, map[string]string{
		"event_type":     event.EventType,
		"node_type":      event.NodeType,
		"schema_version": SchemaVersion,
	})
	metrics.RecordSinkWrite("kafka", err)
	if err != nil {
		return fmt.Errorf("failed to publish %s event for %s: %w", event.EventType, event.NodeID, err)
	}
	return nil
}
