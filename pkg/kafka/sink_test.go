package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/fern/pkg/logging"
	"github.com/Ramsey-B/fern/pkg/models"
)

type fakeWriter struct {
	messages []kafka.Message
	err      error
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.messages = append(w.messages, msgs...)
	return nil
}

func (w *fakeWriter) Close() error { return nil }

func headerValue(msg kafka.Message, key string) string {
	for _, h := range msg.Headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}

func TestSink_Emit(t *testing.T) {
	writer := &fakeWriter{}
	sink := NewSink(NewProducerWithWriter(writer, "fern.nodes", logging.Nop()), "demo")
	sink.now = func() time.Time { return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC) }

	node := &models.Node{ID: "n1", Type: "NimbuPage", ContentDigest: "abc", Fields: map[string]any{"title": "x"}}
	require.NoError(t, sink.Emit(context.Background(), node))

	require.Len(t, writer.messages, 1)
	msg := writer.messages[0]
	assert.Equal(t, "n1", string(msg.Key))
	assert.Equal(t, EventNodeMaterialized, headerValue(msg, "event_type"))
	assert.Equal(t, "NimbuPage", headerValue(msg, "node_type"))

	var event NodeEvent
	require.NoError(t, json.Unmarshal(msg.Value, &event))
	assert.Equal(t, "demo", event.Site)
	assert.Equal(t, SchemaVersion, event.SchemaVersion)
	assert.Equal(t, "abc", event.ContentDigest)
	assert.Equal(t, "x", event.Node.Fields["title"])
	assert.Equal(t, 2026, event.Timestamp.Year())
}

func TestSink_Touch(t *testing.T) {
	writer := &fakeWriter{}
	sink := NewSink(NewProducerWithWriter(writer, "fern.nodes", logging.Nop()), "demo")

	require.NoError(t, sink.Touch(context.Background(), "f1"))

	require.Len(t, writer.messages, 1)
	assert.Equal(t, EventAssetTouched, headerValue(writer.messages[0], "event_type"))
	assert.Equal(t, "NimbuFile", headerValue(writer.messages[0], "node_type"))
}

func TestSink_WriteError(t *testing.T) {
	writer := &fakeWriter{err: errors.New("broker down")}
	sink := NewSink(NewProducerWithWriter(writer, "fern.nodes", logging.Nop()), "demo")

	err := sink.Emit(context.Background(), &models.Node{ID: "n1"})
	assert.ErrorContains(t, err, "broker down")
}
