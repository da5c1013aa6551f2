package graph

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/fern/pkg/models"
)

type failingSink struct{}

func (failingSink) Emit(context.Context, *models.Node) error { return errors.New("down") }
func (failingSink) Touch(context.Context, string) error { return errors.New("down") }

func TestMultiSink(t *testing.T) {
	a, b := NewMemorySink(), NewMemorySink()
	multi := MultiSink{a, b}

	node := &models.Node{ID: "n1", Type: "NimbuPage", Fields: map[string]any{}}
	require.NoError(t, multi.Emit(context.Background(), node))
	require.NoError(t, multi.Touch(context.Background(), "f1"))

	for _, s := range []*MemorySink{a, b} {
		assert.Same(t, node, s.Get("n1"))
		assert.Equal(t, []string{"f1"}, s.Touched())
	}

	stopped := NewMemorySink()
	err := MultiSink{failingSink{}, stopped}.Emit(context.Background(), node)
	assert.Error(t, err)
	assert.Empty(t, stopped.Nodes())
}

func TestMemorySink_Queries(t *testing.T) {
	s := NewMemorySink()
	ctx := context.Background()
	require.NoError(t, s.Emit(ctx, &models.Node{ID: "1", Type: "NimbuPage"}))
	require.NoError(t, s.Emit(ctx, &models.Node{ID: "2", Type: "NimbuBlog"}))
	require.NoError(t, s.Emit(ctx, &models.Node{ID: "3", Type: "NimbuPage"}))

	assert.Len(t, s.ByType("NimbuPage"), 2)
	assert.Equal(t, []string{"NimbuBlog", "NimbuPage"}, s.Types())
	assert.Nil(t, s.Get("missing"))
}

func TestJSONSink(t *testing.T) {
	var buf bytes.Buffer
	s := NewJSONSink(&buf)

	require.NoError(t, s.Emit(context.Background(), &models.Node{ID: "n1", Type: "NimbuMenu", Fields: map[string]any{"a": "b"}}))
	require.NoError(t, s.Touch(context.Background(), "f1"))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)

	var first map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &first))
	assert.Equal(t, "node", first["event"])
	assert.Equal(t, "n1", first["node"].(map[string]any)["id"])
	assert.JSONEq(t, `{"event":"touch","id":"f1"}`, lines[1])
}

func TestProperties(t *testing.T) {
	node := &models.Node{
		ID:            "n1",
		Type:          "NimbuPage",
		ExternalID:    "42",
		ContentDigest: "abc",
		Fields: map[string]any{
			"title":         "About",
			"position":      2.0,
			"published":     true,
			"missing":       nil,
			"parent___NODE": "n0",
			"seo":           map[string]any{"title": "x"},
		},
	}

	props, err := Properties(node)
	require.NoError(t, err)

	assert.Equal(t, "About", props["title"])
	assert.Equal(t, 2.0, props["position"])
	assert.Equal(t, true, props["published"])
	assert.NotContains(t, props, "missing")
	assert.NotContains(t, props, "parent___NODE")
	assert.JSONEq(t, `{"title":"x"}`, props["seo"].(string))
	assert.Equal(t, "n1", props["id"])
	assert.Equal(t, "NimbuPage", props["internal_type"])
	assert.Equal(t, "42", props["nimbuId"])
}

func TestRelationshipType(t *testing.T) {
	assert.Equal(t, "ITEMS_HERO_FILE_LOCALFILE", RelationshipType("items.hero.file.localFile"))
	assert.Equal(t, "BLOG", RelationshipType("blog"))
	assert.Equal(t, "OG_IMAGE_LOCALFILE", RelationshipType("og_image.localFile"))
}
