package graph_test

import (
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/aretw0/comfyctl/pkg/domain"
	"github.com/aretw0/comfyctl/pkg/graph"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func loadFixture(t *testing.T) *graph.Document {
	t.Helper()
	doc, err := graph.Load(filepath.Join("testdata", "image_to_video.json"))
	require.NoError(t, err)
	return doc
}

func inputsOf(t *testing.T, doc *graph.Document, id string) map[string]any {
	t.Helper()
	node, ok := doc.Get(id)
	require.True(t, ok, "node %s missing", id)
	inputs, ok := node.Section("inputs")
	require.True(t, ok, "node %s has no inputs", id)
	return inputs
}

func TestPatch_DoesNotMutateInput(t *testing.T) {
	doc := loadFixture(t)
	before, err := json.Marshal(doc)
	require.NoError(t, err)

	patched, report := graph.Patch(doc, []domain.ParameterUpdate{
		{NodeID: "52", Section: "inputs", Field: "steps", Value: int64(12)},
		{NodeID: "49", Section: "inputs", Field: "positive_prompt", Value: "a cat"},
		{NodeID: "54", Section: "widgets", Field: "hidden", Value: true},
	})
	assert.Len(t, report.Applied, 3)
	assert.Empty(t, report.Skipped)

	after, err := json.Marshal(doc)
	require.NoError(t, err)
	assert.JSONEq(t, string(before), string(after))
	assert.Equal(t, json.Number("20"), inputsOf(t, doc, "52")["steps"])

	assert.Equal(t, int64(12), inputsOf(t, patched, "52")["steps"])
	assert.Equal(t, "a cat", inputsOf(t, patched, "49")["positive_prompt"])
	assert.Equal(t, doc.IDs(), patched.IDs())
}

func TestPatch_CreatesMissingSection(t *testing.T) {
	doc := loadFixture(t)

	patched, report := graph.Patch(doc, []domain.ParameterUpdate{
		{NodeID: "54", Section: "_meta", Field: "title", Value: "Combine"},
	})
	require.Len(t, report.Applied, 1)

	node, _ := patched.Get("54")
	meta, ok := node.Section("_meta")
	require.True(t, ok)
	assert.Equal(t, "Combine", meta["title"])

	orig, _ := doc.Get("54")
	_, exists := orig["_meta"]
	assert.False(t, exists)
}

func TestPatch_LaterUpdateWins(t *testing.T) {
	doc := loadFixture(t)

	patched, _ := graph.Patch(doc, []domain.ParameterUpdate{
		{NodeID: "52", Section: "inputs", Field: "cfg", Value: 6.5},
		{NodeID: "52", Section: "inputs", Field: "cfg", Value: 7.5},
	})
	assert.Equal(t, 7.5, inputsOf(t, patched, "52")["cfg"])
}

func TestPatch_MissingNodeIsSkipped(t *testing.T) {
	doc := loadFixture(t)
	valid := []domain.ParameterUpdate{
		{NodeID: "52", Section: "inputs", Field: "steps", Value: int64(12)},
		{NodeID: "49", Section: "inputs", Field: "negative_prompt", Value: "noise"},
	}
	withMissing := []domain.ParameterUpdate{
		valid[0],
		{NodeID: "404", Section: "inputs", Field: "steps", Value: int64(1)},
		valid[1],
	}

	expected, _ := graph.Patch(doc, valid)
	got, report := graph.Patch(doc, withMissing)

	assert.Equal(t, expected.IDs(), got.IDs())
	assert.Equal(t, expected.Nodes, got.Nodes)
	require.Len(t, report.Skipped, 1)
	assert.Equal(t, "404", report.Skipped[0].Update.NodeID)
	assert.Equal(t, []string{"404.inputs.steps: node not found"}, report.Warnings())
	_, created := got.Get("404")
	assert.False(t, created)
}

func TestPatch_NonMappingSectionIsSkipped(t *testing.T) {
	doc := loadFixture(t)

	patched, report := graph.Patch(doc, []domain.ParameterUpdate{
		{NodeID: "52", Section: "class_type", Field: "x", Value: "y"},
	})
	require.Len(t, report.Skipped, 1)
	assert.Contains(t, report.Skipped[0].Reason, "not a mapping")

	node, _ := patched.Get("52")
	assert.Equal(t, "WanVideoSampler", node.Kind())
}

func TestPatch_Idempotent(t *testing.T) {
	doc := loadFixture(t)
	updates := []domain.ParameterUpdate{
		{NodeID: "52", Section: "inputs", Field: "seed", Value: int64(42)},
		{NodeID: "58", Section: "inputs", Field: "image", Value: "img.png"},
		{NodeID: "52", Section: "inputs", Field: "seed", Value: int64(43)},
		{NodeID: "missing", Section: "inputs", Field: "x", Value: int64(1)},
	}

	once, _ := graph.Patch(doc, updates)
	twice, _ := graph.Patch(once, updates)

	assert.Equal(t, once.IDs(), twice.IDs())
	assert.Equal(t, once.Nodes, twice.Nodes)
	assert.Equal(t, int64(43), inputsOf(t, twice, "52")["seed"])
}

func TestPatch_ValueIsCopied(t *testing.T) {
	doc := loadFixture(t)
	ref := []any{"4", 1}

	patched, _ := graph.Patch(doc, []domain.ParameterUpdate{
		{NodeID: "52", Section: "inputs", Field: "model", Value: ref},
	})
	ref[0] = "changed"

	assert.Equal(t, []any{"4", 1}, inputsOf(t, patched, "52")["model"])
}

func TestPatch_NilDocument(t *testing.T) {
	patched, report := graph.Patch(nil, []domain.ParameterUpdate{
		{NodeID: "1", Section: "inputs", Field: "x", Value: int64(1)},
	})
	assert.Equal(t, 0, patched.Len())
	assert.Len(t, report.Skipped, 1)
}
