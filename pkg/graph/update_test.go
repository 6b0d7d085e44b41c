package graph_test

import (
	"testing"

	"github.com/aretw0/comfyctl/pkg/domain"
	"github.com/aretw0/comfyctl/pkg/graph"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseUpdate_Dotted(t *testing.T) {
	u, err := graph.ParseUpdate("52.inputs.steps=12")
	require.NoError(t, err)
	assert.Equal(t, domain.ParameterUpdate{NodeID: "52", Section: "inputs", Field: "steps", Value: int64(12)}, u)
	assert.Equal(t, "52.inputs.steps", u.Path())
}

func TestParseUpdate_FieldMayContainDots(t *testing.T) {
	u, err := graph.ParseUpdate("7.inputs.lora.name=detail.safetensors")
	require.NoError(t, err)
	assert.Equal(t, "lora.name", u.Field)
	assert.Equal(t, "detail.safetensors", u.Value)
}

func TestParseUpdate_Legacy(t *testing.T) {
	u, err := graph.ParseUpdate("node_49_inputs_positive_prompt=A woman smiling")
	require.NoError(t, err)
	assert.Equal(t, "49", u.NodeID)
	assert.Equal(t, "inputs", u.Section)
	assert.Equal(t, "positive_prompt", u.Field)
	assert.Equal(t, "A woman smiling", u.Value)
}

func TestParseUpdate_ValueKeepsEquals(t *testing.T) {
	u, err := graph.ParseUpdate("3.inputs.text=a=b")
	require.NoError(t, err)
	assert.Equal(t, "a=b", u.Value)
}

func TestParseUpdate_Invalid(t *testing.T) {
	for _, expr := range []string{
		"noequals",
		"steps=1",
		"52.inputs=1",
		"52..steps=1",
		".inputs.steps=1",
		"node_49_inputs=1",
		"node__inputs_x=1",
	} {
		t.Run(expr, func(t *testing.T) {
			_, err := graph.ParseUpdate(expr)
			assert.ErrorIs(t, err, domain.ErrInvalidUpdate)
		})
	}
}

func TestParseUpdates(t *testing.T) {
	updates, err := graph.ParseUpdates([]string{"52.inputs.cfg=6.5", "54.inputs.save_output=false"})
	require.NoError(t, err)
	require.Len(t, updates, 2)
	assert.Equal(t, 6.5, updates[0].Value)
	assert.Equal(t, false, updates[1].Value)

	_, err = graph.ParseUpdates([]string{"52.inputs.cfg=6.5", "bad"})
	assert.ErrorIs(t, err, domain.ErrInvalidUpdate)
}
