package nodes

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gorax/workflow-core/internal/registry"
	"github.com/gorax/workflow-core/internal/value"
)

func TestTransformNode_RemapsInputsToOutputs(t *testing.T) {
	ctor := NewTransformNode()
	exec, err := ctor(map[string]any{"mapping": map[string]string{"result": "data"}})
	require.NoError(t, err)

	res, err := exec.Execute(&registry.NodeContext{
			Inputs: value.NodeRuntimeValues{"data": value.String("hi")},
	})
	require.NoError(t, err)
	require.True(t, res.Completed)

	v, ok := res.Outputs.Get("result")
	require.True(t, ok)
	assert.Equal(t, "hi", v.Str)
}

func TestTransformNode_MissingInputOmittedFromOutputs(t *testing.T) {
	ctor := NewTransformNode()
	exec, err := ctor(map[string]any{"mapping": map[string]string{"result": "missing"}})
	require.NoError(t, err)

	res, err := exec.Execute(&registry.NodeContext{Inputs: value.NodeRuntimeValues{}})
	require.NoError(t, err)
	_, ok := res.Outputs.Get("result")
	assert.False(t, ok)
}

func TestTransformMeta(t *testing.T) {
	assert.Equal(t, "action:transform", TransformMeta().ID)
}
