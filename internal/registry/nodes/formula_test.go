package nodes

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gorax/workflow-core/internal/registry"
	"github.com/gorax/workflow-core/internal/value"
)

func buildFormula(t *testing.T, expression string) registry.Executable {
	t.Helper()
	ctor := NewFormulaNode(nil)
	exec, err := ctor(map[string]any{"expression": expression})
	require.NoError(t, err)
	return exec
}

func TestFormulaNode_EvaluatesAgainstInputs(t *testing.T) {
	exec := buildFormula(t, "a + b")
	res, err := exec.Execute(&registry.NodeContext{
			Context: context.Background(),
			Inputs: value.NodeRuntimeValues{
				"a": value.Number(2),
				"b": value.Number(3),
			},
	})
	require.NoError(t, err)
	require.True(t, res.Completed)
	v, ok := res.Outputs.Get("result")
	require.True(t, ok)
	assert.Equal(t, 5.0, v.Raw)
}

func TestFormulaNode_ReusesCompiledProgramFromCache(t *testing.T) {
	cache := NewFormulaCache(8)
	ctor := NewFormulaNode(cache)

	exec1, err := ctor(map[string]any{"expression": "x * 2"})
	require.NoError(t, err)
	exec2, err := ctor(map[string]any{"expression": "x * 2"})
	require.NoError(t, err)

	for _, exec := range []registry.Executable{exec1, exec2} {
		res, err := exec.Execute(&registry.NodeContext{
				Context: context.Background(),
				Inputs: value.NodeRuntimeValues{"x": value.Number(4)},
		})
		require.NoError(t, err)
		v, _ := res.Outputs.Get("result")
		assert.Equal(t, 8.0, v.Raw)
	}
}

func TestFormulaNode_CompileErrorReportedAsNodeFailure(t *testing.T) {
	exec := buildFormula(t, "not valid expr (")
	res, err := exec.Execute(&registry.NodeContext{Context: context.Background()})
	require.NoError(t, err, "a compile failure is a Result.Error, not a Go error")
	assert.False(t, res.Completed)
	assert.NotEmpty(t, res.Error)
}

func TestNewFormulaNode_RequiresExpression(t *testing.T) {
	ctor := NewFormulaNode(nil)
	_, err := ctor(map[string]any{})
	require.Error(t, err)
}

func TestFormulaNode_HandlesSequenceInput(t *testing.T) {
	exec := buildFormula(t, "len(items)")
	res, err := exec.Execute(&registry.NodeContext{
			Context: context.Background(),
			Inputs: value.NodeRuntimeValues{
				"items": value.Sequence{Values: []value.Value{value.Number(1), value.Number(2), value.Number(3)}},
			},
	})
	require.NoError(t, err)
	v, _ := res.Outputs.Get("result")
	assert.Equal(t, 3, v.Raw)
}
