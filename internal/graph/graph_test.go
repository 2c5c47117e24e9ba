package graph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gorax/workflow-core/internal/value"
)

func node(id string, outputs, inputs []value.ParameterSpec) NodeSpec {
	return NodeSpec{ID: id, Type: "action:noop", Outputs: outputs, Inputs: inputs}
}

func param(name string, fanIn bool) value.ParameterSpec {
	return value.ParameterSpec{Name: name, Type: value.TypeJSON, FanIn: fanIn}
}

func TestValidate_RejectsDuplicateNodeID(t *testing.T) {
	w := &Workflow{Nodes: []NodeSpec{node("a", nil, nil), node("a", nil, nil)}}
	err := Validate(w)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate node id")
}

func TestValidate_RejectsSelfLoop(t *testing.T) {
	w := &Workflow{
		Nodes: []NodeSpec{node("a", []value.ParameterSpec{param("out", false)}, []value.ParameterSpec{param("in", false)})},
		Edges: []Edge{{Source: "a", SourceOutput: "out", Target: "a", TargetInput: "in"}},
	}
	err := Validate(w)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "self-loop")
}

func TestValidate_RejectsUnknownEdgeEndpoints(t *testing.T) {
	w := &Workflow{
		Nodes: []NodeSpec{node("a", []value.ParameterSpec{param("out", false)}, nil)},
		Edges: []Edge{{Source: "a", SourceOutput: "out", Target: "missing", TargetInput: "in"}},
	}
	err := Validate(w)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown target node")
}

func TestValidate_RejectsUnknownParameterNames(t *testing.T) {
	w := &Workflow{
		Nodes: []NodeSpec{
			node("a", []value.ParameterSpec{param("out", false)}, nil),
			node("b", nil, []value.ParameterSpec{param("in", false)}),
		},
		Edges: []Edge{{Source: "a", SourceOutput: "nope", Target: "b", TargetInput: "in"}},
	}
	err := Validate(w)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown output")
}

func TestValidate_RejectsMultipleEdgesOnNonFanInInput(t *testing.T) {
	w := &Workflow{
		Nodes: []NodeSpec{
			node("a", []value.ParameterSpec{param("out", false)}, nil),
			node("b", []value.ParameterSpec{param("out", false)}, nil),
			node("c", nil, []value.ParameterSpec{param("in", false)}),
		},
		Edges: []Edge{
			{Source: "a", SourceOutput: "out", Target: "c", TargetInput: "in"},
			{Source: "b", SourceOutput: "out", Target: "c", TargetInput: "in"},
		},
	}
	err := Validate(w)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "non-fan-in")
}

func TestValidate_AllowsMultipleEdgesOnFanInInput(t *testing.T) {
	w := &Workflow{
		Nodes: []NodeSpec{
			node("a", []value.ParameterSpec{param("out", false)}, nil),
			node("b", []value.ParameterSpec{param("out", false)}, nil),
			node("c", nil, []value.ParameterSpec{param("in", true)}),
		},
		Edges: []Edge{
			{Source: "a", SourceOutput: "out", Target: "c", TargetInput: "in"},
			{Source: "b", SourceOutput: "out", Target: "c", TargetInput: "in"},
		},
	}
	assert.NoError(t, Validate(w))
}

func TestValidate_CronTriggerRequiresValidExpression(t *testing.T) {
	w := &Workflow{Trigger: TriggerCron}
	err := Validate(w)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "requires a cron expression")

	w.CronExpr = "not a cron expr"
	err = Validate(w)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid cron expression")

	w.CronExpr = "*/5 * * * *"
	assert.NoError(t, Validate(w))
}

func TestPlan_LinearChain(t *testing.T) {
	w := &Workflow{
		Nodes: []NodeSpec{
			node("a", []value.ParameterSpec{param("out", false)}, nil),
			node("b", []value.ParameterSpec{param("out", false)}, []value.ParameterSpec{param("in", false)}),
			node("c", nil, []value.ParameterSpec{param("in", false)}),
		},
		Edges: []Edge{
			{Source: "a", SourceOutput: "out", Target: "b", TargetInput: "in"},
			{Source: "b", SourceOutput: "out", Target: "c", TargetInput: "in"},
		},
	}

	levels, flat, err := Plan(w)
	require.NoError(t, err)
	require.Len(t, levels, 3)
	assert.Equal(t, ExecutionLevel{"a"}, levels[0])
	assert.Equal(t, ExecutionLevel{"b"}, levels[1])
	assert.Equal(t, ExecutionLevel{"c"}, levels[2])
	assert.Equal(t, []string{"a", "b", "c"}, flat)
}

func TestPlan_FanOutSameLevel(t *testing.T) {
	w := &Workflow{
		Nodes: []NodeSpec{
			node("a", []value.ParameterSpec{param("out", false)}, nil),
			node("b", nil, []value.ParameterSpec{param("in", false)}),
			node("c", nil, []value.ParameterSpec{param("in", false)}),
		},
		Edges: []Edge{
			{Source: "a", SourceOutput: "out", Target: "b", TargetInput: "in"},
			{Source: "a", SourceOutput: "out", Target: "c", TargetInput: "in"},
		},
	}

	levels, _, err := Plan(w)
	require.NoError(t, err)
	require.Len(t, levels, 2)
	assert.Equal(t, ExecutionLevel{"a"}, levels[0])
	assert.ElementsMatch(t, []string{"b", "c"}, levels[1])
}

func TestPlan_DeterministicTieBreakByDeclarationOrder(t *testing.T) {
	w := &Workflow{
		Nodes: []NodeSpec{node("z", nil, nil), node("a", nil, nil), node("m", nil, nil)},
	}

	levels, flat, err := Plan(w)
	require.NoError(t, err)
	require.Len(t, levels, 1)
	assert.Equal(t, []string{"z", "a", "m"}, flat)
}

func TestPlan_DetectsCycle(t *testing.T) {
	w := &Workflow{
		Nodes: []NodeSpec{
			node("a", []value.ParameterSpec{param("out", false)}, []value.ParameterSpec{param("in", false)}),
			node("b", []value.ParameterSpec{param("out", false)}, []value.ParameterSpec{param("in", false)}),
		},
		Edges: []Edge{
			{Source: "a", SourceOutput: "out", Target: "b", TargetInput: "in"},
			{Source: "b", SourceOutput: "out", Target: "a", TargetInput: "in"},
		},
	}

	_, _, err := Plan(w)
	require.Error(t, err)
	var cyclic *CyclicGraphError
	require.ErrorAs(t, err, &cyclic)
	assert.ElementsMatch(t, []string{"a", "b"}, cyclic.Remaining)
}

func TestInboundEdges(t *testing.T) {
	w := &Workflow{
		Edges: []Edge{
			{Source: "a", Target: "c"},
			{Source: "b", Target: "c"},
			{Source: "a", Target: "b"},
		},
	}

	in := InboundEdges(w, "c")
	require.Len(t, in, 2)
	assert.Equal(t, "a", in[0].Source)
	assert.Equal(t, "b", in[1].Source)

	assert.Empty(t, InboundEdges(w, "a"))
}
