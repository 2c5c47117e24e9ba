// Package graph defines the Workflow/NodeSpec/Edge data model and the
// validator that assigns topological levels: Kahn's algorithm over
// node in-degree, grouping same-round zero-in-degree nodes into one
// ExecutionLevel so the scheduler can dispatch them concurrently.
package graph

import (
	"fmt"

	"github.com/gorax/workflow-core/internal/value"
	"github.com/robfig/cron/v3"
)

// Trigger identifies how a workflow is started. The core treats every
// trigger as opaque except cron, whose syntax it validates at plan time.
type Trigger string

const (
	TriggerManual Trigger = "manual"
	TriggerHTTP Trigger = "http"
	TriggerEmail Trigger = "email"
	TriggerCron Trigger = "cron"
)

// Workflow is the immutable execution input.
type Workflow struct {
	ID string
	Handle string
	Name string
	Trigger Trigger
	// CronExpr is only meaningful when Trigger == TriggerCron.
	CronExpr string
	Nodes []NodeSpec
	Edges []Edge
}

// NodeSpec is one node in the graph.
type NodeSpec struct {
	ID string
	Type string
	Inputs []value.ParameterSpec
	Outputs []value.ParameterSpec
	// Literals holds declared literal values for inputs, keyed by
	// parameter name; these seed gathered inputs before edges are applied.
	Literals map[string]value.Value
	// Config holds node-type-specific settings opaque to the executor,
	// passed straight through to registry.Constructor — e.g. an HTTP
	// node's method and headers. A decoded map rather than
	// json.RawMessage since this core never serializes NodeSpec itself.
	Config map[string]any
	// RetryPolicy is optional per-node retry configuration consumed by
	// the step runner / node executor (internal/nodeexec).
	RetryPolicy *RetryPolicy
	// Usage is the declared compute cost of running this node, used for
	// the scheduler's credit pre-check.
	Usage uint
	// SubscriptionOnly flags a node implementation that requires an
	// active subscription regardless of credit balance.
	SubscriptionOnly bool
}

// RetryPolicy is an optional per-node retry annotation consumed by
// the node executor's backoff loop.
type RetryPolicy struct {
	MaxAttempts int
	InitialWait int // milliseconds
	MaxWait int // milliseconds
	Multiplier float64
	Jitter bool
}

// Edge is a directed dependency: one named output of Source feeds one
// named input of Target.
type Edge struct {
	Source string
	SourceOutput string
	Target string
	TargetInput string
}

// ExecutionLevel is a maximal set of node ids with no intra-level
// dependency; all may run concurrently.
type ExecutionLevel []string

// CyclicGraphError is returned by Plan when the graph cannot be
// topologically sorted.
type CyclicGraphError struct {
	Remaining []string
}

func (e *CyclicGraphError) Error() string {
	return fmt.Sprintf("workflow contains cycles: %d node(s) never reached in-degree 0: %v", len(e.Remaining), e.Remaining)
}

// ValidationError reports a fatal, pre-execution well-formedness problem.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string { return e.Msg }

func findNode(w *Workflow, id string) (*NodeSpec, bool) {
	for i := range w.Nodes {
		if w.Nodes[i].ID == id {
			return &w.Nodes[i], true
		}
	}
	return nil, false
}

func findParam(params []value.ParameterSpec, name string) (*value.ParameterSpec, bool) {
	for i := range params {
		if params[i].Name == name {
			return &params[i], true
		}
	}
	return nil, false
}

// Validate checks well-formedness independent of level assignment:
// dangling edges, unknown parameter names, duplicate (target, targetInput)
// pairs on non-fan-in inputs, and cron trigger syntax.
func Validate(w *Workflow) error {
	nodeIDs := make(map[string]bool, len(w.Nodes))
	for _, n := range w.Nodes {
		if nodeIDs[n.ID] {
			return &ValidationError{Msg: fmt.Sprintf("duplicate node id %q", n.ID)}
		}
		nodeIDs[n.ID] = true
	}

	targetInputCount := make(map[string]int)
	for _, e := range w.Edges {
		if e.Source == e.Target {
			return &ValidationError{Msg: fmt.Sprintf("edge self-loop on node %q", e.Source)}
		}
		src, ok := findNode(w, e.Source)
		if !ok {
			return &ValidationError{Msg: fmt.Sprintf("edge references unknown source node %q", e.Source)}
		}
		tgt, ok := findNode(w, e.Target)
		if !ok {
			return &ValidationError{Msg: fmt.Sprintf("edge references unknown target node %q", e.Target)}
		}
		if _, ok := findParam(src.Outputs, e.SourceOutput); !ok {
			return &ValidationError{Msg: fmt.Sprintf("edge references unknown output %q on node %q", e.SourceOutput, e.Source)}
		}
		targetParam, ok := findParam(tgt.Inputs, e.TargetInput)
		if !ok {
			return &ValidationError{Msg: fmt.Sprintf("edge references unknown input %q on node %q", e.TargetInput, e.Target)}
		}
		key := e.Target + "\x00" + e.TargetInput
		targetInputCount[key]++
		if targetInputCount[key] > 1 && !targetParam.FanIn {
			return &ValidationError{Msg: fmt.Sprintf("multiple edges target non-fan-in input %q on node %q", e.TargetInput, e.Target)}
		}
	}

	if w.Trigger == TriggerCron {
		if w.CronExpr == "" {
			return &ValidationError{Msg: "cron trigger requires a cron expression"}
		}
		if _, err := cron.ParseStandard(w.CronExpr); err != nil {
			return &ValidationError{Msg: fmt.Sprintf("invalid cron expression %q: %v", w.CronExpr, err)}
		}
	}

	return nil
}

// Plan computes the layered topological order: a sequence of
// ExecutionLevels whose concatenation is a valid toposort, plus the flat
// order. Determinism: ties within a level are broken by the node's
// position in workflow.nodes.
func Plan(w *Workflow) ([]ExecutionLevel, []string, error) {
	if err := Validate(w); err != nil {
		return nil, nil, err
	}

	inDegree := make(map[string]int, len(w.Nodes))
	order := make(map[string]int, len(w.Nodes))
	for i, n := range w.Nodes {
		inDegree[n.ID] = 0
		order[n.ID] = i
	}
	downstream := make(map[string][]string)
	for _, e := range w.Edges {
		inDegree[e.Target]++
		downstream[e.Source] = append(downstream[e.Source], e.Target)
	}

	var levels []ExecutionLevel
	var flat []string
	remaining := make(map[string]bool, len(w.Nodes))
	for _, n := range w.Nodes {
		remaining[n.ID] = true
	}

	for len(remaining) > 0 {
		var level []string
		for _, n := range w.Nodes {
			if remaining[n.ID] && inDegree[n.ID] == 0 {
				level = append(level, n.ID)
			}
		}
		if len(level) == 0 {
			var stuck []string
			for id := range remaining {
				stuck = append(stuck, id)
			}
			return nil, nil, &CyclicGraphError{Remaining: stuck}
		}
		for _, id := range level {
			delete(remaining, id)
			for _, next := range downstream[id] {
				inDegree[next]--
			}
		}
		levels = append(levels, ExecutionLevel(level))
		flat = append(flat, level...)
	}

	return levels, flat, nil
}

// InboundEdges returns every edge whose Target is nodeID, in declaration
// order — used by the skip classifier and the input gatherer.
func InboundEdges(w *Workflow, nodeID string) []Edge {
	var in []Edge
	for _, e := range w.Edges {
		if e.Target == nodeID {
			in = append(in, e)
		}
	}
	return in
}
