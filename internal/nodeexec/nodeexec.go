// Package nodeexec implements executeOne, the single-node
// invocation: input gathering with skip classification, the credit
// gate, and dispatch through the step runner into a registered node
// implementation, wrapped with error classification, circuit breaker,
// and retry strategy. It never mutates ExecutionState; it only
// returns a execstate.Result for the scheduler to apply.
package nodeexec

import (
	"context"
	"errors"
	"log/slog"
	"strconv"

	"github.com/gorax/workflow-core/internal/execstate"
	"github.com/gorax/workflow-core/internal/graph"
	"github.com/gorax/workflow-core/internal/objectstore"
	"github.com/gorax/workflow-core/internal/registry"
	"github.com/gorax/workflow-core/internal/skip"
	"github.com/gorax/workflow-core/internal/step"
	"github.com/gorax/workflow-core/internal/value"
)

// Deps bundles the per-execution collaborators executeOne needs beyond
// the workflow graph and a state snapshot.
type Deps struct {
	Registry *registry.Registry
	Steps step.Runner
	Breakers *CircuitBreakerRegistry
	ObjectStore objectstore.Store
	GetSecret func(name string) (string, bool)
	GetIntegration func(id string) (registry.Integration, bool)
	OnProgress func(nodeID string, fraction float64)
	Logger *slog.Logger
	Mode string // "dev" | "prod"
	Env map[string]any
	SubscriptionActive bool
}

// ExecuteOne runs one node to completion (or skip, or error) against a
// read-only state snapshot: look up the node type, gather inputs,
// check the credit gate, then invoke through the step runner wrapped
// in circuit breaker and retry.
func ExecuteOne(ctx context.Context, w *graph.Workflow, s *execstate.State, nodeID string, deps *Deps) execstate.Result {
	node, ok := findNode(w, nodeID)
	if !ok {
		return execstate.Result{NodeID: nodeID, Kind: execstate.ResultErrored, Error: "Node not found"}
	}

	meta, err := deps.Registry.GetNodeType(node.Type)
	if err != nil {
		return execstate.Result{NodeID: nodeID, Kind: execstate.ResultErrored, Error: "Node type not implemented"}
	}

	inputs, reason, blockedBy, gathered := gatherInputs(w, s, node)
	if !gathered {
		return execstate.Result{NodeID: nodeID, Kind: execstate.ResultSkipped, SkipReason: reason, SkipBlockedBy: blockedBy}
	}

	if meta.SubscriptionOnly && !deps.SubscriptionActive {
		return execstate.Result{NodeID: nodeID, Kind: execstate.ResultErrored, Inputs: inputs, Error: "Subscription required"}
	}

	exec, err := deps.Registry.CreateExecutable(node.Type, node.Config)
	if err != nil {
		return execstate.Result{NodeID: nodeID, Kind: execstate.ResultErrored, Inputs: inputs, Error: "Node type not implemented: " + err.Error()}
	}
	if exec == nil {
		return execstate.Result{NodeID: nodeID, Kind: execstate.ResultErrored, Inputs: inputs, Error: "Node type not implemented"}
	}

	breaker := deps.Breakers.GetOrCreate(node.Type)
	retryCfg := RetryConfigFromPolicy(node.RetryPolicy)
	retrier := NewRetryStrategy(retryCfg, deps.Logger)

	var result registry.Result
	retryErr := retrier.Execute(ctx, func(ctx context.Context, a int) error {
			stepName := step.NodeStepName(nodeID)
			if a > 0 {
				stepName = stepName + " attempt " + strconv.Itoa(a)
			}

			raw, err := deps.Steps.Invoke(stepName, func() (any, error) {
					return breaker.ExecuteWithResult(ctx, func(ctx context.Context) (any, error) {
							nctx := &registry.NodeContext{
								Context: ctx,
								NodeID: nodeID,
								WorkflowID: w.ID,
								ExecutionID: executionIDFromContext(ctx),
								OrganizationID: organizationIDFromContext(ctx),
								Mode: deps.Mode,
								Inputs: inputs,
								Env: deps.Env,
								ObjectStore: deps.ObjectStore,
								GetSecret: deps.GetSecret,
								GetIntegration: deps.GetIntegration,
								OnProgress: func(fraction float64) {
									if deps.OnProgress != nil {
										deps.OnProgress(nodeID, fraction)
									}
								},
							}
							res, err := exec.Execute(nctx)
							if err != nil {
								return res, WrapError(err, nodeID, node.Type, a)
							}
							if !res.Completed {
								return res, NewExecutionError(nodeResultError{msg: res.Error}, nodeID, node.Type, a)
							}
							return res, nil
					})
			})
			if res, ok := raw.(registry.Result); ok {
				result = res
			}
			return err
	})

	if retryErr != nil {
		var execErr *ExecutionError
		msg := retryErr.Error()
		if result.Error != "" {
			msg = result.Error
		} else if errors.As(retryErr, &execErr) {
			msg = execErr.Error()
		}
		return execstate.Result{NodeID: nodeID, Kind: execstate.ResultErrored, Inputs: inputs, Error: msg, ErroredUsage: result.Usage}
	}

	return execstate.Result{NodeID: nodeID, Kind: execstate.ResultCompleted, Inputs: inputs, Outputs: result.Outputs, Usage: result.Usage}
}

// gatherInputs implements step 3: literal defaults, then
// inbound edges (fan-in builds a Sequence), then required-input
// skip classification via internal/skip.
func gatherInputs(w *graph.Workflow, s *execstate.State, node *graph.NodeSpec) (value.NodeRuntimeValues, string, []string, bool) {
	inputs := make(value.NodeRuntimeValues, len(node.Inputs))
	for name, v := range node.Literals {
		inputs[name] = v
	}

	fanIn := make(map[string][]value.Value)
	for _, e := range graph.InboundEdges(w, node.ID) {
		outputs, ok := s.Outputs(e.Source)
		if !ok {
			continue
		}
		v, has := outputs.Get(e.SourceOutput)
		if !has {
			continue
		}
		if isFanIn(node, e.TargetInput) {
			fanIn[e.TargetInput] = append(fanIn[e.TargetInput], v)
		} else {
			inputs[e.TargetInput] = v
		}
	}
	for name, vs := range fanIn {
		inputs[name] = value.Sequence{Values: vs}
	}

	for _, spec := range node.Inputs {
		if !spec.Required {
			continue
		}
		if _, bound := inputs[spec.Name]; bound {
			continue
		}
		if spec.Default != nil {
			inputs[spec.Name] = *spec.Default
			continue
		}
		reason, blockedBy := skip.InferSkipReason(w, s, node.ID)
		return nil, reason, blockedBy, false
	}

	return inputs, "", nil, true
}

func isFanIn(node *graph.NodeSpec, inputName string) bool {
	for _, p := range node.Inputs {
		if p.Name == inputName {
			return p.FanIn
		}
	}
	return false
}

func findNode(w *graph.Workflow, id string) (*graph.NodeSpec, bool) {
	for i := range w.Nodes {
		if w.Nodes[i].ID == id {
			return &w.Nodes[i], true
		}
	}
	return nil, false
}

type nodeResultError struct{ msg string }

func (e nodeResultError) Error() string { return e.msg }

type executionIDKey struct{}
type organizationIDKey struct{}

// WithExecutionContext attaches execution/organization ids to ctx so
// ExecuteOne can populate NodeContext without threading extra
// parameters through the step/breaker closures.
func WithExecutionContext(ctx context.Context, executionID, organizationID string) context.Context {
	ctx = context.WithValue(ctx, executionIDKey{}, executionID)
	ctx = context.WithValue(ctx, organizationIDKey{}, organizationID)
	return ctx
}

func executionIDFromContext(ctx context.Context) string {
	v, _ := ctx.Value(executionIDKey{}).(string)
	return v
}

func organizationIDFromContext(ctx context.Context) string {
	v, _ := ctx.Value(organizationIDKey{}).(string)
	return v
}

