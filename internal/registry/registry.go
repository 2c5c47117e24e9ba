// Package registry implements the node registry contract:
// getNodeType/createExecutable/list. It is an injected, per-process
// constructed dependency built from an explicit registration list, not
// a singleton, so a Registry is safe to construct fresh per test or per
// worker process and to share read-only across concurrent executions.
package registry

import (
	"context"
	"fmt"

	"github.com/gorax/workflow-core/internal/objectstore"
	"github.com/gorax/workflow-core/internal/value"
)

// NodeTypeMeta describes one node type's contract metadata: id, inputs,
// outputs, usage, tags, documentation, and flags.
type NodeTypeMeta struct {
	ID               string
	Inputs           []value.ParameterSpec
	Outputs          []value.ParameterSpec
	Usage            uint
	Tags             []string
	Documentation    string
	SubscriptionOnly bool
}

// NodeContext is exposed to every node implementation's Execute call.
type NodeContext struct {
	Context        context.Context
	NodeID         string
	WorkflowID     string
	OrganizationID string
	ExecutionID    string
	Mode           string // "dev" | "prod"
	Inputs         value.NodeRuntimeValues
	Env            map[string]any
	ObjectStore    objectstore.Store
	GetSecret      func(name string) (string, bool)
	GetIntegration func(id string) (Integration, bool)
	OnProgress     func(fraction float64)
}

// Integration is the shape returned by GetIntegration.
type Integration struct {
	ID       string
	Name     string
	Provider string
	Token    string
	Metadata map[string]any
}

// Result is what a node implementation returns from Execute. An
// explicit result variant instead of error-as-control-flow, since a
// node failing is an expected outcome the executor needs to inspect,
// not a Go error.
type Result struct {
	Completed bool
	Outputs   value.NodeRuntimeValues
	Error     string
	Usage     uint
}

func Completed(outputs value.NodeRuntimeValues, usage uint) Result {
	return Result{Completed: true, Outputs: outputs, Usage: usage}
}

func Errored(message string, usage uint) Result {
	return Result{Completed: false, Error: message, Usage: usage}
}

// Executable is one constructed, ready-to-run node implementation.
type Executable interface {
	Execute(nctx *NodeContext) (Result, error)
}

// Constructor builds an Executable for a given node instance's literal
// config. NodeSpec-level config (beyond inputs/outputs, which the
// executor gathers separately) is opaque to the registry; each node type
// decides how to interpret it.
type Constructor func(config map[string]any) (Executable, error)

type entry struct {
	meta        NodeTypeMeta
	constructor Constructor
}

// Registry maps a node-type id to its metadata and constructor. It is
// built once via New with an explicit registration list; there is no
// process-wide mutable singleton.
type Registry struct {
	entries map[string]entry
}

// ErrUnknownType is returned by GetNodeType for an unregistered id.
type ErrUnknownType struct{ Type string }

func (e *ErrUnknownType) Error() string { return "unknown node type: " + e.Type }

// Registration is one node type's metadata plus constructor, passed to
// New.
type Registration struct {
	Meta        NodeTypeMeta
	Constructor Constructor
}

// New builds a Registry from an explicit list of registrations.
// Construction is the only mutation; the returned Registry is read-only
// thereafter, safe to share across concurrent executions.
func New(registrations []Registration) (*Registry, error) {
	entries := make(map[string]entry, len(registrations))
	for _, reg := range registrations {
		if reg.Meta.ID == "" {
			return nil, fmt.Errorf("registry: registration missing node type id")
		}
		if _, dup := entries[reg.Meta.ID]; dup {
			return nil, fmt.Errorf("registry: duplicate node type id %q", reg.Meta.ID)
		}
		entries[reg.Meta.ID] = entry{meta: reg.Meta, constructor: reg.Constructor}
	}
	return &Registry{entries: entries}, nil
}

// GetNodeType returns metadata for id, or ErrUnknownType.
func (r *Registry) GetNodeType(id string) (NodeTypeMeta, error) {
	e, ok := r.entries[id]
	if !ok {
		return NodeTypeMeta{}, &ErrUnknownType{Type: id}
	}
	return e.meta, nil
}

// CreateExecutable constructs an Executable for the given node type and
// literal config. Returns (nil, nil) for an unknown type; callers
// (internal/nodeexec) decide how to classify a nil result.
func (r *Registry) CreateExecutable(nodeType string, config map[string]any) (Executable, error) {
	e, ok := r.entries[nodeType]
	if !ok {
		return nil, nil
	}
	return e.constructor(config)
}

// List returns every registered node type's metadata, for discovery.
func (r *Registry) List() []NodeTypeMeta {
	out := make([]NodeTypeMeta, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e.meta)
	}
	return out
}
