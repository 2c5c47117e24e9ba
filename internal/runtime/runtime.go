// Package runtime is the façade: validates a RuntimeParams bundle,
// wires the validator/scheduler/store/broadcaster stack, and returns
// the persisted execution record. It plays the same role any service
// entry point does — load dependencies, delegate to the executor,
// persist the result — narrowed to the fields this core actually owns.
package runtime

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/gorax/workflow-core/internal/broadcast"
	"github.com/gorax/workflow-core/internal/credit"
	"github.com/gorax/workflow-core/internal/execstore"
	"github.com/gorax/workflow-core/internal/graph"
	"github.com/gorax/workflow-core/internal/nodeexec"
	"github.com/gorax/workflow-core/internal/objectstore"
	"github.com/gorax/workflow-core/internal/registry"
	"github.com/gorax/workflow-core/internal/scheduler"
	"github.com/gorax/workflow-core/internal/step"
	"github.com/gorax/workflow-core/internal/tracing"
)

var validate = validator.New()

// RuntimeParams is the entry bundle, including the fields layered on
// top of the core execution contract (TracingEnabled, deployment and
// subscription metadata).
type RuntimeParams struct {
	Workflow graph.Workflow `validate:"required"`
	UserID string `validate:"required"`
	OrganizationID string `validate:"required"`
	ComputeCredits uint
	Subscription credit.SubscriptionStatus
	OverageLimit *uint
	DeploymentID string
	MonitorProgress bool
	DevelopmentMode bool
	TracingEnabled bool
	// MonitorTransport selects which of Host's broadcasters carries
	// progress snapshots when MonitorProgress is set: "websocket"
	// (default), "kafka", or "none".
	MonitorTransport string
}

// Host bundles the long-lived collaborators a process constructs once
// and reuses across executions — the registry, the secrets/integration
// provider, the object store, the credit manager, the execution store,
// and (when MonitorProgress is requested) a live broadcaster. Durable
// selects whether steps replay via step.Durable or run direct.
type Host struct {
	Registry *registry.Registry
	ObjectStore objectstore.Store
	CreditManager *credit.Manager
	Store execstore.Store
	// Broadcaster is the websocket transport, selected by
	// RuntimeParams.MonitorTransport == "websocket" or "" (the default).
	Broadcaster broadcast.Broadcaster
	// KafkaBroadcaster is the alternate transport, selected by
	// RuntimeParams.MonitorTransport == "kafka". May be nil if a
	// deployment never wires one; selecting "kafka" then falls back to
	// a noop broadcaster.
	KafkaBroadcaster broadcast.Broadcaster
	GetSecret func(name string) (string, bool)
	GetIntegration func(id string) (registry.Integration, bool)
	Durable *step.Durable // nil means steps run direct, no replay
	Logger *slog.Logger
}

// broadcasterFor selects the transport RuntimeParams.MonitorTransport
// names, falling back to a noop broadcaster when MonitorProgress is
// false or the requested transport isn't wired.
func broadcasterFor(host *Host, params RuntimeParams) broadcast.Broadcaster {
	if !params.MonitorProgress {
		return broadcast.NoopBroadcaster{}
	}
	switch params.MonitorTransport {
	case "kafka":
		if host.KafkaBroadcaster != nil {
			return host.KafkaBroadcaster
		}
	case "none":
		return broadcast.NoopBroadcaster{}
	default:
		if host.Broadcaster != nil {
			return host.Broadcaster
		}
	}
	return broadcast.NoopBroadcaster{}
}

// Run validates params, generates an execution id, and drives the
// scheduler to completion.
func Run(ctx context.Context, host *Host, params RuntimeParams) (execstore.WorkflowExecution, error) {
	if err := validate.Struct(params); err != nil {
		return execstore.WorkflowExecution{}, fmt.Errorf("runtime: invalid params: %w", err)
	}
	if params.Workflow.ID == "" {
		return execstore.WorkflowExecution{}, fmt.Errorf("runtime: invalid params: workflow id is required")
	}

	logger := host.Logger
	if logger == nil {
		logger = slog.Default()
	}

	executionID := uuid.NewString()

	bcast := broadcasterFor(host, params)

	mode := "prod"
	if params.DevelopmentMode {
		mode = "dev"
	}

	var steps step.Runner = step.NewDirect()
	if host.Durable != nil {
		steps = host.Durable
	}

	deps := &nodeexec.Deps{
		Registry: host.Registry,
		Steps: steps,
		Breakers: nodeexec.NewCircuitBreakerRegistry(nodeexec.DefaultCircuitBreakerConfig(), logger),
		ObjectStore: host.ObjectStore,
		GetSecret: host.GetSecret,
		GetIntegration: host.GetIntegration,
		Logger: logger,
		Mode: mode,
		Env: map[string]any{},
		SubscriptionActive: params.Subscription == credit.SubscriptionActive,
	}

	run := func(ctx context.Context) (execstore.WorkflowExecution, error) {
		return scheduler.Run(ctx, scheduler.RuntimeParams{
				Workflow: params.Workflow,
				UserID: params.UserID,
				OrganizationID: params.OrganizationID,
				ComputeCredits: params.ComputeCredits,
				Subscription: params.Subscription,
				OverageLimit: params.OverageLimit,
				DeploymentID: params.DeploymentID,
				MonitorProgress: params.MonitorProgress,
				DevelopmentMode: params.DevelopmentMode,
			}, executionID, host.CreditManager, host.Store, bcast, deps)
	}

	if !params.TracingEnabled {
		return run(ctx)
	}

	var rec execstore.WorkflowExecution
	err := tracing.TraceWorkflowExecution(ctx, params.OrganizationID, params.Workflow.ID, executionID, func(tctx context.Context) error {
			var runErr error
			rec, runErr = run(tctx)
			return runErr
	})
	return rec, err
}
