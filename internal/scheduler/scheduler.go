// Package scheduler implements Run: plan levels, pre-check credits,
// dispatch each level's nodes concurrently against a read-only state
// snapshot, apply results in a single-threaded barrier, broadcast, and
// persist the final record. Node dispatch within a level starts one
// goroutine per node (no concurrency bound) and waits on a
// sync.WaitGroup barrier.
package scheduler

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/gorax/workflow-core/internal/broadcast"
	"github.com/gorax/workflow-core/internal/credit"
	"github.com/gorax/workflow-core/internal/execstate"
	"github.com/gorax/workflow-core/internal/execstore"
	"github.com/gorax/workflow-core/internal/graph"
	"github.com/gorax/workflow-core/internal/nodeexec"
	"github.com/gorax/workflow-core/internal/tracing"
)

// RuntimeParams is the scheduler's entry input
type RuntimeParams struct {
	Workflow graph.Workflow
	UserID string
	OrganizationID string
	ComputeCredits uint
	Subscription credit.SubscriptionStatus
	OverageLimit *uint
	DeploymentID string
	MonitorProgress bool
	DevelopmentMode bool
}

// Run executes params.Workflow to completion and returns the persisted
// record
func Run(ctx context.Context, params RuntimeParams, executionID string, creditMgr *credit.Manager, store execstore.Store, bcast broadcast.Broadcaster, execDeps *nodeexec.Deps) (execstore.WorkflowExecution, error) {
	levels, ordered, err := graph.Plan(&params.Workflow)
	if err != nil {
		return execstore.WorkflowExecution{}, err
	}

	var estimatedUsage uint
	for _, n := range params.Workflow.Nodes {
		estimatedUsage += n.Usage
	}

	ok, err := creditMgr.HasEnough(ctx, credit.CheckParams{
			OrganizationID: params.OrganizationID,
			ComputeCredits: params.ComputeCredits,
			EstimatedUsage: estimatedUsage,
			Subscription: params.Subscription,
			OverageLimit: params.OverageLimit,
			DevelopmentMode: params.DevelopmentMode,
	})
	if err != nil {
		return execstore.WorkflowExecution{}, fmt.Errorf("scheduler: credit pre-check: %w", err)
	}
	if !ok {
		return execstore.WorkflowExecution{}, &credit.InsufficientCreditsError{OrganizationID: params.OrganizationID, EstimatedUsage: estimatedUsage}
	}

	state := execstate.New()
	startedAt := time.Now()

	bcast.Broadcast(executionID, snapshotOf(executionID, params.Workflow.ID, ordered, state))

	execCtx := nodeexec.WithExecutionContext(ctx, executionID, params.OrganizationID)

	for _, level := range levels {
		results := dispatchLevel(execCtx, &params.Workflow, state, level, execDeps)

		// Apply in workflow-declared order for deterministic observed
		// mutation order
		sort.Slice(results, func(i, j int) bool {
				return workflowOrderIndex(&params.Workflow, results[i].NodeID) < workflowOrderIndex(&params.Workflow, results[j].NodeID)
		})
		for _, r := range results {
			if err := state.ApplyResult(r); err != nil {
				return execstore.WorkflowExecution{}, fmt.Errorf("scheduler: apply result: %w", err)
			}
		}

		bcast.Broadcast(executionID, snapshotOf(executionID, params.Workflow.ID, ordered, state))
	}

	status := execstate.StatusOf(ordered, state)
	endedAt := time.Now()

	if err := creditMgr.Record(ctx, params.OrganizationID, state.TotalUsage()); err != nil {
		return execstore.WorkflowExecution{}, fmt.Errorf("scheduler: record usage: %w", err)
	}

	record := buildRecord(ctx, executionID, params, ordered, state, status, startedAt, endedAt)
	saved, err := store.Save(ctx, record)
	if err != nil {
		return execstore.WorkflowExecution{}, fmt.Errorf("scheduler: persist execution: %w", err)
	}

	bcast.Broadcast(executionID, snapshotOf(executionID, params.Workflow.ID, ordered, state))

	return saved, nil
}

// dispatchLevel launches one concurrent task per node id in level and
// waits for all to finish; siblings run to completion even if one
// fails, mirroring partial-failure semantics.
func dispatchLevel(ctx context.Context, w *graph.Workflow, state *execstate.State, level graph.ExecutionLevel, deps *nodeexec.Deps) []execstate.Result {
	results := make([]execstate.Result, len(level))

	var wg sync.WaitGroup
	for i, nodeID := range level {
		wg.Add(1)
		go func(i int, nodeID string) {
			defer wg.Done()
			results[i] = nodeexec.ExecuteOne(ctx, w, state, nodeID, deps)
		}(i, nodeID)
	}
	wg.Wait()

	return results
}

func workflowOrderIndex(w *graph.Workflow, nodeID string) int {
	for i, n := range w.Nodes {
		if n.ID == nodeID {
			return i
		}
	}
	return len(w.Nodes)
}

func snapshotOf(executionID, workflowID string, ordered []string, state *execstate.State) broadcast.ExecutionSnapshot {
	nodes := make([]broadcast.NodeSnapshot, 0, len(ordered))
	for _, id := range ordered {
		nodes = append(nodes, nodeSnapshotOf(id, state))
	}
	return broadcast.ExecutionSnapshot{
		ExecutionID: executionID,
		WorkflowID: workflowID,
		Status: string(execstate.StatusOf(ordered, state)),
		Nodes: nodes,
	}
}

func nodeSnapshotOf(nodeID string, state *execstate.State) broadcast.NodeSnapshot {
	if outputs, ok := state.Outputs(nodeID); ok {
		keys := make([]string, 0, len(outputs))
		for k := range outputs {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		return broadcast.NodeSnapshot{NodeID: nodeID, Status: "completed", Usage: state.NodeUsage(nodeID), OutputKeys: keys}
	}
	if errMsg, ok := state.Error(nodeID); ok {
		return broadcast.NodeSnapshot{NodeID: nodeID, Status: "errored", Error: errMsg, Usage: state.NodeUsage(nodeID)}
	}
	if info, ok := state.SkipInfo(nodeID); ok {
		return broadcast.NodeSnapshot{NodeID: nodeID, Status: "skipped", SkipReason: info.Reason, BlockedBy: info.BlockedBy}
	}
	return broadcast.NodeSnapshot{NodeID: nodeID, Status: "executing"}
}

func buildRecord(ctx context.Context, executionID string, params RuntimeParams, ordered []string, state *execstate.State, status execstate.Status, startedAt, endedAt time.Time) execstore.WorkflowExecution {
	nodeExecs := make([]execstore.NodeExecutionRecord, 0, len(ordered))
	for _, id := range ordered {
		nodeExecs = append(nodeExecs, nodeExecutionRecordOf(id, state))
	}

	var execErr string
	if status == execstate.StatusError {
		for _, id := range ordered {
			if msg, ok := state.Error(id); ok {
				execErr = msg
				break
			}
		}
	}

	return execstore.WorkflowExecution{
		ID: executionID,
		WorkflowID: params.Workflow.ID,
		DeploymentID: params.DeploymentID,
		OrganizationID: params.OrganizationID,
		Status: string(status),
		Error: execErr,
		StartedAt: startedAt,
		EndedAt: endedAt,
		NodeExecutions: nodeExecs,
		Visibility: execstore.VisibilityPrivate,
		TraceID: tracing.GetTraceID(ctx),
	}
}

func nodeExecutionRecordOf(nodeID string, state *execstate.State) execstore.NodeExecutionRecord {
	if outputs, ok := state.Outputs(nodeID); ok {
		rendered := make(map[string]any, len(outputs))
		for k, v := range outputs {
			rendered[k] = v
		}
		return execstore.NodeExecutionRecord{NodeID: nodeID, Status: "completed", Inputs: renderedInputs(nodeID, state), Outputs: rendered, Usage: state.NodeUsage(nodeID)}
	}
	if errMsg, ok := state.Error(nodeID); ok {
		return execstore.NodeExecutionRecord{NodeID: nodeID, Status: "errored", Inputs: renderedInputs(nodeID, state), Error: errMsg, Usage: state.NodeUsage(nodeID)}
	}
	if info, ok := state.SkipInfo(nodeID); ok {
		return execstore.NodeExecutionRecord{NodeID: nodeID, Status: "skipped", SkipReason: info.Reason, BlockedBy: info.BlockedBy}
	}
	return execstore.NodeExecutionRecord{NodeID: nodeID, Status: "executing"}
}

func renderedInputs(nodeID string, state *execstate.State) map[string]any {
	inputs, ok := state.Inputs(nodeID)
	if !ok {
		return nil
	}
	rendered := make(map[string]any, len(inputs))
	for k, v := range inputs {
		rendered[k] = v
	}
	return rendered
}
