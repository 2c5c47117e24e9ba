package scheduler

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gorax/workflow-core/internal/broadcast"
	"github.com/gorax/workflow-core/internal/credit"
	"github.com/gorax/workflow-core/internal/execstore"
	"github.com/gorax/workflow-core/internal/graph"
	"github.com/gorax/workflow-core/internal/nodeexec"
	"github.com/gorax/workflow-core/internal/objectstore"
	"github.com/gorax/workflow-core/internal/registry"
	"github.com/gorax/workflow-core/internal/step"
	"github.com/gorax/workflow-core/internal/value"
)

func testCreditManager(t *testing.T) *credit.Manager {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	return credit.NewManager(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
}

type memStore struct {
	mu sync.Mutex
	records map[string]execstore.WorkflowExecution
}

func newMemStore() *memStore {
	return &memStore{records: make(map[string]execstore.WorkflowExecution)}
}

func (m *memStore) Save(ctx context.Context, rec execstore.WorkflowExecution) (execstore.WorkflowExecution, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[rec.ID] = rec
	return rec, nil
}

func (m *memStore) Get(ctx context.Context, id, organizationID string) (execstore.WorkflowExecution, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[id]
	if !ok || rec.OrganizationID != organizationID {
		return execstore.WorkflowExecution{}, execstore.ErrNotFound
	}
	return rec, nil
}

func (m *memStore) List(ctx context.Context, organizationID string, filter execstore.ListFilter) ([]execstore.WorkflowExecution, error) {
	return nil, nil
}

type recordingBroadcaster struct {
	mu sync.Mutex
	snapshots []broadcast.ExecutionSnapshot
}

func (b *recordingBroadcaster) Broadcast(executionID string, snapshot broadcast.ExecutionSnapshot) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.snapshots = append(b.snapshots, snapshot)
}

func echoNodeRegistry(t *testing.T) *registry.Registry {
	t.Helper()
	reg, err := registry.New([]registry.Registration{
			{
				Meta: registry.NodeTypeMeta{ID: "test:echo", Usage: 1},
				Constructor: func(config map[string]any) (registry.Executable, error) {
					return echoExec{}, nil
				},
			},
			{
				Meta: registry.NodeTypeMeta{ID: "test:fail", Usage: 1},
				Constructor: func(config map[string]any) (registry.Executable, error) {
					return failExec{}, nil
				},
			},
	})
	require.NoError(t, err)
	return reg
}

type echoExec struct{}

func (echoExec) Execute(nctx *registry.NodeContext) (registry.Result, error) {
	in, _ := nctx.Inputs.Get("in")
	return registry.Completed(value.NodeRuntimeValues{"out": in}, 1), nil
}

type failExec struct{}

func (failExec) Execute(nctx *registry.NodeContext) (registry.Result, error) {
	return registry.Errored("forbidden: always fails", 1), nil
}

func testDeps(t *testing.T, reg *registry.Registry) *nodeexec.Deps {
	t.Helper()
	return &nodeexec.Deps{
		Registry: reg,
		Steps: step.NewDirect(),
		Breakers: nodeexec.NewCircuitBreakerRegistry(nodeexec.DefaultCircuitBreakerConfig(), slog.New(slog.NewTextHandler(io.Discard, nil))),
		ObjectStore: objectstore.NewMemoryStore(),
		GetSecret: func(string) (string, bool) { return "", false },
		GetIntegration: func(string) (registry.Integration, bool) { return registry.Integration{}, false },
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		Mode: "dev",
		SubscriptionActive: true,
	}
}

func TestRun_LinearWorkflowCompletes(t *testing.T) {
	w := graph.Workflow{
		ID: "wf-1",
		Nodes: []graph.NodeSpec{
			{ID: "a", Type: "test:echo", Literals: map[string]value.Value{"in": value.String("hi")}, Outputs: []value.ParameterSpec{{Name: "out"}}},
			{ID: "b", Type: "test:echo", Inputs: []value.ParameterSpec{{Name: "in", Required: true}}, Outputs: []value.ParameterSpec{{Name: "out"}}},
		},
		Edges: []graph.Edge{{Source: "a", SourceOutput: "out", Target: "b", TargetInput: "in"}},
	}

	params := RuntimeParams{Workflow: w, OrganizationID: "org-1", DevelopmentMode: true}
	store := newMemStore()
	bcast := &recordingBroadcaster{}

	rec, err := Run(context.Background(), params, "exec-1", testCreditManager(t), store, bcast, testDeps(t, echoNodeRegistry(t)))
	require.NoError(t, err)
	assert.Equal(t, "completed", rec.Status)
	require.Len(t, rec.NodeExecutions, 2)
	assert.NotEmpty(t, bcast.snapshots)
	assert.Equal(t, "completed", bcast.snapshots[len(bcast.snapshots)-1].Status)

	for _, ne := range rec.NodeExecutions {
		if ne.NodeID == "b" {
			require.NotNil(t, ne.Inputs, "persisted record should echo the inputs node b ran with")
			in, ok := ne.Inputs["in"].(value.Value)
			require.True(t, ok)
			assert.Equal(t, "hi", in.Str)
		}
	}
}

func TestRun_FailingNodeMarksExecutionErrored(t *testing.T) {
	w := graph.Workflow{
		ID: "wf-1",
		Nodes: []graph.NodeSpec{{ID: "a", Type: "test:fail"}},
	}
	params := RuntimeParams{Workflow: w, OrganizationID: "org-1", DevelopmentMode: true}

	rec, err := Run(context.Background(), params, "exec-1", testCreditManager(t), newMemStore(), &recordingBroadcaster{}, testDeps(t, echoNodeRegistry(t)))
	require.NoError(t, err)
	assert.Equal(t, "error", rec.Status)
	assert.NotEmpty(t, rec.Error)
}

func TestRun_DownstreamNodeSkippedOnUpstreamFailure(t *testing.T) {
	w := graph.Workflow{
		ID: "wf-1",
		Nodes: []graph.NodeSpec{
			{ID: "a", Type: "test:fail", Outputs: []value.ParameterSpec{{Name: "out"}}},
			{ID: "b", Type: "test:echo", Inputs: []value.ParameterSpec{{Name: "in", Required: true}}},
		},
		Edges: []graph.Edge{{Source: "a", SourceOutput: "out", Target: "b", TargetInput: "in"}},
	}
	params := RuntimeParams{Workflow: w, OrganizationID: "org-1", DevelopmentMode: true}

	rec, err := Run(context.Background(), params, "exec-1", testCreditManager(t), newMemStore(), &recordingBroadcaster{}, testDeps(t, echoNodeRegistry(t)))
	require.NoError(t, err)

	var bStatus string
	for _, n := range rec.NodeExecutions {
		if n.NodeID == "b" {
			bStatus = n.Status
		}
	}
	assert.Equal(t, "skipped", bStatus)
}

func TestRun_InsufficientCreditsBlocksBeforeAnyNodeRuns(t *testing.T) {
	calls := 0
	reg, err := registry.New([]registry.Registration{
			{
				Meta: registry.NodeTypeMeta{ID: "test:echo", Usage: 1000},
				Constructor: func(config map[string]any) (registry.Executable, error) {
					return executableCountFunc{calls: &calls}, nil
				},
			},
	})
	require.NoError(t, err)

	w := graph.Workflow{ID: "wf-1", Nodes: []graph.NodeSpec{{ID: "a", Type: "test:echo", Usage: 1000}}}
	params := RuntimeParams{
		Workflow: w,
		OrganizationID: "org-1",
		ComputeCredits: 10,
		Subscription: credit.SubscriptionNone,
	}

	_, err = Run(context.Background(), params, "exec-1", testCreditManager(t), newMemStore(), &recordingBroadcaster{}, testDeps(t, reg))
	require.Error(t, err)
	var insufficient *credit.InsufficientCreditsError
	assert.ErrorAs(t, err, &insufficient)
	assert.Equal(t, 0, calls, "no node should run once the credit pre-check fails")
}

type executableCountFunc struct {
	calls *int
}

func (e executableCountFunc) Execute(nctx *registry.NodeContext) (registry.Result, error) {
	*e.calls++
	return registry.Completed(nil, 1000), nil
}

func TestRun_RecordsUsageAfterCompletion(t *testing.T) {
	w := graph.Workflow{
		ID: "wf-1",
		Nodes: []graph.NodeSpec{{ID: "a", Type: "test:echo", Literals: map[string]value.Value{"in": value.String("x")}}},
	}
	params := RuntimeParams{Workflow: w, OrganizationID: "org-1", DevelopmentMode: true}
	creditMgr := testCreditManager(t)

	_, err := Run(context.Background(), params, "exec-1", creditMgr, newMemStore(), &recordingBroadcaster{}, testDeps(t, echoNodeRegistry(t)))
	require.NoError(t, err)

	ok, err := creditMgr.HasEnough(context.Background(), credit.CheckParams{
			OrganizationID: "org-1",
			ComputeCredits: 0,
			EstimatedUsage: 0,
	})
	require.NoError(t, err)
	assert.False(t, ok, "recorded usage should count against a subsequent check")
}
