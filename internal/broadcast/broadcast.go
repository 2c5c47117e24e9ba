// Package broadcast implements the monitoring broadcaster:
// best-effort push of a state snapshot to subscribers, never
// blocking the scheduler beyond a bounded time. Wire protocol and
// subscriber auth are external concerns; this package only defines
// the snapshot shape and interchangeable best-effort transports.
package broadcast

// NodeSnapshot summarizes one node's progress for a broadcast (full
// outputs are available from the execution store; the broadcast
// carries only a summary to keep messages small).
type NodeSnapshot struct {
	NodeID string `json:"nodeId"`
	Status string `json:"status"`
	SkipReason string `json:"skipReason,omitempty"`
	BlockedBy []string `json:"blockedBy,omitempty"`
	Error string `json:"error,omitempty"`
	Usage uint `json:"usage,omitempty"`
	OutputKeys []string `json:"outputKeys,omitempty"`
	ProgressHint float64 `json:"progressHint,omitempty"`
}

// ExecutionSnapshot is the state snapshot broadcast after each level
// and at the end of the run.
type ExecutionSnapshot struct {
	ExecutionID string `json:"executionId"`
	WorkflowID string `json:"workflowId"`
	Status string `json:"status"`
	Nodes []NodeSnapshot `json:"nodes"`
}

// Broadcaster is the contract the scheduler calls after applying each
// level's results. Implementations must not block beyond a bounded
// time and may silently drop updates provided the final snapshot is
// eventually delivered.
type Broadcaster interface {
	Broadcast(executionID string, snapshot ExecutionSnapshot)
}

// NoopBroadcaster discards every snapshot; used when monitorProgress is
// false in RuntimeParams.
type NoopBroadcaster struct{}

func (NoopBroadcaster) Broadcast(string, ExecutionSnapshot) {}
