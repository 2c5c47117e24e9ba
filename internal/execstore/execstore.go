// Package execstore implements the execution store: save/get/list
// over the persisted execution record, with organization-scoped
// isolation and read-your-writes on get.
package execstore

import (
	"context"
	"errors"
	"time"
)

// NodeExecutionRecord is one node's slice of the persisted execution
// record.
type NodeExecutionRecord struct {
	NodeID string `json:"nodeId" db:"node_id"`
	Status string `json:"status" db:"status"`
	Inputs map[string]any `json:"inputs,omitempty" db:"-"`
	Outputs map[string]any `json:"outputs,omitempty" db:"-"`
	Error string `json:"error,omitempty" db:"error"`
	Usage uint `json:"usage" db:"usage"`
	SkipReason string `json:"skipReason,omitempty" db:"skip_reason"`
	BlockedBy []string `json:"blockedBy,omitempty" db:"-"`
}

// Visibility is the sharing state attached to a persisted execution.
type Visibility string

const (
	VisibilityPrivate Visibility = "private"
	VisibilityPublic Visibility = "public"
)

// WorkflowExecution is the full persisted execution record.
type WorkflowExecution struct {
	ID string `json:"id" db:"id"`
	WorkflowID string `json:"workflowId" db:"workflow_id"`
	DeploymentID string `json:"deploymentId,omitempty" db:"deployment_id"`
	OrganizationID string `json:"organizationId" db:"organization_id"`
	Status string `json:"status" db:"status"`
	Error string `json:"error,omitempty" db:"error"`
	StartedAt time.Time `json:"startedAt" db:"started_at"`
	EndedAt time.Time `json:"endedAt" db:"ended_at"`
	NodeExecutions []NodeExecutionRecord `json:"nodeExecutions" db:"-"`
	Visibility Visibility `json:"visibility" db:"visibility"`
	TraceID string `json:"traceId,omitempty" db:"trace_id"`
}

// ListFilter narrows List
type ListFilter struct {
	WorkflowID string
	DeploymentID string
	Limit int
	Offset int
}

// ErrNotFound is returned by Get for a missing id, or one that belongs
// to a different organization — the two are made indistinguishable per
// the isolation rule.
var ErrNotFound = errors.New("execution not found")

// Store is the execution store contract.
type Store interface {
	Save(ctx context.Context, rec WorkflowExecution) (WorkflowExecution, error)
	Get(ctx context.Context, id, organizationID string) (WorkflowExecution, error)
	List(ctx context.Context, organizationID string, filter ListFilter) ([]WorkflowExecution, error)
}
