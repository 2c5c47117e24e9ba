package execstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

// PostgresStore persists executions to Postgres: sqlx struct-scanning,
// RETURNING *, organization scoping on every query.
type PostgresStore struct {
	db *sqlx.DB
}

func NewPostgresStore(db *sqlx.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

type executionRow struct {
	ID string `db:"id"`
	WorkflowID string `db:"workflow_id"`
	DeploymentID sql.NullString `db:"deployment_id"`
	OrganizationID string `db:"organization_id"`
	Status string `db:"status"`
	Error sql.NullString `db:"error"`
	StartedAt sql.NullTime `db:"started_at"`
	EndedAt sql.NullTime `db:"ended_at"`
	NodeExecutions []byte `db:"node_executions"`
	Visibility string `db:"visibility"`
	TraceID sql.NullString `db:"trace_id"`
}

func (row executionRow) toRecord() (WorkflowExecution, error) {
	var nodes []NodeExecutionRecord
	if len(row.NodeExecutions) > 0 {
		if err := json.Unmarshal(row.NodeExecutions, &nodes); err != nil {
			return WorkflowExecution{}, fmt.Errorf("execstore: decode node executions: %w", err)
		}
	}
	return WorkflowExecution{
		ID: row.ID,
		WorkflowID: row.WorkflowID,
		DeploymentID: row.DeploymentID.String,
		OrganizationID: row.OrganizationID,
		Status: row.Status,
		Error: row.Error.String,
		StartedAt: row.StartedAt.Time,
		EndedAt: row.EndedAt.Time,
		NodeExecutions: nodes,
		Visibility: Visibility(row.Visibility),
		TraceID: row.TraceID.String,
	}, nil
}

func (s *PostgresStore) Save(ctx context.Context, rec WorkflowExecution) (WorkflowExecution, error) {
	nodesJSON, err := json.Marshal(rec.NodeExecutions)
	if err != nil {
		return WorkflowExecution{}, fmt.Errorf("execstore: encode node executions: %w", err)
	}
	if rec.Visibility == "" {
		rec.Visibility = VisibilityPrivate
	}

	query := `
	INSERT INTO workflow_executions
	(id, workflow_id, deployment_id, organization_id, status, error, started_at, ended_at, node_executions, visibility, trace_id)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	ON CONFLICT (id) DO UPDATE SET
	status = EXCLUDED.status,
	error = EXCLUDED.error,
	ended_at = EXCLUDED.ended_at,
	node_executions = EXCLUDED.node_executions,
	trace_id = EXCLUDED.trace_id
	RETURNING *
	`

	var row executionRow
	err = s.db.QueryRowxContext(ctx, query,
		rec.ID, rec.WorkflowID, nullableString(rec.DeploymentID), rec.OrganizationID,
		rec.Status, nullableString(rec.Error), rec.StartedAt, rec.EndedAt, nodesJSON, rec.Visibility,
		nullableString(rec.TraceID),
	).StructScan(&row)
	if err != nil {
		return WorkflowExecution{}, fmt.Errorf("execstore: save: %w", err)
	}

	return row.toRecord()
}

func (s *PostgresStore) Get(ctx context.Context, id, organizationID string) (WorkflowExecution, error) {
	query := `SELECT * FROM workflow_executions WHERE id = $1 AND organization_id = $2`

	var row executionRow
	err := s.db.GetContext(ctx, &row, query, id, organizationID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return WorkflowExecution{}, ErrNotFound
		}
		return WorkflowExecution{}, fmt.Errorf("execstore: get: %w", err)
	}
	return row.toRecord()
}

func (s *PostgresStore) List(ctx context.Context, organizationID string, filter ListFilter) ([]WorkflowExecution, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}

	query := `SELECT * FROM workflow_executions WHERE organization_id = $1`
	args := []any{organizationID}

	if filter.WorkflowID != "" {
		args = append(args, filter.WorkflowID)
		query += fmt.Sprintf(" AND workflow_id = $%d", len(args))
	}
	if filter.DeploymentID != "" {
		args = append(args, filter.DeploymentID)
		query += fmt.Sprintf(" AND deployment_id = $%d", len(args))
	}

	args = append(args, limit, filter.Offset)
	query += fmt.Sprintf(" ORDER BY ended_at DESC LIMIT $%d OFFSET $%d", len(args)-1, len(args))

	var rows []executionRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("execstore: list: %w", err)
	}

	out := make([]WorkflowExecution, 0, len(rows))
	for _, row := range rows {
		rec, err := row.toRecord()
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
