package postgresql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/lib/pq"

	"github.com/dripflow/dripflow/pkg/models"
	"github.com/dripflow/dripflow/pkg/persistence"
)

// RunRepository handles run-instance database operations.
type RunRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewRunRepository creates a new run repository.
func NewRunRepository(db *sql.DB, logger *slog.Logger) *RunRepository {
	return &RunRepository{db: db, logger: logger}
}

const runColumns = `id, organization_id, workflow_id, workflow_group_id, workflow_version,
	subject_id, current_node_id, state, triggered_by, resume_at, started_at, completed_at, updated_at`

const uniqueViolation = "23505"

func scanRun(row interface{ Scan(...any) error }) (*models.RunInstance, error) {
	var (
		run         models.RunInstance
		currentNode sql.NullString
		resumeAt    sql.NullTime
		completedAt sql.NullTime
	)

	err := row.Scan(
		&run.ID,
		&run.OrganizationID,
		&run.WorkflowID,
		&run.WorkflowGroupID,
		&run.WorkflowVersion,
		&run.SubjectID,
		&currentNode,
		&run.State,
		&run.TriggeredBy,
		&resumeAt,
		&run.StartedAt,
		&completedAt,
		&run.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	run.CurrentNodeID = currentNode.String

	if resumeAt.Valid {
		run.ResumeAt = &resumeAt.Time
	}

	if completedAt.Valid {
		run.CompletedAt = &completedAt.Time
	}

	return &run, nil
}

// CreateRun inserts a new run. The partial unique index on active runs turns
// a concurrent duplicate into ErrActiveRunExists.
func (rr *RunRepository) CreateRun(ctx context.Context, run *models.RunInstance) error {
	query := `
		INSERT INTO runs (` + runColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`

	_, err := rr.db.ExecContext(ctx, query,
		run.ID,
		run.OrganizationID,
		run.WorkflowID,
		run.WorkflowGroupID,
		run.WorkflowVersion,
		run.SubjectID,
		nullString(run.CurrentNodeID),
		run.State,
		run.TriggeredBy,
		run.ResumeAt,
		run.StartedAt,
		run.CompletedAt,
		run.UpdatedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation && pqErr.Constraint == "runs_one_active_per_subject" {
			return persistence.NewRunError("CreateRun", run.ID, persistence.ErrActiveRunExists)
		}

		return persistence.NewRunError("CreateRun", run.ID, err)
	}

	return nil
}

// GetByID returns a run by its identifier.
func (rr *RunRepository) GetByID(ctx context.Context, id string) (*models.RunInstance, error) {
	query := `SELECT ` + runColumns + ` FROM runs WHERE id = $1`

	run, err := scanRun(rr.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewRunError("GetByID", id, persistence.ErrRunNotFound)
		}

		return nil, persistence.NewRunError("GetByID", id, err)
	}

	return run, nil
}

// SaveRun updates an existing run.
func (rr *RunRepository) SaveRun(ctx context.Context, run *models.RunInstance) error {
	query := `
		UPDATE runs SET
			current_node_id = $2,
			state = $3,
			resume_at = $4,
			completed_at = $5,
			updated_at = $6
		WHERE id = $1
	`

	result, err := rr.db.ExecContext(ctx, query,
		run.ID,
		nullString(run.CurrentNodeID),
		run.State,
		run.ResumeAt,
		run.CompletedAt,
		run.UpdatedAt,
	)
	if err != nil {
		return persistence.NewRunError("SaveRun", run.ID, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return persistence.NewRunError("SaveRun", run.ID, err)
	}

	if affected == 0 {
		return persistence.NewRunError("SaveRun", run.ID, persistence.ErrRunNotFound)
	}

	return nil
}

// DueRuns returns suspended runs whose resume time has passed, oldest first.
func (rr *RunRepository) DueRuns(ctx context.Context, before time.Time, limit int) ([]*models.RunInstance, error) {
	query := `
		SELECT ` + runColumns + `
		FROM runs
		WHERE state = 'suspended' AND resume_at <= $1
		ORDER BY resume_at ASC
		LIMIT $2
	`

	rows, err := rr.db.QueryContext(ctx, query, before, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query due runs: %w", err)
	}
	defer rows.Close()

	return collectRuns(rows)
}

// ClaimRun atomically moves a suspended run to running. Losing a claim race
// is not an error; the caller just skips the run.
func (rr *RunRepository) UpdateActiveRun(ctx context.Context, run *models.RunInstance) (bool, error) {
	query := `
		UPDATE runs SET
			current_node_id = $2,
			state = $3,
			resume_at = $4,
			completed_at = $5,
			updated_at = $6
		WHERE id = $1 AND state = 'running'
	`

	result, err := rr.db.ExecContext(ctx, query,
		run.ID,
		nullString(run.CurrentNodeID),
		run.State,
		run.ResumeAt,
		run.CompletedAt,
		run.UpdatedAt,
	)
	if err != nil {
		return false, persistence.NewRunError("UpdateActiveRun", run.ID, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, persistence.NewRunError("UpdateActiveRun", run.ID, err)
	}

	return affected == 1, nil
}

func (rr *RunRepository) ClaimRun(ctx context.Context, id string) (bool, error) {
	query := `
		UPDATE runs
		SET state = 'running', resume_at = NULL, updated_at = NOW()
		WHERE id = $1 AND state = 'suspended'
	`

	result, err := rr.db.ExecContext(ctx, query, id)
	if err != nil {
		return false, persistence.NewRunError("ClaimRun", id, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, persistence.NewRunError("ClaimRun", id, err)
	}

	return affected == 1, nil
}

// ActiveRun returns the running or suspended run for a workflow and subject.
func (rr *RunRepository) ActiveRun(ctx context.Context, workflowID, subjectID string) (*models.RunInstance, error) {
	query := `
		SELECT ` + runColumns + `
		FROM runs
		WHERE workflow_id = $1 AND subject_id = $2 AND state IN ('running', 'suspended')
	`

	run, err := scanRun(rr.db.QueryRowContext(ctx, query, workflowID, subjectID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewRunError("ActiveRun", "", persistence.ErrRunNotFound)
		}

		return nil, persistence.NewRunError("ActiveRun", "", err)
	}

	return run, nil
}

// RunsBySubject returns every run for a subject, newest first.
func (rr *RunRepository) RunsBySubject(ctx context.Context, organizationID, subjectID string) ([]*models.RunInstance, error) {
	query := `
		SELECT ` + runColumns + `
		FROM runs
		WHERE organization_id = $1 AND subject_id = $2
		ORDER BY started_at DESC
	`

	rows, err := rr.db.QueryContext(ctx, query, organizationID, subjectID)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs by subject: %w", err)
	}
	defer rows.Close()

	return collectRuns(rows)
}

// RunsByWorkflow returns every run for a workflow version, newest first.
func (rr *RunRepository) RunsByWorkflow(ctx context.Context, workflowID string) ([]*models.RunInstance, error) {
	query := `
		SELECT ` + runColumns + `
		FROM runs
		WHERE workflow_id = $1
		ORDER BY started_at DESC
	`

	rows, err := rr.db.QueryContext(ctx, query, workflowID)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs by workflow: %w", err)
	}
	defer rows.Close()

	return collectRuns(rows)
}

func collectRuns(rows *sql.Rows) ([]*models.RunInstance, error) {
	runs := make([]*models.RunInstance, 0)

	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}

		runs = append(runs, run)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate runs: %w", err)
	}

	return runs, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
