// Package persistence provides the data storage abstraction layer for
// workflow definitions, run instances and the node execution log.
package persistence

import (
	"context"
	"time"

	"github.com/dripflow/dripflow/pkg/models"
)

// Persistence bundles the repositories behind one backend connection.
type Persistence interface {
	Workflows() WorkflowRepository
	Runs() RunRepository
	ExecutionLog() ExecutionLogRepository

	HealthCheck(ctx context.Context) error
	Close(ctx context.Context) error
}

// ListWorkflowsOptions filters and paginates workflow listings.
type ListWorkflowsOptions struct {
	OrganizationID string
	GroupID        string
	Status         *models.WorkflowStatus
	Limit          int
	Offset         int
}

// WorkflowRepository stores workflow definitions. Published versions are
// immutable snapshots; only drafts are edited in place.
type WorkflowRepository interface {
	Save(ctx context.Context, workflow *models.WorkflowDefinition) error
	GetByID(ctx context.Context, id string) (*models.WorkflowDefinition, error)
	List(ctx context.Context, opts ListWorkflowsOptions) ([]*models.WorkflowDefinition, error)

	// PublishedByGroup returns the single published version for a workflow
	// group, or ErrPublishedWorkflowNotFound.
	PublishedByGroup(ctx context.Context, groupID string) (*models.WorkflowDefinition, error)

	// DraftByGroup returns the current draft for a workflow group, or
	// ErrDraftWorkflowNotFound.
	DraftByGroup(ctx context.Context, groupID string) (*models.WorkflowDefinition, error)

	// PublishedByOrganization returns every published workflow for an
	// organization, the set the trigger matcher evaluates events against.
	PublishedByOrganization(ctx context.Context, organizationID string) ([]*models.WorkflowDefinition, error)
}

// RunRepository stores run instances and implements the concurrency
// primitives the executor and scheduler rely on.
type RunRepository interface {
	// CreateRun persists a new run. Returns ErrActiveRunExists when the
	// subject already has an active run for the same workflow.
	CreateRun(ctx context.Context, run *models.RunInstance) error

	GetByID(ctx context.Context, id string) (*models.RunInstance, error)
	SaveRun(ctx context.Context, run *models.RunInstance) error

	// UpdateActiveRun persists the run only while the stored state is still
	// running. Returns false when an operator moved the run elsewhere in the
	// meantime (e.g. cancelled it), so the writer must stop advancing.
	UpdateActiveRun(ctx context.Context, run *models.RunInstance) (bool, error)

	// DueRuns returns suspended runs whose resume time has passed.
	DueRuns(ctx context.Context, before time.Time, limit int) ([]*models.RunInstance, error)

	// ClaimRun atomically moves a suspended run to running. Returns false
	// when the run was already claimed or is no longer suspended.
	ClaimRun(ctx context.Context, id string) (bool, error)

	// ActiveRun returns the running or suspended run for a workflow and
	// subject, or ErrRunNotFound.
	ActiveRun(ctx context.Context, workflowID, subjectID string) (*models.RunInstance, error)

	RunsBySubject(ctx context.Context, organizationID, subjectID string) ([]*models.RunInstance, error)
	RunsByWorkflow(ctx context.Context, workflowID string) ([]*models.RunInstance, error)
}

// ExecutionLogRepository stores the append-only node execution log.
type ExecutionLogRepository interface {
	Append(ctx context.Context, record *models.NodeExecutionRecord) error
	RecordsByRun(ctx context.Context, runID string) ([]*models.NodeExecutionRecord, error)

	// LastAttempt returns the highest attempt number recorded for a node in
	// a run, or 0 when the node has not executed.
	LastAttempt(ctx context.Context, runID, nodeID string) (int, error)

	// HasSucceeded reports whether a success record exists for the node,
	// the guard that keeps send_email and webhook from double-firing.
	HasSucceeded(ctx context.Context, runID, nodeID string) (bool, error)

	// PurgeOlderThan deletes records for terminal runs older than cutoff
	// and returns the number removed.
	PurgeOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}
