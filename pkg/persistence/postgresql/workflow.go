package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/dripflow/dripflow/pkg/models"
	"github.com/dripflow/dripflow/pkg/persistence"
)

// WorkflowRepository handles workflow-related database operations.
type WorkflowRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewWorkflowRepository creates a new workflow repository.
func NewWorkflowRepository(db *sql.DB, logger *slog.Logger) *WorkflowRepository {
	return &WorkflowRepository{db: db, logger: logger}
}

const workflowColumns = `id, group_id, organization_id, name, status, version,
	nodes, edges, created_at, updated_at, published_at, archived_at`

func scanWorkflow(row interface{ Scan(...any) error }) (*models.WorkflowDefinition, error) {
	var (
		workflow    models.WorkflowDefinition
		nodesJSON   []byte
		edgesJSON   []byte
		publishedAt sql.NullTime
		archivedAt  sql.NullTime
	)

	err := row.Scan(
		&workflow.ID,
		&workflow.GroupID,
		&workflow.OrganizationID,
		&workflow.Name,
		&workflow.Status,
		&workflow.Version,
		&nodesJSON,
		&edgesJSON,
		&workflow.CreatedAt,
		&workflow.UpdatedAt,
		&publishedAt,
		&archivedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(nodesJSON, &workflow.Nodes); err != nil {
		return nil, fmt.Errorf("failed to unmarshal nodes: %w", err)
	}

	if err := json.Unmarshal(edgesJSON, &workflow.Edges); err != nil {
		return nil, fmt.Errorf("failed to unmarshal edges: %w", err)
	}

	if publishedAt.Valid {
		workflow.PublishedAt = &publishedAt.Time
	}

	if archivedAt.Valid {
		workflow.ArchivedAt = &archivedAt.Time
	}

	return &workflow, nil
}

// Save inserts or updates a workflow definition.
func (wr *WorkflowRepository) Save(ctx context.Context, workflow *models.WorkflowDefinition) error {
	nodesJSON, err := json.Marshal(workflow.Nodes)
	if err != nil {
		return persistence.NewWorkflowError("Save", workflow.ID, fmt.Errorf("failed to marshal nodes: %w", err))
	}

	edgesJSON, err := json.Marshal(workflow.Edges)
	if err != nil {
		return persistence.NewWorkflowError("Save", workflow.ID, fmt.Errorf("failed to marshal edges: %w", err))
	}

	query := `
		INSERT INTO workflows (` + workflowColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			status = EXCLUDED.status,
			version = EXCLUDED.version,
			nodes = EXCLUDED.nodes,
			edges = EXCLUDED.edges,
			updated_at = EXCLUDED.updated_at,
			published_at = EXCLUDED.published_at,
			archived_at = EXCLUDED.archived_at
	`

	_, err = wr.db.ExecContext(ctx, query,
		workflow.ID,
		workflow.GroupID,
		workflow.OrganizationID,
		workflow.Name,
		workflow.Status,
		workflow.Version,
		nodesJSON,
		edgesJSON,
		workflow.CreatedAt,
		workflow.UpdatedAt,
		workflow.PublishedAt,
		workflow.ArchivedAt,
	)
	if err != nil {
		return persistence.NewWorkflowError("Save", workflow.ID, err)
	}

	return nil
}

// GetByID returns a workflow by its identifier.
func (wr *WorkflowRepository) GetByID(ctx context.Context, id string) (*models.WorkflowDefinition, error) {
	query := `SELECT ` + workflowColumns + ` FROM workflows WHERE id = $1`

	workflow, err := scanWorkflow(wr.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewWorkflowError("GetByID", id, persistence.ErrWorkflowNotFound)
		}

		return nil, persistence.NewWorkflowError("GetByID", id, err)
	}

	return workflow, nil
}

// List returns workflows filtered and paginated by opts.
func (wr *WorkflowRepository) List(ctx context.Context, opts persistence.ListWorkflowsOptions) ([]*models.WorkflowDefinition, error) {
	if opts.Limit <= 0 || opts.Limit > 100 {
		opts.Limit = 20
	}

	var (
		conditions []string
		args       []any
	)

	if opts.OrganizationID != "" {
		args = append(args, opts.OrganizationID)
		conditions = append(conditions, "organization_id = $"+strconv.Itoa(len(args)))
	}

	if opts.GroupID != "" {
		args = append(args, opts.GroupID)
		conditions = append(conditions, "group_id = $"+strconv.Itoa(len(args)))
	}

	if opts.Status != nil {
		args = append(args, *opts.Status)
		conditions = append(conditions, "status = $"+strconv.Itoa(len(args)))
	}

	query := `SELECT ` + workflowColumns + ` FROM workflows`
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}

	args = append(args, opts.Limit)
	query += " ORDER BY created_at DESC LIMIT $" + strconv.Itoa(len(args))

	args = append(args, opts.Offset)
	query += " OFFSET $" + strconv.Itoa(len(args))

	rows, err := wr.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list workflows: %w", err)
	}
	defer rows.Close()

	return collectWorkflows(rows)
}

func collectWorkflows(rows *sql.Rows) ([]*models.WorkflowDefinition, error) {
	workflows := make([]*models.WorkflowDefinition, 0)

	for rows.Next() {
		workflow, err := scanWorkflow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan workflow: %w", err)
		}

		workflows = append(workflows, workflow)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate workflows: %w", err)
	}

	return workflows, nil
}

// PublishedByGroup returns the published version for a workflow group.
func (wr *WorkflowRepository) PublishedByGroup(ctx context.Context, groupID string) (*models.WorkflowDefinition, error) {
	query := `SELECT ` + workflowColumns + ` FROM workflows WHERE group_id = $1 AND status = 'published'`

	workflow, err := scanWorkflow(wr.db.QueryRowContext(ctx, query, groupID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewWorkflowGroupError("PublishedByGroup", groupID, persistence.ErrPublishedWorkflowNotFound)
		}

		return nil, persistence.NewWorkflowGroupError("PublishedByGroup", groupID, err)
	}

	return workflow, nil
}

// DraftByGroup returns the current draft for a workflow group.
func (wr *WorkflowRepository) DraftByGroup(ctx context.Context, groupID string) (*models.WorkflowDefinition, error) {
	query := `SELECT ` + workflowColumns + ` FROM workflows WHERE group_id = $1 AND status = 'draft'`

	workflow, err := scanWorkflow(wr.db.QueryRowContext(ctx, query, groupID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewWorkflowGroupError("DraftByGroup", groupID, persistence.ErrDraftWorkflowNotFound)
		}

		return nil, persistence.NewWorkflowGroupError("DraftByGroup", groupID, err)
	}

	return workflow, nil
}

// PublishedByOrganization returns every published workflow for an organization.
func (wr *WorkflowRepository) PublishedByOrganization(ctx context.Context, organizationID string) ([]*models.WorkflowDefinition, error) {
	query := `SELECT ` + workflowColumns + ` FROM workflows WHERE organization_id = $1 AND status = 'published'`

	rows, err := wr.db.QueryContext(ctx, query, organizationID)
	if err != nil {
		return nil, fmt.Errorf("failed to query published workflows: %w", err)
	}
	defer rows.Close()

	return collectWorkflows(rows)
}
