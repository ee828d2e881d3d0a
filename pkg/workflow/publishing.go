package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/dripflow/dripflow/pkg/models"
	"github.com/dripflow/dripflow/pkg/persistence"
)

// ErrWorkflowInvalid indicates a workflow failed validation on publish.
var ErrWorkflowInvalid = errors.New("workflow is not valid")

// ErrNotDraft indicates a publish was attempted on a non-draft workflow.
var ErrNotDraft = errors.New("only draft workflows can be published")

// ErrNotPublished indicates an archive was attempted on a non-published workflow.
var ErrNotPublished = errors.New("only published workflows can be archived")

// PublishingService manages the draft/published/archived lifecycle. Published
// versions are immutable snapshots; in-flight runs keep executing the version
// they started on even after a newer version is published.
type PublishingService struct {
	logger      *slog.Logger
	persistence persistence.Persistence
	validator   *Validator
}

// NewPublishingService creates a new workflow publishing service.
func NewPublishingService(logger *slog.Logger, store persistence.Persistence, validator *Validator) *PublishingService {
	return &PublishingService{
		logger:      logger.With("module", "publishing"),
		persistence: store,
		validator:   validator,
	}
}

// Create starts a new workflow group with a version-1 draft.
func (s *PublishingService) Create(ctx context.Context, organizationID, name string, nodes []*models.Node, edges []*models.Edge) (*models.WorkflowDefinition, error) {
	now := time.Now().UTC()

	workflow := &models.WorkflowDefinition{
		ID:             uuid.Must(uuid.NewV7()).String(),
		GroupID:        uuid.Must(uuid.NewV7()).String(),
		OrganizationID: organizationID,
		Name:           name,
		Status:         models.WorkflowStatusDraft,
		Version:        1,
		Nodes:          nodes,
		Edges:          edges,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	if err := s.persistence.Workflows().Save(ctx, workflow); err != nil {
		return nil, fmt.Errorf("failed to save new workflow: %w", err)
	}

	s.logger.Info("Created workflow draft",
		"workflow_id", workflow.ID,
		"group_id", workflow.GroupID,
		"organization_id", organizationID)

	return workflow, nil
}

// Publish validates a draft and promotes it to the group's published version.
// Any previously published version is archived in the same operation.
func (s *PublishingService) Publish(ctx context.Context, workflowID string) (*models.WorkflowDefinition, error) {
	workflow, err := s.persistence.Workflows().GetByID(ctx, workflowID)
	if err != nil {
		return nil, fmt.Errorf("failed to get workflow for publishing: %w", err)
	}

	if workflow.Status != models.WorkflowStatusDraft {
		return nil, fmt.Errorf("workflow %s has status %s: %w", workflowID, workflow.Status, ErrNotDraft)
	}

	result, err := s.validator.Validate(ctx, workflow)
	if err != nil {
		return nil, fmt.Errorf("failed to validate workflow: %w", err)
	}

	if !result.Valid {
		return nil, fmt.Errorf("%w: %d issues found", ErrWorkflowInvalid, len(result.Issues))
	}

	// The graph must compile so the executor never sees a published version
	// it cannot load.
	if _, err := models.Compile(workflow); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrWorkflowInvalid, err)
	}

	now := time.Now().UTC()

	previous, err := s.persistence.Workflows().PublishedByGroup(ctx, workflow.GroupID)

	switch {
	case err == nil:
		previous.Status = models.WorkflowStatusArchived
		previous.ArchivedAt = &now
		previous.UpdatedAt = now

		if err := s.persistence.Workflows().Save(ctx, previous); err != nil {
			return nil, fmt.Errorf("failed to archive previous version: %w", err)
		}

		s.logger.Info("Archived previous published version",
			"workflow_id", previous.ID,
			"version", previous.Version)
	case persistence.IsPublishedWorkflowNotFound(err):
		// First publish for this group.
	default:
		return nil, fmt.Errorf("failed to look up published version: %w", err)
	}

	workflow.Status = models.WorkflowStatusPublished
	workflow.PublishedAt = &now
	workflow.UpdatedAt = now

	if err := s.persistence.Workflows().Save(ctx, workflow); err != nil {
		return nil, fmt.Errorf("failed to save published workflow: %w", err)
	}

	s.logger.Info("Published workflow",
		"workflow_id", workflow.ID,
		"group_id", workflow.GroupID,
		"version", workflow.Version)

	return workflow, nil
}

// NewDraft clones the group's published version into a new editable draft
// with the next version number. A group holds at most one draft at a time.
func (s *PublishingService) NewDraft(ctx context.Context, groupID string) (*models.WorkflowDefinition, error) {
	if _, err := s.persistence.Workflows().DraftByGroup(ctx, groupID); err == nil {
		return nil, fmt.Errorf("group %s: %w", groupID, persistence.ErrWorkflowAlreadyExists)
	} else if !persistence.IsDraftWorkflowNotFound(err) {
		return nil, fmt.Errorf("failed to look up draft: %w", err)
	}

	published, err := s.persistence.Workflows().PublishedByGroup(ctx, groupID)
	if err != nil {
		return nil, fmt.Errorf("failed to get published version: %w", err)
	}

	now := time.Now().UTC()

	draft := &models.WorkflowDefinition{
		ID:             uuid.Must(uuid.NewV7()).String(),
		GroupID:        published.GroupID,
		OrganizationID: published.OrganizationID,
		Name:           published.Name,
		Status:         models.WorkflowStatusDraft,
		Version:        published.Version + 1,
		Nodes:          published.Nodes,
		Edges:          published.Edges,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	if err := s.persistence.Workflows().Save(ctx, draft); err != nil {
		return nil, fmt.Errorf("failed to save new draft: %w", err)
	}

	s.logger.Info("Created new draft from published version",
		"workflow_id", draft.ID,
		"group_id", groupID,
		"version", draft.Version)

	return draft, nil
}

// Archive retires a published workflow without a replacement. New events stop
// matching it immediately; in-flight runs finish on their own.
func (s *PublishingService) Archive(ctx context.Context, workflowID string) (*models.WorkflowDefinition, error) {
	workflow, err := s.persistence.Workflows().GetByID(ctx, workflowID)
	if err != nil {
		return nil, fmt.Errorf("failed to get workflow for archiving: %w", err)
	}

	if workflow.Status != models.WorkflowStatusPublished {
		return nil, fmt.Errorf("workflow %s has status %s: %w", workflowID, workflow.Status, ErrNotPublished)
	}

	now := time.Now().UTC()
	workflow.Status = models.WorkflowStatusArchived
	workflow.ArchivedAt = &now
	workflow.UpdatedAt = now

	if err := s.persistence.Workflows().Save(ctx, workflow); err != nil {
		return nil, fmt.Errorf("failed to save archived workflow: %w", err)
	}

	s.logger.Info("Archived workflow", "workflow_id", workflow.ID, "version", workflow.Version)

	return workflow, nil
}

// UpdateDraft replaces the graph of an editable draft.
func (s *PublishingService) UpdateDraft(ctx context.Context, workflowID, name string, nodes []*models.Node, edges []*models.Edge) (*models.WorkflowDefinition, error) {
	workflow, err := s.persistence.Workflows().GetByID(ctx, workflowID)
	if err != nil {
		return nil, fmt.Errorf("failed to get workflow for update: %w", err)
	}

	if workflow.Status != models.WorkflowStatusDraft {
		return nil, fmt.Errorf("workflow %s has status %s: %w", workflowID, workflow.Status, ErrNotDraft)
	}

	if name != "" {
		workflow.Name = name
	}

	workflow.Nodes = nodes
	workflow.Edges = edges
	workflow.UpdatedAt = time.Now().UTC()

	if err := s.persistence.Workflows().Save(ctx, workflow); err != nil {
		return nil, fmt.Errorf("failed to save draft: %w", err)
	}

	return workflow, nil
}
