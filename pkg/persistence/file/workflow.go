package file

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/dripflow/dripflow/pkg/models"
	"github.com/dripflow/dripflow/pkg/persistence"
)

// WorkflowRepository handles workflow-related file operations.
type WorkflowRepository struct {
	root string
	mu   sync.RWMutex
}

// NewWorkflowRepository creates a new workflow repository.
func NewWorkflowRepository(root string) *WorkflowRepository {
	return &WorkflowRepository{root: root}
}

func (wr *WorkflowRepository) dir() string {
	return filepath.Join(wr.root, "workflows")
}

func (wr *WorkflowRepository) path(id string) string {
	return filepath.Join(wr.dir(), id+".json")
}

func (wr *WorkflowRepository) Save(_ context.Context, workflow *models.WorkflowDefinition) error {
	wr.mu.Lock()
	defer wr.mu.Unlock()

	if err := os.MkdirAll(wr.dir(), 0o755); err != nil {
		return persistence.NewWorkflowError("Save", workflow.ID, err)
	}

	data, err := json.MarshalIndent(workflow, "", "  ")
	if err != nil {
		return persistence.NewWorkflowError("Save", workflow.ID, err)
	}

	if err := os.WriteFile(wr.path(workflow.ID), data, 0o644); err != nil {
		return persistence.NewWorkflowError("Save", workflow.ID, err)
	}

	return nil
}

func (wr *WorkflowRepository) GetByID(_ context.Context, id string) (*models.WorkflowDefinition, error) {
	wr.mu.RLock()
	defer wr.mu.RUnlock()

	return wr.read(id)
}

func (wr *WorkflowRepository) read(id string) (*models.WorkflowDefinition, error) {
	data, err := os.ReadFile(wr.path(id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, persistence.NewWorkflowError("GetByID", id, persistence.ErrWorkflowNotFound)
		}

		return nil, persistence.NewWorkflowError("GetByID", id, err)
	}

	var workflow models.WorkflowDefinition
	if err := json.Unmarshal(data, &workflow); err != nil {
		return nil, persistence.NewWorkflowError("GetByID", id, fmt.Errorf("corrupt workflow file: %w", err))
	}

	return &workflow, nil
}

func (wr *WorkflowRepository) all() ([]*models.WorkflowDefinition, error) {
	root := os.DirFS(wr.dir())

	jsonFiles, err := fs.Glob(root, "*.json")
	if err != nil {
		return nil, fmt.Errorf("failed to list workflow files: %w", err)
	}

	workflows := make([]*models.WorkflowDefinition, 0, len(jsonFiles))

	for _, file := range jsonFiles {
		workflow, err := wr.read(file[:len(file)-5])
		if err != nil {
			return nil, err
		}

		workflows = append(workflows, workflow)
	}

	return workflows, nil
}

func (wr *WorkflowRepository) List(_ context.Context, opts persistence.ListWorkflowsOptions) ([]*models.WorkflowDefinition, error) {
	wr.mu.RLock()
	defer wr.mu.RUnlock()

	if opts.Limit <= 0 || opts.Limit > 100 {
		opts.Limit = 20
	}

	all, err := wr.all()
	if err != nil {
		return nil, err
	}

	filtered := make([]*models.WorkflowDefinition, 0, len(all))

	for _, workflow := range all {
		if opts.OrganizationID != "" && workflow.OrganizationID != opts.OrganizationID {
			continue
		}

		if opts.GroupID != "" && workflow.GroupID != opts.GroupID {
			continue
		}

		if opts.Status != nil && workflow.Status != *opts.Status {
			continue
		}

		filtered = append(filtered, workflow)
	}

	sort.Slice(filtered, func(i, j int) bool {
		return filtered[i].CreatedAt.After(filtered[j].CreatedAt)
	})

	if opts.Offset >= len(filtered) {
		return []*models.WorkflowDefinition{}, nil
	}

	end := opts.Offset + opts.Limit
	if end > len(filtered) {
		end = len(filtered)
	}

	return filtered[opts.Offset:end], nil
}

func (wr *WorkflowRepository) PublishedByGroup(_ context.Context, groupID string) (*models.WorkflowDefinition, error) {
	wr.mu.RLock()
	defer wr.mu.RUnlock()

	all, err := wr.all()
	if err != nil {
		return nil, err
	}

	for _, workflow := range all {
		if workflow.GroupID == groupID && workflow.Status == models.WorkflowStatusPublished {
			return workflow, nil
		}
	}

	return nil, persistence.NewWorkflowGroupError("PublishedByGroup", groupID, persistence.ErrPublishedWorkflowNotFound)
}

func (wr *WorkflowRepository) DraftByGroup(_ context.Context, groupID string) (*models.WorkflowDefinition, error) {
	wr.mu.RLock()
	defer wr.mu.RUnlock()

	all, err := wr.all()
	if err != nil {
		return nil, err
	}

	for _, workflow := range all {
		if workflow.GroupID == groupID && workflow.Status == models.WorkflowStatusDraft {
			return workflow, nil
		}
	}

	return nil, persistence.NewWorkflowGroupError("DraftByGroup", groupID, persistence.ErrDraftWorkflowNotFound)
}

func (wr *WorkflowRepository) PublishedByOrganization(_ context.Context, organizationID string) ([]*models.WorkflowDefinition, error) {
	wr.mu.RLock()
	defer wr.mu.RUnlock()

	all, err := wr.all()
	if err != nil {
		return nil, err
	}

	published := make([]*models.WorkflowDefinition, 0)

	for _, workflow := range all {
		if workflow.OrganizationID == organizationID && workflow.Status == models.WorkflowStatusPublished {
			published = append(published, workflow)
		}
	}

	return published, nil
}
