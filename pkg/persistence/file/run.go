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
	"time"

	"github.com/dripflow/dripflow/pkg/models"
	"github.com/dripflow/dripflow/pkg/persistence"
)

// RunRepository handles run-instance file operations. The mutex stands in for
// the row-level guarantees the SQL backend gets from its partial unique index
// and conditional updates.
type RunRepository struct {
	root string
	mu   sync.Mutex
}

// NewRunRepository creates a new run repository.
func NewRunRepository(root string) *RunRepository {
	return &RunRepository{root: root}
}

func (rr *RunRepository) dir() string {
	return filepath.Join(rr.root, "runs")
}

func (rr *RunRepository) path(id string) string {
	return filepath.Join(rr.dir(), id+".json")
}

func (rr *RunRepository) CreateRun(_ context.Context, run *models.RunInstance) error {
	rr.mu.Lock()
	defer rr.mu.Unlock()

	existing, err := rr.all()
	if err != nil {
		return persistence.NewRunError("CreateRun", run.ID, err)
	}

	for _, candidate := range existing {
		if candidate.WorkflowID == run.WorkflowID && candidate.SubjectID == run.SubjectID && candidate.IsActive() {
			return persistence.NewRunError("CreateRun", run.ID, persistence.ErrActiveRunExists)
		}
	}

	return rr.write(run)
}

func (rr *RunRepository) write(run *models.RunInstance) error {
	if err := os.MkdirAll(rr.dir(), 0o755); err != nil {
		return persistence.NewRunError("Save", run.ID, err)
	}

	data, err := json.MarshalIndent(run, "", "  ")
	if err != nil {
		return persistence.NewRunError("Save", run.ID, err)
	}

	if err := os.WriteFile(rr.path(run.ID), data, 0o644); err != nil {
		return persistence.NewRunError("Save", run.ID, err)
	}

	return nil
}

func (rr *RunRepository) read(id string) (*models.RunInstance, error) {
	data, err := os.ReadFile(rr.path(id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, persistence.NewRunError("GetByID", id, persistence.ErrRunNotFound)
		}

		return nil, persistence.NewRunError("GetByID", id, err)
	}

	var run models.RunInstance
	if err := json.Unmarshal(data, &run); err != nil {
		return nil, persistence.NewRunError("GetByID", id, fmt.Errorf("corrupt run file: %w", err))
	}

	return &run, nil
}

func (rr *RunRepository) all() ([]*models.RunInstance, error) {
	root := os.DirFS(rr.dir())

	jsonFiles, err := fs.Glob(root, "*.json")
	if err != nil {
		return nil, fmt.Errorf("failed to list run files: %w", err)
	}

	runs := make([]*models.RunInstance, 0, len(jsonFiles))

	for _, file := range jsonFiles {
		run, err := rr.read(file[:len(file)-5])
		if err != nil {
			return nil, err
		}

		runs = append(runs, run)
	}

	return runs, nil
}

func (rr *RunRepository) GetByID(_ context.Context, id string) (*models.RunInstance, error) {
	rr.mu.Lock()
	defer rr.mu.Unlock()

	return rr.read(id)
}

func (rr *RunRepository) SaveRun(_ context.Context, run *models.RunInstance) error {
	rr.mu.Lock()
	defer rr.mu.Unlock()

	return rr.write(run)
}

func (rr *RunRepository) UpdateActiveRun(_ context.Context, run *models.RunInstance) (bool, error) {
	rr.mu.Lock()
	defer rr.mu.Unlock()

	stored, err := rr.read(run.ID)
	if err != nil {
		return false, err
	}

	if stored.State != models.RunStateRunning {
		return false, nil
	}

	if err := rr.write(run); err != nil {
		return false, err
	}

	return true, nil
}

func (rr *RunRepository) DueRuns(_ context.Context, before time.Time, limit int) ([]*models.RunInstance, error) {
	rr.mu.Lock()
	defer rr.mu.Unlock()

	all, err := rr.all()
	if err != nil {
		return nil, err
	}

	due := make([]*models.RunInstance, 0)

	for _, run := range all {
		if run.State == models.RunStateSuspended && run.ResumeAt != nil && !run.ResumeAt.After(before) {
			due = append(due, run)
		}
	}

	sort.Slice(due, func(i, j int) bool {
		return due[i].ResumeAt.Before(*due[j].ResumeAt)
	})

	if limit > 0 && len(due) > limit {
		due = due[:limit]
	}

	return due, nil
}

func (rr *RunRepository) ClaimRun(_ context.Context, id string) (bool, error) {
	rr.mu.Lock()
	defer rr.mu.Unlock()

	run, err := rr.read(id)
	if err != nil {
		if persistence.IsRunNotFound(err) {
			return false, nil
		}

		return false, err
	}

	if run.State != models.RunStateSuspended {
		return false, nil
	}

	if err := run.TransitionTo(models.RunStateRunning); err != nil {
		return false, persistence.NewRunError("ClaimRun", id, err)
	}

	if err := rr.write(run); err != nil {
		return false, err
	}

	return true, nil
}

func (rr *RunRepository) ActiveRun(_ context.Context, workflowID, subjectID string) (*models.RunInstance, error) {
	rr.mu.Lock()
	defer rr.mu.Unlock()

	all, err := rr.all()
	if err != nil {
		return nil, err
	}

	for _, run := range all {
		if run.WorkflowID == workflowID && run.SubjectID == subjectID && run.IsActive() {
			return run, nil
		}
	}

	return nil, persistence.NewRunError("ActiveRun", "", persistence.ErrRunNotFound)
}

func (rr *RunRepository) RunsBySubject(_ context.Context, organizationID, subjectID string) ([]*models.RunInstance, error) {
	rr.mu.Lock()
	defer rr.mu.Unlock()

	all, err := rr.all()
	if err != nil {
		return nil, err
	}

	runs := make([]*models.RunInstance, 0)

	for _, run := range all {
		if run.OrganizationID == organizationID && run.SubjectID == subjectID {
			runs = append(runs, run)
		}
	}

	sort.Slice(runs, func(i, j int) bool {
		return runs[i].StartedAt.After(runs[j].StartedAt)
	})

	return runs, nil
}

func (rr *RunRepository) RunsByWorkflow(_ context.Context, workflowID string) ([]*models.RunInstance, error) {
	rr.mu.Lock()
	defer rr.mu.Unlock()

	all, err := rr.all()
	if err != nil {
		return nil, err
	}

	runs := make([]*models.RunInstance, 0)

	for _, run := range all {
		if run.WorkflowID == workflowID {
			runs = append(runs, run)
		}
	}

	sort.Slice(runs, func(i, j int) bool {
		return runs[i].StartedAt.After(runs[j].StartedAt)
	})

	return runs, nil
}
