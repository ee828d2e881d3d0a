// Package audit exposes the run history stored in the append-only node
// execution log, and keeps that log from growing without bound.
package audit

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/dripflow/dripflow/pkg/models"
	"github.com/dripflow/dripflow/pkg/persistence"
)

// RunTrail is a run together with its full execution record, the view an
// operator reads when debugging why a run behaved the way it did.
type RunTrail struct {
	Run     *models.RunInstance           `json:"run"`
	Records []*models.NodeExecutionRecord `json:"records"`
}

// Service answers history queries over runs and their execution records.
type Service struct {
	logger      *slog.Logger
	persistence persistence.Persistence
}

// NewService creates a new audit query service.
func NewService(logger *slog.Logger, store persistence.Persistence) *Service {
	return &Service{
		logger:      logger.With("module", "audit"),
		persistence: store,
	}
}

// RunTrail returns a run and every node execution record appended for it, in
// append order.
func (s *Service) RunTrail(ctx context.Context, runID string) (*RunTrail, error) {
	run, err := s.persistence.Runs().GetByID(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}

	records, err := s.persistence.ExecutionLog().RecordsByRun(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to get execution records: %w", err)
	}

	return &RunTrail{Run: run, Records: records}, nil
}

// SubjectHistory returns every run an organization's subject has been through,
// most recent first.
func (s *Service) SubjectHistory(ctx context.Context, organizationID, subjectID string) ([]*models.RunInstance, error) {
	runs, err := s.persistence.Runs().RunsBySubject(ctx, organizationID, subjectID)
	if err != nil {
		return nil, fmt.Errorf("failed to get subject history: %w", err)
	}

	return runs, nil
}

// WorkflowRuns returns every run started from one published workflow version.
func (s *Service) WorkflowRuns(ctx context.Context, workflowID string) ([]*models.RunInstance, error) {
	runs, err := s.persistence.Runs().RunsByWorkflow(ctx, workflowID)
	if err != nil {
		return nil, fmt.Errorf("failed to get workflow runs: %w", err)
	}

	return runs, nil
}
