// Package movestage implements the action that moves a contact to another
// pipeline stage.
package movestage

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/dripflow/dripflow/pkg/models"
	"github.com/dripflow/dripflow/pkg/protocol"
)

// MoveStageAction moves the subject to the configured stage. The pipeline
// service treats a move to the current stage as a no-op, so re-execution is
// safe.
type MoveStageAction struct {
	pipeline protocol.PipelineService
	stageID  string
}

func NewMoveStageAction(pipeline protocol.PipelineService, config *models.MoveStageConfig) *MoveStageAction {
	return &MoveStageAction{
		pipeline: pipeline,
		stageID:  config.StageID,
	}
}

func (a *MoveStageAction) Execute(ctx context.Context, run *models.RunInstance, subject *models.Subject, logger *slog.Logger) error {
	logger = logger.With("action_type", "move_stage", "stage_id", a.stageID)

	exists, err := a.pipeline.StageExists(ctx, run.OrganizationID, a.stageID)
	if err != nil {
		return protocol.NewRetryableError(fmt.Errorf("checking stage: %w", err))
	}

	if !exists {
		return protocol.NewFatalError(fmt.Errorf("stage %s no longer exists", a.stageID))
	}

	if subject.StageID == a.stageID {
		logger.Debug("Subject already in target stage")

		return nil
	}

	if err := a.pipeline.MoveStage(ctx, run.OrganizationID, subject.ID, a.stageID); err != nil {
		return fmt.Errorf("moving subject %s to stage %s: %w", subject.ID, a.stageID, err)
	}

	logger.Info("Moved subject to stage", "subject_id", subject.ID)

	return nil
}
