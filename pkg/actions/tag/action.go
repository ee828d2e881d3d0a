// Package tag implements the add_tag and remove_tag actions. Both share one
// action type since they differ only in direction.
package tag

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/dripflow/dripflow/pkg/models"
	"github.com/dripflow/dripflow/pkg/protocol"
)

// TagAction adds or removes a tag on the subject. Adding a tag the subject
// already carries, or removing one it does not, succeeds without effect.
type TagAction struct {
	pipeline protocol.PipelineService
	tagID    string
	remove   bool
}

func NewTagAction(pipeline protocol.PipelineService, config *models.TagConfig, remove bool) *TagAction {
	return &TagAction{
		pipeline: pipeline,
		tagID:    config.TagID,
		remove:   remove,
	}
}

func (a *TagAction) Execute(ctx context.Context, run *models.RunInstance, subject *models.Subject, logger *slog.Logger) error {
	actionType := "add_tag"
	if a.remove {
		actionType = "remove_tag"
	}

	logger = logger.With("action_type", actionType, "tag_id", a.tagID)

	exists, err := a.pipeline.TagExists(ctx, run.OrganizationID, a.tagID)
	if err != nil {
		return protocol.NewRetryableError(fmt.Errorf("checking tag: %w", err))
	}

	if !exists {
		return protocol.NewFatalError(fmt.Errorf("tag %s no longer exists", a.tagID))
	}

	if a.remove {
		if !subject.HasTag(a.tagID) {
			logger.Debug("Subject does not carry tag")

			return nil
		}

		if err := a.pipeline.RemoveTag(ctx, run.OrganizationID, subject.ID, a.tagID); err != nil {
			return fmt.Errorf("removing tag %s from subject %s: %w", a.tagID, subject.ID, err)
		}

		logger.Info("Removed tag from subject", "subject_id", subject.ID)

		return nil
	}

	if subject.HasTag(a.tagID) {
		logger.Debug("Subject already carries tag")

		return nil
	}

	if err := a.pipeline.AddTag(ctx, run.OrganizationID, subject.ID, a.tagID); err != nil {
		return fmt.Errorf("adding tag %s to subject %s: %w", a.tagID, subject.ID, err)
	}

	logger.Info("Added tag to subject", "subject_id", subject.ID)

	return nil
}
