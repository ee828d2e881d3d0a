package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/dripflow/dripflow/pkg/events"
	"github.com/dripflow/dripflow/pkg/models"
	"github.com/dripflow/dripflow/pkg/persistence"
)

// TriggerMatcher evaluates CRM events against the published workflows of the
// event's organization and starts runs for the ones that match.
type TriggerMatcher struct {
	logger      *slog.Logger
	persistence persistence.Persistence
	executor    *Executor
}

// NewTriggerMatcher creates a new trigger matcher.
func NewTriggerMatcher(logger *slog.Logger, store persistence.Persistence, executor *Executor) *TriggerMatcher {
	return &TriggerMatcher{
		logger:      logger.With("module", "trigger_matcher"),
		persistence: store,
		executor:    executor,
	}
}

// OnEvent handles one CRM event: every published workflow whose trigger
// matches gets a run, except subjects that already have an active run for
// that workflow.
func (tm *TriggerMatcher) OnEvent(ctx context.Context, event *events.CRMEvent) error {
	if err := event.Validate(); err != nil {
		// Malformed events are logged and dropped, never retried.
		tm.logger.Warn("Dropping invalid crm event", "event_id", event.ID, "error", err)

		return nil
	}

	workflows, err := tm.persistence.Workflows().PublishedByOrganization(ctx, event.OrganizationID)
	if err != nil {
		return fmt.Errorf("failed to load published workflows: %w", err)
	}

	tm.logger.Debug("Matching crm event against workflows",
		"event_type", event.Type,
		"subject_id", event.SubjectID,
		"workflows_count", len(workflows))

	for _, workflow := range workflows {
		graph, err := models.Compile(workflow)
		if err != nil {
			// A published version that fails to compile is a data problem;
			// skip it rather than blocking the whole event.
			tm.logger.Error("Skipping workflow with invalid graph",
				"workflow_id", workflow.ID, "error", err)

			continue
		}

		trigger := graph.Trigger()

		config, ok := trigger.Config.(*models.TriggerConfig)
		if !ok {
			continue
		}

		if !tm.matches(config, event) {
			continue
		}

		run, err := tm.startRun(ctx, workflow, trigger.Node.ID, event.SubjectID, string(event.Type))
		if err != nil {
			return err
		}

		if run == nil {
			continue
		}

		if err := tm.executor.Execute(ctx, run); err != nil {
			return fmt.Errorf("failed to execute run %s: %w", run.ID, err)
		}
	}

	return nil
}

// matches applies the trigger's filters. An absent filter matches any event
// of the trigger's type.
func (tm *TriggerMatcher) matches(config *models.TriggerConfig, event *events.CRMEvent) bool {
	if config.TriggerType != event.Type {
		return false
	}

	switch event.Type {
	case models.CRMEventStageChanged:
		return config.ToStageID == "" || config.ToStageID == event.Payload.ToStageID
	case models.CRMEventTagAdded, models.CRMEventTagRemoved:
		return config.TagID == "" || config.TagID == event.Payload.TagID
	default:
		return true
	}
}

// TriggerManually starts a run outside of event matching, bypassing the
// trigger's filters but not the active-run dedup.
func (tm *TriggerMatcher) TriggerManually(ctx context.Context, workflowID, subjectID string) (*models.RunInstance, error) {
	workflow, err := tm.persistence.Workflows().GetByID(ctx, workflowID)
	if err != nil {
		return nil, fmt.Errorf("failed to get workflow: %w", err)
	}

	if !workflow.IsExecutable() {
		return nil, fmt.Errorf("workflow %s is not published", workflowID)
	}

	graph, err := models.Compile(workflow)
	if err != nil {
		return nil, fmt.Errorf("workflow graph is invalid: %w", err)
	}

	run, err := tm.startRun(ctx, workflow, graph.Trigger().Node.ID, subjectID, "manual")
	if err != nil {
		return nil, err
	}

	if run == nil {
		return nil, persistence.ErrActiveRunExists
	}

	if err := tm.executor.Execute(ctx, run); err != nil {
		return nil, fmt.Errorf("failed to execute run %s: %w", run.ID, err)
	}

	return run, nil
}

// startRun persists a new run positioned on the trigger node. A dedup
// conflict returns (nil, nil): losing the race is expected, not an error.
func (tm *TriggerMatcher) startRun(ctx context.Context, workflow *models.WorkflowDefinition, triggerNodeID, subjectID, triggeredBy string) (*models.RunInstance, error) {
	now := time.Now().UTC()

	run := &models.RunInstance{
		ID:              uuid.Must(uuid.NewV7()).String(),
		OrganizationID:  workflow.OrganizationID,
		WorkflowID:      workflow.ID,
		WorkflowGroupID: workflow.GroupID,
		WorkflowVersion: workflow.Version,
		SubjectID:       subjectID,
		CurrentNodeID:   triggerNodeID,
		State:           models.RunStateRunning,
		TriggeredBy:     triggeredBy,
		StartedAt:       now,
		UpdatedAt:       now,
	}

	err := tm.persistence.Runs().CreateRun(ctx, run)
	if err != nil {
		if persistence.IsActiveRunExists(err) {
			tm.logger.Debug("Subject already has an active run",
				"workflow_id", workflow.ID,
				"subject_id", subjectID)

			return nil, nil
		}

		return nil, fmt.Errorf("failed to create run: %w", err)
	}

	tm.logger.Info("Started run",
		"run_id", run.ID,
		"workflow_id", workflow.ID,
		"workflow_version", workflow.Version,
		"subject_id", subjectID,
		"triggered_by", triggeredBy)

	return run, nil
}
