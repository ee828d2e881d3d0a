// Package webhook implements the action that posts run context to a
// registered outbound endpoint. Like send_email, delivery is deduplicated by
// the run execution log rather than by the endpoint.
package webhook

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/dripflow/dripflow/pkg/models"
	"github.com/dripflow/dripflow/pkg/protocol"
)

type WebhookAction struct {
	dispatcher protocol.WebhookDispatcher
	endpointID string
}

func NewWebhookAction(dispatcher protocol.WebhookDispatcher, config *models.WebhookConfig) *WebhookAction {
	return &WebhookAction{
		dispatcher: dispatcher,
		endpointID: config.EndpointID,
	}
}

func (a *WebhookAction) Execute(ctx context.Context, run *models.RunInstance, subject *models.Subject, logger *slog.Logger) error {
	logger = logger.With("action_type", "webhook", "endpoint_id", a.endpointID)

	exists, err := a.dispatcher.EndpointExists(ctx, run.OrganizationID, a.endpointID)
	if err != nil {
		return protocol.NewRetryableError(fmt.Errorf("checking endpoint: %w", err))
	}

	if !exists {
		return protocol.NewFatalError(fmt.Errorf("endpoint %s no longer exists", a.endpointID))
	}

	payload := map[string]any{
		"run_id":           run.ID,
		"workflow_id":      run.WorkflowID,
		"workflow_version": run.WorkflowVersion,
		"organization_id":  run.OrganizationID,
		"subject": map[string]any{
			"id":       subject.ID,
			"stage_id": subject.StageID,
			"tags":     subject.Tags,
			"fields":   subject.Fields,
		},
		"delivered_at": time.Now().UTC().Format(time.RFC3339),
	}

	if err := a.dispatcher.Deliver(ctx, run.OrganizationID, a.endpointID, payload); err != nil {
		return fmt.Errorf("delivering to endpoint %s: %w", a.endpointID, err)
	}

	logger.Info("Delivered webhook", "subject_id", subject.ID)

	return nil
}
