// Package sendemail implements the action that sends a templated email to a
// contact. Delivery is deduplicated upstream by the run execution log, so a
// crash between send and record can at worst repeat one send.
package sendemail

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/dripflow/dripflow/pkg/models"
	"github.com/dripflow/dripflow/pkg/protocol"
	"github.com/dripflow/dripflow/pkg/template"
)

type SendEmailAction struct {
	messaging   protocol.MessagingService
	templateID  string
	subjectLine string
}

func NewSendEmailAction(messaging protocol.MessagingService, config *models.SendEmailConfig) *SendEmailAction {
	return &SendEmailAction{
		messaging:   messaging,
		templateID:  config.TemplateID,
		subjectLine: config.SubjectLine,
	}
}

func (a *SendEmailAction) Execute(ctx context.Context, run *models.RunInstance, subject *models.Subject, logger *slog.Logger) error {
	logger = logger.With("action_type", "send_email", "template_id", a.templateID)

	exists, err := a.messaging.TemplateExists(ctx, run.OrganizationID, a.templateID)
	if err != nil {
		return protocol.NewRetryableError(fmt.Errorf("checking template: %w", err))
	}

	if !exists {
		return protocol.NewFatalError(fmt.Errorf("template %s no longer exists", a.templateID))
	}

	subjectLine := a.subjectLine
	if subjectLine != "" {
		rendered, err := template.RenderMergeFields(subjectLine, subject)
		if err != nil {
			return protocol.NewFatalError(fmt.Errorf("rendering subject line: %w", err))
		}

		subjectLine = rendered
	}

	if err := a.messaging.SendTemplate(ctx, run.OrganizationID, subject.ID, a.templateID, subjectLine); err != nil {
		return fmt.Errorf("sending template %s to subject %s: %w", a.templateID, subject.ID, err)
	}

	logger.Info("Sent templated email", "subject_id", subject.ID)

	return nil
}
