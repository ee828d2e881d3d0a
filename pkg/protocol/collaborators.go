package protocol

import (
	"context"

	"github.com/dripflow/dripflow/pkg/models"
)

// PipelineService is the CRM collaborator that owns subjects, pipeline stages
// and tags. Mutations are idempotent: moving a subject to its current stage or
// adding a tag it already carries succeeds without effect.
type PipelineService interface {
	GetSubject(ctx context.Context, organizationID, subjectID string) (*models.Subject, error)
	MoveStage(ctx context.Context, organizationID, subjectID, stageID string) error
	AddTag(ctx context.Context, organizationID, subjectID, tagID string) error
	RemoveTag(ctx context.Context, organizationID, subjectID, tagID string) error
	StageExists(ctx context.Context, organizationID, stageID string) (bool, error)
	TagExists(ctx context.Context, organizationID, tagID string) (bool, error)
}

// MessagingService sends templated email on behalf of an organization.
type MessagingService interface {
	SendTemplate(ctx context.Context, organizationID, subjectID, templateID, subjectLine string) error
	TemplateExists(ctx context.Context, organizationID, templateID string) (bool, error)
}

// WebhookDispatcher delivers a payload to a registered outbound endpoint.
type WebhookDispatcher interface {
	Deliver(ctx context.Context, organizationID, endpointID string, payload map[string]any) error
	EndpointExists(ctx context.Context, organizationID, endpointID string) (bool, error)
}
