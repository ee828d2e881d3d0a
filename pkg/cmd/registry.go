package cmd

import (
	"log/slog"

	"github.com/dripflow/dripflow/pkg/actions/movestage"
	"github.com/dripflow/dripflow/pkg/actions/sendemail"
	"github.com/dripflow/dripflow/pkg/actions/tag"
	"github.com/dripflow/dripflow/pkg/actions/webhook"
	"github.com/dripflow/dripflow/pkg/collaborators/local"
	"github.com/dripflow/dripflow/pkg/protocol"
	"github.com/dripflow/dripflow/pkg/registry"
)

// Collaborators bundles the CRM-side services the engine calls into.
type Collaborators struct {
	Pipeline  protocol.PipelineService
	Messaging protocol.MessagingService
	Webhooks  protocol.WebhookDispatcher
}

// NewLocalCollaborators wires the file-backed development collaborators.
func NewLocalCollaborators(dataDir string, logger *slog.Logger) Collaborators {
	service := local.NewService(dataDir, logger)

	return Collaborators{
		Pipeline:  service,
		Messaging: service,
		Webhooks:  service,
	}
}

// NewRegistry builds the action registry with every built-in action type.
func NewRegistry(logger *slog.Logger, collaborators Collaborators) *registry.Registry {
	reg := registry.NewRegistry(logger)

	reg.RegisterAction(movestage.NewMoveStageActionFactory(collaborators.Pipeline))
	reg.RegisterAction(tag.NewAddTagActionFactory(collaborators.Pipeline))
	reg.RegisterAction(tag.NewRemoveTagActionFactory(collaborators.Pipeline))
	reg.RegisterAction(sendemail.NewSendEmailActionFactory(collaborators.Messaging))
	reg.RegisterAction(webhook.NewWebhookActionFactory(collaborators.Webhooks))

	return reg
}
