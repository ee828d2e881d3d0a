package webhook

import (
	"fmt"

	"github.com/dripflow/dripflow/pkg/models"
	"github.com/dripflow/dripflow/pkg/protocol"
)

func NewWebhookActionFactory(dispatcher protocol.WebhookDispatcher) *WebhookActionFactory {
	return &WebhookActionFactory{dispatcher: dispatcher}
}

type WebhookActionFactory struct {
	dispatcher protocol.WebhookDispatcher
}

func (f *WebhookActionFactory) Type() models.NodeType {
	return models.NodeTypeWebhook
}

func (f *WebhookActionFactory) Create(config models.NodeConfig) (protocol.Action, error) {
	cfg, ok := config.(*models.WebhookConfig)
	if !ok {
		return nil, fmt.Errorf("webhook: unexpected config type %T", config)
	}

	return NewWebhookAction(f.dispatcher, cfg), nil
}

func (f *WebhookActionFactory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"endpoint_id": map[string]any{
				"type":        "string",
				"minLength":   1,
				"description": "Registered outbound endpoint to deliver to",
			},
		},
		"required": []any{"endpoint_id"},
	}
}
