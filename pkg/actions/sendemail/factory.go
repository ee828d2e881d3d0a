package sendemail

import (
	"fmt"

	"github.com/dripflow/dripflow/pkg/models"
	"github.com/dripflow/dripflow/pkg/protocol"
)

func NewSendEmailActionFactory(messaging protocol.MessagingService) *SendEmailActionFactory {
	return &SendEmailActionFactory{messaging: messaging}
}

type SendEmailActionFactory struct {
	messaging protocol.MessagingService
}

func (f *SendEmailActionFactory) Type() models.NodeType {
	return models.NodeTypeSendEmail
}

func (f *SendEmailActionFactory) Create(config models.NodeConfig) (protocol.Action, error) {
	cfg, ok := config.(*models.SendEmailConfig)
	if !ok {
		return nil, fmt.Errorf("send_email: unexpected config type %T", config)
	}

	return NewSendEmailAction(f.messaging, cfg), nil
}

func (f *SendEmailActionFactory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"template_id": map[string]any{
				"type":        "string",
				"minLength":   1,
				"description": "Email template to render and send",
			},
			"subject_line": map[string]any{
				"type":        "string",
				"description": "Optional subject line override, supports merge fields",
			},
		},
		"required": []any{"template_id"},
	}
}
