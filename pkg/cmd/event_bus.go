package cmd

import (
	"fmt"
	"log/slog"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/dripflow/dripflow/pkg/channels/gochannel"
	"github.com/dripflow/dripflow/pkg/channels/kafka"
	"github.com/dripflow/dripflow/pkg/eventbus"
)

func createChannel(provider, serviceName string, logger *slog.Logger) (message.Publisher, message.Subscriber, error) {
	wmLogger := watermill.NewSlogLogger(logger)

	switch provider {
	case "kafka":
		return kafka.CreateChannel(wmLogger, serviceName)
	case "", "gochannel":
		return gochannel.CreateChannel(wmLogger)
	default:
		return nil, nil, fmt.Errorf("unsupported event bus provider: %s", provider)
	}
}

// NewEventBus creates the engine lifecycle event bus.
func NewEventBus(provider, serviceName string, logger *slog.Logger) (eventbus.EventBus, error) {
	pub, sub, err := createChannel(provider, serviceName, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create event bus channel: %w", err)
	}

	return eventbus.NewWatermillEventBus(pub, sub), nil
}

// NewCRMEventBus creates the inbound CRM event bus.
func NewCRMEventBus(provider, serviceName string, logger *slog.Logger) (eventbus.CRMEventBus, error) {
	pub, sub, err := createChannel(provider, serviceName, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create crm event bus channel: %w", err)
	}

	return eventbus.NewWatermillCRMEventBus(pub, sub), nil
}
