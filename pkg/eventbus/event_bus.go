// Package eventbus provides the messaging layer between the CRM, the trigger
// matcher and the run executor.
package eventbus

import (
	"context"

	"github.com/dripflow/dripflow/pkg/events"
)

type Event interface {
	GetType() events.EventType
}

type EventPublisher interface {
	Publish(ctx context.Context, key string, event Event) error
}

type EventSubscriber interface {
	Handle(eventType events.EventType, handler EventHandler) error
	Subscribe(ctx context.Context) error
}

type EventHandler func(ctx context.Context, event any) error

// EventBus carries the engine's run lifecycle events.
type EventBus interface {
	EventPublisher
	EventSubscriber
	Close() error
	GenerateID() string
}

// CRMEventHandler is called for each inbound CRM domain event.
type CRMEventHandler func(ctx context.Context, event *events.CRMEvent) error

// CRMEventBus carries inbound CRM domain events from the pipeline service
// (or a queue receiver) to the trigger matcher.
type CRMEventBus interface {
	PublishCRMEvent(ctx context.Context, event *events.CRMEvent) error
	HandleCRMEvents(handler CRMEventHandler) error
	SubscribeToCRMEvents(ctx context.Context) error
	Close() error
}
