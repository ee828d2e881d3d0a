package eventbus

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/dripflow/dripflow/pkg/events"
)

type WatermillCRMEventBus struct {
	publisher  message.Publisher
	subscriber message.Subscriber
	handlers   []CRMEventHandler
}

func NewWatermillCRMEventBus(pub message.Publisher, sub message.Subscriber) *WatermillCRMEventBus {
	return &WatermillCRMEventBus{
		publisher:  pub,
		subscriber: sub,
	}
}

func (eb *WatermillCRMEventBus) GenerateID() string {
	return watermill.NewULID()
}

func (eb *WatermillCRMEventBus) PublishCRMEvent(ctx context.Context, event *events.CRMEvent) error {
	if err := event.Validate(); err != nil {
		return fmt.Errorf("invalid crm event: %w", err)
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}

	msg := message.NewMessage("msg-"+eb.GenerateID(), payload)
	msg.Metadata.Set(events.EventMetadataKey, event.OrganizationID)
	msg.Metadata.Set(events.EventTypeMetadataKey, string(event.Type))

	return eb.publisher.Publish(events.CRMTopic, msg)
}

func (eb *WatermillCRMEventBus) HandleCRMEvents(handler CRMEventHandler) error {
	eb.handlers = append(eb.handlers, handler)

	return nil
}

func (eb *WatermillCRMEventBus) SubscribeToCRMEvents(ctx context.Context) error {
	messages, err := eb.subscriber.Subscribe(ctx, events.CRMTopic)
	if err != nil {
		return err
	}

	go func() {
		for msg := range messages {
			var event events.CRMEvent
			if err := json.Unmarshal(msg.Payload, &event); err != nil {
				msg.Nack()

				continue
			}

			failed := false

			for _, handler := range eb.handlers {
				if err := handler(ctx, &event); err != nil {
					failed = true

					break
				}
			}

			if failed {
				msg.Nack()

				continue
			}

			msg.Ack()
		}
	}()

	return nil
}

func (eb *WatermillCRMEventBus) Close() error {
	if err := eb.publisher.Close(); err != nil {
		return err
	}

	return eb.subscriber.Close()
}
