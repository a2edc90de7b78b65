package eventbus

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/steplinehq/stepline/pkg/events"
)

// WatermillEventBus routes events through a watermill publisher/subscriber
// pair. Every event travels on events.Topic; the concrete type is carried in
// message metadata so consumers only deserialize events they handle.
type WatermillEventBus struct {
	publisher     message.Publisher
	subscriber    message.Subscriber
	subscriptions map[events.EventType]EventHandler
}

func NewWatermillEventBus(pub message.Publisher, sub message.Subscriber) EventBus {
	return &WatermillEventBus{
		publisher:     pub,
		subscriber:    sub,
		subscriptions: make(map[events.EventType]EventHandler),
	}
}

func (eb *WatermillEventBus) GenerateID() string {
	return watermill.NewULID()
}

func (eb *WatermillEventBus) Publish(_ context.Context, key string, event Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}

	msg := message.NewMessage("msg-"+eb.GenerateID(), payload)
	msg.Metadata.Set(events.EventMetadataKey, key)
	msg.Metadata.Set(events.EventTypeMetadataKey, string(event.GetType()))

	return eb.publisher.Publish(events.Topic, msg)
}

func (eb *WatermillEventBus) Subscribe(ctx context.Context) error {
	messages, err := eb.subscriber.Subscribe(ctx, events.Topic)
	if err != nil {
		return err
	}

	go func() {
		for msg := range messages {
			eventType := events.EventType(msg.Metadata.Get(events.EventTypeMetadataKey))

			handler, exists := eb.subscriptions[eventType]
			if !exists {
				msg.Ack()

				continue
			}

			event, err := extractEvent(eventType)
			if err != nil {
				msg.Nack()

				continue
			}

			err = json.Unmarshal(msg.Payload, event)
			if err != nil {
				msg.Nack()

				continue
			}

			err = handler(ctx, event)
			if err != nil {
				msg.Nack()

				continue
			}

			msg.Ack()
		}
	}()

	return nil
}

func (eb *WatermillEventBus) Handle(eventType events.EventType, handler EventHandler) error {
	eb.subscriptions[eventType] = handler

	return nil
}

func (eb *WatermillEventBus) Close() error {
	err := eb.publisher.Close()
	if err != nil {
		return err
	}

	return eb.subscriber.Close()
}

// extractEvent returns an empty event of the concrete type named in the
// message metadata, ready for deserialization.
func extractEvent(eventType events.EventType) (any, error) {
	switch eventType {
	case events.WorkflowRunRequestedEvent:
		return &events.WorkflowRunRequested{}, nil
	case events.ExecutionStartedEvent:
		return &events.ExecutionStarted{}, nil
	case events.ExecutionCompletedEvent:
		return &events.ExecutionCompleted{}, nil
	case events.ExecutionFailedEvent:
		return &events.ExecutionFailed{}, nil
	case events.StepFailedEvent:
		return &events.StepFailed{}, nil
	default:
		return nil, fmt.Errorf("unknown event type: %s", eventType)
	}
}
