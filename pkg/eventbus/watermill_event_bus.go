package eventbus

import (
	"context"
	"encoding/json"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/sirupsen/logrus"
)

// LifecycleTopic is the single Watermill topic lifecycle events publish
// to; subscribers distinguish event kinds by payload, not by topic.
const LifecycleTopic = "actionengine.lifecycle"

// WatermillEventBus publishes lifecycle Events over a Watermill
// publisher/subscriber pair, either the in-process gochannel transport or
// Kafka via watermill-kafka/sarama, selected by the caller at
// construction.
type WatermillEventBus struct {
	publisher  message.Publisher
	subscriber message.Subscriber
	logger     *logrus.Entry
}

// NewWatermillEventBus wraps an already-configured publisher/subscriber
// pair. Passing the same gochannel value for both gives a purely
// in-process bus suitable for tests and the demo CLI.
func NewWatermillEventBus(pub message.Publisher, sub message.Subscriber, logger *logrus.Entry) *WatermillEventBus {
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}

	return &WatermillEventBus{publisher: pub, subscriber: sub, logger: logger.WithField("module", "eventbus")}
}

func (eb *WatermillEventBus) Publish(event Event) {
	payload, err := json.Marshal(event)
	if err != nil {
		eb.logger.WithError(err).Error("failed to marshal lifecycle event")

		return
	}

	msg := message.NewMessage(watermill.NewUUID(), payload)
	msg.Metadata.Set("kind", string(event.Kind))
	msg.Metadata.Set("graph", event.GraphName)

	if err := eb.publisher.Publish(LifecycleTopic, msg); err != nil {
		eb.logger.WithError(err).Error("failed to publish lifecycle event")
	}
}

// Subscribe starts delivering published events to handler until ctx is
// canceled. Delivery runs in a goroutine Subscribe starts itself; the call
// returns as soon as the subscription is open.
func (eb *WatermillEventBus) Subscribe(ctx context.Context, handler Handler) error {
	messages, err := eb.subscriber.Subscribe(ctx, LifecycleTopic)
	if err != nil {
		return err
	}

	go func() {
		for msg := range messages {
			var event Event
			if err := json.Unmarshal(msg.Payload, &event); err != nil {
				eb.logger.WithError(err).Error("failed to unmarshal lifecycle event")
				msg.Nack()

				continue
			}

			if err := handler(ctx, event); err != nil {
				eb.logger.WithError(err).Warn("lifecycle event handler failed")
				msg.Nack()

				continue
			}

			msg.Ack()
		}
	}()

	return nil
}

func (eb *WatermillEventBus) Close() error {
	if err := eb.publisher.Close(); err != nil {
		return err
	}

	return eb.subscriber.Close()
}
