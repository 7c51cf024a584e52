package eventbus

import (
	"os"

	"github.com/IBM/sarama"
	"github.com/ThreeDotsLabs/watermill"
	kafka "github.com/ThreeDotsLabs/watermill-kafka/v3/pkg/kafka"
)

// NewKafkaTransport builds a Watermill publisher/subscriber pair backed by
// sarama, reading brokers from KAFKA_BROKERS (comma has no special meaning
// here; a single address is expected, matching the teacher's setup).
func NewKafkaTransport(logger watermill.LoggerAdapter, consumerGroup string) (*kafka.Publisher, *kafka.Subscriber, error) {
	brokers := []string{"kafka:9092"}
	if host := os.Getenv("KAFKA_BROKERS"); host != "" {
		brokers = []string{host}
	}

	subscriberConfig := kafka.DefaultSaramaSubscriberConfig()
	subscriberConfig.Consumer.Offsets.Initial = sarama.OffsetOldest

	subscriber, err := kafka.NewSubscriber(
		kafka.SubscriberConfig{
			Brokers:               brokers,
			Unmarshaler:           kafka.DefaultMarshaler{},
			OverwriteSaramaConfig: subscriberConfig,
			ConsumerGroup:         consumerGroup,
		},
		logger,
	)
	if err != nil {
		return nil, nil, err
	}

	publisherConfig := sarama.NewConfig()
	publisherConfig.Producer.Return.Successes = true

	publisher, err := kafka.NewPublisher(
		kafka.PublisherConfig{
			Brokers:               brokers,
			Marshaler:             kafka.DefaultMarshaler{},
			OverwriteSaramaConfig: publisherConfig,
		},
		logger,
	)
	if err != nil {
		return nil, nil, err
	}

	return publisher, subscriber, nil
}
