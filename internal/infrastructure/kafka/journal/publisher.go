package journal

import (
	"context"
	"encoding/json"

	journalv1 "github.com/muhammadchandra19/execution-engine/internal/domain/journal/v1"
	"github.com/muhammadchandra19/execution-engine/pkg/config"
	"github.com/muhammadchandra19/execution-engine/pkg/errors"
	"github.com/muhammadchandra19/execution-engine/pkg/logger"
	"github.com/segmentio/kafka-go"
)

// Publisher publishes audit journal events to a Kafka topic.
type Publisher struct {
	kafkaWriter *kafka.Writer
	logger      logger.Interface
}

var _ journalv1.Sink = (*Publisher)(nil)

// NewPublisher creates a Kafka journal publisher.
func NewPublisher(cfg config.KafkaConfig, log logger.Interface) *Publisher {
	kafkaWriter := kafka.NewWriter(kafka.WriterConfig{
		Brokers: cfg.Brokers,
		Topic:   cfg.Topic,
	})

	return &Publisher{
		kafkaWriter: kafkaWriter,
		logger:      log,
	}
}

// Name identifies the sink in logs.
func (p *Publisher) Name() string {
	return "kafka"
}

// Publish writes the event to the journal topic, keyed by oms id so all
// events for one order land in the same partition.
func (p *Publisher) Publish(ctx context.Context, event journalv1.Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return errors.TracerFromError(err)
	}

	msg := kafka.Message{
		Key:   []byte(event.OMSID),
		Value: payload,
	}

	if err := p.kafkaWriter.WriteMessages(ctx, msg); err != nil {
		p.logger.Error(errors.TracerFromError(err),
			logger.Field{Key: "event_id", Value: event.ID},
			logger.Field{Key: "kind", Value: event.Kind},
		)
		return errors.TracerFromError(errors.NewErrorDetails(
			"failed to publish journal event",
			string(errors.JournalPublishError),
			"kafka",
		))
	}
	return nil
}

// Close closes the underlying Kafka writer.
func (p *Publisher) Close() error {
	return p.kafkaWriter.Close()
}
