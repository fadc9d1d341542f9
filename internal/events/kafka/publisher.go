package kafka

import (
	"context"
	"encoding/json"

	"github.com/segmentio/kafka-go"

	"mpesa-stk-gateway/internal/model"
)

// Publisher writes payment result events to a Kafka topic.
type Publisher struct {
	writer *kafka.Writer
}

// NewPublisher creates a publisher for the given brokers and topic.
func NewPublisher(brokers []string, topic string) *Publisher {
	return &Publisher{
		writer: &kafka.Writer{
			Addr:     kafka.TCP(brokers...),
			Topic:    topic,
			Balancer: &kafka.LeastBytes{},
		},
	}
}

// Publish writes one event, keyed by checkout request ID so redeliveries
// for the same transaction land in the same partition.
func (p *Publisher) Publish(ctx context.Context, event model.PaymentResultEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}

	return p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(event.CheckoutRequestID),
		Value: data,
	})
}

// Close flushes and closes the underlying writer.
func (p *Publisher) Close() error {
	return p.writer.Close()
}
