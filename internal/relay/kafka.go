package relay

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"
)

// KafkaForwarder publishes relay payloads to a Kafka topic, keyed by
// session id so one session's events stay ordered within a partition.
type KafkaForwarder struct {
	writer *kafka.Writer
}

// NewKafkaForwarder builds an async writer for the given brokers and topic.
func NewKafkaForwarder(brokers []string, topic string) *KafkaForwarder {
	return &KafkaForwarder{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.LeastBytes{},
			BatchSize:    100,
			BatchTimeout: time.Millisecond * 100,
			Async:        true,
		},
	}
}

// Forward publishes the payload.
func (f *KafkaForwarder) Forward(ctx context.Context, p Payload) error {
	data, err := json.Marshal(p)
	if err != nil {
		return err
	}

	return f.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(p.AnonymousID),
		Value: data,
	})
}

// Close flushes and closes the writer.
func (f *KafkaForwarder) Close() error {
	return f.writer.Close()
}
