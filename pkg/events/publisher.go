package events

import (
	"context"
	"encoding/json"
	"log"

	"github.com/segmentio/kafka-go"

	"friction-intel-api/pkg/models"
)

// Publisher sends snapshot events to Kafka for the dashboard consumers.
type Publisher struct {
	writer *kafka.Writer
}

// NewPublisher creates a producer for the snapshots topic.
func NewPublisher(brokers []string, topic string) *Publisher {
	return &Publisher{
		writer: &kafka.Writer{
			Addr:     kafka.TCP(brokers...),
			Topic:    topic,
			Balancer: &kafka.LeastBytes{},
		},
	}
}

// PublishSnapshot emits one event per persisted snapshot, keyed by account so
// consumers see an account's snapshots in order.
func (p *Publisher) PublishSnapshot(ctx context.Context, snapshot *models.AccountSnapshot) error {
	data, err := json.Marshal(snapshot)
	if err != nil {
		return err
	}

	msg := kafka.Message{
		Key:   []byte(snapshot.AccountID),
		Value: data,
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return err
	}

	log.Printf("published snapshot event for account %s (%s)", snapshot.AccountID, snapshot.SnapshotDate)
	return nil
}

// Close closes the underlying writer.
func (p *Publisher) Close() error {
	return p.writer.Close()
}
