package eventrelay

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"

	"github.com/nkiryanov/affiliate/internal/models"
)

// Envelope is the wire form of a ledger event
type Envelope struct {
	ID        uuid.UUID       `json:"id"`
	AccountID uuid.UUID       `json:"account_id"`
	Kind      string          `json:"kind"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"created_at"`
}

func NewEnvelope(e models.LedgerEvent) Envelope {
	return Envelope{
		ID:        e.ID,
		AccountID: e.AccountID,
		Kind:      e.Kind,
		Payload:   e.Payload,
		CreatedAt: e.CreatedAt,
	}
}

type KafkaPublisher struct {
	writer *kafka.Writer
}

// Messages are keyed by account, so events of one account keep their order in a partition
func NewKafkaPublisher(brokers []string, topic string) *KafkaPublisher {
	return &KafkaPublisher{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireAll,
		},
	}
}

func (k *KafkaPublisher) Publish(ctx context.Context, events []models.LedgerEvent) error {
	if len(events) == 0 {
		return nil
	}

	messages := make([]kafka.Message, 0, len(events))
	for _, e := range events {
		value, err := json.Marshal(NewEnvelope(e))
		if err != nil {
			return fmt.Errorf("can't marshal event %s: %w", e.ID, err)
		}

		messages = append(messages, kafka.Message{
			Key:     []byte(e.AccountID.String()),
			Value:   value,
			Time:    e.CreatedAt,
			Headers: []kafka.Header{{Key: "kind", Value: []byte(e.Kind)}},
		})
	}

	if err := k.writer.WriteMessages(ctx, messages...); err != nil {
		return fmt.Errorf("failed to write %d events: %w", len(messages), err)
	}

	return nil
}

func (k *KafkaPublisher) Close() error {
	return k.writer.Close()
}
