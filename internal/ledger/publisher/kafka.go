// Package publisher provides the Kafka mirror the ledger uses as its
// fallback channel: events that fail to persist to the primary store are
// produced to a topic so the audit trail survives a store outage.
package publisher

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/twmb/franz-go/pkg/kgo"

	"civis/internal/domain"
)

type Kafka struct {
	client *kgo.Client
	topic  string
	logger *slog.Logger
}

func NewKafka(brokers []string, topic string, logger *slog.Logger) (*Kafka, error) {
	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.DefaultProduceTopic(topic),
	)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Kafka{client: client, topic: topic, logger: logger}, nil
}

// Publish produces the event asynchronously. This is the channel of last
// resort; a produce failure is logged, never returned, so the caller's
// business outcome stays unaffected.
func (k *Kafka) Publish(ctx context.Context, event domain.AuditEvent) {
	payload, err := json.Marshal(event)
	if err != nil {
		k.logger.ErrorContext(ctx, "could not marshal audit event for mirror", "error", err)
		return
	}

	record := &kgo.Record{
		Topic: k.topic,
		Key:   []byte(event.SessionID),
		Value: payload,
	}
	k.client.Produce(ctx, record, func(_ *kgo.Record, err error) {
		if err != nil {
			k.logger.Error("audit mirror produce failed",
				"event_id", event.ID,
				"event_type", event.Type,
				"error", err,
			)
		}
	})
}

func (k *Kafka) Close() {
	k.client.Close()
}
