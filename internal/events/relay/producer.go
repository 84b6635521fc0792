package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/twmb/franz-go/pkg/kgo"

	"crmhub/internal/events"
)

// Producer ships a batch of events to the broker. A nil error means every
// event in the batch was acknowledged.
type Producer interface {
	Produce(ctx context.Context, batch []*events.Event) error
}

// KafkaProducer produces events to the client's default topic, keyed by
// company so a tenant's events stay ordered within a partition.
type KafkaProducer struct {
	client *kgo.Client
}

func NewKafkaProducer(client *kgo.Client) *KafkaProducer {
	return &KafkaProducer{client: client}
}

func (p *KafkaProducer) Produce(ctx context.Context, batch []*events.Event) error {
	records := make([]*kgo.Record, 0, len(batch))
	for _, e := range batch {
		rec, err := toRecord(e)
		if err != nil {
			return err
		}
		records = append(records, rec)
	}
	if err := p.client.ProduceSync(ctx, records...).FirstErr(); err != nil {
		return fmt.Errorf("produce outbox batch: %w", err)
	}
	return nil
}

func toRecord(e *events.Event) (*kgo.Record, error) {
	value, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("encode event %s: %w", e.ID.String(), err)
	}
	return &kgo.Record{
		Key:   []byte(e.CompanyID.String()),
		Value: value,
		Headers: []kgo.RecordHeader{
			{Key: "event_type", Value: []byte(e.Type)},
			{Key: "event_id", Value: []byte(e.ID.String())},
		},
		Timestamp: e.OccurredAt,
	}, nil
}

// LogProducer stands in for Kafka when no brokers are configured so the
// outbox still drains in development.
type LogProducer struct {
	logger *slog.Logger
}

func NewLogProducer(logger *slog.Logger) *LogProducer {
	return &LogProducer{logger: logger}
}

func (p *LogProducer) Produce(ctx context.Context, batch []*events.Event) error {
	for _, e := range batch {
		p.logger.InfoContext(ctx, "outbox event",
			"event_id", e.ID.String(),
			"type", string(e.Type),
			"company_id", e.CompanyID.String(),
			"aggregate_id", e.AggregateID,
		)
	}
	return nil
}
