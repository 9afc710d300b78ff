// Package events publishes job lifecycle events to Kafka for downstream
// analytics. The publisher is optional: a nil *Publisher drops events, so
// the worker runs unchanged without brokers configured.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
)

// JobEvent is the unit published per terminal job transition. Keyed by
// content group so one group's events land on one partition in order.
type JobEvent struct {
	JobID          string    `json:"job_id"`
	UserID         string    `json:"user_id"`
	ContentGroupID string    `json:"content_group_id"`
	JobType        string    `json:"job_type"`
	Status         string    `json:"status"`
	Progress       int       `json:"progress"`
	SectionsFailed []string  `json:"sections_failed,omitempty"`
	OccurredAt     time.Time `json:"occurred_at"`
}

// Publisher writes JSON-encoded job events to one Kafka topic.
type Publisher struct {
	writer *kafka.Writer
	logger zerolog.Logger
}

// NewPublisher builds a Publisher for the given brokers and topic. Returns
// nil when no brokers are configured.
func NewPublisher(brokers []string, topic string, logger zerolog.Logger) *Publisher {
	if len(brokers) == 0 {
		return nil
	}
	w := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: 10 * time.Millisecond,
		MaxAttempts:  3,
		RequiredAcks: kafka.RequireAll,
	}
	return &Publisher{writer: w, logger: logger}
}

// Publish serialises one event and writes it synchronously. Safe on a nil
// receiver.
func (p *Publisher) Publish(ctx context.Context, ev JobEvent) error {
	if p == nil {
		return nil
	}
	value, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal job event: %w", err)
	}
	msg := kafka.Message{
		Key:   []byte(ev.ContentGroupID),
		Value: value,
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		p.logger.Error().Err(err).Str("job_id", ev.JobID).Msg("publish job event failed")
		return fmt.Errorf("publish job event: %w", err)
	}
	return nil
}

// Close flushes pending writes. Safe on a nil receiver.
func (p *Publisher) Close() error {
	if p == nil {
		return nil
	}
	return p.writer.Close()
}
