// Package messaging moves domain events from the outbox to Kafka and feeds
// salary documents from Kafka into the workflow.
package messaging

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/bibbank/origination/pkg/events"
	pkgkafka "github.com/bibbank/origination/pkg/kafka"
)

const defaultBatchSize = 100

// Publisher is satisfied by *pkgkafka.Producer.
type Publisher interface {
	Publish(ctx context.Context, topic string, messages ...pkgkafka.Message) error
}

// OutboxRelay polls the outbox and publishes unpublished entries. Delivery
// is at least once: entries are marked only after Kafka acknowledged them.
type OutboxRelay struct {
	outbox    events.OutboxRepository
	publisher Publisher
	topic     string
	interval  time.Duration
	batchSize int
	logger    *slog.Logger
}

// NewOutboxRelay creates a relay publishing to topic every interval.
func NewOutboxRelay(
	outbox events.OutboxRepository,
	publisher Publisher,
	topic string,
	interval time.Duration,
	logger *slog.Logger,
) *OutboxRelay {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	return &OutboxRelay{
		outbox:    outbox,
		publisher: publisher,
		topic:     topic,
		interval:  interval,
		batchSize: defaultBatchSize,
		logger:    logger,
	}
}

// Run relays until ctx is cancelled.
func (r *OutboxRelay) Run(ctx context.Context) {
	r.logger.Info("outbox relay starting", "topic", r.topic, "interval", r.interval)
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			r.logger.Info("outbox relay stopped")
			return
		case <-ticker.C:
			if _, err := r.RelayOnce(ctx); err != nil && ctx.Err() == nil {
				r.logger.Error("outbox relay failed", "error", err)
			}
		}
	}
}

// RelayOnce publishes one batch and reports how many entries were sent.
func (r *OutboxRelay) RelayOnce(ctx context.Context) (int, error) {
	entries, err := r.outbox.FetchUnpublished(ctx, r.batchSize)
	if err != nil {
		return 0, fmt.Errorf("fetch outbox: %w", err)
	}
	if len(entries) == 0 {
		return 0, nil
	}

	messages := make([]pkgkafka.Message, 0, len(entries))
	ids := make([]string, 0, len(entries))
	for _, e := range entries {
		messages = append(messages, pkgkafka.Message{
			Key:   []byte(e.AggregateID),
			Value: e.Payload,
			Headers: map[string]string{
				"event_type":     e.EventType,
				"event_id":       e.ID,
				"aggregate_type": e.AggregateType,
			},
		})
		ids = append(ids, e.ID)
	}

	if err := r.publisher.Publish(ctx, r.topic, messages...); err != nil {
		return 0, fmt.Errorf("publish to %s: %w", r.topic, err)
	}
	if err := r.outbox.MarkPublished(ctx, ids); err != nil {
		return 0, fmt.Errorf("mark published: %w", err)
	}

	r.logger.DebugContext(ctx, "outbox relayed", "count", len(entries), "topic", r.topic)
	return len(entries), nil
}
