package messaging

import (
	"context"
	"log/slog"
	"time"

	"fabprogress/internal/config"
	"fabprogress/internal/storage"
)

type OutboxStore interface {
	ListPendingOutbox(ctx context.Context, limit, maxRetries int) ([]*storage.OutboxMessage, error)
	AckOutbox(ctx context.Context, id int64) error
	IncrementOutboxRetries(ctx context.Context, id int64) error
}

type EventPublisher interface {
	Publish(ctx context.Context, topic, key, eventType string, payload []byte) error
}

// OutboxDrainer periodically publishes pending outbox messages.
type OutboxDrainer struct {
	log        *slog.Logger
	store      OutboxStore
	publisher  EventPublisher
	interval   time.Duration
	batchSize  int
	maxRetries int
}

func NewOutboxDrainer(log *slog.Logger, store OutboxStore, publisher EventPublisher, cfg config.Kafka) *OutboxDrainer {
	d := &OutboxDrainer{
		log:        log.With(slog.String("component", "outbox")),
		store:      store,
		publisher:  publisher,
		interval:   cfg.DrainInterval,
		batchSize:  cfg.BatchSize,
		maxRetries: cfg.MaxRetries,
	}
	if d.interval <= 0 {
		d.interval = 2 * time.Second
	}
	if d.batchSize <= 0 {
		d.batchSize = 50
	}
	if d.maxRetries <= 0 {
		d.maxRetries = 10
	}
	return d
}

// Run drains the outbox every interval until ctx is cancelled.
func (d *OutboxDrainer) Run(ctx context.Context) {
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.Drain(ctx)
		}
	}
}

// Drain publishes one batch and returns how many messages were acknowledged.
// A message that fails is retried on later passes until maxRetries.
func (d *OutboxDrainer) Drain(ctx context.Context) int {
	msgs, err := d.store.ListPendingOutbox(ctx, d.batchSize, d.maxRetries)
	if err != nil {
		d.log.Error("list pending outbox", slog.String("error", err.Error()))
		return 0
	}

	sent := 0
	for _, msg := range msgs {
		if err := d.publisher.Publish(ctx, msg.Topic, msg.Key, msg.EventType, msg.Payload); err != nil {
			d.log.Warn("publish failed",
				slog.Int64("id", msg.ID),
				slog.String("topic", msg.Topic),
				slog.Int("retries", msg.Retries),
				slog.String("error", err.Error()))
			if err := d.store.IncrementOutboxRetries(ctx, msg.ID); err != nil {
				d.log.Error("increment outbox retries", slog.Int64("id", msg.ID), slog.String("error", err.Error()))
			}
			continue
		}
		if err := d.store.AckOutbox(ctx, msg.ID); err != nil {
			d.log.Error("ack outbox", slog.Int64("id", msg.ID), slog.String("error", err.Error()))
			continue
		}
		sent++
	}

	if sent > 0 {
		d.log.Debug("outbox drained", slog.Int("sent", sent))
	}
	return sent
}
