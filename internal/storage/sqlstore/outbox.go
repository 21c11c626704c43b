package sqlstore

import (
	"context"
	"fmt"
	"time"

	"fabprogress/internal/storage"
)

// EnqueueOutbox stores an event next to the state change that produced it.
func (s *Storage) EnqueueOutbox(ctx context.Context, topic, key, eventType string, payload []byte) error {
	const op = "storage.sqlstore.EnqueueOutbox"

	_, err := s.exec(ctx, `
		INSERT INTO outbox (topic, msg_key, event_type, payload, retries, created_at)
		VALUES (?, ?, ?, ?, 0, ?)`,
		topic, key, eventType, payload, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("%s: %s: %w", op, eventType, err)
	}

	return nil
}

// ListPendingOutbox returns unsent messages below the retry ceiling, oldest first.
func (s *Storage) ListPendingOutbox(ctx context.Context, limit, maxRetries int) ([]*storage.OutboxMessage, error) {
	const op = "storage.sqlstore.ListPendingOutbox"

	rows, err := s.query(ctx, `
		SELECT id, topic, msg_key, event_type, payload, retries, created_at
		FROM outbox WHERE sent_at IS NULL AND retries < ?
		ORDER BY id LIMIT ?`, maxRetries, limit)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	var msgs []*storage.OutboxMessage
	for rows.Next() {
		m := &storage.OutboxMessage{}
		var createdAt any
		if err := rows.Scan(&m.ID, &m.Topic, &m.Key, &m.EventType, &m.Payload, &m.Retries, &createdAt); err != nil {
			return nil, fmt.Errorf("%s: scan: %w", op, err)
		}
		m.CreatedAt = parseTime(createdAt)
		msgs = append(msgs, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, translateError(err))
	}

	return msgs, nil
}

func (s *Storage) AckOutbox(ctx context.Context, id int64) error {
	const op = "storage.sqlstore.AckOutbox"

	if _, err := s.exec(ctx, `UPDATE outbox SET sent_at = ? WHERE id = ?`, time.Now().UTC(), id); err != nil {
		return fmt.Errorf("%s: %d: %w", op, id, err)
	}
	return nil
}

func (s *Storage) IncrementOutboxRetries(ctx context.Context, id int64) error {
	const op = "storage.sqlstore.IncrementOutboxRetries"

	if _, err := s.exec(ctx, `UPDATE outbox SET retries = retries + 1 WHERE id = ?`, id); err != nil {
		return fmt.Errorf("%s: %d: %w", op, id, err)
	}
	return nil
}
