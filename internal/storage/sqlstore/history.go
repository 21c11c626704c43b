package sqlstore

import (
	"context"
	"fmt"
	"time"

	"fabprogress/internal/storage"
)

func (s *Storage) AppendHistory(ctx context.Context, h *storage.StepHistoryEntry) error {
	const op = "storage.sqlstore.AppendHistory"

	_, err := s.exec(ctx, `
		INSERT INTO step_history (id, progress_id, assembly_id, step, started_at, completed_at, actor, duration_ms, notes)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		h.ID, h.ProgressID, h.AssemblyID, h.Step.String(), utc(h.StartedAt), utc(h.CompletedAt),
		h.Actor, h.Duration.Milliseconds(), h.Notes)
	if err != nil {
		return fmt.Errorf("%s: %s of %s: %w", op, h.Step, h.AssemblyID, err)
	}

	return nil
}

// ListHistory returns the closed step occupancies of an assembly in the order
// they were worked.
func (s *Storage) ListHistory(ctx context.Context, assemblyID string) ([]*storage.StepHistoryEntry, error) {
	const op = "storage.sqlstore.ListHistory"

	rows, err := s.query(ctx, `
		SELECT id, progress_id, assembly_id, step, started_at, completed_at, actor, duration_ms, notes
		FROM step_history WHERE assembly_id = ?
		ORDER BY started_at, completed_at, id`, assemblyID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	var entries []*storage.StepHistoryEntry
	for rows.Next() {
		h := &storage.StepHistoryEntry{}
		var (
			startedAt, completedAt any
			durationMS             int64
		)
		if err := rows.Scan(&h.ID, &h.ProgressID, &h.AssemblyID, &h.Step, &startedAt, &completedAt,
			&h.Actor, &durationMS, &h.Notes); err != nil {
			return nil, fmt.Errorf("%s: scan: %w", op, err)
		}
		h.StartedAt = parseTime(startedAt)
		h.CompletedAt = parseTime(completedAt)
		h.Duration = time.Duration(durationMS) * time.Millisecond
		entries = append(entries, h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, translateError(err))
	}

	return entries, nil
}
