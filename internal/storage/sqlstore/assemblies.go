package sqlstore

import (
	"context"
	"fmt"

	"fabprogress/internal/storage"
)

func (s *Storage) CreateAssembly(ctx context.Context, a *storage.Assembly) error {
	const op = "storage.sqlstore.CreateAssembly"

	_, err := s.exec(ctx, `
		INSERT INTO assemblies (id, mark, project_ref, current_step, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		a.ID, a.Mark, a.ProjectRef, a.CurrentStep.String(), utc(a.CreatedAt))
	if err != nil {
		return fmt.Errorf("%s: insert assembly %s: %w", op, a.ID, err)
	}

	return nil
}

func (s *Storage) GetAssembly(ctx context.Context, id string) (*storage.Assembly, error) {
	const op = "storage.sqlstore.GetAssembly"

	a := &storage.Assembly{}
	var createdAt any

	err := s.queryRow(ctx, `
		SELECT id, mark, project_ref, current_step, created_at
		FROM assemblies WHERE id = ?`, id).
		Scan(&a.ID, &a.Mark, &a.ProjectRef, &a.CurrentStep, &createdAt)
	if err != nil {
		return nil, fmt.Errorf("%s: assembly %s: %w", op, id, notFound(err))
	}
	a.CreatedAt = parseTime(createdAt)

	return a, nil
}

// SetAssemblyStep mirrors the engine's current step onto the assembly row.
func (s *Storage) SetAssemblyStep(ctx context.Context, id string, step storage.ManufacturingStep) error {
	const op = "storage.sqlstore.SetAssemblyStep"

	res, err := s.exec(ctx, `UPDATE assemblies SET current_step = ? WHERE id = ?`, step.String(), id)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if n == 0 {
		return fmt.Errorf("%s: assembly %s: %w", op, id, storage.ErrNotFound)
	}

	return nil
}
