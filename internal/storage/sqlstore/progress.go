package sqlstore

import (
	"context"
	"database/sql"
	"fmt"

	"fabprogress/internal/storage"
)

const progressColumns = `id, assembly_id, current_step, previous_step,
	current_step_started_at, current_step_completed_at, updated_by, updated_at,
	is_coating_outsourced, coating_sent_at, coating_expected_return_at,
	coating_actual_return_at, notes, version`

func scanProgress(row scanner) (*storage.ProgressState, error) {
	p := &storage.ProgressState{}

	var (
		prev                              sql.NullString
		startedAt, completedAt, updatedAt any
		sentAt, expectedAt, returnedAt    any
	)

	err := row.Scan(&p.ID, &p.AssemblyID, &p.CurrentStep, &prev,
		&startedAt, &completedAt, &p.UpdatedBy, &updatedAt,
		&p.IsCoatingOutsourced, &sentAt, &expectedAt,
		&returnedAt, &p.Notes, &p.Version)
	if err != nil {
		return nil, err
	}

	if p.PreviousStep, err = parseStepPtr(prev); err != nil {
		return nil, err
	}
	p.CurrentStepStartedAt = parseTime(startedAt)
	p.CurrentStepCompletedAt = parseTimePtr(completedAt)
	p.UpdatedAt = parseTime(updatedAt)
	p.OutsourcedCoatingSentAt = parseTimePtr(sentAt)
	p.ExpectedReturnAt = parseTimePtr(expectedAt)
	p.ActualReturnAt = parseTimePtr(returnedAt)

	return p, nil
}

func (s *Storage) CreateProgress(ctx context.Context, p *storage.ProgressState) error {
	const op = "storage.sqlstore.CreateProgress"

	if p.Version == 0 {
		p.Version = 1
	}

	_, err := s.exec(ctx, `
		INSERT INTO progress_states (`+progressColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.AssemblyID, p.CurrentStep.String(), nullStep(p.PreviousStep),
		utc(p.CurrentStepStartedAt), nullTime(p.CurrentStepCompletedAt), p.UpdatedBy, utc(p.UpdatedAt),
		p.IsCoatingOutsourced, nullTime(p.OutsourcedCoatingSentAt), nullTime(p.ExpectedReturnAt),
		nullTime(p.ActualReturnAt), p.Notes, p.Version)
	if err != nil {
		return fmt.Errorf("%s: insert progress for %s: %w", op, p.AssemblyID, err)
	}

	return nil
}

// GetProgressByAssembly loads the assembly's progress state, locking the row
// when called inside a transaction.
func (s *Storage) GetProgressByAssembly(ctx context.Context, assemblyID string) (*storage.ProgressState, error) {
	const op = "storage.sqlstore.GetProgressByAssembly"

	row := s.queryRow(ctx, `SELECT `+progressColumns+`
		FROM progress_states WHERE assembly_id = ?`+s.forUpdate(ctx), assemblyID)

	p, err := scanProgress(row)
	if err != nil {
		return nil, fmt.Errorf("%s: assembly %s: %w", op, assemblyID, notFound(err))
	}

	return p, nil
}

func (s *Storage) GetProgress(ctx context.Context, id string) (*storage.ProgressState, error) {
	const op = "storage.sqlstore.GetProgress"

	row := s.queryRow(ctx, `SELECT `+progressColumns+`
		FROM progress_states WHERE id = ?`+s.forUpdate(ctx), id)

	p, err := scanProgress(row)
	if err != nil {
		return nil, fmt.Errorf("%s: progress %s: %w", op, id, notFound(err))
	}

	return p, nil
}

// UpdateProgress writes p when the stored version still equals p.Version and
// bumps p.Version on success. A stale version yields storage.ErrVersionConflict.
func (s *Storage) UpdateProgress(ctx context.Context, p *storage.ProgressState) error {
	const op = "storage.sqlstore.UpdateProgress"

	res, err := s.exec(ctx, `
		UPDATE progress_states SET
			current_step = ?, previous_step = ?,
			current_step_started_at = ?, current_step_completed_at = ?,
			updated_by = ?, updated_at = ?,
			is_coating_outsourced = ?, coating_sent_at = ?,
			coating_expected_return_at = ?, coating_actual_return_at = ?,
			notes = ?, version = version + 1
		WHERE id = ? AND version = ?`,
		p.CurrentStep.String(), nullStep(p.PreviousStep),
		utc(p.CurrentStepStartedAt), nullTime(p.CurrentStepCompletedAt),
		p.UpdatedBy, utc(p.UpdatedAt),
		p.IsCoatingOutsourced, nullTime(p.OutsourcedCoatingSentAt),
		nullTime(p.ExpectedReturnAt), nullTime(p.ActualReturnAt),
		p.Notes, p.ID, p.Version)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if err := casResult(res); err != nil {
		return fmt.Errorf("%s: progress %s v%d: %w", op, p.ID, p.Version, err)
	}

	p.Version++
	return nil
}

func (s *Storage) listProgress(ctx context.Context, op, where string, args ...any) ([]*storage.ProgressState, error) {
	rows, err := s.query(ctx, `SELECT `+progressColumns+`
		FROM progress_states WHERE `+where+` ORDER BY current_step_started_at, id`, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	var states []*storage.ProgressState
	for rows.Next() {
		p, err := scanProgress(rows)
		if err != nil {
			return nil, fmt.Errorf("%s: scan: %w", op, err)
		}
		states = append(states, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, translateError(err))
	}

	return states, nil
}

func (s *Storage) ListProgressAtStep(ctx context.Context, step storage.ManufacturingStep) ([]*storage.ProgressState, error) {
	return s.listProgress(ctx, "storage.sqlstore.ListProgressAtStep",
		`current_step = ?`, step.String())
}

func (s *Storage) ListReadyForOutsourcing(ctx context.Context) ([]*storage.ProgressState, error) {
	return s.listProgress(ctx, "storage.sqlstore.ListReadyForOutsourcing",
		`current_step = ? AND is_coating_outsourced = ?`, storage.StepReadyForCoating.String(), false)
}

func (s *Storage) ListAwaitingReturn(ctx context.Context) ([]*storage.ProgressState, error) {
	return s.listProgress(ctx, "storage.sqlstore.ListAwaitingReturn",
		`is_coating_outsourced = ? AND coating_actual_return_at IS NULL`, true)
}
