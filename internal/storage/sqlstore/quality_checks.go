package sqlstore

import (
	"context"
	"fmt"

	"fabprogress/internal/storage"
)

const checkColumns = `id, progress_id, for_step, check_type, status, is_required,
	checked_by, checked_at, results, defects_found, corrective_actions, created_at, version`

func scanCheck(row scanner) (*storage.QualityCheck, error) {
	c := &storage.QualityCheck{}
	var checkedAt, createdAt any

	err := row.Scan(&c.ID, &c.ProgressID, &c.ForStep, &c.CheckType, &c.Status, &c.IsRequired,
		&c.CheckedBy, &checkedAt, &c.Results, &c.DefectsFound, &c.CorrectiveActions, &createdAt, &c.Version)
	if err != nil {
		return nil, err
	}
	c.CheckedAt = parseTimePtr(checkedAt)
	c.CreatedAt = parseTime(createdAt)

	return c, nil
}

// CreateChecks inserts a batch of checks, normally the required set of a step
// being entered.
func (s *Storage) CreateChecks(ctx context.Context, checks []*storage.QualityCheck) error {
	const op = "storage.sqlstore.CreateChecks"

	for _, c := range checks {
		if c.Version == 0 {
			c.Version = 1
		}
		_, err := s.exec(ctx, `
			INSERT INTO quality_checks (`+checkColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			c.ID, c.ProgressID, c.ForStep.String(), string(c.CheckType), string(c.Status), c.IsRequired,
			c.CheckedBy, nullTime(c.CheckedAt), c.Results, c.DefectsFound, c.CorrectiveActions,
			utc(c.CreatedAt), c.Version)
		if err != nil {
			return fmt.Errorf("%s: insert %s check: %w", op, c.CheckType, err)
		}
	}

	return nil
}

func (s *Storage) GetCheck(ctx context.Context, id string) (*storage.QualityCheck, error) {
	const op = "storage.sqlstore.GetCheck"

	c, err := scanCheck(s.queryRow(ctx, `SELECT `+checkColumns+`
		FROM quality_checks WHERE id = ?`+s.forUpdate(ctx), id))
	if err != nil {
		return nil, fmt.Errorf("%s: check %s: %w", op, id, notFound(err))
	}

	return c, nil
}

func (s *Storage) UpdateCheck(ctx context.Context, c *storage.QualityCheck) error {
	const op = "storage.sqlstore.UpdateCheck"

	res, err := s.exec(ctx, `
		UPDATE quality_checks SET
			status = ?, checked_by = ?, checked_at = ?,
			results = ?, defects_found = ?, corrective_actions = ?,
			version = version + 1
		WHERE id = ? AND version = ?`,
		string(c.Status), c.CheckedBy, nullTime(c.CheckedAt),
		c.Results, c.DefectsFound, c.CorrectiveActions,
		c.ID, c.Version)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if err := casResult(res); err != nil {
		return fmt.Errorf("%s: check %s v%d: %w", op, c.ID, c.Version, err)
	}

	c.Version++
	return nil
}

// ListChecks returns the checks of a progress state, all steps when step is nil.
func (s *Storage) ListChecks(ctx context.Context, progressID string, step *storage.ManufacturingStep) ([]*storage.QualityCheck, error) {
	const op = "storage.sqlstore.ListChecks"

	query := `SELECT ` + checkColumns + ` FROM quality_checks WHERE progress_id = ?`
	args := []any{progressID}
	if step != nil {
		query += ` AND for_step = ?`
		args = append(args, step.String())
	}
	query += ` ORDER BY created_at, check_type`

	rows, err := s.query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	var checks []*storage.QualityCheck
	for rows.Next() {
		c, err := scanCheck(rows)
		if err != nil {
			return nil, fmt.Errorf("%s: scan: %w", op, err)
		}
		checks = append(checks, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, translateError(err))
	}

	return checks, nil
}
