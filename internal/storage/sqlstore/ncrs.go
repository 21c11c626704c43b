package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"fabprogress/internal/storage"
)

const ncrColumns = `id, ncr_number, ncr_year, ncr_seq, assembly_id, quality_check_id, step,
	description, severity, status, discovered_by, discovered_at, root_cause,
	immediate_action, preventive_action, assigned_to, target_date,
	actual_resolution_date, updated_by, updated_at, version`

func scanNCR(row scanner) (*storage.NonComplianceRecord, error) {
	n := &storage.NonComplianceRecord{}

	var (
		checkID                              sql.NullString
		discoveredAt, targetDate, resolvedAt any
		updatedAt                            any
	)

	err := row.Scan(&n.ID, &n.Number, &n.Year, &n.Sequence, &n.AssemblyID, &checkID, &n.Step,
		&n.Description, &n.Severity, &n.Status, &n.DiscoveredBy, &discoveredAt, &n.RootCause,
		&n.ImmediateAction, &n.PreventiveAction, &n.AssignedTo, &targetDate,
		&resolvedAt, &n.UpdatedBy, &updatedAt, &n.Version)
	if err != nil {
		return nil, err
	}

	n.QualityCheckID = stringPtr(checkID)
	n.DiscoveredAt = parseTime(discoveredAt)
	n.TargetDate = parseTimePtr(targetDate)
	n.ActualResolutionDate = parseTimePtr(resolvedAt)
	n.UpdatedAt = parseTime(updatedAt)

	return n, nil
}

// NextNCRSequence reserves the next NCR sequence number of year. It must run
// inside a transaction: the counter row stays locked until commit. A missing
// counter is seeded from the highest sequence already issued for the year; two
// writers seeding at once collide on the primary key and the loser gets
// storage.ErrVersionConflict.
func (s *Storage) NextNCRSequence(ctx context.Context, year int) (int, error) {
	const op = "storage.sqlstore.NextNCRSequence"

	var last int
	err := s.queryRow(ctx, `SELECT last_seq FROM ncr_sequences WHERE year = ?`+s.forUpdate(ctx), year).Scan(&last)

	switch {
	case errors.Is(err, sql.ErrNoRows):
		var maxSeq sql.NullInt64
		if err := s.queryRow(ctx, `SELECT MAX(ncr_seq) FROM ncrs WHERE ncr_year = ?`, year).Scan(&maxSeq); err != nil {
			return 0, fmt.Errorf("%s: max sequence: %w", op, translateError(err))
		}
		next := int(maxSeq.Int64) + 1

		_, err := s.exec(ctx, `INSERT INTO ncr_sequences (year, last_seq) VALUES (?, ?)`, year, next)
		if errors.Is(err, storage.ErrDuplicate) {
			return 0, fmt.Errorf("%s: seed %d: %w", op, year, storage.ErrVersionConflict)
		}
		if err != nil {
			return 0, fmt.Errorf("%s: seed %d: %w", op, year, err)
		}
		return next, nil

	case err != nil:
		return 0, fmt.Errorf("%s: read counter: %w", op, translateError(err))
	}

	next := last + 1
	res, err := s.exec(ctx, `UPDATE ncr_sequences SET last_seq = ? WHERE year = ? AND last_seq = ?`, next, year, last)
	if err != nil {
		return 0, fmt.Errorf("%s: bump counter: %w", op, err)
	}
	if err := casResult(res); err != nil {
		return 0, fmt.Errorf("%s: bump counter: %w", op, err)
	}

	return next, nil
}

func (s *Storage) CreateNCR(ctx context.Context, n *storage.NonComplianceRecord) error {
	const op = "storage.sqlstore.CreateNCR"

	if n.Version == 0 {
		n.Version = 1
	}

	_, err := s.exec(ctx, `
		INSERT INTO ncrs (`+ncrColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		n.ID, n.Number, n.Year, n.Sequence, n.AssemblyID, nullString(n.QualityCheckID), n.Step.String(),
		n.Description, string(n.Severity), string(n.Status), n.DiscoveredBy, utc(n.DiscoveredAt), n.RootCause,
		n.ImmediateAction, n.PreventiveAction, n.AssignedTo, nullTime(n.TargetDate),
		nullTime(n.ActualResolutionDate), n.UpdatedBy, utc(n.UpdatedAt), n.Version)
	if errors.Is(err, storage.ErrDuplicate) {
		return fmt.Errorf("%s: %s: %w", op, n.Number, storage.ErrVersionConflict)
	}
	if err != nil {
		return fmt.Errorf("%s: insert %s: %w", op, n.Number, err)
	}

	return nil
}

func (s *Storage) GetNCR(ctx context.Context, id string) (*storage.NonComplianceRecord, error) {
	const op = "storage.sqlstore.GetNCR"

	n, err := scanNCR(s.queryRow(ctx, `SELECT `+ncrColumns+`
		FROM ncrs WHERE id = ?`+s.forUpdate(ctx), id))
	if err != nil {
		return nil, fmt.Errorf("%s: ncr %s: %w", op, id, notFound(err))
	}

	return n, nil
}

func (s *Storage) UpdateNCR(ctx context.Context, n *storage.NonComplianceRecord) error {
	const op = "storage.sqlstore.UpdateNCR"

	res, err := s.exec(ctx, `
		UPDATE ncrs SET
			severity = ?, status = ?, root_cause = ?,
			immediate_action = ?, preventive_action = ?, assigned_to = ?,
			target_date = ?, actual_resolution_date = ?,
			updated_by = ?, updated_at = ?, version = version + 1
		WHERE id = ? AND version = ?`,
		string(n.Severity), string(n.Status), n.RootCause,
		n.ImmediateAction, n.PreventiveAction, n.AssignedTo,
		nullTime(n.TargetDate), nullTime(n.ActualResolutionDate),
		n.UpdatedBy, utc(n.UpdatedAt), n.ID, n.Version)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if err := casResult(res); err != nil {
		return fmt.Errorf("%s: ncr %s v%d: %w", op, n.ID, n.Version, err)
	}

	n.Version++
	return nil
}

func (s *Storage) listNCRs(ctx context.Context, op, where string, args ...any) ([]*storage.NonComplianceRecord, error) {
	rows, err := s.query(ctx, `SELECT `+ncrColumns+` FROM ncrs WHERE `+where+`
		ORDER BY discovered_at DESC, ncr_year DESC, ncr_seq DESC`, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	var ncrs []*storage.NonComplianceRecord
	for rows.Next() {
		n, err := scanNCR(rows)
		if err != nil {
			return nil, fmt.Errorf("%s: scan: %w", op, err)
		}
		ncrs = append(ncrs, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, translateError(err))
	}

	return ncrs, nil
}

// ListOpenNCRs returns every record not in a closed status, newest discovered first.
func (s *Storage) ListOpenNCRs(ctx context.Context) ([]*storage.NonComplianceRecord, error) {
	return s.listNCRs(ctx, "storage.sqlstore.ListOpenNCRs",
		`status NOT IN (?, ?)`, string(storage.NCRClosed), string(storage.NCRClosedWithConcession))
}

func (s *Storage) ListAssemblyNCRs(ctx context.Context, assemblyID string) ([]*storage.NonComplianceRecord, error) {
	return s.listNCRs(ctx, "storage.sqlstore.ListAssemblyNCRs", `assembly_id = ?`, assemblyID)
}

// ListBlockingNCRs returns the Open Critical records of an assembly.
func (s *Storage) ListBlockingNCRs(ctx context.Context, assemblyID string) ([]*storage.NonComplianceRecord, error) {
	return s.listNCRs(ctx, "storage.sqlstore.ListBlockingNCRs",
		`assembly_id = ? AND status = ? AND severity = ?`,
		assemblyID, string(storage.NCROpen), string(storage.SeverityCritical))
}
