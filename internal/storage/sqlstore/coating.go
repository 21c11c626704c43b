package sqlstore

import (
	"context"
	"fmt"

	"fabprogress/internal/storage"
)

const coatingColumns = `id, assembly_id, progress_id, supplier_id, sent_at, expected_return_at,
	actual_return_at, status, sent_by, returned_by, notes`

func scanCoating(row scanner) (*storage.OutsourcedCoatingRecord, error) {
	c := &storage.OutsourcedCoatingRecord{}
	var sentAt, expectedAt, returnedAt any

	err := row.Scan(&c.ID, &c.AssemblyID, &c.ProgressID, &c.SupplierID, &sentAt, &expectedAt,
		&returnedAt, &c.Status, &c.SentBy, &c.ReturnedBy, &c.Notes)
	if err != nil {
		return nil, err
	}
	c.SentAt = parseTime(sentAt)
	c.ExpectedReturnAt = parseTime(expectedAt)
	c.ActualReturnAt = parseTimePtr(returnedAt)

	return c, nil
}

func (s *Storage) CreateCoatingRecord(ctx context.Context, c *storage.OutsourcedCoatingRecord) error {
	const op = "storage.sqlstore.CreateCoatingRecord"

	_, err := s.exec(ctx, `
		INSERT INTO coating_records (`+coatingColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.AssemblyID, c.ProgressID, c.SupplierID, utc(c.SentAt), utc(c.ExpectedReturnAt),
		nullTime(c.ActualReturnAt), string(c.Status), c.SentBy, c.ReturnedBy, c.Notes)
	if err != nil {
		return fmt.Errorf("%s: insert for %s: %w", op, c.AssemblyID, err)
	}

	return nil
}

// GetActiveCoatingRecord returns the assembly's record still at the coater.
func (s *Storage) GetActiveCoatingRecord(ctx context.Context, assemblyID string) (*storage.OutsourcedCoatingRecord, error) {
	const op = "storage.sqlstore.GetActiveCoatingRecord"

	c, err := scanCoating(s.queryRow(ctx, `SELECT `+coatingColumns+`
		FROM coating_records WHERE assembly_id = ? AND status = ?
		ORDER BY sent_at DESC`+s.forUpdate(ctx), assemblyID, string(storage.CoatingSent)))
	if err != nil {
		return nil, fmt.Errorf("%s: assembly %s: %w", op, assemblyID, notFound(err))
	}

	return c, nil
}

// MarkCoatingReturned closes an active record. Only a Sent record can be
// returned; anything else is storage.ErrVersionConflict.
func (s *Storage) MarkCoatingReturned(ctx context.Context, c *storage.OutsourcedCoatingRecord) error {
	const op = "storage.sqlstore.MarkCoatingReturned"

	res, err := s.exec(ctx, `
		UPDATE coating_records SET status = ?, actual_return_at = ?, returned_by = ?, notes = ?
		WHERE id = ? AND status = ?`,
		string(storage.CoatingReturned), nullTime(c.ActualReturnAt), c.ReturnedBy, c.Notes,
		c.ID, string(storage.CoatingSent))
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if err := casResult(res); err != nil {
		return fmt.Errorf("%s: record %s: %w", op, c.ID, err)
	}

	c.Status = storage.CoatingReturned
	return nil
}

func (s *Storage) ListCoatingRecords(ctx context.Context, assemblyID string) ([]*storage.OutsourcedCoatingRecord, error) {
	const op = "storage.sqlstore.ListCoatingRecords"

	rows, err := s.query(ctx, `SELECT `+coatingColumns+`
		FROM coating_records WHERE assembly_id = ? ORDER BY sent_at`, assemblyID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	var records []*storage.OutsourcedCoatingRecord
	for rows.Next() {
		c, err := scanCoating(rows)
		if err != nil {
			return nil, fmt.Errorf("%s: scan: %w", op, err)
		}
		records = append(records, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, translateError(err))
	}

	return records, nil
}
