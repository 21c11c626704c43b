package progress

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"fabprogress/internal/storage"
)

type SendOutInput struct {
	AssemblyID     string    `json:"-"`
	SupplierID     string    `json:"supplier_id"`
	ExpectedReturn time.Time `json:"expected_return"`
	Actor          string    `json:"actor"`
	Notes          string    `json:"notes"`
}

// SendOutCoating hands an assembly at ReadyForCoating to an external coater.
// Normal advancement is held until RecordCoatingReturn.
func (s *Service) SendOutCoating(ctx context.Context, in SendOutInput) (*storage.OutsourcedCoatingRecord, error) {
	const op = "service.progress.SendOutCoating"

	if err := requireActor(in.Actor); err != nil {
		return nil, err
	}
	if strings.TrimSpace(in.SupplierID) == "" {
		return nil, fmt.Errorf("%s: %w", op, invalid("supplier is required"))
	}
	if in.ExpectedReturn.IsZero() {
		return nil, fmt.Errorf("%s: %w", op, invalid("expected return date is required"))
	}

	var rec *storage.OutsourcedCoatingRecord
	err := s.mutate(ctx, in.AssemblyID, func(ctx context.Context) error {
		p, err := s.loadProgress(ctx, in.AssemblyID)
		if err != nil {
			return err
		}
		if p.CurrentStep != storage.StepReadyForCoating {
			return fmt.Errorf("%w: coating can be outsourced at %s only, assembly is at %s",
				ErrWrongStep, storage.StepReadyForCoating, p.CurrentStep)
		}
		if p.AwaitingCoatingReturn() {
			return ErrAlreadyOutsourced
		}
		switch _, err := s.store.GetActiveCoatingRecord(ctx, in.AssemblyID); {
		case err == nil:
			return ErrAlreadyOutsourced
		case !errors.Is(err, storage.ErrNotFound):
			return err
		}

		now := s.clock()
		expected := in.ExpectedReturn.UTC()
		if expected.Before(now.Truncate(24 * time.Hour)) {
			return invalid("expected return %s is before the send date", expected.Format(time.DateOnly))
		}

		p.IsCoatingOutsourced = true
		p.OutsourcedCoatingSentAt = &now
		p.ExpectedReturnAt = &expected
		p.ActualReturnAt = nil
		p.UpdatedBy = in.Actor
		p.UpdatedAt = now
		if err := s.store.UpdateProgress(ctx, p); err != nil {
			return err
		}

		rec = &storage.OutsourcedCoatingRecord{
			ID:               uuid.NewString(),
			AssemblyID:       in.AssemblyID,
			ProgressID:       p.ID,
			SupplierID:       in.SupplierID,
			SentAt:           now,
			ExpectedReturnAt: expected,
			Status:           storage.CoatingSent,
			SentBy:           in.Actor,
			Notes:            in.Notes,
		}
		if err := s.store.CreateCoatingRecord(ctx, rec); err != nil {
			return err
		}

		return s.emit(ctx, EventCoatingSent, in.AssemblyID, in.Actor, rec)
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	s.log.Info("coating outsourced",
		slog.String("assembly_id", in.AssemblyID),
		slog.String("supplier_id", in.SupplierID),
		slog.Time("expected_return", rec.ExpectedReturnAt))

	return rec, nil
}

// RecordCoatingReturn closes the active coating record and advances the
// assembly to CoatingDone in one transaction. The advance is gated like any
// other; if the gate refuses, the return is not recorded either.
func (s *Service) RecordCoatingReturn(ctx context.Context, assemblyID, actor, notes string) (*storage.ProgressState, error) {
	const op = "service.progress.RecordCoatingReturn"

	if err := requireActor(actor); err != nil {
		return nil, err
	}

	var state *storage.ProgressState
	err := s.mutate(ctx, assemblyID, func(ctx context.Context) error {
		p, err := s.loadProgress(ctx, assemblyID)
		if err != nil {
			return err
		}
		if !p.AwaitingCoatingReturn() {
			return ErrNotOutsourced
		}
		rec, err := s.store.GetActiveCoatingRecord(ctx, assemblyID)
		if err != nil {
			return mapNotFound(err, ErrNotOutsourced)
		}
		if p.CurrentStep != storage.StepReadyForCoating {
			return fmt.Errorf("%w: assembly is at %s", ErrWrongStep, p.CurrentStep)
		}

		now := s.clock()
		rec.ActualReturnAt = &now
		rec.ReturnedBy = actor
		if notes != "" {
			rec.Notes = strings.TrimSpace(rec.Notes + "\n" + notes)
		}
		if err := s.store.MarkCoatingReturned(ctx, rec); err != nil {
			return err
		}

		p.ActualReturnAt = &now
		if err := s.emit(ctx, EventCoatingReturned, assemblyID, actor, rec); err != nil {
			return err
		}
		if err := s.advance(ctx, p, actor, notes, true); err != nil {
			return err
		}

		state = p
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	s.log.Info("coating returned",
		slog.String("assembly_id", assemblyID),
		slog.String("step", state.CurrentStep.String()),
		slog.String("actor", actor))

	return state, nil
}

// ListReadyForOutsourcing returns assemblies at ReadyForCoating not yet sent out.
func (s *Service) ListReadyForOutsourcing(ctx context.Context) ([]*storage.ProgressState, error) {
	const op = "service.progress.ListReadyForOutsourcing"

	states, err := s.store.ListReadyForOutsourcing(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return states, nil
}

// ListAwaitingReturn returns assemblies currently at an external coater.
func (s *Service) ListAwaitingReturn(ctx context.Context) ([]*storage.ProgressState, error) {
	const op = "service.progress.ListAwaitingReturn"

	states, err := s.store.ListAwaitingReturn(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return states, nil
}

func (s *Service) ListCoatingRecords(ctx context.Context, assemblyID string) ([]*storage.OutsourcedCoatingRecord, error) {
	const op = "service.progress.ListCoatingRecords"

	records, err := s.store.ListCoatingRecords(ctx, assemblyID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return records, nil
}
