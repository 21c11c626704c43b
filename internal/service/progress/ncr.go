package progress

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"fabprogress/internal/storage"
)

// FormatNCRNumber renders the human readable number, e.g. NCR-2025-0042.
func FormatNCRNumber(year, seq int) string {
	return fmt.Sprintf("NCR-%d-%04d", year, seq)
}

type ncrDraft struct {
	assemblyID     string
	qualityCheckID *string
	step           storage.ManufacturingStep
	description    string
	discoveredBy   string
	severity       storage.NCRSeverity
}

// openNCR numbers and stores a new Open record inside the caller's transaction.
func (s *Service) openNCR(ctx context.Context, d ncrDraft) (*storage.NonComplianceRecord, error) {
	now := s.clock()
	year := now.Year()

	seq, err := s.store.NextNCRSequence(ctx, year)
	if err != nil {
		return nil, err
	}

	n := &storage.NonComplianceRecord{
		ID:             uuid.NewString(),
		Number:         FormatNCRNumber(year, seq),
		Year:           year,
		Sequence:       seq,
		AssemblyID:     d.assemblyID,
		QualityCheckID: d.qualityCheckID,
		Step:           d.step,
		Description:    d.description,
		Severity:       d.severity,
		Status:         storage.NCROpen,
		DiscoveredBy:   d.discoveredBy,
		DiscoveredAt:   now,
		UpdatedBy:      d.discoveredBy,
		UpdatedAt:      now,
	}
	if err := s.store.CreateNCR(ctx, n); err != nil {
		return nil, err
	}

	if err := s.emit(ctx, EventNCROpened, d.assemblyID, d.discoveredBy, n); err != nil {
		return nil, err
	}
	return n, nil
}

type OpenNCRInput struct {
	AssemblyID     string                     `json:"assembly_id"`
	QualityCheckID *string                    `json:"quality_check_id,omitempty"`
	Step           *storage.ManufacturingStep `json:"step,omitempty"`
	Description    string                     `json:"description"`
	DiscoveredBy   string                     `json:"discovered_by"`
	Severity       storage.NCRSeverity        `json:"severity,omitempty"`
}

// OpenNCR records an ad-hoc finding. Severity defaults to Major, the step to
// the assembly's current one.
func (s *Service) OpenNCR(ctx context.Context, in OpenNCRInput) (*storage.NonComplianceRecord, error) {
	const op = "service.progress.OpenNCR"

	if err := requireActor(in.DiscoveredBy); err != nil {
		return nil, err
	}
	if strings.TrimSpace(in.Description) == "" {
		return nil, fmt.Errorf("%s: %w", op, invalid("description is required"))
	}
	if in.Severity == "" {
		in.Severity = storage.SeverityMajor
	}
	if _, err := storage.ParseSeverity(string(in.Severity)); err != nil {
		return nil, fmt.Errorf("%s: %w", op, invalid("%v", err))
	}
	if in.Step != nil && !in.Step.Valid() {
		return nil, fmt.Errorf("%s: %w", op, invalid("unknown step %d", int(*in.Step)))
	}

	var ncr *storage.NonComplianceRecord
	err := s.mutate(ctx, in.AssemblyID, func(ctx context.Context) error {
		a, err := s.store.GetAssembly(ctx, in.AssemblyID)
		if err != nil {
			return mapNotFound(err, ErrAssemblyNotFound)
		}

		step := a.CurrentStep
		if in.Step != nil {
			step = *in.Step
		}

		if in.QualityCheckID != nil {
			if err := s.checkBelongsTo(ctx, *in.QualityCheckID, in.AssemblyID); err != nil {
				return err
			}
		}

		ncr, err = s.openNCR(ctx, ncrDraft{
			assemblyID:     in.AssemblyID,
			qualityCheckID: in.QualityCheckID,
			step:           step,
			description:    in.Description,
			discoveredBy:   in.DiscoveredBy,
			severity:       in.Severity,
		})
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	s.log.Info("ncr opened",
		slog.String("assembly_id", in.AssemblyID),
		slog.String("ncr", ncr.Number),
		slog.String("severity", string(ncr.Severity)))

	return ncr, nil
}

func (s *Service) checkBelongsTo(ctx context.Context, checkID, assemblyID string) error {
	c, err := s.store.GetCheck(ctx, checkID)
	if err != nil {
		return mapNotFound(err, ErrCheckNotFound)
	}
	p, err := s.store.GetProgress(ctx, c.ProgressID)
	if err != nil {
		return mapNotFound(err, ErrNoProgressTracking)
	}
	if p.AssemblyID != assemblyID {
		return invalid("check %s belongs to another assembly", checkID)
	}
	return nil
}

// UpdateNCRInput changes the fields that are set; nil fields keep their value.
type UpdateNCRInput struct {
	NCRID            string               `json:"-"`
	Status           *storage.NCRStatus   `json:"status,omitempty"`
	Severity         *storage.NCRSeverity `json:"severity,omitempty"`
	RootCause        *string              `json:"root_cause,omitempty"`
	ImmediateAction  *string              `json:"immediate_action,omitempty"`
	PreventiveAction *string              `json:"preventive_action,omitempty"`
	AssignedTo       *string              `json:"assigned_to,omitempty"`
	TargetDate       *time.Time           `json:"target_date,omitempty"`
	UpdatedBy        string               `json:"updated_by"`
	ExpectedVersion  *int64               `json:"expected_version,omitempty"`
}

// UpdateNCR moves an NCR through its remediation. Closing it stamps the
// resolution date; a closed NCR can no longer change.
func (s *Service) UpdateNCR(ctx context.Context, in UpdateNCRInput) (*storage.NonComplianceRecord, error) {
	const op = "service.progress.UpdateNCR"

	if err := requireActor(in.UpdatedBy); err != nil {
		return nil, err
	}
	if in.Status != nil {
		if _, err := storage.ParseNCRStatus(string(*in.Status)); err != nil {
			return nil, fmt.Errorf("%s: %w", op, invalid("%v", err))
		}
	}
	if in.Severity != nil {
		if _, err := storage.ParseSeverity(string(*in.Severity)); err != nil {
			return nil, fmt.Errorf("%s: %w", op, invalid("%v", err))
		}
	}

	current, err := s.store.GetNCR(ctx, in.NCRID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, mapNotFound(err, ErrNCRNotFound))
	}

	var (
		ncr  *storage.NonComplianceRecord
		from storage.NCRStatus
	)
	err = s.mutate(ctx, current.AssemblyID, func(ctx context.Context) error {
		n, err := s.store.GetNCR(ctx, in.NCRID)
		if err != nil {
			return mapNotFound(err, ErrNCRNotFound)
		}
		if err := checkVersion(in.ExpectedVersion, n.Version); err != nil {
			return err
		}
		if n.Status.IsClosed() {
			return fmt.Errorf("%w: %s is %s", ErrNCRClosed, n.Number, n.Status)
		}

		from = n.Status
		now := s.clock()
		if in.Status != nil {
			n.Status = *in.Status
			if n.Status.IsClosed() {
				n.ActualResolutionDate = &now
			}
		}
		if in.Severity != nil {
			n.Severity = *in.Severity
		}
		if in.RootCause != nil {
			n.RootCause = *in.RootCause
		}
		if in.ImmediateAction != nil {
			n.ImmediateAction = *in.ImmediateAction
		}
		if in.PreventiveAction != nil {
			n.PreventiveAction = *in.PreventiveAction
		}
		if in.AssignedTo != nil {
			n.AssignedTo = *in.AssignedTo
		}
		if in.TargetDate != nil {
			t := in.TargetDate.UTC()
			n.TargetDate = &t
		}
		n.UpdatedBy = in.UpdatedBy
		n.UpdatedAt = now

		if err := s.store.UpdateNCR(ctx, n); err != nil {
			return err
		}
		ncr = n

		return s.emit(ctx, EventNCRUpdated, n.AssemblyID, in.UpdatedBy, map[string]any{
			"ncr_id":   n.ID,
			"number":   n.Number,
			"from":     from,
			"status":   n.Status,
			"severity": n.Severity,
		})
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	s.log.Info("ncr updated",
		slog.String("ncr", ncr.Number),
		slog.String("from", string(from)),
		slog.String("status", string(ncr.Status)),
		slog.String("updated_by", in.UpdatedBy))

	return ncr, nil
}

func (s *Service) GetNCR(ctx context.Context, id string) (*storage.NonComplianceRecord, error) {
	const op = "service.progress.GetNCR"

	n, err := s.store.GetNCR(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, mapNotFound(err, ErrNCRNotFound))
	}
	return n, nil
}

// ListOpenNCRs returns every NCR not yet closed, newest discovered first.
func (s *Service) ListOpenNCRs(ctx context.Context) ([]*storage.NonComplianceRecord, error) {
	const op = "service.progress.ListOpenNCRs"

	ncrs, err := s.store.ListOpenNCRs(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return ncrs, nil
}

func (s *Service) ListAssemblyNCRs(ctx context.Context, assemblyID string) ([]*storage.NonComplianceRecord, error) {
	const op = "service.progress.ListAssemblyNCRs"

	if _, err := s.store.GetAssembly(ctx, assemblyID); err != nil {
		return nil, fmt.Errorf("%s: %w", op, mapNotFound(err, ErrAssemblyNotFound))
	}

	ncrs, err := s.store.ListAssemblyNCRs(ctx, assemblyID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return ncrs, nil
}
