package progress

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"fabprogress/internal/storage"
)

// instantiateRequiredChecks creates the registry's checks for step as Pending.
func (s *Service) instantiateRequiredChecks(ctx context.Context, progressID string, step storage.ManufacturingStep) error {
	types := RequiredChecks(step)
	if len(types) == 0 {
		return nil
	}

	now := s.clock()
	checks := make([]*storage.QualityCheck, 0, len(types))
	for _, t := range types {
		checks = append(checks, &storage.QualityCheck{
			ID:         uuid.NewString(),
			ProgressID: progressID,
			ForStep:    step,
			CheckType:  t,
			Status:     storage.CheckPending,
			IsRequired: true,
			CreatedAt:  now,
		})
	}

	return s.store.CreateChecks(ctx, checks)
}

type PerformCheckInput struct {
	CheckID           string              `json:"-"`
	Status            storage.CheckStatus `json:"status"`
	CheckedBy         string              `json:"checked_by"`
	Results           string              `json:"results"`
	DefectsFound      string              `json:"defects_found"`
	CorrectiveActions string              `json:"corrective_actions"`
	ExpectedVersion   *int64              `json:"expected_version,omitempty"`
}

// CheckOutcome is a recorded check and the NCR its failure opened, if any.
type CheckOutcome struct {
	Check *storage.QualityCheck        `json:"check"`
	NCR   *storage.NonComplianceRecord `json:"ncr,omitempty"`
}

// PerformCheck records an inspection result. Moving a check into Failed opens
// a Major NCR against it in the same transaction. FailedAccepted is a
// concession and is only reachable from Failed.
func (s *Service) PerformCheck(ctx context.Context, in PerformCheckInput) (*CheckOutcome, error) {
	const op = "service.progress.PerformCheck"

	if err := requireActor(in.CheckedBy); err != nil {
		return nil, err
	}
	if _, err := storage.ParseCheckStatus(string(in.Status)); err != nil {
		return nil, fmt.Errorf("%s: %w", op, invalid("%v", err))
	}
	if in.Status == storage.CheckPending {
		return nil, fmt.Errorf("%s: %w", op, invalid("a check cannot be reset to %s", storage.CheckPending))
	}

	// Resolve the owning assembly before locking it.
	c, err := s.store.GetCheck(ctx, in.CheckID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, mapNotFound(err, ErrCheckNotFound))
	}
	owner, err := s.store.GetProgress(ctx, c.ProgressID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, mapNotFound(err, ErrNoProgressTracking))
	}

	var (
		out       *CheckOutcome
		prevState storage.CheckStatus
	)
	err = s.mutate(ctx, owner.AssemblyID, func(ctx context.Context) error {
		out = &CheckOutcome{}

		c, err := s.store.GetCheck(ctx, in.CheckID)
		if err != nil {
			return mapNotFound(err, ErrCheckNotFound)
		}
		if err := checkVersion(in.ExpectedVersion, c.Version); err != nil {
			return err
		}
		p, err := s.store.GetProgress(ctx, c.ProgressID)
		if err != nil {
			return mapNotFound(err, ErrNoProgressTracking)
		}
		if c.ForStep != p.CurrentStep {
			return fmt.Errorf("%w: check belongs to %s, assembly is at %s", ErrWrongStep, c.ForStep, p.CurrentStep)
		}
		if in.Status == storage.CheckFailedAccepted && c.Status != storage.CheckFailed {
			return invalid("only a %s check can be accepted, this one is %s", storage.CheckFailed, c.Status)
		}

		prevState = c.Status
		now := s.clock()
		c.Status = in.Status
		c.CheckedBy = in.CheckedBy
		c.CheckedAt = &now
		c.Results = in.Results
		c.DefectsFound = in.DefectsFound
		c.CorrectiveActions = in.CorrectiveActions
		if err := s.store.UpdateCheck(ctx, c); err != nil {
			return err
		}
		out.Check = c

		if c.Status == storage.CheckFailed && prevState != storage.CheckFailed {
			checkID := c.ID
			ncr, err := s.openNCR(ctx, ncrDraft{
				assemblyID:     p.AssemblyID,
				qualityCheckID: &checkID,
				step:           c.ForStep,
				description:    failureDescription(c),
				discoveredBy:   in.CheckedBy,
				severity:       storage.SeverityMajor,
			})
			if err != nil {
				return err
			}
			out.NCR = ncr
		}

		return s.emit(ctx, EventCheckPerformed, p.AssemblyID, in.CheckedBy, map[string]any{
			"check_id":   c.ID,
			"check_type": c.CheckType,
			"step":       c.ForStep,
			"from":       prevState,
			"status":     c.Status,
		})
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	s.log.Info("quality check recorded",
		slog.String("assembly_id", owner.AssemblyID),
		slog.String("check_type", string(out.Check.CheckType)),
		slog.String("status", string(out.Check.Status)),
		slog.String("checked_by", in.CheckedBy))
	if out.NCR != nil {
		s.log.Warn("ncr opened for failed check",
			slog.String("assembly_id", owner.AssemblyID),
			slog.String("ncr", out.NCR.Number))
	}

	return out, nil
}

func failureDescription(c *storage.QualityCheck) string {
	desc := fmt.Sprintf("%s failed at %s", c.CheckType, c.ForStep)
	if d := strings.TrimSpace(c.DefectsFound); d != "" {
		desc += ": " + d
	}
	return desc
}

// ListChecks returns the assembly's checks, limited to one step when step is set.
func (s *Service) ListChecks(ctx context.Context, assemblyID string, step *storage.ManufacturingStep) ([]*storage.QualityCheck, error) {
	const op = "service.progress.ListChecks"

	p, err := s.loadProgress(ctx, assemblyID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	checks, err := s.store.ListChecks(ctx, p.ID, step)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return checks, nil
}

// GateReport explains whether an assembly may leave its current step.
type GateReport struct {
	AssemblyID            string                     `json:"assembly_id"`
	CurrentStep           storage.ManufacturingStep  `json:"current_step"`
	NextStep              *storage.ManufacturingStep `json:"next_step"`
	CanAdvance            bool                       `json:"can_advance"`
	MissingChecks         []storage.CheckType        `json:"missing_checks"`
	BlockingNCRs          []string                   `json:"blocking_ncrs"`
	AwaitingCoatingReturn bool                       `json:"awaiting_coating_return"`
}

// GateStatus evaluates the same rules as AdvanceToNextStep without changing anything.
func (s *Service) GateStatus(ctx context.Context, assemblyID string) (*GateReport, error) {
	const op = "service.progress.GateStatus"

	p, err := s.loadProgress(ctx, assemblyID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	var (
		checks   []*storage.QualityCheck
		blocking []*storage.NonComplianceRecord
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		step := p.CurrentStep
		var err error
		checks, err = s.store.ListChecks(gctx, p.ID, &step)
		return err
	})
	g.Go(func() error {
		var err error
		blocking, err = s.store.ListBlockingNCRs(gctx, assemblyID)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return buildGateReport(p, checks, blocking), nil
}

func buildGateReport(p *storage.ProgressState, checks []*storage.QualityCheck, blocking []*storage.NonComplianceRecord) *GateReport {
	r := &GateReport{
		AssemblyID:            p.AssemblyID,
		CurrentStep:           p.CurrentStep,
		MissingChecks:         MissingChecks(p.CurrentStep, checks),
		BlockingNCRs:          []string{},
		AwaitingCoatingReturn: p.AwaitingCoatingReturn(),
	}
	if r.MissingChecks == nil {
		r.MissingChecks = []storage.CheckType{}
	}
	for _, n := range blocking {
		r.BlockingNCRs = append(r.BlockingNCRs, n.Number)
	}

	next, ok := NextStep(p.CurrentStep)
	if ok {
		r.NextStep = &next
	}
	r.CanAdvance = ok && len(r.MissingChecks) == 0 && len(r.BlockingNCRs) == 0 && !r.AwaitingCoatingReturn

	return r
}
