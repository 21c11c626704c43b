package progress

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"fabprogress/internal/storage"
)

// Initialize starts tracking an assembly at NotStarted. Calling it again
// returns the stored state untouched.
func (s *Service) Initialize(ctx context.Context, assemblyID, actor string) (*storage.ProgressState, error) {
	const op = "service.progress.Initialize"

	if err := requireActor(actor); err != nil {
		return nil, err
	}

	var (
		state   *storage.ProgressState
		created bool
	)
	err := s.mutate(ctx, assemblyID, func(ctx context.Context) error {
		created = false

		if _, err := s.store.GetAssembly(ctx, assemblyID); err != nil {
			return mapNotFound(err, ErrAssemblyNotFound)
		}

		existing, err := s.store.GetProgressByAssembly(ctx, assemblyID)
		if err == nil {
			state = existing
			return nil
		}
		if !errors.Is(err, storage.ErrNotFound) {
			return err
		}

		now := s.clock()
		p := &storage.ProgressState{
			ID:                   uuid.NewString(),
			AssemblyID:           assemblyID,
			CurrentStep:          storage.StepNotStarted,
			CurrentStepStartedAt: now,
			UpdatedBy:            actor,
			UpdatedAt:            now,
		}
		if err := s.store.CreateProgress(ctx, p); err != nil {
			return err
		}
		if err := s.emit(ctx, EventProgressInitialized, assemblyID, actor, p); err != nil {
			return err
		}

		state, created = p, true
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if created {
		s.log.Info("progress tracking started", slog.String("assembly_id", assemblyID), slog.String("actor", actor))
	}

	return state, nil
}

// GetProgress returns the assembly's current progress state.
func (s *Service) GetProgress(ctx context.Context, assemblyID string) (*storage.ProgressState, error) {
	const op = "service.progress.GetProgress"

	p, err := s.loadProgress(ctx, assemblyID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return p, nil
}

// AdvanceToNextStep moves the assembly to the successor of its current step.
func (s *Service) AdvanceToNextStep(ctx context.Context, assemblyID, actor, notes string) (*storage.ProgressState, error) {
	return s.transition(ctx, "service.progress.AdvanceToNextStep", assemblyID, nil, actor, notes)
}

// TransitionTo moves the assembly to target, which must be the successor of
// its current step.
func (s *Service) TransitionTo(ctx context.Context, assemblyID string, target storage.ManufacturingStep, actor, notes string) (*storage.ProgressState, error) {
	return s.transition(ctx, "service.progress.TransitionTo", assemblyID, &target, actor, notes)
}

func (s *Service) transition(ctx context.Context, op, assemblyID string, target *storage.ManufacturingStep, actor, notes string) (*storage.ProgressState, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}

	var (
		state *storage.ProgressState
		from  storage.ManufacturingStep
	)
	err := s.mutate(ctx, assemblyID, func(ctx context.Context) error {
		p, err := s.loadProgress(ctx, assemblyID)
		if err != nil {
			return err
		}
		from = p.CurrentStep

		if target != nil && !CanTransition(p.CurrentStep, *target) {
			return fmt.Errorf("%w: %s to %s", ErrInvalidProgression, p.CurrentStep, *target)
		}

		if err := s.advance(ctx, p, actor, notes, false); err != nil {
			return err
		}
		state = p
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	s.log.Info("step advanced",
		slog.String("assembly_id", assemblyID),
		slog.String("from", from.String()),
		slog.String("to", state.CurrentStep.String()),
		slog.String("actor", actor))

	return state, nil
}

type stepAdvanced struct {
	From     storage.ManufacturingStep `json:"from"`
	To       storage.ManufacturingStep `json:"to"`
	Duration string                    `json:"duration"`
	Notes    string                    `json:"notes,omitempty"`
}

// advance performs the gated transition of p to its successor inside the
// caller's transaction. coatingReturn is set when the return from the coater
// triggers the move, which lifts the awaiting-return hold.
func (s *Service) advance(ctx context.Context, p *storage.ProgressState, actor, notes string, coatingReturn bool) error {
	next, ok := NextStep(p.CurrentStep)
	if !ok {
		return ErrAlreadyTerminal
	}
	if !coatingReturn && p.AwaitingCoatingReturn() {
		return ErrAwaitingCoatingReturn
	}

	current := p.CurrentStep
	checks, err := s.store.ListChecks(ctx, p.ID, &current)
	if err != nil {
		return err
	}
	if missing := MissingChecks(current, checks); len(missing) > 0 {
		return &GateError{Step: current, Missing: missing}
	}

	blocking, err := s.store.ListBlockingNCRs(ctx, p.AssemblyID)
	if err != nil {
		return err
	}
	if len(blocking) > 0 {
		numbers := make([]string, len(blocking))
		for i, n := range blocking {
			numbers[i] = n.Number
		}
		return &NCRBlockError{Numbers: numbers}
	}

	now := s.clock()
	entry := &storage.StepHistoryEntry{
		ID:          uuid.NewString(),
		ProgressID:  p.ID,
		AssemblyID:  p.AssemblyID,
		Step:        current,
		StartedAt:   p.CurrentStepStartedAt,
		CompletedAt: now,
		Actor:       actor,
		Duration:    now.Sub(p.CurrentStepStartedAt),
		Notes:       notes,
	}
	if err := s.store.AppendHistory(ctx, entry); err != nil {
		return err
	}

	p.PreviousStep = &current
	p.CurrentStep = next
	p.CurrentStepStartedAt = now
	p.CurrentStepCompletedAt = nil
	p.UpdatedBy = actor
	p.UpdatedAt = now
	if notes != "" {
		p.Notes = notes
	}
	if err := s.store.UpdateProgress(ctx, p); err != nil {
		return err
	}
	if err := s.store.SetAssemblyStep(ctx, p.AssemblyID, next); err != nil {
		return err
	}
	if err := s.instantiateRequiredChecks(ctx, p.ID, next); err != nil {
		return err
	}

	return s.emit(ctx, EventStepAdvanced, p.AssemblyID, actor, stepAdvanced{
		From:     current,
		To:       next,
		Duration: entry.Duration.String(),
		Notes:    notes,
	})
}

// CompleteCurrentStep marks the work on the current step as done. It does not
// sign off checks and does not advance. Completing twice keeps the first stamp.
func (s *Service) CompleteCurrentStep(ctx context.Context, assemblyID, actor, notes string) (*storage.ProgressState, error) {
	const op = "service.progress.CompleteCurrentStep"

	if err := requireActor(actor); err != nil {
		return nil, err
	}

	var state *storage.ProgressState
	err := s.mutate(ctx, assemblyID, func(ctx context.Context) error {
		p, err := s.loadProgress(ctx, assemblyID)
		if err != nil {
			return err
		}
		if p.CurrentStepCompletedAt != nil {
			state = p
			return nil
		}

		now := s.clock()
		p.CurrentStepCompletedAt = &now
		p.UpdatedBy = actor
		p.UpdatedAt = now
		if notes != "" {
			p.Notes = notes
		}
		if err := s.store.UpdateProgress(ctx, p); err != nil {
			return err
		}
		if err := s.emit(ctx, EventStepCompleted, assemblyID, actor, map[string]any{
			"step":  p.CurrentStep,
			"notes": notes,
		}); err != nil {
			return err
		}

		state = p
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return state, nil
}

// ListProgressAtStep returns every tracked assembly currently at step.
func (s *Service) ListProgressAtStep(ctx context.Context, step storage.ManufacturingStep) ([]*storage.ProgressState, error) {
	const op = "service.progress.ListProgressAtStep"

	if !step.Valid() {
		return nil, fmt.Errorf("%s: %w", op, invalid("unknown step %d", int(step)))
	}

	states, err := s.store.ListProgressAtStep(ctx, step)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return states, nil
}

// ListHistory returns the closed step occupancies of an assembly, oldest first.
func (s *Service) ListHistory(ctx context.Context, assemblyID string) ([]*storage.StepHistoryEntry, error) {
	const op = "service.progress.ListHistory"

	if _, err := s.store.GetAssembly(ctx, assemblyID); err != nil {
		return nil, fmt.Errorf("%s: %w", op, mapNotFound(err, ErrAssemblyNotFound))
	}

	entries, err := s.store.ListHistory(ctx, assemblyID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return entries, nil
}
