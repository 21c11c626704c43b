package progress

import (
	"errors"
	"fmt"
	"strings"

	"fabprogress/internal/storage"
)

var (
	ErrNotFound           = errors.New("not found")
	ErrAssemblyNotFound   = fmt.Errorf("assembly %w", ErrNotFound)
	ErrNoProgressTracking = fmt.Errorf("progress tracking %w", ErrNotFound)
	ErrCheckNotFound      = fmt.Errorf("quality check %w", ErrNotFound)
	ErrNCRNotFound        = fmt.Errorf("ncr %w", ErrNotFound)

	ErrInvalidProgression    = errors.New("invalid step progression")
	ErrQualityGateBlocked    = errors.New("quality gate blocked")
	ErrCriticalNCRBlocked    = errors.New("open critical ncr blocks progress")
	ErrWrongStep             = errors.New("operation not allowed at current step")
	ErrAlreadyTerminal       = errors.New("assembly already delivered")
	ErrConcurrencyConflict   = errors.New("concurrent modification, retry")
	ErrInvalidInput          = errors.New("invalid input")
	ErrActorRequired         = errors.New("actor is required")
	ErrNotOutsourced         = errors.New("coating is not outsourced")
	ErrAlreadyOutsourced     = errors.New("coating already outsourced")
	ErrAwaitingCoatingReturn = errors.New("awaiting return from coater")
	ErrNCRClosed             = errors.New("ncr is closed")
)

// GateError lists the checks that keep an assembly at its current step.
type GateError struct {
	Step    storage.ManufacturingStep
	Missing []storage.CheckType
}

func (e *GateError) Error() string {
	names := make([]string, len(e.Missing))
	for i, t := range e.Missing {
		names[i] = string(t)
	}
	return fmt.Sprintf("%s: %s requires %s", ErrQualityGateBlocked, e.Step, strings.Join(names, ", "))
}

func (e *GateError) Is(target error) bool {
	return target == ErrQualityGateBlocked
}

// NCRBlockError names the open critical NCRs holding an assembly.
type NCRBlockError struct {
	Numbers []string
}

func (e *NCRBlockError) Error() string {
	return fmt.Sprintf("%s: %s", ErrCriticalNCRBlocked, strings.Join(e.Numbers, ", "))
}

func (e *NCRBlockError) Is(target error) bool {
	return target == ErrCriticalNCRBlocked
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}
