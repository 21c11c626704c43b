package progress

import "fabprogress/internal/storage"

// NextStep returns the only step an assembly may move to from s. Delivered
// has no successor.
func NextStep(s storage.ManufacturingStep) (storage.ManufacturingStep, bool) {
	switch s {
	case storage.StepNotStarted:
		return storage.StepAssembled, true
	case storage.StepAssembled:
		return storage.StepWelded, true
	case storage.StepWelded:
		return storage.StepReadyForCoating, true
	case storage.StepReadyForCoating:
		return storage.StepCoatingDone, true
	case storage.StepCoatingDone:
		return storage.StepReadyForDelivery, true
	case storage.StepReadyForDelivery:
		return storage.StepDelivered, true
	case storage.StepDelivered:
		return 0, false
	}
	return 0, false
}

// PreviousStep is the inverse of NextStep.
func PreviousStep(s storage.ManufacturingStep) (storage.ManufacturingStep, bool) {
	switch s {
	case storage.StepNotStarted:
		return 0, false
	case storage.StepAssembled:
		return storage.StepNotStarted, true
	case storage.StepWelded:
		return storage.StepAssembled, true
	case storage.StepReadyForCoating:
		return storage.StepWelded, true
	case storage.StepCoatingDone:
		return storage.StepReadyForCoating, true
	case storage.StepReadyForDelivery:
		return storage.StepCoatingDone, true
	case storage.StepDelivered:
		return storage.StepReadyForDelivery, true
	}
	return 0, false
}

// CanTransition reports whether from → to is an edge of the manufacturing sequence.
func CanTransition(from, to storage.ManufacturingStep) bool {
	next, ok := NextStep(from)
	return ok && next == to
}
