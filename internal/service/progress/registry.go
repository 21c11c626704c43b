package progress

import "fabprogress/internal/storage"

// RequiredChecks lists the inspections that must be signed off before an
// assembly may leave step s.
func RequiredChecks(s storage.ManufacturingStep) []storage.CheckType {
	switch s {
	case storage.StepNotStarted:
		return nil
	case storage.StepAssembled:
		return []storage.CheckType{storage.CheckVisualTesting, storage.CheckDimensional, storage.CheckQualityAssurance}
	case storage.StepWelded:
		return []storage.CheckType{storage.CheckVisualTesting, storage.CheckWeldQuality, storage.CheckQualityAssurance}
	case storage.StepReadyForCoating:
		return []storage.CheckType{storage.CheckVisualTesting, storage.CheckQualityAssurance}
	case storage.StepCoatingDone:
		return []storage.CheckType{storage.CheckVisualTesting, storage.CheckCoatingQuality, storage.CheckQualityAssurance}
	case storage.StepReadyForDelivery:
		return []storage.CheckType{storage.CheckFinalInspection, storage.CheckQualityAssurance}
	case storage.StepDelivered:
		return nil
	}
	return nil
}

// MissingChecks returns the check types still blocking step s. A required
// check is missing when it is not Passed or FailedAccepted, or when the
// registry demands a type that has no check at all. Optional checks never block.
func MissingChecks(s storage.ManufacturingStep, checks []*storage.QualityCheck) []storage.CheckType {
	seen := make(map[storage.CheckType]bool)
	var missing []storage.CheckType

	for _, c := range checks {
		if c.ForStep != s || !c.IsRequired {
			continue
		}
		seen[c.CheckType] = true
		if !c.Status.Satisfied() {
			missing = appendType(missing, c.CheckType)
		}
	}
	for _, t := range RequiredChecks(s) {
		if !seen[t] {
			missing = appendType(missing, t)
		}
	}

	return missing
}

// CanAdvance reports whether the checks of step s let the assembly move on.
func CanAdvance(s storage.ManufacturingStep, checks []*storage.QualityCheck) bool {
	return len(MissingChecks(s, checks)) == 0
}

func appendType(types []storage.CheckType, t storage.CheckType) []storage.CheckType {
	for _, have := range types {
		if have == t {
			return types
		}
	}
	return append(types, t)
}
