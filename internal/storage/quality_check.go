package storage

import (
	"database/sql/driver"
	"fmt"
	"time"
)

type CheckType string

const (
	CheckVisualTesting    CheckType = "VisualTesting"
	CheckQualityAssurance CheckType = "QualityAssurance"
	CheckDimensional      CheckType = "DimensionalCheck"
	CheckWeldQuality      CheckType = "WeldQualityCheck"
	CheckCoatingQuality   CheckType = "CoatingQualityCheck"
	CheckFinalInspection  CheckType = "FinalInspection"
)

func ParseCheckType(name string) (CheckType, error) {
	switch t := CheckType(name); t {
	case CheckVisualTesting, CheckQualityAssurance, CheckDimensional,
		CheckWeldQuality, CheckCoatingQuality, CheckFinalInspection:
		return t, nil
	}
	return "", fmt.Errorf("unknown check type %q", name)
}

func (t *CheckType) Scan(src any) error { return scanEnum(src, t, ParseCheckType) }

func (t CheckType) Value() (driver.Value, error) { return string(t), nil }

type CheckStatus string

const (
	CheckPending        CheckStatus = "Pending"
	CheckInProgress     CheckStatus = "InProgress"
	CheckPassed         CheckStatus = "Passed"
	CheckFailed         CheckStatus = "Failed"
	CheckFailedAccepted CheckStatus = "FailedAccepted"
)

func ParseCheckStatus(name string) (CheckStatus, error) {
	switch s := CheckStatus(name); s {
	case CheckPending, CheckInProgress, CheckPassed, CheckFailed, CheckFailedAccepted:
		return s, nil
	}
	return "", fmt.Errorf("unknown check status %q", name)
}

func (s *CheckStatus) Scan(src any) error { return scanEnum(src, s, ParseCheckStatus) }

func (s CheckStatus) Value() (driver.Value, error) { return string(s), nil }

// Satisfied reports whether the status lets a required check pass the quality gate.
func (s CheckStatus) Satisfied() bool {
	return s == CheckPassed || s == CheckFailedAccepted
}

// QualityCheck is one inspection of an assembly for a single manufacturing step.
type QualityCheck struct {
	ID                string            `json:"id"`
	ProgressID        string            `json:"progress_id"`
	ForStep           ManufacturingStep `json:"for_step"`
	CheckType         CheckType         `json:"check_type"`
	Status            CheckStatus       `json:"status"`
	IsRequired        bool              `json:"is_required"`
	CheckedBy         string            `json:"checked_by"`
	CheckedAt         *time.Time        `json:"checked_at"`
	Results           string            `json:"results"`
	DefectsFound      string            `json:"defects_found"`
	CorrectiveActions string            `json:"corrective_actions"`
	CreatedAt         time.Time         `json:"created_at"`
	Version           int64             `json:"version"`
}
