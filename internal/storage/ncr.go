package storage

import (
	"database/sql/driver"
	"fmt"
	"time"
)

type NCRSeverity string

const (
	SeverityMinor    NCRSeverity = "Minor"
	SeverityMajor    NCRSeverity = "Major"
	SeverityCritical NCRSeverity = "Critical"
)

func ParseSeverity(name string) (NCRSeverity, error) {
	switch s := NCRSeverity(name); s {
	case SeverityMinor, SeverityMajor, SeverityCritical:
		return s, nil
	}
	return "", fmt.Errorf("unknown ncr severity %q", name)
}

func (s *NCRSeverity) Scan(src any) error { return scanEnum(src, s, ParseSeverity) }

func (s NCRSeverity) Value() (driver.Value, error) { return string(s), nil }

type NCRStatus string

const (
	NCROpen                       NCRStatus = "Open"
	NCRUnderReview                NCRStatus = "UnderReview"
	NCRCorrectiveActionInProgress NCRStatus = "CorrectiveActionInProgress"
	NCRAwaitingVerification       NCRStatus = "AwaitingVerification"
	NCRClosed                     NCRStatus = "Closed"
	NCRClosedWithConcession       NCRStatus = "ClosedWithConcession"
)

func ParseNCRStatus(name string) (NCRStatus, error) {
	switch s := NCRStatus(name); s {
	case NCROpen, NCRUnderReview, NCRCorrectiveActionInProgress,
		NCRAwaitingVerification, NCRClosed, NCRClosedWithConcession:
		return s, nil
	}
	return "", fmt.Errorf("unknown ncr status %q", name)
}

func (s *NCRStatus) Scan(src any) error { return scanEnum(src, s, ParseNCRStatus) }

func (s NCRStatus) Value() (driver.Value, error) { return string(s), nil }

func (s NCRStatus) IsClosed() bool {
	return s == NCRClosed || s == NCRClosedWithConcession
}

// NonComplianceRecord tracks a deviation found on an assembly until it is closed.
type NonComplianceRecord struct {
	ID                   string            `json:"id"`
	Number               string            `json:"number"`
	Year                 int               `json:"year"`
	Sequence             int               `json:"sequence"`
	AssemblyID           string            `json:"assembly_id"`
	QualityCheckID       *string           `json:"quality_check_id"`
	Step                 ManufacturingStep `json:"step"`
	Description          string            `json:"description"`
	Severity             NCRSeverity       `json:"severity"`
	Status               NCRStatus         `json:"status"`
	DiscoveredBy         string            `json:"discovered_by"`
	DiscoveredAt         time.Time         `json:"discovered_at"`
	RootCause            string            `json:"root_cause"`
	ImmediateAction      string            `json:"immediate_action"`
	PreventiveAction     string            `json:"preventive_action"`
	AssignedTo           string            `json:"assigned_to"`
	TargetDate           *time.Time        `json:"target_date"`
	ActualResolutionDate *time.Time        `json:"actual_resolution_date"`
	UpdatedBy            string            `json:"updated_by"`
	UpdatedAt            time.Time         `json:"updated_at"`
	Version              int64             `json:"version"`
}

// Blocking reports whether the record prevents its assembly from advancing.
func (n *NonComplianceRecord) Blocking() bool {
	return n.Status == NCROpen && n.Severity == SeverityCritical
}
