package storage

import (
	"database/sql/driver"
	"errors"
	"fmt"
	"time"
)

var (
	ErrNotFound        = errors.New("record not found")
	ErrVersionConflict = errors.New("row version conflict")
	ErrDuplicate       = errors.New("duplicate key")
)

// Assembly is a fabricated unit from the project's assembly list.
type Assembly struct {
	ID          string            `json:"id"`
	Mark        string            `json:"mark"`
	ProjectRef  string            `json:"project_ref"`
	CurrentStep ManufacturingStep `json:"current_step"`
	CreatedAt   time.Time         `json:"created_at"`
}

// ProgressState is the manufacturing position of one assembly.
type ProgressState struct {
	ID                     string             `json:"id"`
	AssemblyID             string             `json:"assembly_id"`
	CurrentStep            ManufacturingStep  `json:"current_step"`
	PreviousStep           *ManufacturingStep `json:"previous_step"`
	CurrentStepStartedAt   time.Time          `json:"current_step_started_at"`
	CurrentStepCompletedAt *time.Time         `json:"current_step_completed_at"`
	UpdatedBy              string             `json:"updated_by"`
	UpdatedAt              time.Time          `json:"updated_at"`

	IsCoatingOutsourced     bool       `json:"is_coating_outsourced"`
	OutsourcedCoatingSentAt *time.Time `json:"outsourced_coating_sent_at"`
	ExpectedReturnAt        *time.Time `json:"expected_return_at"`
	ActualReturnAt          *time.Time `json:"actual_return_at"`

	Notes   string `json:"notes"`
	Version int64  `json:"version"`
}

// AwaitingCoatingReturn reports whether the assembly is at the coater.
func (p *ProgressState) AwaitingCoatingReturn() bool {
	return p.IsCoatingOutsourced && p.ActualReturnAt == nil
}

// StepHistoryEntry is one closed occupancy of a manufacturing step.
type StepHistoryEntry struct {
	ID          string            `json:"id"`
	ProgressID  string            `json:"progress_id"`
	AssemblyID  string            `json:"assembly_id"`
	Step        ManufacturingStep `json:"step"`
	StartedAt   time.Time         `json:"started_at"`
	CompletedAt time.Time         `json:"completed_at"`
	Actor       string            `json:"actor"`
	Duration    time.Duration     `json:"duration"`
	Notes       string            `json:"notes"`
}

type CoatingStatus string

const (
	CoatingSent     CoatingStatus = "Sent"
	CoatingReturned CoatingStatus = "Returned"
)

func ParseCoatingStatus(name string) (CoatingStatus, error) {
	switch s := CoatingStatus(name); s {
	case CoatingSent, CoatingReturned:
		return s, nil
	}
	return "", fmt.Errorf("unknown coating status %q", name)
}

func (s *CoatingStatus) Scan(src any) error { return scanEnum(src, s, ParseCoatingStatus) }

func (s CoatingStatus) Value() (driver.Value, error) { return string(s), nil }

// OutsourcedCoatingRecord tracks an assembly sent to an external coater.
type OutsourcedCoatingRecord struct {
	ID               string        `json:"id"`
	AssemblyID       string        `json:"assembly_id"`
	ProgressID       string        `json:"progress_id"`
	SupplierID       string        `json:"supplier_id"`
	SentAt           time.Time     `json:"sent_at"`
	ExpectedReturnAt time.Time     `json:"expected_return_at"`
	ActualReturnAt   *time.Time    `json:"actual_return_at"`
	Status           CoatingStatus `json:"status"`
	SentBy           string        `json:"sent_by"`
	ReturnedBy       string        `json:"returned_by"`
	Notes            string        `json:"notes"`
}

// OutboxMessage is an event waiting to be published.
type OutboxMessage struct {
	ID        int64
	Topic     string
	Key       string
	Payload   []byte
	EventType string
	Retries   int
	CreatedAt time.Time
	SentAt    *time.Time
}
