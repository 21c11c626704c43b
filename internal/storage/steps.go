package storage

import (
	"database/sql/driver"
	"fmt"
)

// ManufacturingStep is the position of an assembly in the fabrication sequence.
// The numeric value is the canonical order.
type ManufacturingStep int

const (
	StepNotStarted ManufacturingStep = iota
	StepAssembled
	StepWelded
	StepReadyForCoating
	StepCoatingDone
	StepReadyForDelivery
	StepDelivered
)

// Steps lists every manufacturing step in canonical order.
var Steps = []ManufacturingStep{
	StepNotStarted,
	StepAssembled,
	StepWelded,
	StepReadyForCoating,
	StepCoatingDone,
	StepReadyForDelivery,
	StepDelivered,
}

func (s ManufacturingStep) String() string {
	switch s {
	case StepNotStarted:
		return "NotStarted"
	case StepAssembled:
		return "Assembled"
	case StepWelded:
		return "Welded"
	case StepReadyForCoating:
		return "ReadyForCoating"
	case StepCoatingDone:
		return "CoatingDone"
	case StepReadyForDelivery:
		return "ReadyForDelivery"
	case StepDelivered:
		return "Delivered"
	}
	return fmt.Sprintf("ManufacturingStep(%d)", int(s))
}

func (s ManufacturingStep) Valid() bool {
	return s >= StepNotStarted && s <= StepDelivered
}

func ParseStep(name string) (ManufacturingStep, error) {
	for _, s := range Steps {
		if s.String() == name {
			return s, nil
		}
	}
	return 0, fmt.Errorf("unknown manufacturing step %q", name)
}

func (s ManufacturingStep) MarshalText() ([]byte, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("invalid manufacturing step %d", int(s))
	}
	return []byte(s.String()), nil
}

func (s *ManufacturingStep) UnmarshalText(b []byte) error {
	v, err := ParseStep(string(b))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

func (s ManufacturingStep) Value() (driver.Value, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("invalid manufacturing step %d", int(s))
	}
	return s.String(), nil
}

func (s *ManufacturingStep) Scan(src any) error {
	return scanEnum(src, s, ParseStep)
}

// scanEnum decodes a TEXT column into one of the enum types of this package.
func scanEnum[T any](src any, dst *T, parse func(string) (T, error)) error {
	var name string
	switch v := src.(type) {
	case string:
		name = v
	case []byte:
		name = string(v)
	case nil:
		return fmt.Errorf("cannot scan NULL into %T", dst)
	default:
		return fmt.Errorf("cannot scan %T into %T", src, dst)
	}
	parsed, err := parse(name)
	if err != nil {
		return err
	}
	*dst = parsed
	return nil
}
