package progress

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

const (
	EventProgressInitialized = "progress.initialized"
	EventStepAdvanced        = "step.advanced"
	EventStepCompleted       = "step.completed"
	EventCheckPerformed      = "check.performed"
	EventNCROpened           = "ncr.opened"
	EventNCRUpdated          = "ncr.updated"
	EventCoatingSent         = "coating.sent"
	EventCoatingReturned     = "coating.returned"
)

// Event is the envelope published for every committed state change.
type Event struct {
	Type       string    `json:"type"`
	AssemblyID string    `json:"assembly_id"`
	Actor      string    `json:"actor"`
	OccurredAt time.Time `json:"occurred_at"`
	Data       any       `json:"data,omitempty"`
}

// emit queues an event in the outbox inside the caller's transaction.
func (s *Service) emit(ctx context.Context, eventType, assemblyID, actor string, data any) error {
	if s.topic == "" {
		return nil
	}

	payload, err := json.Marshal(Event{
		Type:       eventType,
		AssemblyID: assemblyID,
		Actor:      actor,
		OccurredAt: s.clock(),
		Data:       data,
	})
	if err != nil {
		return fmt.Errorf("marshal %s event: %w", eventType, err)
	}

	return s.store.EnqueueOutbox(ctx, s.topic, assemblyID, eventType, payload)
}
