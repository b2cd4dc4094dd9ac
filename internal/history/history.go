package history

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/loykin/taskmgr/internal/clock"
	"github.com/loykin/taskmgr/internal/task"
)

// EventType defines the kind of lifecycle event.
type EventType string

const (
	EventAdmit EventType = "admit"
	EventEvict EventType = "evict"
	EventKill  EventType = "kill"
	EventPurge EventType = "purge"
)

// Event represents a lifecycle event to be exported to external systems.
type Event struct {
	ID         string       `json:"id"`
	Type       EventType    `json:"type"`
	OccurredAt time.Time    `json:"occurred_at"`
	Strategy   string       `json:"strategy,omitempty"`
	Record     task.Process `json:"record"`
}

// NewEvent stamps an event with a fresh id and the current time.
// strategy is empty for events not caused by an admission.
func NewEvent(t EventType, rec task.Process, strategy string) Event {
	return Event{
		ID:         uuid.NewString(),
		Type:       t,
		OccurredAt: clock.Now().UTC(),
		Strategy:   strategy,
		Record:     rec,
	}
}

// Sink is a destination for history events (analytics/statistics systems).
// Implementations must be safe for concurrent use.
type Sink interface {
	Send(ctx context.Context, e Event) error
}
