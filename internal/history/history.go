// Package history records coordination events (status transitions, runs,
// refusals and holds) to external sinks.
package history

import (
	"context"
	"time"
)

// EventType defines the kind of coordination event.
type EventType string

const (
	EventStatusChange EventType = "status_change"
	EventRunStarted   EventType = "run_started"
	EventRunRefused   EventType = "run_refused"
	EventHoldStarted  EventType = "hold_started"
	EventHoldReleased EventType = "hold_released"
)

// Event is one coordination event of the instance identified by PID.
type Event struct {
	Type       EventType `json:"type" db:"type"`
	OccurredAt time.Time `json:"occurred_at" db:"occurred_at"`
	PID        int       `json:"pid" db:"pid"`
	From       string    `json:"from,omitempty" db:"from_status"`
	To         string    `json:"to,omitempty" db:"to_status"`
	ShortcutID string    `json:"shortcut_id,omitempty" db:"shortcut_id"`
	HoldPID    int       `json:"hold_pid,omitempty" db:"hold_pid"`
	Detail     string    `json:"detail,omitempty" db:"detail"`
}

// Sink is a destination for history events.
// Implementations must be safe for concurrent use.
type Sink interface {
	Send(ctx context.Context, e Event) error
}
