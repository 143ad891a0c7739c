package instance

import (
	"fmt"
	"strings"
)

// Status describes what a running instance is currently doing.
// Ordinals are stable within a build; the wire form is the string name.
type Status int

const (
	// StatusUnknown is reported for instances that did not answer.
	StatusUnknown Status = -1
	// StatusBusy: applying or reverting a display change; must not be interrupted.
	StatusBusy Status = 0
	// StatusUser: idle interactive state, safe to coexist with.
	StatusUser Status = 1
	// StatusOnHold: a display change is active and the instance waits for a
	// foreground process to exit before reverting.
	StatusOnHold Status = 2
)

func (s Status) String() string {
	switch s {
	case StatusBusy:
		return "busy"
	case StatusUser:
		return "user"
	case StatusOnHold:
		return "on_hold"
	default:
		return "unknown"
	}
}

// Active reports whether an instance in this status blocks a new run.
func (s Status) Active() bool {
	return s == StatusBusy || s == StatusOnHold
}

// ParseStatus accepts the wire names (case insensitive) and "onhold".
func ParseStatus(v string) (Status, error) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "busy":
		return StatusBusy, nil
	case "user":
		return StatusUser, nil
	case "on_hold", "onhold", "on-hold":
		return StatusOnHold, nil
	case "unknown":
		return StatusUnknown, nil
	}
	return StatusUnknown, fmt.Errorf("invalid status %q", v)
}

func (s Status) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

func (s *Status) UnmarshalText(b []byte) error {
	v, err := ParseStatus(string(b))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

// Snapshot is the response to a status query: the whole observable state of
// one instance in a single message.
type Snapshot struct {
	PID           int    `json:"pid"`
	Status        Status `json:"status"`
	HoldProcessID int    `json:"hold_process_id"`
}
