// Package shortcut defines the launchable shortcut record and the
// collaborators the run orchestration depends on.
package shortcut

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned when no shortcut has the requested id.
var ErrNotFound = errors.New("shortcut not found")

// Shortcut is a named command run under a display profile.
type Shortcut struct {
	ID          string    `db:"id" json:"id"`
	Name        string    `db:"name" json:"name"`
	Command     string    `db:"command" json:"command"`
	WorkDir     string    `db:"work_dir" json:"work_dir,omitempty"`
	Profile     string    `db:"profile" json:"profile,omitempty"`
	WaitForExit bool      `db:"wait_for_exit" json:"wait_for_exit"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`
}

// New returns a shortcut with a fresh id and timestamps.
func New(name, command string) Shortcut {
	now := time.Now().UTC()
	return Shortcut{
		ID:        uuid.NewString(),
		Name:      strings.TrimSpace(name),
		Command:   strings.TrimSpace(command),
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func (s Shortcut) Validate() error {
	if strings.TrimSpace(s.ID) == "" {
		return errors.New("shortcut id required")
	}
	if _, err := uuid.Parse(s.ID); err != nil {
		return fmt.Errorf("shortcut id %q: %w", s.ID, err)
	}
	if strings.TrimSpace(s.Name) == "" {
		return errors.New("shortcut name required")
	}
	if strings.TrimSpace(s.Command) == "" {
		return errors.New("shortcut command required")
	}
	return nil
}

// NormalizeID strips whitespace and one pair of surrounding quotes, which
// shells and desktop launchers tend to leave on the argument.
func NormalizeID(id string) string {
	id = strings.TrimSpace(id)
	for _, q := range []string{`"`, `'`} {
		if len(id) >= 2 && strings.HasPrefix(id, q) && strings.HasSuffix(id, q) {
			return strings.TrimSpace(id[1 : len(id)-1])
		}
	}
	return strings.Trim(id, `"`)
}

// Repository looks shortcuts up by id.
type Repository interface {
	Contains(ctx context.Context, id string) (bool, error)
	Get(ctx context.Context, id string) (Shortcut, error)
}

// Launch describes a started shortcut.
type Launch struct {
	ShortcutID string    `json:"shortcut_id"`
	PID        int       `json:"pid"` // 0 when the runner does not track the process
	StartedAt  time.Time `json:"started_at"`
}

// Runner performs the launch of a shortcut. Applying the display profile is
// part of the run.
type Runner interface {
	Run(ctx context.Context, s Shortcut) (Launch, error)
}

// ProfileSwitcher applies and reverts display profiles.
type ProfileSwitcher interface {
	Apply(ctx context.Context, profile string) error
	Revert(ctx context.Context) error
}
