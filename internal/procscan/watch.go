package procscan

import (
	"context"
	"time"
)

// DefaultPollInterval is used by WaitExit when interval <= 0.
const DefaultPollInterval = 500 * time.Millisecond

// Identity pins a pid to the process that owned it when captured, so a
// recycled pid is not mistaken for the original process.
type Identity struct {
	PID       int
	StartUnix int64 // 0 when the platform could not report it
}

// Capture records the identity of pid as it is now.
func Capture(pid int) Identity {
	return Identity{PID: pid, StartUnix: startUnix(pid)}
}

// Alive reports whether the captured process is still running.
func (id Identity) Alive() bool {
	if !pidAlive(id.PID) {
		return false
	}
	if id.StartUnix > 0 {
		cur := startUnix(id.PID)
		if cur > 0 && cur != id.StartUnix {
			return false // PID reused; not our process
		}
	}
	return true
}

// Alive reports whether any process with pid exists.
func Alive(pid int) bool { return pidAlive(pid) }

// WaitExit blocks until the process exits or ctx is done.
// It returns ctx.Err() when ctx ends first.
func WaitExit(ctx context.Context, id Identity, interval time.Duration) error {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	if !id.Alive() {
		return nil
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
			if !id.Alive() {
				return nil
			}
		}
	}
}
