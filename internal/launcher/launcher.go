// Package launcher starts shortcut commands as detached child processes,
// applying the shortcut's display profile around the launch.
package launcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strconv"
	"time"

	"github.com/loykin/displayhold/internal/env"
	"github.com/loykin/displayhold/internal/logger"
	"github.com/loykin/displayhold/internal/shortcut"
)

// Config configures a Launcher.
type Config struct {
	// Log routes launched process output to rotating files when File.Dir or
	// an explicit path is set; otherwise output is discarded.
	Log      logger.Config
	Detached bool
	// Env composes the child environment; nil inherits os.Environ().
	Env      *env.Env
	Switcher shortcut.ProfileSwitcher // defaults to LogSwitcher
	Logger   *slog.Logger
}

// Variables exported to every launched shortcut.
const (
	EnvShortcutID = "DISPLAYHOLD_SHORTCUT_ID"
	EnvParentPID  = "DISPLAYHOLD_PARENT_PID"
)

// Launcher implements shortcut.Runner.
type Launcher struct {
	cfg Config
}

func New(cfg Config) *Launcher {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Switcher == nil {
		cfg.Switcher = LogSwitcher{Logger: cfg.Logger}
	}
	return &Launcher{cfg: cfg}
}

// Switcher returns the profile switcher used around launches.
func (l *Launcher) Switcher() shortcut.ProfileSwitcher { return l.cfg.Switcher }

// Run applies the shortcut's profile and starts its command. It returns as
// soon as the process started; the child is reaped in the background. The
// profile is reverted when the start fails.
func (l *Launcher) Run(ctx context.Context, s shortcut.Shortcut) (shortcut.Launch, error) {
	logger := l.cfg.Logger.With("shortcut", s.ID, "name", s.Name)
	if s.Profile != "" {
		if err := l.cfg.Switcher.Apply(ctx, s.Profile); err != nil {
			return shortcut.Launch{}, fmt.Errorf("apply profile %q: %w", s.Profile, err)
		}
	}

	cmd, closeWriters := l.configureCmd(s)
	if err := cmd.Start(); err != nil {
		closeWriters()
		if s.Profile != "" {
			if rerr := l.cfg.Switcher.Revert(context.WithoutCancel(ctx)); rerr != nil {
				logger.Warn("revert profile after failed start", "error", rerr)
			}
		}
		return shortcut.Launch{}, fmt.Errorf("start %q: %w", s.Command, err)
	}

	launch := shortcut.Launch{ShortcutID: s.ID, PID: cmd.Process.Pid, StartedAt: time.Now()}
	logger.Info("shortcut started", "pid", launch.PID)
	go func() {
		err := cmd.Wait()
		closeWriters()
		var exitErr *exec.ExitError
		switch {
		case err == nil:
			logger.Info("shortcut exited", "pid", launch.PID)
		case errors.As(err, &exitErr):
			logger.Info("shortcut exited", "pid", launch.PID, "code", exitErr.ExitCode())
		default:
			logger.Warn("shortcut wait failed", "pid", launch.PID, "error", err)
		}
	}()
	return launch, nil
}

// configureCmd builds the command with workdir, process attributes and
// output writers. The returned func closes any writers that were opened.
func (l *Launcher) configureCmd(s shortcut.Shortcut) (*exec.Cmd, func()) {
	cmd := BuildCommand(s.Command)
	if s.WorkDir != "" {
		cmd.Dir = s.WorkDir
	}
	configureSysProcAttr(cmd, l.cfg.Detached)
	extra := []string{
		EnvShortcutID + "=" + s.ID,
		EnvParentPID + "=" + strconv.Itoa(os.Getpid()),
	}
	if l.cfg.Env != nil {
		cmd.Env = l.cfg.Env.Merge(extra)
	} else {
		cmd.Env = append(os.Environ(), extra...)
	}

	var closers []io.Closer
	if l.cfg.Log.File.Dir != "" {
		_ = os.MkdirAll(l.cfg.Log.File.Dir, 0o750)
	}
	name := s.Name
	if name == "" {
		name = s.ID
	}
	outW, errW, _ := l.cfg.Log.ProcessWriters(name)
	if outW != nil {
		cmd.Stdout = outW
		closers = append(closers, outW)
	}
	if errW != nil {
		cmd.Stderr = errW
		closers = append(closers, errW)
	}
	// nil Stdout/Stderr are connected to the null device by os/exec
	return cmd, func() {
		for _, c := range closers {
			_ = c.Close()
		}
	}
}
