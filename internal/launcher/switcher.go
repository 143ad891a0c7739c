package launcher

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
)

// LogSwitcher only records profile changes. It is used when no profile
// commands are configured.
type LogSwitcher struct {
	Logger *slog.Logger
}

func (s LogSwitcher) Apply(_ context.Context, profile string) error {
	s.logger().Info("display profile applied", "profile", profile)
	return nil
}

func (s LogSwitcher) Revert(context.Context) error {
	s.logger().Info("display profile reverted")
	return nil
}

func (s LogSwitcher) logger() *slog.Logger {
	if s.Logger == nil {
		return slog.Default()
	}
	return s.Logger
}

// CommandSwitcher applies profiles by running external commands. The
// placeholder {profile} in ApplyCommand is replaced with the profile name;
// in RevertCommand it is replaced with the profile that was active before
// the last Apply (empty when unknown).
type CommandSwitcher struct {
	ApplyCommand  string
	RevertCommand string
	Logger        *slog.Logger

	mu       sync.Mutex
	previous string
	current  string
}

func (s *CommandSwitcher) Apply(ctx context.Context, profile string) error {
	s.mu.Lock()
	s.previous, s.current = s.current, profile
	s.mu.Unlock()
	return s.run(ctx, s.ApplyCommand, profile)
}

func (s *CommandSwitcher) Revert(ctx context.Context) error {
	s.mu.Lock()
	prev := s.previous
	s.current, s.previous = prev, ""
	s.mu.Unlock()
	return s.run(ctx, s.RevertCommand, prev)
}

func (s *CommandSwitcher) run(ctx context.Context, tmpl, profile string) error {
	if strings.TrimSpace(tmpl) == "" {
		return nil
	}
	line := strings.ReplaceAll(tmpl, "{profile}", profile)
	cmd := BuildCommand(line)
	out, err := runContext(ctx, cmd)
	if err != nil {
		return fmt.Errorf("%s: %w: %s", line, err, strings.TrimSpace(string(out)))
	}
	if s.Logger != nil {
		s.Logger.Debug("profile command finished", "command", line)
	}
	return nil
}
