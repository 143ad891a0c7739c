package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/loykin/displayhold"
)

type opener func(ctx context.Context, configPath string) (*displayhold.Runtime, error)

func openRuntime(ctx context.Context, configPath string) (*displayhold.Runtime, error) {
	c, err := displayhold.LoadConfig(configPath)
	if err != nil {
		return nil, err
	}
	return displayhold.Open(ctx, c, displayhold.Options{})
}

type command struct {
	out  io.Writer
	open opener
}

func (c command) withRuntime(ctx context.Context, configPath string, fn func(*displayhold.Runtime) error) error {
	rt, err := c.open(ctx, configPath)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := rt.Close(context.WithoutCancel(ctx)); cerr != nil {
			rt.Logger.Warn("close runtime", "error", cerr)
		}
	}()
	return fn(rt)
}

// Serve starts this instance normally and blocks until ctx ends or a
// StopHold command arrives.
func (c command) Serve(ctx context.Context, f ServeFlags) error {
	return c.withRuntime(ctx, f.ConfigPath, func(rt *displayhold.Runtime) error {
		if err := rt.App.StartUpNormally(ctx); err != nil {
			return err
		}
		if err := rt.StartDiagnostics(); err != nil {
			return fmt.Errorf("diagnostics: %w", err)
		}
		rt.Logger.Info("instance ready", "pid", rt.App.PID())
		select {
		case <-ctx.Done():
		case <-rt.App.Done():
			rt.Logger.Info("stop hold received, exiting")
		}
		return nil
	})
}

// Run launches a shortcut unless another instance is busy.
func (c command) Run(ctx context.Context, id string, f RunFlags) error {
	if f.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.Timeout)
		defer cancel()
	}
	return c.withRuntime(ctx, f.ConfigPath, func(rt *displayhold.Runtime) error {
		launch, err := rt.App.RunShortcut(ctx, id)
		if err != nil {
			switch {
			case errors.Is(err, displayhold.ErrConflict):
				return fmt.Errorf("cannot run now: %w", err)
			case errors.Is(err, displayhold.ErrNotFound):
				return fmt.Errorf("no shortcut with id %s", displayhold.NormalizeID(id))
			}
			return err
		}
		printJSON(c.out, launch)
		if !f.Stay {
			return nil
		}
		select {
		case <-ctx.Done():
		case <-rt.App.Done():
		}
		return nil
	})
}

// Instances prints every reachable instance.
func (c command) Instances(ctx context.Context, f InstancesFlags) error {
	return c.withRuntime(ctx, f.ConfigPath, func(rt *displayhold.Runtime) error {
		hs := rt.App.Instances(ctx)
		if hs == nil {
			hs = []displayhold.Handle{}
		}
		printJSON(c.out, hs)
		return nil
	})
}

func (c command) StopHold(ctx context.Context, f StopHoldFlags) error {
	return c.withRuntime(ctx, f.ConfigPath, func(rt *displayhold.Runtime) error {
		if err := rt.App.StopHold(ctx, f.PID); err != nil {
			return fmt.Errorf("stop hold %d: %w", f.PID, err)
		}
		_, _ = fmt.Fprintf(c.out, "stop hold sent to %d\n", f.PID)
		return nil
	})
}

func (c command) ShortcutAdd(ctx context.Context, f ShortcutAddFlags) error {
	if strings.TrimSpace(f.Name) == "" || strings.TrimSpace(f.Command) == "" {
		return fmt.Errorf("--name and --command are required")
	}
	return c.withRuntime(ctx, f.ConfigPath, func(rt *displayhold.Runtime) error {
		sc := displayhold.NewShortcut(f.Name, f.Command)
		sc.WorkDir = f.WorkDir
		sc.Profile = f.Profile
		sc.WaitForExit = f.WaitForExit
		if err := rt.Store.Save(ctx, sc); err != nil {
			return err
		}
		saved, err := rt.Store.Get(ctx, sc.ID)
		if err != nil {
			return err
		}
		printJSON(c.out, saved)
		return nil
	})
}

func (c command) ShortcutList(ctx context.Context, configPath string) error {
	return c.withRuntime(ctx, configPath, func(rt *displayhold.Runtime) error {
		list, err := rt.Store.List(ctx)
		if err != nil {
			return err
		}
		if list == nil {
			list = []displayhold.Shortcut{}
		}
		printJSON(c.out, list)
		return nil
	})
}

func (c command) ShortcutShow(ctx context.Context, f ShortcutFlags) error {
	return c.withRuntime(ctx, f.ConfigPath, func(rt *displayhold.Runtime) error {
		sc, err := rt.Store.Get(ctx, displayhold.NormalizeID(f.ID))
		if err != nil {
			return err
		}
		printJSON(c.out, sc)
		return nil
	})
}

func (c command) ShortcutRemove(ctx context.Context, f ShortcutFlags) error {
	return c.withRuntime(ctx, f.ConfigPath, func(rt *displayhold.Runtime) error {
		id := displayhold.NormalizeID(f.ID)
		if err := rt.Store.Delete(ctx, id); err != nil {
			return err
		}
		_, _ = fmt.Fprintf(c.out, "removed %s\n", id)
		return nil
	})
}
