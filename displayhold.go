// Package displayhold is the embedding facade: it re-exports the core types
// and composes a ready-to-use runtime from a Config.
package displayhold

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/loykin/displayhold/internal/app"
	"github.com/loykin/displayhold/internal/config"
	"github.com/loykin/displayhold/internal/diag"
	"github.com/loykin/displayhold/internal/history"
	hfactory "github.com/loykin/displayhold/internal/history/factory"
	"github.com/loykin/displayhold/internal/instance"
	"github.com/loykin/displayhold/internal/launcher"
	"github.com/loykin/displayhold/internal/metrics"
	"github.com/loykin/displayhold/internal/procscan"
	"github.com/loykin/displayhold/internal/shortcut"
	"github.com/loykin/displayhold/internal/store"
	sfactory "github.com/loykin/displayhold/internal/store/factory"
)

// Re-export core types for external consumers.

type Config = config.Config

type Status = instance.Status

type Snapshot = instance.Snapshot

type Handle = instance.Handle

type Shortcut = shortcut.Shortcut

type Launch = shortcut.Launch

type HistorySink = history.Sink

type App = app.App

const (
	StatusUnknown = instance.StatusUnknown
	StatusBusy    = instance.StatusBusy
	StatusUser    = instance.StatusUser
	StatusOnHold  = instance.StatusOnHold
)

var (
	ErrConflict                = app.ErrConflict
	ErrCoordinationUnavailable = app.ErrCoordinationUnavailable
	ErrUnavailable             = instance.ErrUnavailable
	ErrNotFound                = shortcut.ErrNotFound
)

func LoadConfig(path string) (Config, error) { return config.Load(path) }

func DefaultConfig() Config { return config.Default() }

func NewShortcut(name, command string) Shortcut { return shortcut.New(name, command) }

// NormalizeID strips whitespace and surrounding quotes from a shortcut id.
func NormalizeID(id string) string { return shortcut.NormalizeID(id) }

// Runtime bundles the application with the resources Open created.
type Runtime struct {
	App    *app.App
	Store  store.Store
	Logger *slog.Logger

	cfg  Config
	diag *diag.Server
}

// Options adjust Open for embedding and tests.
type Options struct {
	// PID overrides the pid the channel is addressed by.
	PID int
	// Lister overrides process discovery.
	Lister procscan.Lister
	// Runner overrides the shortcut launcher.
	Runner shortcut.Runner
	Logger *slog.Logger
}

// Open builds the full runtime: logger, shortcut store, history sink,
// metrics, launcher and the App. Nothing is listening yet; call
// App.StartUpNormally and, optionally, StartDiagnostics.
func Open(ctx context.Context, c Config, opts Options) (*Runtime, error) {
	logger := opts.Logger
	if logger == nil {
		logger = c.Log.NewSlogger()
	}

	if c.Metrics.Enabled {
		if err := metrics.Register(prometheus.DefaultRegisterer); err != nil {
			return nil, fmt.Errorf("register metrics: %w", err)
		}
	}

	st, err := sfactory.NewFromDSN(c.Store.DSN)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	if err := st.EnsureSchema(ctx); err != nil {
		_ = st.Close()
		return nil, fmt.Errorf("store schema: %w", err)
	}

	var rec *history.Recorder
	if c.History.Enabled {
		sink, err := hfactory.NewSinkFromDSN(c.History.DSN)
		if err != nil {
			_ = st.Close()
			return nil, fmt.Errorf("open history sink: %w", err)
		}
		rec = history.NewRecorder(logger, sink)
	}

	var switcher shortcut.ProfileSwitcher = launcher.LogSwitcher{Logger: logger}
	if c.Launch.ApplyProfileCommand != "" || c.Launch.RevertProfileCommand != "" {
		switcher = &launcher.CommandSwitcher{
			ApplyCommand:  c.Launch.ApplyProfileCommand,
			RevertCommand: c.Launch.RevertProfileCommand,
			Logger:        logger,
		}
	}

	runner := opts.Runner
	if runner == nil {
		childEnv, err := c.Launch.BuildEnv()
		if err != nil {
			_ = st.Close()
			return nil, err
		}
		runner = launcher.New(launcher.Config{
			Log:      c.Log,
			Detached: c.Launch.Detached,
			Env:      childEnv,
			Switcher: switcher,
			Logger:   logger,
		})
	}

	var sampler *metrics.HoldSampler
	if c.Metrics.Enabled {
		sampler = metrics.NewHoldSampler(c.Metrics.HoldSampleInterval, c.Metrics.HoldSampleHistory)
	}

	lister := opts.Lister
	if lister == nil {
		lister = procscan.System{SameImage: c.IPC.SameImage}
	}

	a := app.New(app.Config{
		Host: instance.HostConfig{
			PID:        opts.PID,
			Addressing: c.IPC.Addressing(),
			Metrics:    c.Metrics.Enabled,
		},
		Client: instance.ClientConfig{
			Addressing:  c.IPC.Addressing(),
			Lister:      lister,
			Timeout:     c.IPC.Timeout,
			Concurrency: c.IPC.Concurrency,
		},
		Repository:       st,
		Runner:           runner,
		Switcher:         switcher,
		Recorder:         rec,
		Sampler:          sampler,
		HoldPollInterval: c.Launch.HoldPollInterval,
		Logger:           logger,
	})
	return &Runtime{App: a, Store: st, Logger: logger, cfg: c}, nil
}

// StartDiagnostics serves /healthz, /instances and /metrics on the
// configured metrics.listen address. It is a no-op when metrics are off.
func (r *Runtime) StartDiagnostics() error {
	if !r.cfg.Metrics.Enabled || r.diag != nil {
		return nil
	}
	srv := diag.New(r.App, r.Logger)
	if err := srv.Start(r.cfg.Metrics.Listen); err != nil {
		return err
	}
	r.diag = srv
	r.Logger.Info("diagnostics listening", "addr", srv.Addr())
	return nil
}

// DiagnosticsAddr is the bound diagnostics address, empty when not started.
func (r *Runtime) DiagnosticsAddr() string {
	if r.diag == nil {
		return ""
	}
	return r.diag.Addr()
}

// Close stops every server and releases the store and history sinks.
func (r *Runtime) Close(ctx context.Context) error {
	var errs []error
	if r.diag != nil {
		errs = append(errs, r.diag.Shutdown(ctx))
	}
	errs = append(errs, r.App.Close(ctx), r.Store.Close())
	return errors.Join(errs...)
}
