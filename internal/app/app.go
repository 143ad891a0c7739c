// Package app is the orchestration layer: it owns the instance Host, decides
// whether a shortcut may run given the state of other instances, and drives
// the Busy/OnHold/User state machine of this process.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/loykin/displayhold/internal/history"
	"github.com/loykin/displayhold/internal/instance"
	"github.com/loykin/displayhold/internal/ipc"
	"github.com/loykin/displayhold/internal/metrics"
	"github.com/loykin/displayhold/internal/procscan"
	"github.com/loykin/displayhold/internal/shortcut"
)

var (
	// ErrConflict is returned when another instance is Busy or OnHold.
	ErrConflict = errors.New("another instance is changing the display")
	// ErrCoordinationUnavailable is the fatal form of instance.ErrUnavailable
	// during StartUpNormally.
	ErrCoordinationUnavailable = errors.New("coordination channel could not be created")
)

// Config wires the collaborators of an App.
type Config struct {
	Host   instance.HostConfig
	Client instance.ClientConfig

	Repository shortcut.Repository
	Runner     shortcut.Runner
	// Switcher reverts the display profile when a hold ends. Nil skips it.
	Switcher shortcut.ProfileSwitcher
	Recorder *history.Recorder // nil disables history
	// Sampler records resource usage of the held process. Nil disables it.
	Sampler *metrics.HoldSampler

	HoldPollInterval time.Duration
	Logger           *slog.Logger
}

// App is the explicit application context. Create one per process.
type App struct {
	cfg    Config
	host   *instance.Host
	client *instance.Client
	logger *slog.Logger

	quit     chan struct{}
	quitOnce sync.Once
}

func New(cfg Config) *App {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.HoldPollInterval <= 0 {
		cfg.HoldPollInterval = procscan.DefaultPollInterval
	}
	a := &App{cfg: cfg, logger: cfg.Logger, quit: make(chan struct{})}

	hc := cfg.Host
	if hc.Logger == nil {
		hc.Logger = cfg.Logger
	}
	userStop, userChange := hc.OnStopHold, hc.OnChange
	hc.OnStopHold = func() {
		a.requestQuit()
		if userStop != nil {
			userStop()
		}
	}
	hc.OnChange = func(from, to instance.Status) {
		a.record(history.Event{Type: history.EventStatusChange, From: from.String(), To: to.String()})
		if userChange != nil {
			userChange(from, to)
		}
	}
	a.host = instance.NewHost(hc)
	hc.PID = a.host.PID()

	cc := cfg.Client
	if cc.Logger == nil {
		cc.Logger = cfg.Logger
	}
	if cc.SelfPID <= 0 {
		cc.SelfPID = hc.PID
	}
	if cc.Addressing == (ipc.Addressing{}) {
		cc.Addressing = hc.Addressing
	}
	a.client = instance.NewClient(cc)
	return a
}

func (a *App) Host() *instance.Host     { return a.host }
func (a *App) Client() *instance.Client { return a.client }

// PID is the pid this process's channel is addressed by.
func (a *App) PID() int { return a.host.PID() }

// Done is closed once a StopHold command was received or Quit was called.
func (a *App) Done() <-chan struct{} { return a.quit }

// Quit closes Done. Safe to call more than once.
func (a *App) Quit() { a.requestQuit() }

func (a *App) requestQuit() {
	a.quitOnce.Do(func() { close(a.quit) })
}

func (a *App) quitting() bool {
	select {
	case <-a.quit:
		return true
	default:
		return false
	}
}

// StartUpNormally opens this process's channel and marks it User. Failing to
// open the channel here is fatal for the caller.
func (a *App) StartUpNormally(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := a.host.Start(); err != nil {
		return fmt.Errorf("%w: %w", ErrCoordinationUnavailable, err)
	}
	a.host.Service().SetStatus(instance.StatusUser)
	return nil
}

// Snapshot reports this process's own state, false when coordination is off.
func (a *App) Snapshot() (instance.Snapshot, bool) {
	svc := a.host.Service()
	if svc == nil {
		return instance.Snapshot{}, false
	}
	return svc.Snapshot(), true
}

// HoldSamples returns resource samples of the current or last held process.
func (a *App) HoldSamples() []metrics.ProcessSample {
	if a.cfg.Sampler == nil {
		return nil
	}
	return a.cfg.Sampler.Samples()
}

// Instances lists every reachable instance including this one.
func (a *App) Instances(ctx context.Context) []instance.Handle {
	return a.client.QueryAll(ctx)
}

// StopHold sends StopHold to the instance at pid.
func (a *App) StopHold(ctx context.Context, pid int) error {
	if pid == a.PID() {
		if svc := a.host.Service(); svc != nil {
			svc.StopHold()
			return nil
		}
	}
	h, err := a.client.Query(ctx, pid)
	if err != nil {
		return err
	}
	cctx, cancel := context.WithTimeout(ctx, a.client.Timeout())
	defer cancel()
	return h.StopHold(cctx)
}

// Conflict returns the first other instance that blocks a run, if any.
func (a *App) Conflict(ctx context.Context) (instance.Handle, bool) {
	for _, h := range a.client.QueryAll(ctx) {
		if !h.Self && h.Status.Active() {
			return h, true
		}
	}
	return instance.Handle{}, false
}

// RunShortcut runs the shortcut identified by id unless another instance is
// Busy or OnHold. When the shortcut asks to wait for its process, RunShortcut
// holds until that process exits and then reverts the display profile.
func (a *App) RunShortcut(ctx context.Context, id string) (shortcut.Launch, error) {
	id = shortcut.NormalizeID(id)
	logger := a.logger.With("shortcut", id)

	if h, busy := a.Conflict(ctx); busy {
		metrics.IncRunAttempt("conflict")
		a.record(history.Event{
			Type:       history.EventRunRefused,
			ShortcutID: id,
			Detail:     fmt.Sprintf("pid %d is %s", h.PID, h.Status),
		})
		logger.Warn("run refused", "blocking_pid", h.PID, "blocking_status", h.Status.String())
		return shortcut.Launch{}, fmt.Errorf("%w: pid %d is %s", ErrConflict, h.PID, h.Status)
	}

	s, err := a.lookup(ctx, id)
	if err != nil {
		metrics.IncRunAttempt("not_found")
		return shortcut.Launch{}, err
	}

	launch, err := a.cfg.Runner.Run(ctx, s)
	if err != nil {
		metrics.IncRunAttempt("failed")
		return shortcut.Launch{}, fmt.Errorf("run shortcut %s: %w", id, err)
	}
	metrics.IncRunAttempt("started")
	a.record(history.Event{Type: history.EventRunStarted, ShortcutID: s.ID, HoldPID: launch.PID})

	if svc := a.host.GetOrCreate(); svc != nil {
		svc.SetStatus(instance.StatusBusy)
	} else {
		logger.Warn("coordination disabled, status not published")
	}

	if s.WaitForExit && launch.PID > 0 {
		if err := a.Hold(ctx, launch.PID); err != nil {
			return launch, err
		}
	}
	return launch, nil
}

func (a *App) lookup(ctx context.Context, id string) (shortcut.Shortcut, error) {
	if id == "" {
		return shortcut.Shortcut{}, fmt.Errorf("%w: empty id", shortcut.ErrNotFound)
	}
	ok, err := a.cfg.Repository.Contains(ctx, id)
	if err != nil {
		return shortcut.Shortcut{}, fmt.Errorf("lookup shortcut %s: %w", id, err)
	}
	if !ok {
		return shortcut.Shortcut{}, fmt.Errorf("%w: %s", shortcut.ErrNotFound, id)
	}
	return a.cfg.Repository.Get(ctx, id)
}

// Hold marks this instance OnHold while pid is alive. It returns when the
// process exits, StopHold is received or ctx ends; in every case the display
// profile is reverted and the status goes back to User.
func (a *App) Hold(ctx context.Context, pid int) error {
	if pid <= 0 {
		return fmt.Errorf("hold: invalid pid %d", pid)
	}
	id := procscan.Capture(pid)
	svc := a.host.GetOrCreate()
	if svc != nil {
		svc.SetHoldProcessID(pid)
		svc.SetStatus(instance.StatusOnHold)
	}
	a.record(history.Event{Type: history.EventHoldStarted, HoldPID: pid})
	a.logger.Info("holding", "hold_pid", pid)
	start := time.Now()

	waitCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-a.quit:
			cancel()
		case <-waitCtx.Done():
		}
	}()
	if a.cfg.Sampler != nil {
		go a.cfg.Sampler.Run(waitCtx, int32(pid))
	}
	werr := procscan.WaitExit(waitCtx, id, a.cfg.HoldPollInterval)

	reason := "exited"
	switch {
	case a.quitting():
		reason = "stop_hold"
		werr = nil
	case werr != nil:
		reason = "canceled"
	}
	metrics.ObserveHold(time.Since(start).Seconds())

	var rerr error
	if a.cfg.Switcher != nil {
		rerr = a.cfg.Switcher.Revert(context.WithoutCancel(ctx))
		if rerr != nil {
			a.logger.Warn("revert display profile", "error", rerr)
		}
	}
	if svc != nil {
		svc.SetHoldProcessID(0)
		svc.SetStatus(instance.StatusUser)
	}
	a.record(history.Event{Type: history.EventHoldReleased, HoldPID: pid, Detail: reason})
	a.logger.Info("hold released", "hold_pid", pid, "reason", reason)

	if werr != nil {
		return werr
	}
	if rerr != nil {
		return fmt.Errorf("revert display profile: %w", rerr)
	}
	return nil
}

// Close stops the channel and flushes history.
func (a *App) Close(ctx context.Context) error {
	err := a.host.Close()
	if a.cfg.Recorder != nil {
		err = errors.Join(err, a.cfg.Recorder.Close(ctx))
	}
	return err
}

func (a *App) record(e history.Event) {
	if a.cfg.Recorder == nil {
		return
	}
	if e.PID == 0 {
		e.PID = a.PID()
	}
	if e.OccurredAt.IsZero() {
		e.OccurredAt = time.Now().UTC()
	}
	a.cfg.Recorder.Record(e)
}
