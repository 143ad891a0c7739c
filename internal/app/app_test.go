package app

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loykin/displayhold/internal/history"
	"github.com/loykin/displayhold/internal/instance"
	"github.com/loykin/displayhold/internal/ipc"
	"github.com/loykin/displayhold/internal/procscan"
	"github.com/loykin/displayhold/internal/shortcut"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testAddressing(t *testing.T) ipc.Addressing {
	t.Helper()
	dir, err := os.MkdirTemp("", "dh")
	require.NoError(t, err)
	t.Cleanup(func() { _ = os.RemoveAll(dir) })
	return ipc.Addressing{Prefix: "app_" + filepath.Base(dir) + "_", Dir: dir}
}

type memRepo map[string]shortcut.Shortcut

func (m memRepo) Contains(_ context.Context, id string) (bool, error) {
	_, ok := m[id]
	return ok, nil
}

func (m memRepo) Get(_ context.Context, id string) (shortcut.Shortcut, error) {
	s, ok := m[id]
	if !ok {
		return shortcut.Shortcut{}, shortcut.ErrNotFound
	}
	return s, nil
}

type fakeRunner struct {
	calls atomic.Int32
	pid   int
	err   error
}

func (r *fakeRunner) Run(_ context.Context, s shortcut.Shortcut) (shortcut.Launch, error) {
	r.calls.Add(1)
	if r.err != nil {
		return shortcut.Launch{}, r.err
	}
	return shortcut.Launch{ShortcutID: s.ID, PID: r.pid, StartedAt: time.Now()}, nil
}

type countingSwitcher struct {
	reverts atomic.Int32
}

func (s *countingSwitcher) Apply(context.Context, string) error { return nil }
func (s *countingSwitcher) Revert(context.Context) error {
	s.reverts.Add(1)
	return nil
}

type memSink struct {
	mu     sync.Mutex
	events []history.Event
}

func (m *memSink) Send(_ context.Context, e history.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, e)
	return nil
}

func (m *memSink) types() []history.EventType {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]history.EventType, 0, len(m.events))
	for _, e := range m.events {
		out = append(out, e.Type)
	}
	return out
}

type fixture struct {
	repo     memRepo
	runner   *fakeRunner
	switcher *countingSwitcher
	sc       shortcut.Shortcut
}

func newFixture() *fixture {
	sc := shortcut.New("Game", "game.exe")
	return &fixture{
		repo:     memRepo{sc.ID: sc},
		runner:   &fakeRunner{},
		switcher: &countingSwitcher{},
		sc:       sc,
	}
}

func (f *fixture) app(t *testing.T, pid int, addr ipc.Addressing, lister procscan.Lister, rec *history.Recorder) *App {
	t.Helper()
	a := New(Config{
		Host:             instance.HostConfig{PID: pid, Addressing: addr},
		Client:           instance.ClientConfig{Lister: lister, Timeout: time.Second},
		Repository:       f.repo,
		Runner:           f.runner,
		Switcher:         f.switcher,
		Recorder:         rec,
		HoldPollInterval: 20 * time.Millisecond,
		Logger:           quietLogger(),
	})
	t.Cleanup(func() { _ = a.Host().Close() })
	return a
}

func ctxT(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func findPID(hs []instance.Handle, pid int) (instance.Handle, bool) {
	for _, h := range hs {
		if h.PID == pid {
			return h, true
		}
	}
	return instance.Handle{}, false
}

func TestTwoInstanceConflict(t *testing.T) {
	ctx := ctxT(t)
	addr := testAddressing(t)
	lister := procscan.Static{100, 200}
	f := newFixture()

	a := f.app(t, 100, addr, lister, nil)
	b := f.app(t, 200, addr, lister, nil)
	require.NoError(t, a.StartUpNormally(ctx))
	require.NoError(t, b.StartUpNormally(ctx))

	h, ok := findPID(b.Instances(ctx), 100)
	require.True(t, ok, "B must see A")
	assert.Equal(t, instance.StatusUser, h.Status)
	assert.False(t, h.Self)

	a.Host().Service().SetStatus(instance.StatusBusy)

	h, ok = findPID(b.Instances(ctx), 100)
	require.True(t, ok)
	assert.Equal(t, instance.StatusBusy, h.Status)

	_, err := b.RunShortcut(ctx, f.sc.ID)
	require.ErrorIs(t, err, ErrConflict)
	assert.Zero(t, f.runner.calls.Load(), "runner must not be invoked on conflict")
	snap, ok := b.Snapshot()
	require.True(t, ok)
	assert.Equal(t, instance.StatusUser, snap.Status)
}

func TestOnHoldInstanceAlsoConflicts(t *testing.T) {
	ctx := ctxT(t)
	addr := testAddressing(t)
	lister := procscan.Static{100, 200}
	f := newFixture()

	a := f.app(t, 100, addr, lister, nil)
	b := f.app(t, 200, addr, lister, nil)
	require.NoError(t, a.StartUpNormally(ctx))
	require.NoError(t, b.StartUpNormally(ctx))
	a.Host().Service().SetStatus(instance.StatusOnHold)

	_, err := b.RunShortcut(ctx, f.sc.ID)
	require.ErrorIs(t, err, ErrConflict)
	assert.Zero(t, f.runner.calls.Load())
}

func TestOwnBusyStatusDoesNotConflict(t *testing.T) {
	ctx := ctxT(t)
	f := newFixture()
	a := f.app(t, 100, testAddressing(t), procscan.Static{100}, nil)
	require.NoError(t, a.StartUpNormally(ctx))
	a.Host().Service().SetStatus(instance.StatusBusy)

	launch, err := a.RunShortcut(ctx, f.sc.ID)
	require.NoError(t, err)
	assert.Equal(t, f.sc.ID, launch.ShortcutID)
	assert.EqualValues(t, 1, f.runner.calls.Load())
}

func TestRunShortcutMarksBusy(t *testing.T) {
	ctx := ctxT(t)
	f := newFixture()
	a := f.app(t, 100, testAddressing(t), procscan.Static{100}, nil)
	require.NoError(t, a.StartUpNormally(ctx))

	_, err := a.RunShortcut(ctx, `"`+f.sc.ID+`"`)
	require.NoError(t, err, "quoted ids are accepted")
	snap, ok := a.Snapshot()
	require.True(t, ok)
	assert.Equal(t, instance.StatusBusy, snap.Status)
}

func TestRunShortcutNotFound(t *testing.T) {
	ctx := ctxT(t)
	f := newFixture()
	a := f.app(t, 100, testAddressing(t), procscan.Static{100}, nil)
	require.NoError(t, a.StartUpNormally(ctx))

	for _, id := range []string{"missing", "", `""`} {
		_, err := a.RunShortcut(ctx, id)
		require.ErrorIs(t, err, shortcut.ErrNotFound, "id %q", id)
	}
	assert.Zero(t, f.runner.calls.Load())
	snap, _ := a.Snapshot()
	assert.Equal(t, instance.StatusUser, snap.Status)
}

func TestRunShortcutRunnerFailure(t *testing.T) {
	ctx := ctxT(t)
	f := newFixture()
	f.runner.err = errors.New("boom")
	a := f.app(t, 100, testAddressing(t), procscan.Static{100}, nil)
	require.NoError(t, a.StartUpNormally(ctx))

	_, err := a.RunShortcut(ctx, f.sc.ID)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")
	snap, _ := a.Snapshot()
	assert.Equal(t, instance.StatusUser, snap.Status)
}

func TestCoordinationUnavailable(t *testing.T) {
	ctx := ctxT(t)
	f := newFixture()
	a := New(Config{
		Host: instance.HostConfig{
			PID:        100,
			Addressing: testAddressing(t),
			Listen: func(string) (net.Listener, error) {
				return nil, errors.New("bind failed")
			},
		},
		Client:     instance.ClientConfig{Lister: procscan.Static{100}, Timeout: 200 * time.Millisecond},
		Repository: f.repo,
		Runner:     f.runner,
		Logger:     quietLogger(),
	})

	err := a.StartUpNormally(ctx)
	require.ErrorIs(t, err, ErrCoordinationUnavailable)
	require.ErrorIs(t, err, instance.ErrUnavailable)
	assert.Nil(t, a.Host().GetOrCreate())

	// runs proceed as if nobody else were around
	_, err = a.RunShortcut(ctx, f.sc.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 1, f.runner.calls.Load())
	_, ok := a.Snapshot()
	assert.False(t, ok)
	assert.Empty(t, a.Instances(ctx))
}

func TestHoldUntilProcessExits(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("requires Unix sleep")
	}
	ctx := ctxT(t)
	f := newFixture()
	sink := &memSink{}
	rec := history.NewRecorder(quietLogger(), sink)
	a := f.app(t, 100, testAddressing(t), procscan.Static{100}, rec)
	require.NoError(t, a.StartUpNormally(ctx))

	cmd := exec.Command("sleep", "0.3")
	require.NoError(t, cmd.Start())
	go func() { _ = cmd.Wait() }()

	seen := make(chan instance.Snapshot, 1)
	go func() {
		deadline := time.Now().Add(2 * time.Second)
		for time.Now().Before(deadline) {
			if s, _ := a.Snapshot(); s.Status == instance.StatusOnHold {
				seen <- s
				return
			}
			time.Sleep(5 * time.Millisecond)
		}
		close(seen)
	}()

	require.NoError(t, a.Hold(ctx, cmd.Process.Pid))

	during, ok := <-seen
	require.True(t, ok, "OnHold was never observed")
	assert.Equal(t, cmd.Process.Pid, during.HoldProcessID)

	after, _ := a.Snapshot()
	assert.Equal(t, instance.StatusUser, after.Status)
	assert.Zero(t, after.HoldProcessID)
	assert.EqualValues(t, 1, f.switcher.reverts.Load())

	require.NoError(t, a.Close(ctx))
	assert.Contains(t, sink.types(), history.EventHoldStarted)
	assert.Contains(t, sink.types(), history.EventHoldReleased)
	assert.Contains(t, sink.types(), history.EventStatusChange)
}

func TestRemoteStopHoldReleasesHold(t *testing.T) {
	ctx := ctxT(t)
	addr := testAddressing(t)
	lister := procscan.Static{100, 200}
	f := newFixture()
	a := f.app(t, 100, addr, lister, nil)
	b := f.app(t, 200, addr, lister, nil)
	require.NoError(t, a.StartUpNormally(ctx))

	done := make(chan error, 1)
	// our own process never exits during the test
	go func() { done <- a.Hold(ctx, os.Getpid()) }()

	require.Eventually(t, func() bool {
		h, ok := findPID(b.Instances(ctx), 100)
		return ok && h.Status == instance.StatusOnHold
	}, 3*time.Second, 20*time.Millisecond)

	require.NoError(t, b.StopHold(ctx, 100))

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("hold did not end after StopHold")
	}
	select {
	case <-a.Done():
	default:
		t.Fatal("Done must be closed after StopHold")
	}
	snap, _ := a.Snapshot()
	assert.Equal(t, instance.StatusUser, snap.Status)
}

func TestHoldCanceledByContext(t *testing.T) {
	f := newFixture()
	a := f.app(t, 100, testAddressing(t), procscan.Static{100}, nil)
	require.NoError(t, a.StartUpNormally(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	err := a.Hold(ctx, os.Getpid())
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.EqualValues(t, 1, f.switcher.reverts.Load(), "profile is reverted on cancel too")

	require.Error(t, a.Hold(context.Background(), 0))
}

func TestRefusalIsRecorded(t *testing.T) {
	ctx := ctxT(t)
	addr := testAddressing(t)
	lister := procscan.Static{100, 200}
	f := newFixture()
	sink := &memSink{}
	rec := history.NewRecorder(quietLogger(), sink)

	a := f.app(t, 100, addr, lister, nil)
	b := f.app(t, 200, addr, lister, rec)
	require.NoError(t, a.StartUpNormally(ctx))
	require.NoError(t, b.StartUpNormally(ctx))
	a.Host().Service().SetStatus(instance.StatusBusy)

	_, err := b.RunShortcut(ctx, f.sc.ID)
	require.ErrorIs(t, err, ErrConflict)
	require.NoError(t, rec.Close(ctx))
	assert.Contains(t, sink.types(), history.EventRunRefused)
}
