package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loykin/displayhold"
	"github.com/loykin/displayhold/internal/procscan"
)

type stubRunner struct{ runs atomic.Int32 }

func (r *stubRunner) Run(_ context.Context, s displayhold.Shortcut) (displayhold.Launch, error) {
	r.runs.Add(1)
	return displayhold.Launch{ShortcutID: s.ID, StartedAt: time.Now()}, nil
}

func baseConfig(t *testing.T) displayhold.Config {
	t.Helper()
	dir, err := os.MkdirTemp("", "dh")
	require.NoError(t, err)
	t.Cleanup(func() { _ = os.RemoveAll(dir) })
	c := displayhold.DefaultConfig()
	c.IPC.Dir = dir
	c.IPC.Prefix = "cli_"
	c.IPC.Timeout = time.Second
	c.Store.DSN = filepath.Join(dir, "shortcuts.db")
	return c
}

func testOpener(c displayhold.Config, pid int, runner *stubRunner) opener {
	return func(ctx context.Context, _ string) (*displayhold.Runtime, error) {
		return displayhold.Open(ctx, c, displayhold.Options{
			PID:    pid,
			Lister: procscan.Static{100, 200},
			Runner: runner,
			Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		})
	}
}

func testCtx(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestShortcutCommands(t *testing.T) {
	ctx := testCtx(t)
	var out bytes.Buffer
	runner := &stubRunner{}
	c := command{out: &out, open: testOpener(baseConfig(t), 200, runner)}

	require.NoError(t, c.ShortcutAdd(ctx, ShortcutAddFlags{Name: "Game", Command: "game.exe", Profile: "tv"}))
	var added displayhold.Shortcut
	require.NoError(t, json.Unmarshal(out.Bytes(), &added))
	assert.Equal(t, "Game", added.Name)
	assert.Equal(t, "tv", added.Profile)
	require.NotEmpty(t, added.ID)

	out.Reset()
	require.NoError(t, c.ShortcutList(ctx, ""))
	var list []displayhold.Shortcut
	require.NoError(t, json.Unmarshal(out.Bytes(), &list))
	require.Len(t, list, 1)

	out.Reset()
	require.NoError(t, c.ShortcutShow(ctx, ShortcutFlags{ID: `"` + added.ID + `"`}))
	assert.Contains(t, out.String(), added.ID)

	out.Reset()
	require.NoError(t, c.Run(ctx, added.ID, RunFlags{}))
	assert.EqualValues(t, 1, runner.runs.Load())
	assert.Contains(t, out.String(), added.ID)

	require.NoError(t, c.ShortcutRemove(ctx, ShortcutFlags{ID: added.ID}))
	err := c.ShortcutShow(ctx, ShortcutFlags{ID: added.ID})
	require.ErrorIs(t, err, displayhold.ErrNotFound)

	err = c.Run(ctx, added.ID, RunFlags{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no shortcut")
}

func TestShortcutAddRequiresFields(t *testing.T) {
	c := command{out: io.Discard, open: func(context.Context, string) (*displayhold.Runtime, error) {
		return nil, errors.New("must not open")
	}}
	require.Error(t, c.ShortcutAdd(context.Background(), ShortcutAddFlags{Name: "x"}))
}

func TestRunRefusedWhileOtherInstanceBusy(t *testing.T) {
	ctx := testCtx(t)
	cfg := baseConfig(t)
	runner := &stubRunner{}

	other, err := testOpener(cfg, 100, runner)(ctx, "")
	require.NoError(t, err)
	t.Cleanup(func() { _ = other.Close(context.Background()) })
	require.NoError(t, other.App.StartUpNormally(ctx))
	other.App.Host().Service().SetStatus(displayhold.StatusBusy)

	sc := displayhold.NewShortcut("Game", "game.exe")
	require.NoError(t, other.Store.Save(ctx, sc))

	c := command{out: io.Discard, open: testOpener(cfg, 200, runner)}
	err = c.Run(ctx, sc.ID, RunFlags{})
	require.ErrorIs(t, err, displayhold.ErrConflict)
	assert.Zero(t, runner.runs.Load())

	var out bytes.Buffer
	c.out = &out
	require.NoError(t, c.Instances(ctx, InstancesFlags{}))
	var hs []displayhold.Handle
	require.NoError(t, json.Unmarshal(out.Bytes(), &hs))
	require.Len(t, hs, 1)
	assert.Equal(t, 100, hs[0].PID)
	assert.Equal(t, displayhold.StatusBusy, hs[0].Status)
}

func TestServeExitsOnStopHold(t *testing.T) {
	ctx := testCtx(t)
	cfg := baseConfig(t)
	runner := &stubRunner{}

	served := make(chan error, 1)
	go func() {
		served <- command{out: io.Discard, open: testOpener(cfg, 100, runner)}.Serve(ctx, ServeFlags{})
	}()

	var out bytes.Buffer
	c := command{out: &out, open: testOpener(cfg, 200, runner)}
	require.Eventually(t, func() bool {
		out.Reset()
		return c.Instances(ctx, InstancesFlags{}) == nil && strings.Contains(out.String(), `"pid": 100`)
	}, 5*time.Second, 50*time.Millisecond)

	require.NoError(t, c.StopHold(ctx, StopHoldFlags{PID: 100}))
	select {
	case err := <-served:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("serve did not return after stop-hold")
	}

	err := c.StopHold(ctx, StopHoldFlags{PID: 100})
	require.ErrorIs(t, err, displayhold.ErrUnavailable)
}

func TestRootCommandWiring(t *testing.T) {
	var out bytes.Buffer
	root := buildRoot(command{out: &out, open: openRuntime})
	root.SetArgs([]string{"--help"})
	require.NoError(t, root.Execute())
	assert.Contains(t, out.String(), "displayhold")

	names := map[string]bool{}
	for _, sub := range root.Commands() {
		names[sub.Name()] = true
	}
	for _, want := range []string{"run", "instances", "stop-hold", "shortcut"} {
		assert.True(t, names[want], "missing subcommand %s", want)
	}

	root = buildRoot(command{out: io.Discard, open: openRuntime})
	root.SetArgs([]string{"stop-hold", "abc"})
	require.Error(t, root.Execute())
}

func TestParsePID(t *testing.T) {
	pid, err := parsePID(" 42 ")
	require.NoError(t, err)
	assert.Equal(t, 42, pid)
	for _, bad := range []string{"", "0", "-1", "x"} {
		_, err := parsePID(bad)
		assert.Error(t, err, bad)
	}
}
