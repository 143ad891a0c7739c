package instance

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/loykin/displayhold/internal/ipc"
	"github.com/loykin/displayhold/internal/metrics"
	"github.com/loykin/displayhold/internal/procscan"
)

const (
	// DefaultTimeout bounds each connect+query against one candidate.
	DefaultTimeout = 500 * time.Millisecond
	// DefaultConcurrency caps simultaneous probes during QueryAll.
	DefaultConcurrency = 8

	baseURL = "http://instance/v1"
)

// Remote talks to the service of one other process.
type Remote struct {
	pid    int
	addr   string
	client *http.Client
}

func newRemote(pid int, addr string, dial ipc.DialFunc, timeout time.Duration) *Remote {
	transport := &http.Transport{
		DialContext: func(ctx context.Context, _, _ string) (net.Conn, error) {
			return dial(ctx, addr)
		},
		DisableKeepAlives:     true,
		ResponseHeaderTimeout: timeout,
	}
	return &Remote{
		pid:    pid,
		addr:   addr,
		client: &http.Client{Timeout: timeout, Transport: transport},
	}
}

func (r *Remote) PID() int        { return r.pid }
func (r *Remote) Address() string { return r.addr }

// Snapshot queries status and hold process id in one round trip.
func (r *Remote) Snapshot(ctx context.Context) (Snapshot, error) {
	var s Snapshot
	err := r.do(ctx, http.MethodGet, "/status", nil, &s)
	return s, err
}

// SetStatus overwrites the remote status.
func (r *Remote) SetStatus(ctx context.Context, st Status) (Snapshot, error) {
	var s Snapshot
	err := r.do(ctx, http.MethodPut, "/status", statusRequest{Status: st}, &s)
	return s, err
}

// SetHoldProcessID overwrites the remote hold process id.
func (r *Remote) SetHoldProcessID(ctx context.Context, pid int) (Snapshot, error) {
	var s Snapshot
	err := r.do(ctx, http.MethodPut, "/hold", holdRequest{HoldProcessID: &pid}, &s)
	return s, err
}

// StopHold asks the remote instance to shut down. It returns once the
// request was acknowledged; the remote exits asynchronously.
func (r *Remote) StopHold(ctx context.Context) error {
	var ok okResp
	return r.do(ctx, http.MethodPost, "/stop-hold", nil, &ok)
}

func (r *Remote) do(ctx context.Context, method, path string, body any, out any) error {
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, baseURL+path, rd)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := r.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: instance %d: %w", ErrUnavailable, r.pid, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= http.StatusBadRequest {
		var er errorResp
		if derr := json.NewDecoder(resp.Body).Decode(&er); derr == nil && er.Error != "" {
			return fmt.Errorf("instance %d: %s", r.pid, er.Error)
		}
		return fmt.Errorf("instance %d: unexpected status %d", r.pid, resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: instance %d: decode: %w", ErrUnavailable, r.pid, err)
	}
	return nil
}

// Handle is one reachable instance as seen at query time.
type Handle struct {
	PID           int    `json:"pid"`
	Self          bool   `json:"self"`
	Status        Status `json:"status"`
	HoldProcessID int    `json:"hold_process_id"`

	remote *Remote
}

// Remote returns the connection used to reach this instance.
func (h Handle) Remote() *Remote { return h.remote }

// StopHold forwards the StopHold command to the instance.
func (h Handle) StopHold(ctx context.Context) error {
	if h.remote == nil {
		return fmt.Errorf("%w: handle for pid %d has no channel", ErrUnavailable, h.PID)
	}
	return h.remote.StopHold(ctx)
}

// ClientConfig configures discovery of other instances.
type ClientConfig struct {
	Addressing  ipc.Addressing
	Dial        ipc.DialFunc    // defaults to ipc.Dial
	Lister      procscan.Lister // defaults to procscan.System{SameImage: true}
	Timeout     time.Duration   // per candidate
	Concurrency int             // parallel probes
	SelfPID     int             // defaults to os.Getpid()
	Logger      *slog.Logger
}

// Client discovers reachable instances and builds Remote connections.
type Client struct {
	cfg ClientConfig
}

func NewClient(cfg ClientConfig) *Client {
	if cfg.Dial == nil {
		cfg.Dial = ipc.Dial
	}
	if cfg.Lister == nil {
		cfg.Lister = procscan.System{SameImage: true}
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = DefaultConcurrency
	}
	if cfg.SelfPID <= 0 {
		cfg.SelfPID = os.Getpid()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Client{cfg: cfg}
}

// Timeout is the per-call bound applied to every remote request.
func (c *Client) Timeout() time.Duration { return c.cfg.Timeout }

// Remote returns a connection to the instance that would own pid. No I/O
// happens until a method is called.
func (c *Client) Remote(pid int) *Remote {
	return newRemote(pid, c.cfg.Addressing.Address(pid), c.cfg.Dial, c.cfg.Timeout)
}

// Query probes one pid. Errors wrap ErrUnavailable when nothing answered.
func (c *Client) Query(ctx context.Context, pid int) (Handle, error) {
	r := c.Remote(pid)
	cctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	start := time.Now()
	snap, err := r.Snapshot(cctx)
	if err == nil && snap.PID != pid {
		err = fmt.Errorf("%w: channel for pid %d answered as pid %d", ErrUnavailable, pid, snap.PID)
	}
	result := "ok"
	if err != nil {
		result = "unreachable"
	}
	metrics.ObserveProbe(result, time.Since(start).Seconds())
	if err != nil {
		return Handle{}, err
	}
	return Handle{
		PID:           pid,
		Self:          pid == c.cfg.SelfPID,
		Status:        snap.Status,
		HoldProcessID: snap.HoldProcessID,
		remote:        r,
	}, nil
}

// QueryAll probes every candidate process and returns the instances that
// answered, ordered by pid. Candidates that fail or time out are skipped;
// the call itself never fails.
func (c *Client) QueryAll(ctx context.Context) []Handle {
	pids, err := c.cfg.Lister.PIDs(ctx)
	if err != nil {
		c.cfg.Logger.Warn("list processes failed", "error", err)
		metrics.SetReachableInstances(0)
		return nil
	}

	var (
		mu  sync.Mutex
		out = make([]Handle, 0, len(pids))
		g   errgroup.Group
	)
	g.SetLimit(c.cfg.Concurrency)
	for _, pid := range pids {
		if pid <= 0 {
			continue
		}
		g.Go(func() error {
			h, err := c.Query(ctx, pid)
			if err != nil {
				c.cfg.Logger.Debug("instance not reachable", "pid", pid, "error", err)
				return nil
			}
			mu.Lock()
			out = append(out, h)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	sort.Slice(out, func(i, j int) bool { return out[i].PID < out[j].PID })
	metrics.SetReachableInstances(len(out))
	return out
}
