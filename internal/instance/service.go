// Package instance implements the per-process coordination channel: a
// Service that exposes this process's status over a pid-addressed local
// channel, the Host that owns that single Service, and a Client that
// discovers and talks to the services of other processes.
package instance

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/loykin/displayhold/internal/ipc"
	"github.com/loykin/displayhold/internal/metrics"
)

// ErrUnavailable marks failures of the coordination channel itself: the
// local listener could not be opened or a remote instance did not answer.
var ErrUnavailable = errors.New("instance coordination unavailable")

// Service is the server side of one instance. Status and HoldProcessID are
// plain atomics; concurrent readers see the last write.
type Service struct {
	pid     int
	addr    string
	status  atomic.Int32
	holdPID atomic.Int32

	onStopHold func()
	onChange   func(from, to Status)
	logger     *slog.Logger

	listener net.Listener
	server   *http.Server
	done     chan struct{}
}

func (s *Service) PID() int        { return s.pid }
func (s *Service) Address() string { return s.addr }

func (s *Service) Status() Status { return Status(s.status.Load()) }

// SetStatus stores st and reports the transition when it changed anything.
func (s *Service) SetStatus(st Status) {
	old := Status(s.status.Swap(int32(st)))
	if old == st {
		return
	}
	s.logger.Info("instance status changed", "from", old.String(), "to", st.String())
	metrics.RecordStatusTransition(old.String(), st.String())
	if s.onChange != nil {
		s.onChange(old, st)
	}
}

func (s *Service) HoldProcessID() int { return int(s.holdPID.Load()) }

func (s *Service) SetHoldProcessID(pid int) {
	s.holdPID.Store(int32(pid))
}

// StopHold asks the owning process to leave its event loop.
func (s *Service) StopHold() {
	s.logger.Info("stop hold requested", "hold_pid", s.HoldProcessID())
	metrics.IncStopHold()
	if s.onStopHold != nil {
		s.onStopHold()
	}
}

// Snapshot returns the observable state in one value.
func (s *Service) Snapshot() Snapshot {
	return Snapshot{PID: s.pid, Status: s.Status(), HoldProcessID: s.HoldProcessID()}
}

func (s *Service) serve() {
	defer close(s.done)
	err := s.server.Serve(s.listener)
	if err != nil && !errors.Is(err, http.ErrServerClosed) && !errors.Is(err, net.ErrClosed) {
		s.logger.Error("instance channel stopped", "error", err)
	}
}

// shutdown returns once the listener is closed and serve has returned, so
// the address can be bound again right away.
func (s *Service) shutdown(timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	err := s.server.Shutdown(ctx)
	if err != nil {
		_ = s.server.Close()
	}
	// Shutdown misses a listener that Serve has not registered yet
	_ = s.listener.Close()
	<-s.done
	return err
}

// HostConfig configures the Host and the Service it creates.
type HostConfig struct {
	PID        int            // defaults to os.Getpid()
	Addressing ipc.Addressing // channel naming
	Listen     ipc.ListenFunc // defaults to ipc.Listen
	// OnStopHold is invoked (possibly more than once) when a StopHold
	// command arrives. It should make the process leave its event loop.
	OnStopHold func()
	// OnChange observes status transitions.
	OnChange func(from, to Status)
	// Metrics mounts GET /metrics on the channel.
	Metrics bool
	Logger  *slog.Logger
}

// Host owns the single Service of this process. Create one at process start
// and pass it to whatever needs the service.
type Host struct {
	mu  sync.Mutex
	cfg HostConfig
	svc *Service
}

func NewHost(cfg HostConfig) *Host {
	if cfg.PID <= 0 {
		cfg.PID = os.Getpid()
	}
	if cfg.Listen == nil {
		cfg.Listen = ipc.Listen
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Host{cfg: cfg}
}

// PID is the pid the channel is addressed by.
func (h *Host) PID() int { return h.cfg.PID }

// Start opens the channel unless it is already open. A second call on a
// running host is a no-op returning nil.
func (h *Host) Start() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.svc != nil {
		return nil
	}
	svc, err := h.open()
	if err != nil {
		return err
	}
	h.svc = svc
	return nil
}

// GetOrCreate returns the service, creating it on first use. It returns nil
// when the channel cannot be opened; callers then run without coordination.
func (h *Host) GetOrCreate() *Service {
	if err := h.Start(); err != nil {
		h.cfg.Logger.Warn("coordination disabled", "error", err)
		return nil
	}
	return h.Service()
}

// Service returns the running service or nil.
func (h *Host) Service() *Service {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.svc
}

// Close stops the channel. The host may be started again afterwards.
func (h *Host) Close() error {
	h.mu.Lock()
	svc := h.svc
	h.svc = nil
	h.mu.Unlock()
	if svc == nil {
		return nil
	}
	return svc.shutdown(2 * time.Second)
}

func (h *Host) open() (*Service, error) {
	addr := h.cfg.Addressing.Address(h.cfg.PID)
	logger := h.cfg.Logger.With("pid", h.cfg.PID)

	l, err := h.cfg.Listen(addr)
	if err != nil {
		if l != nil {
			if cerr := l.Close(); cerr != nil {
				logger.Debug("close partial listener", "error", cerr)
			}
		}
		return nil, fmt.Errorf("%w: listen %s: %w", ErrUnavailable, addr, err)
	}

	svc := &Service{
		pid:        h.cfg.PID,
		addr:       addr,
		onStopHold: h.cfg.OnStopHold,
		onChange:   h.cfg.OnChange,
		logger:     logger,
		listener:   l,
		done:       make(chan struct{}),
	}
	svc.status.Store(int32(StatusBusy))
	metrics.SetCurrentStatus(StatusBusy.String())
	svc.server = &http.Server{
		Handler:           newRouter(svc, h.cfg.Metrics).Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      5 * time.Second,
		IdleTimeout:       30 * time.Second,
	}
	go svc.serve()
	logger.Info("instance channel listening", "address", addr)
	return svc, nil
}
