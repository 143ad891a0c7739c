// Package diag serves a local TCP diagnostics endpoint: Prometheus metrics,
// the instances visible to this process and a health probe.
package diag

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/loykin/displayhold/internal/instance"
	"github.com/loykin/displayhold/internal/metrics"
)

// Source supplies what the diagnostics endpoints report.
type Source interface {
	// Instances queries every reachable instance.
	Instances(ctx context.Context) []instance.Handle
	// Snapshot reports the local instance; ok is false when coordination
	// is disabled.
	Snapshot() (snap instance.Snapshot, ok bool)
	// HoldSamples returns resource samples of the held process, if any.
	HoldSamples() []metrics.ProcessSample
}

type health struct {
	OK       bool               `json:"ok"`
	Enabled  bool               `json:"coordination"`
	Snapshot *instance.Snapshot `json:"instance,omitempty"`
}

// Server wraps an echo instance bound to a TCP listener.
type Server struct {
	e      *echo.Echo
	src    Source
	logger *slog.Logger
	l      net.Listener
}

func New(src Source, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	s := &Server{e: e, src: src, logger: logger}

	e.GET("/healthz", s.handleHealth)
	e.GET("/instances", s.handleInstances)
	e.GET("/hold", s.handleHold)
	e.GET("/metrics", echo.WrapHandler(metrics.Handler()))
	return s
}

// Handler exposes the routes for embedding and tests.
func (s *Server) Handler() http.Handler { return s.e }

// Start listens on addr and serves in the background.
func (s *Server) Start(addr string) error {
	l, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	s.l = l
	s.e.Listener = l
	go func() {
		if err := s.e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("diagnostics server stopped", "error", err)
		}
	}()
	s.logger.Info("diagnostics listening", "addr", l.Addr().String())
	return nil
}

// Addr returns the bound address once started.
func (s *Server) Addr() string {
	if s.l == nil {
		return ""
	}
	return s.l.Addr().String()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.e.Shutdown(ctx)
}

func (s *Server) handleHealth(c echo.Context) error {
	h := health{OK: true}
	if snap, ok := s.src.Snapshot(); ok {
		h.Enabled = true
		h.Snapshot = &snap
	}
	return c.JSON(http.StatusOK, h)
}

func (s *Server) handleInstances(c echo.Context) error {
	hs := s.src.Instances(c.Request().Context())
	if hs == nil {
		hs = []instance.Handle{}
	}
	return c.JSON(http.StatusOK, hs)
}

type holdResp struct {
	HoldProcessID int                     `json:"hold_process_id"`
	Samples       []metrics.ProcessSample `json:"samples"`
}

func (s *Server) handleHold(c echo.Context) error {
	var r holdResp
	if snap, ok := s.src.Snapshot(); ok {
		r.HoldProcessID = snap.HoldProcessID
	}
	r.Samples = s.src.HoldSamples()
	if r.Samples == nil {
		r.Samples = []metrics.ProcessSample{}
	}
	return c.JSON(http.StatusOK, r)
}
