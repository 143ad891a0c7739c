package metrics

import (
	"errors"
	"net/http"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Package-level Prometheus collectors. They are registered via Register.
var (
	regOK atomic.Bool

	currentStatus = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "displayhold",
			Subsystem: "instance",
			Name:      "status",
			Help:      "Current status of this instance (1 = active status, 0 = inactive).",
		}, []string{"status"},
	)
	statusTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "displayhold",
			Subsystem: "instance",
			Name:      "status_transitions_total",
			Help:      "Number of status transitions of this instance.",
		}, []string{"from", "to"},
	)
	stopHoldRequests = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "displayhold",
			Subsystem: "instance",
			Name:      "stop_hold_requests_total",
			Help:      "Number of stop-hold commands received.",
		},
	)
	probes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "displayhold",
			Subsystem: "client",
			Name:      "probes_total",
			Help:      "Number of candidate instance probes by result.",
		}, []string{"result"},
	)
	probeDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "displayhold",
			Subsystem: "client",
			Name:      "probe_duration_seconds",
			Help:      "Duration of a single candidate probe.",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		}, []string{"result"},
	)
	reachable = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "displayhold",
			Subsystem: "client",
			Name:      "reachable_instances",
			Help:      "Reachable instances found by the last enumeration.",
		},
	)
	runAttempts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "displayhold",
			Subsystem: "run",
			Name:      "attempts_total",
			Help:      "Run-shortcut attempts by outcome.",
		}, []string{"result"},
	)
	holdDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "displayhold",
			Subsystem: "run",
			Name:      "hold_duration_seconds",
			Help:      "Time spent on hold waiting for a launched process.",
			Buckets:   prometheus.ExponentialBuckets(1, 4, 8),
		},
	)
)

// Register registers all metrics with the provided registerer.
// It is safe to call multiple times; subsequent calls after success are no-ops.
func Register(r prometheus.Registerer) error {
	if regOK.Load() {
		return nil
	}
	cs := []prometheus.Collector{
		currentStatus, statusTransitions, stopHoldRequests, probes, probeDuration, reachable, runAttempts, holdDuration,
		holdCPUPercent, holdMemoryMB, holdNumThreads,
	}
	for _, c := range cs {
		if err := r.Register(c); err != nil {
			// If already registered, ignore (allows double Register with default registry)
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				continue
			}
			return err
		}
	}
	regOK.Store(true)
	return nil
}

// Handler returns an http.Handler that serves Prometheus metrics for the DefaultGatherer.
func Handler() http.Handler { return promhttp.Handler() }

// Below are lightweight helpers used by internal packages to record metrics.
// They no-op if Register hasn't been called.

func RecordStatusTransition(from, to string) {
	if regOK.Load() {
		statusTransitions.WithLabelValues(from, to).Inc()
		currentStatus.WithLabelValues(from).Set(0)
		currentStatus.WithLabelValues(to).Set(1)
	}
}

func SetCurrentStatus(status string) {
	if regOK.Load() {
		currentStatus.WithLabelValues(status).Set(1)
	}
}

func IncStopHold() {
	if regOK.Load() {
		stopHoldRequests.Inc()
	}
}

func ObserveProbe(result string, seconds float64) {
	if regOK.Load() {
		probes.WithLabelValues(result).Inc()
		probeDuration.WithLabelValues(result).Observe(seconds)
	}
}

func SetReachableInstances(n int) {
	if regOK.Load() {
		reachable.Set(float64(n))
	}
}

func IncRunAttempt(result string) {
	if regOK.Load() {
		runAttempts.WithLabelValues(result).Inc()
	}
}

func ObserveHold(seconds float64) {
	if regOK.Load() {
		holdDuration.Observe(seconds)
	}
}
