package metrics

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shirou/gopsutil/v4/process"
)

// ProcessSample is one CPU/memory reading of the process being held on.
type ProcessSample struct {
	PID        int32     `json:"pid"`
	CPUPercent float64   `json:"cpu_percent"`
	MemoryMB   float64   `json:"memory_mb"`
	MemoryRSS  uint64    `json:"memory_rss"`
	NumThreads int32     `json:"num_threads"`
	Timestamp  time.Time `json:"timestamp"`
}

var (
	holdCPUPercent = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "displayhold",
		Subsystem: "hold",
		Name:      "process_cpu_percent",
		Help:      "CPU usage of the process this instance is holding on (0 when not holding).",
	})
	holdMemoryMB = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "displayhold",
		Subsystem: "hold",
		Name:      "process_memory_mb",
		Help:      "Resident memory of the held process in MB.",
	})
	holdNumThreads = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "displayhold",
		Subsystem: "hold",
		Name:      "process_num_threads",
		Help:      "Thread count of the held process.",
	})
)

// HoldSampler periodically samples the held process and keeps the last
// samples in a circular buffer.
type HoldSampler struct {
	interval time.Duration
	max      int

	mu       sync.RWMutex
	samples  []ProcessSample
	startIdx int
	count    int
}

func NewHoldSampler(interval time.Duration, maxHistory int) *HoldSampler {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	if maxHistory <= 0 {
		maxHistory = 120
	}
	return &HoldSampler{
		interval: interval,
		max:      maxHistory,
		samples:  make([]ProcessSample, maxHistory),
	}
}

// Run samples pid until ctx ends. The buffer is cleared when a new run
// starts and the hold gauges are zeroed when it returns.
func (s *HoldSampler) Run(ctx context.Context, pid int32) {
	s.reset()
	defer setHoldGauges(ProcessSample{})

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		if smp, err := sampleProcess(pid); err == nil {
			s.add(smp)
			setHoldGauges(smp)
		} else {
			slog.Debug("sample held process", "pid", pid, "error", err)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Samples returns the buffered samples, oldest first.
func (s *HoldSampler) Samples() []ProcessSample {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]ProcessSample, 0, s.count)
	for i := 0; i < s.count; i++ {
		out = append(out, s.samples[(s.startIdx+i)%s.max])
	}
	return out
}

func (s *HoldSampler) Latest() (ProcessSample, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.count == 0 {
		return ProcessSample{}, false
	}
	return s.samples[(s.startIdx+s.count-1)%s.max], true
}

func (s *HoldSampler) add(smp ProcessSample) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.count < s.max {
		s.samples[(s.startIdx+s.count)%s.max] = smp
		s.count++
		return
	}
	// full: overwrite the oldest entry
	s.samples[s.startIdx] = smp
	s.startIdx = (s.startIdx + 1) % s.max
}

func (s *HoldSampler) reset() {
	s.mu.Lock()
	s.startIdx, s.count = 0, 0
	s.mu.Unlock()
}

func sampleProcess(pid int32) (ProcessSample, error) {
	proc, err := process.NewProcess(pid)
	if err != nil {
		return ProcessSample{}, fmt.Errorf("process handle: %w", err)
	}
	cpu, err := proc.CPUPercent()
	if err != nil {
		cpu = 0
	}
	mem, err := proc.MemoryInfo()
	if err != nil {
		return ProcessSample{}, fmt.Errorf("memory info: %w", err)
	}
	threads, err := proc.NumThreads()
	if err != nil {
		threads = 0
	}
	return ProcessSample{
		PID:        pid,
		CPUPercent: cpu,
		MemoryMB:   float64(mem.RSS) / 1024 / 1024,
		MemoryRSS:  mem.RSS,
		NumThreads: threads,
		Timestamp:  time.Now(),
	}, nil
}

func setHoldGauges(smp ProcessSample) {
	if !regOK.Load() {
		return
	}
	holdCPUPercent.Set(smp.CPUPercent)
	holdMemoryMB.Set(smp.MemoryMB)
	holdNumThreads.Set(float64(smp.NumThreads))
}
