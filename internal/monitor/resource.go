// Package monitor samples process-level resource metrics against two-tier
// thresholds. The samples feed the system health probe and auto-recovery.
package monitor

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/scholaris/paper-analysis-be/internal/config"
)

// Level classifies a snapshot against the configured thresholds
type Level string

const (
	LevelOK       Level = "ok"
	LevelWarning  Level = "warning"
	LevelCritical Level = "critical"
)

// Snapshot is one resource sample
type Snapshot struct {
	MemoryPercent float64       `json:"memory_percent"`
	CPUPercent    float64       `json:"cpu_percent"`
	SchedulerLag  time.Duration `json:"scheduler_lag"`
	Goroutines    int           `json:"goroutines"`
	Level         Level         `json:"level"`
	Breaches      []string      `json:"breaches,omitempty"`
	Timestamp     time.Time     `json:"timestamp"`
}

// ResourceMonitor samples on a fixed interval and keeps the latest snapshot
type ResourceMonitor struct {
	logger *slog.Logger
	cfg    config.MonitorConfig

	mu   sync.RWMutex
	last *Snapshot
}

// NewResourceMonitor creates a resource monitor
func NewResourceMonitor(logger *slog.Logger, cfg config.MonitorConfig) *ResourceMonitor {
	return &ResourceMonitor{
		logger: logger,
		cfg:    cfg,
	}
}

// Start runs the sampling loop until ctx is canceled
func (m *ResourceMonitor) Start(ctx context.Context) {
	m.logger.Info("Resource monitor started",
		slog.Duration("interval", m.cfg.Interval),
	)

	ticker := time.NewTicker(m.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			m.logger.Info("Resource monitor stopped")
			return
		case <-ticker.C:
			m.Sample(ctx)
		}
	}
}

// Sample takes one resource sample, classifies it, and caches it
func (m *ResourceMonitor) Sample(ctx context.Context) *Snapshot {
	snap := &Snapshot{
		Goroutines: runtime.NumGoroutine(),
		Timestamp:  time.Now(),
	}

	if v, err := mem.VirtualMemoryWithContext(ctx); err == nil {
		snap.MemoryPercent = v.UsedPercent
	} else {
		m.logger.Warn("Failed to sample memory", slog.Any("error", err))
	}

	if percentages, err := cpu.PercentWithContext(ctx, 100*time.Millisecond, false); err == nil && len(percentages) > 0 {
		snap.CPUPercent = percentages[0]
	} else if err != nil {
		m.logger.Warn("Failed to sample CPU", slog.Any("error", err))
	}

	snap.SchedulerLag = measureSchedulerLag()

	m.classify(snap)

	m.mu.Lock()
	m.last = snap
	m.mu.Unlock()

	if snap.Level != LevelOK {
		m.logger.Warn("Resource thresholds crossed",
			slog.String("level", string(snap.Level)),
			slog.String("breaches", strings.Join(snap.Breaches, "; ")),
		)
	}

	return snap
}

// classify compares a sample against the warning and critical thresholds
func (m *ResourceMonitor) classify(snap *Snapshot) {
	snap.Level = LevelOK

	check := func(crossedWarn, crossedCrit bool, breach string) {
		if crossedCrit {
			snap.Level = LevelCritical
			snap.Breaches = append(snap.Breaches, breach+" (critical)")
			return
		}
		if crossedWarn {
			if snap.Level == LevelOK {
				snap.Level = LevelWarning
			}
			snap.Breaches = append(snap.Breaches, breach+" (warning)")
		}
	}

	check(
		m.cfg.MemoryWarnPercent > 0 && snap.MemoryPercent >= m.cfg.MemoryWarnPercent,
		m.cfg.MemoryCritPercent > 0 && snap.MemoryPercent >= m.cfg.MemoryCritPercent,
		fmt.Sprintf("memory at %.1f%%", snap.MemoryPercent),
	)
	check(
		m.cfg.CPUWarnPercent > 0 && snap.CPUPercent >= m.cfg.CPUWarnPercent,
		m.cfg.CPUCritPercent > 0 && snap.CPUPercent >= m.cfg.CPUCritPercent,
		fmt.Sprintf("cpu at %.1f%%", snap.CPUPercent),
	)
	check(
		m.cfg.SchedulerLagWarn > 0 && snap.SchedulerLag >= m.cfg.SchedulerLagWarn,
		m.cfg.SchedulerLagCrit > 0 && snap.SchedulerLag >= m.cfg.SchedulerLagCrit,
		fmt.Sprintf("scheduler lag %s", snap.SchedulerLag),
	)
	check(
		m.cfg.GoroutineWarnCount > 0 && snap.Goroutines >= m.cfg.GoroutineWarnCount,
		m.cfg.GoroutineCritCount > 0 && snap.Goroutines >= m.cfg.GoroutineCritCount,
		fmt.Sprintf("%d goroutines", snap.Goroutines),
	)
}

// Snapshot returns the latest cached sample, or nil before the first one
func (m *ResourceMonitor) Snapshot() *Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.last
}

// Check is the system probe entry point: it fails only when the latest
// sample crossed a critical threshold. Warnings log but stay healthy.
func (m *ResourceMonitor) Check(ctx context.Context) error {
	snap := m.Snapshot()
	if snap == nil {
		snap = m.Sample(ctx)
	}

	if snap.Level == LevelCritical {
		return fmt.Errorf("resource limits exceeded: %s", strings.Join(snap.Breaches, "; "))
	}
	return nil
}

// measureSchedulerLag measures how late the runtime fires a short timer.
// Sustained lag means the scheduler cannot keep up with runnable goroutines.
func measureSchedulerLag() time.Duration {
	const probe = 10 * time.Millisecond
	start := time.Now()
	time.Sleep(probe)
	lag := time.Since(start) - probe
	if lag < 0 {
		lag = 0
	}
	return lag
}
