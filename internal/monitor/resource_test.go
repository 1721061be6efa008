package monitor

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scholaris/paper-analysis-be/internal/config"
)

func testLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func TestClassify(t *testing.T) {
	cfg := config.MonitorConfig{
		MemoryWarnPercent:  80,
		MemoryCritPercent:  92,
		CPUWarnPercent:     85,
		CPUCritPercent:     95,
		SchedulerLagWarn:   100 * time.Millisecond,
		SchedulerLagCrit:   500 * time.Millisecond,
		GoroutineWarnCount: 5000,
		GoroutineCritCount: 20000,
	}
	m := NewResourceMonitor(testLogger(), cfg)

	tests := []struct {
		name     string
		snap     Snapshot
		level    Level
		breaches int
	}{
		{
			name:  "all under thresholds",
			snap:  Snapshot{MemoryPercent: 40, CPUPercent: 10, Goroutines: 80},
			level: LevelOK,
		},
		{
			name:     "memory warning",
			snap:     Snapshot{MemoryPercent: 85, CPUPercent: 10, Goroutines: 80},
			level:    LevelWarning,
			breaches: 1,
		},
		{
			name:     "memory critical",
			snap:     Snapshot{MemoryPercent: 95, CPUPercent: 10, Goroutines: 80},
			level:    LevelCritical,
			breaches: 1,
		},
		{
			name:     "critical outranks warning",
			snap:     Snapshot{MemoryPercent: 85, CPUPercent: 99, Goroutines: 80},
			level:    LevelCritical,
			breaches: 2,
		},
		{
			name:     "scheduler lag critical",
			snap:     Snapshot{SchedulerLag: time.Second, Goroutines: 80},
			level:    LevelCritical,
			breaches: 1,
		},
		{
			name:     "goroutine count warning",
			snap:     Snapshot{Goroutines: 6000},
			level:    LevelWarning,
			breaches: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			snap := tt.snap
			m.classify(&snap)

			assert.Equal(t, tt.level, snap.Level)
			assert.Len(t, snap.Breaches, tt.breaches)
		})
	}
}

func TestClassify_ZeroThresholdsDisabled(t *testing.T) {
	m := NewResourceMonitor(testLogger(), config.MonitorConfig{})

	snap := Snapshot{MemoryPercent: 99, CPUPercent: 99, Goroutines: 1 << 20}
	m.classify(&snap)

	assert.Equal(t, LevelOK, snap.Level)
	assert.Empty(t, snap.Breaches)
}

func TestSample_CachesSnapshot(t *testing.T) {
	m := NewResourceMonitor(testLogger(), config.MonitorConfig{Interval: time.Minute})

	assert.Nil(t, m.Snapshot())

	snap := m.Sample(context.Background())
	require.NotNil(t, snap)
	assert.Same(t, snap, m.Snapshot())
	assert.Positive(t, snap.Goroutines)
	assert.False(t, snap.Timestamp.IsZero())
}

func TestCheck(t *testing.T) {
	t.Run("healthy sample passes", func(t *testing.T) {
		m := NewResourceMonitor(testLogger(), config.MonitorConfig{})
		assert.NoError(t, m.Check(context.Background()))
	})

	t.Run("critical sample fails", func(t *testing.T) {
		m := NewResourceMonitor(testLogger(), config.MonitorConfig{GoroutineCritCount: 1})
		m.Sample(context.Background())

		err := m.Check(context.Background())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "resource limits exceeded")
	})

	t.Run("warning sample still passes", func(t *testing.T) {
		m := NewResourceMonitor(testLogger(), config.MonitorConfig{GoroutineWarnCount: 1})
		m.Sample(context.Background())

		assert.NoError(t, m.Check(context.Background()))
	})
}
