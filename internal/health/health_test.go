package health

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func healthyProbe(name string, critical bool) Probe {
	return Probe{
		Name:     name,
		Critical: critical,
		Timeout:  time.Second,
		Check:    func(ctx context.Context) error { return nil },
	}
}

func failingProbe(name string, critical bool) Probe {
	return Probe{
		Name:     name,
		Critical: critical,
		Timeout:  time.Second,
		Check:    func(ctx context.Context) error { return errors.New("connection refused") },
	}
}

func TestPerformHealthCheck_Aggregation(t *testing.T) {
	tests := []struct {
		name    string
		probes  []Probe
		overall Status
	}{
		{
			name:    "all healthy",
			probes:  []Probe{healthyProbe("store", true), healthyProbe("broker", true)},
			overall: StatusHealthy,
		},
		{
			name:    "critical failure is unhealthy",
			probes:  []Probe{failingProbe("store", true), healthyProbe("broker", true)},
			overall: StatusUnhealthy,
		},
		{
			name:    "non-critical failure is degraded",
			probes:  []Probe{healthyProbe("store", true), failingProbe("provider:gemini", false)},
			overall: StatusDegraded,
		},
		{
			name:    "critical failure wins over non-critical",
			probes:  []Probe{failingProbe("provider:gemini", false), failingProbe("broker", true)},
			overall: StatusUnhealthy,
		},
		{
			name:    "no probes is healthy",
			probes:  nil,
			overall: StatusHealthy,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := NewService(testLogger(), time.Minute, tt.probes)
			result := svc.PerformHealthCheck(context.Background())

			require.NotNil(t, result)
			assert.Equal(t, tt.overall, result.Overall)
			assert.Len(t, result.Services, len(tt.probes))
		})
	}
}

func TestPerformHealthCheck_ProbeTimeout(t *testing.T) {
	slow := Probe{
		Name:     "store",
		Critical: true,
		Timeout:  50 * time.Millisecond,
		Check: func(ctx context.Context) error {
			select {
			case <-time.After(5 * time.Second):
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		},
	}

	svc := NewService(testLogger(), time.Minute, []Probe{slow})

	start := time.Now()
	result := svc.PerformHealthCheck(context.Background())
	elapsed := time.Since(start)

	assert.Equal(t, StatusUnhealthy, result.Overall)
	assert.Contains(t, result.Services[0].Error, "timed out")
	assert.Less(t, elapsed, time.Second, "probe timeout must bound the check")
}

func TestPerformHealthCheck_ProbePanicRecovered(t *testing.T) {
	panicking := Probe{
		Name:     "broker",
		Critical: true,
		Timeout:  time.Second,
		Check:    func(ctx context.Context) error { panic("channel closed") },
	}

	svc := NewService(testLogger(), time.Minute, []Probe{panicking, healthyProbe("store", true)})
	result := svc.PerformHealthCheck(context.Background())

	assert.Equal(t, StatusUnhealthy, result.Overall)

	broker, ok := svc.GetServiceStatus("broker")
	require.True(t, ok)
	assert.Equal(t, StatusUnhealthy, broker.Status)
	assert.Contains(t, broker.Error, "probe panicked")

	// The other probe still ran
	store, ok := svc.GetServiceStatus("store")
	require.True(t, ok)
	assert.Equal(t, StatusHealthy, store.Status)
}

func TestGetLastHealthCheck_Caching(t *testing.T) {
	svc := NewService(testLogger(), time.Minute, []Probe{healthyProbe("store", true)})

	assert.Nil(t, svc.GetLastHealthCheck(), "no result before the first cycle")

	first := svc.PerformHealthCheck(context.Background())
	assert.Same(t, first, svc.GetLastHealthCheck())

	second := svc.PerformHealthCheck(context.Background())
	assert.Same(t, second, svc.GetLastHealthCheck())
	assert.NotSame(t, first, second)
}

func TestGetServiceStatus_UnknownName(t *testing.T) {
	svc := NewService(testLogger(), time.Minute, []Probe{healthyProbe("store", true)})
	svc.PerformHealthCheck(context.Background())

	_, ok := svc.GetServiceStatus("does-not-exist")
	assert.False(t, ok)
}
