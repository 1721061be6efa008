// Package health runs the composite liveness/readiness probes. Each probe is
// a bounded check against one dependency; the aggregated verdict gates
// whether the process advertises itself healthy.
package health

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Status is an aggregated or per-service health verdict
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusDegraded  Status = "degraded"
	StatusUnhealthy Status = "unhealthy"
)

// Probe is a single bounded health check. Critical probes alone can make the
// overall verdict unhealthy.
type Probe struct {
	Name     string
	Critical bool
	Timeout  time.Duration
	Check    func(ctx context.Context) error
}

// ServiceStatus is one probe's outcome within a check cycle
type ServiceStatus struct {
	Name      string `json:"name"`
	Status    Status `json:"status"`
	Critical  bool   `json:"critical"`
	Error     string `json:"error,omitempty"`
	LatencyMs int64  `json:"latency_ms"`
}

// Result is the aggregated outcome of one probe cycle. Treated as an
// immutable snapshot once produced; readers share it without locking.
type Result struct {
	Overall   Status          `json:"overall"`
	Services  []ServiceStatus `json:"services"`
	Timestamp time.Time       `json:"timestamp"`
	UptimeMs  int64           `json:"uptime_ms"`
}

// Service runs the probes on a timer and on demand and caches the last result
type Service struct {
	logger    *slog.Logger
	interval  time.Duration
	probes    []Probe
	startTime time.Time

	mu   sync.RWMutex
	last *Result
}

// NewService creates a health check service over the given probes
func NewService(logger *slog.Logger, interval time.Duration, probes []Probe) *Service {
	return &Service{
		logger:    logger,
		interval:  interval,
		probes:    probes,
		startTime: time.Now(),
	}
}

// Start runs the periodic probe loop until ctx is canceled
func (s *Service) Start(ctx context.Context) {
	s.logger.Info("Health check loop started",
		slog.Duration("interval", s.interval),
		slog.Int("probes", len(s.probes)),
	)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Health check loop stopped")
			return
		case <-ticker.C:
			s.PerformHealthCheck(ctx)
		}
	}
}

// PerformHealthCheck runs all probes concurrently, each bounded by its own
// timeout so one slow dependency cannot stall the rest, aggregates the
// verdict, and caches the result. Probe failures are recorded, never
// propagated.
func (s *Service) PerformHealthCheck(ctx context.Context) *Result {
	statuses := make([]ServiceStatus, len(s.probes))

	var wg sync.WaitGroup
	for i, probe := range s.probes {
		wg.Add(1)
		go func(i int, probe Probe) {
			defer wg.Done()
			statuses[i] = s.runProbe(ctx, probe)
		}(i, probe)
	}
	wg.Wait()

	overall := StatusHealthy
	for _, st := range statuses {
		if st.Status != StatusUnhealthy {
			continue
		}
		if st.Critical {
			overall = StatusUnhealthy
			break
		}
		overall = StatusDegraded
	}

	result := &Result{
		Overall:   overall,
		Services:  statuses,
		Timestamp: time.Now(),
		UptimeMs:  time.Since(s.startTime).Milliseconds(),
	}

	s.mu.Lock()
	s.last = result
	s.mu.Unlock()

	if overall != StatusHealthy {
		s.logger.Warn("Health check finished",
			slog.String("overall", string(overall)),
		)
	} else {
		s.logger.Debug("Health check finished",
			slog.String("overall", string(overall)),
		)
	}

	return result
}

// runProbe executes one probe with its own timeout. A panicking probe is
// recorded as unhealthy like any other failure.
func (s *Service) runProbe(ctx context.Context, probe Probe) (status ServiceStatus) {
	status = ServiceStatus{
		Name:     probe.Name,
		Critical: probe.Critical,
		Status:   StatusHealthy,
	}

	start := time.Now()
	defer func() {
		status.LatencyMs = time.Since(start).Milliseconds()
	}()

	probeCtx, cancel := context.WithTimeout(ctx, probe.Timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- fmt.Errorf("probe panicked: %v", r)
			}
		}()
		done <- probe.Check(probeCtx)
	}()

	select {
	case err := <-done:
		if err != nil {
			status.Status = StatusUnhealthy
			status.Error = err.Error()
		}
	case <-probeCtx.Done():
		status.Status = StatusUnhealthy
		status.Error = fmt.Sprintf("probe timed out after %s", probe.Timeout)
	}

	return status
}

// GetLastHealthCheck returns the cached result of the most recent cycle, or
// nil before the first one
func (s *Service) GetLastHealthCheck() *Result {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.last
}

// GetServiceStatus returns the cached status of a single named probe
func (s *Service) GetServiceStatus(name string) (ServiceStatus, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.last == nil {
		return ServiceStatus{}, false
	}
	for _, st := range s.last.Services {
		if st.Name == name {
			return st, true
		}
	}
	return ServiceStatus{}, false
}
