// Package recovery watches health check results and runs registered
// remediations for services that stay unhealthy across consecutive cycles.
package recovery

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/scholaris/paper-analysis-be/internal/config"
	"github.com/scholaris/paper-analysis-be/internal/health"
)

// HealthSource supplies the latest composite health result
type HealthSource interface {
	GetLastHealthCheck() *health.Result
}

// RemediationFunc attempts to restore a single service. It must be safe to
// call repeatedly.
type RemediationFunc func(ctx context.Context) error

// ActionType classifies a recovery action
type ActionType string

const (
	ActionRemediate ActionType = "remediate"
	ActionEscalate  ActionType = "escalate"
)

// Action records one recovery attempt for a service
type Action struct {
	Service             string     `json:"service"`
	Type                ActionType `json:"type"`
	TriggeredAt         time.Time  `json:"triggered_at"`
	ConsecutiveFailures int        `json:"consecutive_failures"`
	Succeeded           bool       `json:"succeeded"`
	Error               string     `json:"error,omitempty"`
}

// serviceState tracks one service's failure streak and remediation budget
type serviceState struct {
	consecutiveFailures int
	remediationCycles   int
	escalated           bool
}

// AutoRecovery periodically inspects health results, counts consecutive
// unhealthy cycles per service, and remediates once the alert threshold is
// reached. After the remediation budget is spent without the service
// recovering, it escalates once and stops retrying until the service comes
// back healthy on its own.
type AutoRecovery struct {
	logger *slog.Logger
	cfg    config.RecoveryConfig
	source HealthSource

	mu           sync.Mutex
	remediations map[string]RemediationFunc
	states       map[string]*serviceState
	history      []Action
}

// NewAutoRecovery creates an auto-recovery loop over the given health source
func NewAutoRecovery(logger *slog.Logger, cfg config.RecoveryConfig, source HealthSource) *AutoRecovery {
	return &AutoRecovery{
		logger:       logger,
		cfg:          cfg,
		source:       source,
		remediations: make(map[string]RemediationFunc),
		states:       make(map[string]*serviceState),
	}
}

// RegisterRemediation binds a remediation to a probe name. Services without
// a remediation still escalate after the threshold; they just skip the
// remediation step.
func (r *AutoRecovery) RegisterRemediation(service string, fn RemediationFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.remediations[service] = fn
}

// Start runs the evaluation loop until ctx is canceled
func (r *AutoRecovery) Start(ctx context.Context) {
	r.logger.Info("Auto-recovery started",
		slog.Duration("interval", r.cfg.Interval),
		slog.Int("alert_threshold", r.cfg.AlertThreshold),
		slog.Int("max_remediation_cycles", r.cfg.MaxRemediationCycles),
	)

	ticker := time.NewTicker(r.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("Auto-recovery stopped")
			return
		case <-ticker.C:
			r.Evaluate(ctx)
		}
	}
}

// Evaluate processes the latest health result once
func (r *AutoRecovery) Evaluate(ctx context.Context) {
	result := r.source.GetLastHealthCheck()
	if result == nil {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, svc := range result.Services {
		if svc.Status == health.StatusHealthy {
			r.markHealthy(svc.Name)
			continue
		}
		r.markUnhealthy(ctx, svc)
	}
}

// markHealthy resets the failure streak and remediation budget
func (r *AutoRecovery) markHealthy(service string) {
	state, ok := r.states[service]
	if !ok {
		return
	}
	if state.consecutiveFailures > 0 || state.escalated {
		r.logger.Info("Service recovered", slog.String("service", service))
	}
	delete(r.states, service)
}

// markUnhealthy advances the failure streak and remediates or escalates.
// Called with the mutex held.
func (r *AutoRecovery) markUnhealthy(ctx context.Context, svc health.ServiceStatus) {
	state, ok := r.states[svc.Name]
	if !ok {
		state = &serviceState{}
		r.states[svc.Name] = state
	}
	state.consecutiveFailures++

	if state.escalated {
		return
	}
	if state.consecutiveFailures < r.cfg.AlertThreshold {
		return
	}

	if state.remediationCycles >= r.cfg.MaxRemediationCycles {
		r.escalate(svc.Name, state)
		return
	}

	fn, hasRemediation := r.remediations[svc.Name]
	if !hasRemediation {
		r.escalate(svc.Name, state)
		return
	}

	state.remediationCycles++
	action := Action{
		Service:             svc.Name,
		Type:                ActionRemediate,
		TriggeredAt:         time.Now(),
		ConsecutiveFailures: state.consecutiveFailures,
	}

	r.logger.Warn("Remediating unhealthy service",
		slog.String("service", svc.Name),
		slog.Int("consecutive_failures", state.consecutiveFailures),
		slog.Int("remediation_cycle", state.remediationCycles),
		slog.String("last_error", svc.Error),
	)

	if err := fn(ctx); err != nil {
		action.Error = err.Error()
		r.logger.Error("Remediation failed",
			slog.String("service", svc.Name),
			slog.Any("error", err),
		)
	} else {
		action.Succeeded = true
		r.logger.Info("Remediation completed", slog.String("service", svc.Name))
	}

	r.history = append(r.history, action)
}

// escalate records a one-shot escalation. The service stays escalated until
// it reports healthy again. Called with the mutex held.
func (r *AutoRecovery) escalate(service string, state *serviceState) {
	state.escalated = true

	r.logger.Error("Service requires operator intervention",
		slog.String("service", service),
		slog.Int("consecutive_failures", state.consecutiveFailures),
		slog.Int("remediation_cycles", state.remediationCycles),
	)

	r.history = append(r.history, Action{
		Service:             service,
		Type:                ActionEscalate,
		TriggeredAt:         time.Now(),
		ConsecutiveFailures: state.consecutiveFailures,
	})
}

// History returns a copy of the recorded recovery actions
func (r *AutoRecovery) History() []Action {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Action, len(r.history))
	copy(out, r.history)
	return out
}
