package health

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/scholaris/paper-analysis-be/internal/config"
	"github.com/scholaris/paper-analysis-be/internal/monitor"
	"github.com/scholaris/paper-analysis-be/internal/provider"
	"github.com/scholaris/paper-analysis-be/shared/postgresql"
	"github.com/scholaris/paper-analysis-be/shared/rabbitmq"
)

// StoreProbe checks the persistent store with a lightweight bounded read
func StoreProbe(cfg config.ProbeConfig, db *postgresql.Client) Probe {
	return Probe{
		Name:     "store",
		Critical: cfg.Critical,
		Timeout:  cfg.Timeout,
		Check:    db.HealthCheck,
	}
}

// BrokerProbe checks the broker with a bounded write+read+delete round-trip
func BrokerProbe(cfg config.ProbeConfig, rabbit *rabbitmq.Client) Probe {
	return Probe{
		Name:     "broker",
		Critical: cfg.Critical,
		Timeout:  cfg.Timeout,
		Check:    rabbit.RoundTrip,
	}
}

// SystemProbe reports the resource monitor's latest verdict
func SystemProbe(cfg config.ProbeConfig, mon *monitor.ResourceMonitor) Probe {
	return Probe{
		Name:     "system",
		Critical: cfg.Critical,
		Timeout:  cfg.Timeout,
		Check: func(ctx context.Context) error {
			return mon.Check(ctx)
		},
	}
}

// ProviderProbes builds one reachability probe per provider with configured
// credentials. Unconfigured providers get no probe at all.
func ProviderProbes(cfg config.ProbeConfig, registry *provider.Registry) []Probe {
	client := &http.Client{Timeout: cfg.Timeout}

	var probes []Probe
	for _, p := range registry.Available() {
		endpoint := p.Endpoint()
		probes = append(probes, Probe{
			Name:     "provider:" + p.Name(),
			Critical: cfg.Critical,
			Timeout:  cfg.Timeout,
			Check: func(ctx context.Context) error {
				return checkEndpoint(ctx, client, endpoint)
			},
		})
	}
	return probes
}

// checkEndpoint verifies the provider API answers at the transport level.
// Any HTTP response counts as reachable; auth and routing errors still prove
// the endpoint is up.
func checkEndpoint(ctx context.Context, client *http.Client, endpoint string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to build probe request: %w", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("endpoint unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusInternalServerError {
		return fmt.Errorf("endpoint returned %d", resp.StatusCode)
	}
	return nil
}

// DefaultProbeTimeout backstops probes configured without a timeout
const DefaultProbeTimeout = 5 * time.Second

// NormalizeProbeTimeout returns the configured timeout or the default
func NormalizeProbeTimeout(cfg *config.ProbeConfig) {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultProbeTimeout
	}
}
