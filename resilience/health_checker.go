package resilience

import (
	"context"
	"sync"
	"time"
)

// Probe is a lightweight check classifying a dependency as healthy or not.
type Probe func(ctx context.Context) error

// HealthCheckerConfig configures a health checker.
type HealthCheckerConfig struct {
	// Name identifies the probed target.
	Name string `mapstructure:"name"`
	// CheckInterval is the delay between probe runs.
	CheckInterval time.Duration `mapstructure:"check_interval" validate:"gt=0"`
	// CheckTimeout bounds each probe; expiry counts as a failed check.
	CheckTimeout time.Duration `mapstructure:"check_timeout" validate:"gt=0"`
}

// DefaultHealthCheckerConfig returns sensible defaults.
func DefaultHealthCheckerConfig(name string) HealthCheckerConfig {
	return HealthCheckerConfig{
		Name:          name,
		CheckInterval: 30 * time.Second,
		CheckTimeout:  5 * time.Second,
	}
}

// HealthCounters accumulates lifetime probe statistics.
type HealthCounters struct {
	TotalChecks  uint64        `json:"total_checks"`
	Successes    uint64        `json:"successes"`
	Failures     uint64        `json:"failures"`
	TotalLatency time.Duration `json:"total_latency"`
}

// HealthChecker runs a probe on a fixed interval and maintains rolling
// up/down status for one named target. Targets start optimistic: healthy
// until the first probe completes.
type HealthChecker struct {
	config HealthCheckerConfig
	probe  Probe
	events *Publisher

	mu                  sync.Mutex
	healthy             bool
	consecutiveFailures int
	lastHealthyAt       time.Time
	lastUnhealthyAt     time.Time
	counters            HealthCounters

	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

// NewHealthChecker creates a health checker. events may be nil, in which
// case degraded/recovered transitions are not published. The probe loop does
// not run until Start is called.
func NewHealthChecker(config HealthCheckerConfig, probe Probe, events *Publisher) *HealthChecker {
	if config.CheckInterval <= 0 {
		config.CheckInterval = 30 * time.Second
	}
	if config.CheckTimeout <= 0 {
		config.CheckTimeout = 5 * time.Second
	}

	return &HealthChecker{
		config:  config,
		probe:   probe,
		events:  events,
		healthy: true,
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
}

// Name returns the checker's registered name.
func (hc *HealthChecker) Name() string { return hc.config.Name }

// Start runs the probe once immediately, then on every CheckInterval tick,
// until Stop is called or ctx is cancelled.
func (hc *HealthChecker) Start(ctx context.Context) {
	go func() {
		defer close(hc.done)

		hc.runCheck(ctx)

		ticker := time.NewTicker(hc.config.CheckInterval)
		defer ticker.Stop()

		for {
			select {
			case <-hc.stop:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
				hc.runCheck(ctx)
			}
		}
	}()
}

// Stop cancels the probe schedule and waits for the loop to exit.
// Status reads after Stop return the last known snapshot.
func (hc *HealthChecker) Stop() {
	hc.stopOnce.Do(func() { close(hc.stop) })
	<-hc.done
}

// runCheck executes one probe under the configured timeout and records the
// outcome, publishing a transition event when the status flips.
func (hc *HealthChecker) runCheck(ctx context.Context) {
	start := time.Now()
	err := callWithDeadline(ctx, hc.config.Name, hc.config.CheckTimeout, Operation(hc.probe))
	latency := time.Since(start)

	hc.mu.Lock()
	defer hc.mu.Unlock()

	hc.counters.TotalChecks++
	hc.counters.TotalLatency += latency

	if err == nil {
		hc.counters.Successes++
		hc.consecutiveFailures = 0
		hc.lastHealthyAt = time.Now()
		if !hc.healthy {
			hc.healthy = true
			hc.publishTransition(EventRecovered, "down", "up")
		}
		return
	}

	hc.counters.Failures++
	hc.consecutiveFailures++
	hc.lastUnhealthyAt = time.Now()
	if hc.healthy {
		hc.healthy = false
		hc.publishTransition(EventDegraded, "up", "down")
	}
}

// publishTransition emits a status-flip event. Callers must hold hc.mu.
func (hc *HealthChecker) publishTransition(typ EventType, from, to string) {
	if hc.events == nil {
		return
	}
	hc.events.Publish(Event{
		Kind: KindHealthChecker,
		Name: hc.config.Name,
		Type: typ,
		From: from,
		To:   to,
	})
}

// IsHealthy reports the current rolling status.
func (hc *HealthChecker) IsHealthy() bool {
	hc.mu.Lock()
	defer hc.mu.Unlock()
	return hc.healthy
}

// HealthSnapshot is a point-in-time copy of checker status and counters.
type HealthSnapshot struct {
	Name                string         `json:"name"`
	Healthy             bool           `json:"healthy"`
	ConsecutiveFailures int            `json:"consecutive_failures"`
	LastHealthyAt       time.Time      `json:"last_healthy_at"`
	LastUnhealthyAt     time.Time      `json:"last_unhealthy_at"`
	Counters            HealthCounters `json:"counters"`
	AverageLatency      time.Duration  `json:"average_latency"`
	UptimeRatio         float64        `json:"uptime_ratio"`
}

// Snapshot returns a consistent copy of the checker's status and counters.
// UptimeRatio is the lifetime successes/totalChecks ratio, not windowed.
func (hc *HealthChecker) Snapshot() HealthSnapshot {
	hc.mu.Lock()
	defer hc.mu.Unlock()

	snap := HealthSnapshot{
		Name:                hc.config.Name,
		Healthy:             hc.healthy,
		ConsecutiveFailures: hc.consecutiveFailures,
		LastHealthyAt:       hc.lastHealthyAt,
		LastUnhealthyAt:     hc.lastUnhealthyAt,
		Counters:            hc.counters,
	}
	if hc.counters.TotalChecks > 0 {
		snap.AverageLatency = hc.counters.TotalLatency / time.Duration(hc.counters.TotalChecks)
		snap.UptimeRatio = float64(hc.counters.Successes) / float64(hc.counters.TotalChecks)
	}
	return snap
}
