package runtime

import (
	"sort"
	"time"

	"github.com/skillsenselab/faultkit/resilience"
)

// Health is the aggregate system health classification.
type Health string

const (
	HealthHealthy   Health = "healthy"
	HealthDegraded  Health = "degraded"
	HealthUnhealthy Health = "unhealthy"
)

// Status is an immutable snapshot of every registered primitive plus the
// aggregate health classification. Slices are sorted by resource name.
type Status struct {
	Name        string    `json:"name"`
	Health      Health    `json:"health"`
	GeneratedAt time.Time `json:"generated_at"`

	Breakers       []resilience.BreakerSnapshot     `json:"breakers,omitempty"`
	Retries        []resilience.RetrySnapshot       `json:"retries,omitempty"`
	Bulkheads      []resilience.BulkheadSnapshot    `json:"bulkheads,omitempty"`
	HealthCheckers []resilience.HealthSnapshot      `json:"health_checkers,omitempty"`
	RateLimiters   []resilience.RateLimiterSnapshot `json:"rate_limiters,omitempty"`

	// EventsDropped counts transition events discarded on a full buffer.
	EventsDropped uint64 `json:"events_dropped"`
}

// GetStatus assembles a point-in-time snapshot of all registered components.
// Reads are idempotent: two calls with no intervening executions return
// identical counters.
func (r *Runtime) GetStatus() Status {
	r.mu.RLock()
	breakers := make([]*resilience.CircuitBreaker, 0, len(r.breakers))
	for _, cb := range r.breakers {
		breakers = append(breakers, cb)
	}
	retries := make([]*resilience.RetryExecutor, 0, len(r.retries))
	for _, re := range r.retries {
		retries = append(retries, re)
	}
	bulkheads := make([]*resilience.Bulkhead, 0, len(r.bulkheads))
	for _, b := range r.bulkheads {
		bulkheads = append(bulkheads, b)
	}
	checkers := make([]*resilience.HealthChecker, 0, len(r.checkers))
	for _, hc := range r.checkers {
		checkers = append(checkers, hc)
	}
	limiters := make([]*resilience.RateLimiter, 0, len(r.limiters))
	for _, rl := range r.limiters {
		limiters = append(limiters, rl)
	}
	r.mu.RUnlock()

	s := Status{
		Name:          r.name,
		GeneratedAt:   time.Now(),
		EventsDropped: r.events.Dropped(),
	}

	openBreakers := 0
	for _, cb := range breakers {
		snap := cb.Snapshot()
		if snap.State == resilience.StateOpen.String() {
			openBreakers++
		}
		s.Breakers = append(s.Breakers, snap)
	}
	for _, re := range retries {
		s.Retries = append(s.Retries, re.Snapshot())
	}
	for _, b := range bulkheads {
		s.Bulkheads = append(s.Bulkheads, b.Snapshot())
	}
	healthyCheckers := 0
	for _, hc := range checkers {
		snap := hc.Snapshot()
		if snap.Healthy {
			healthyCheckers++
		}
		s.HealthCheckers = append(s.HealthCheckers, snap)
	}
	for _, rl := range limiters {
		s.RateLimiters = append(s.RateLimiters, rl.Snapshot())
	}

	sort.Slice(s.Breakers, func(i, j int) bool { return s.Breakers[i].Name < s.Breakers[j].Name })
	sort.Slice(s.Retries, func(i, j int) bool { return s.Retries[i].Name < s.Retries[j].Name })
	sort.Slice(s.Bulkheads, func(i, j int) bool { return s.Bulkheads[i].Name < s.Bulkheads[j].Name })
	sort.Slice(s.HealthCheckers, func(i, j int) bool { return s.HealthCheckers[i].Name < s.HealthCheckers[j].Name })
	sort.Slice(s.RateLimiters, func(i, j int) bool { return s.RateLimiters[i].Name < s.RateLimiters[j].Name })

	s.Health = classifyHealth(openBreakers, healthyCheckers, len(checkers))
	return s
}

// classifyHealth derives the aggregate classification. With zero checkers the
// verdict rests on breaker state alone.
func classifyHealth(openBreakers, healthyCheckers, totalCheckers int) Health {
	healthyRatio := 1.0
	if totalCheckers > 0 {
		healthyRatio = float64(healthyCheckers) / float64(totalCheckers)
	}

	switch {
	case openBreakers == 0 && healthyCheckers == totalCheckers:
		return HealthHealthy
	case openBreakers <= 1 && healthyRatio >= 0.8:
		return HealthDegraded
	default:
		return HealthUnhealthy
	}
}
