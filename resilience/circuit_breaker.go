package resilience

import (
	"context"
	"sync"
	"time"

	"github.com/skillsenselab/faultkit/errors"
)

// State represents the circuit breaker state.
type State int

const (
	// StateClosed allows requests to pass through.
	StateClosed State = iota
	// StateOpen blocks all requests until the open duration elapses.
	StateOpen
	// StateHalfOpen allows a single trial request to test recovery.
	StateHalfOpen
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// CircuitBreakerConfig configures a circuit breaker.
type CircuitBreakerConfig struct {
	// Name identifies this breaker for errors, events, and metrics.
	Name string `mapstructure:"name"`
	// FailureThreshold is the number of consecutive failures before opening.
	FailureThreshold int `mapstructure:"failure_threshold" validate:"gt=0"`
	// CallTimeout bounds each wrapped operation; expiry counts as a failure.
	CallTimeout time.Duration `mapstructure:"call_timeout" validate:"gt=0"`
	// OpenDuration is how long the breaker stays open before a trial call.
	OpenDuration time.Duration `mapstructure:"open_duration" validate:"gt=0"`
}

// DefaultCircuitBreakerConfig returns sensible defaults.
func DefaultCircuitBreakerConfig(name string) CircuitBreakerConfig {
	return CircuitBreakerConfig{
		Name:             name,
		FailureThreshold: 5,
		CallTimeout:      10 * time.Second,
		OpenDuration:     30 * time.Second,
	}
}

// BreakerCounters accumulates lifetime call statistics.
type BreakerCounters struct {
	Calls        uint64        `json:"calls"`
	Successes    uint64        `json:"successes"`
	Failures     uint64        `json:"failures"`
	Rejected     uint64        `json:"rejected"`
	TotalLatency time.Duration `json:"total_latency"`
}

// CircuitBreaker guards a single named operation. It tracks consecutive
// failures and transitions closed → open → half-open → closed, rejecting
// calls fast while open.
type CircuitBreaker struct {
	config CircuitBreakerConfig
	events *Publisher

	mu                  sync.Mutex
	state               State
	consecutiveFailures int
	trialInFlight       bool
	lastFailureAt       time.Time
	lastSuccessAt       time.Time
	counters            BreakerCounters
}

// NewCircuitBreaker creates a circuit breaker. events may be nil, in which
// case state transitions are not published.
func NewCircuitBreaker(config CircuitBreakerConfig, events *Publisher) *CircuitBreaker {
	if config.FailureThreshold <= 0 {
		config.FailureThreshold = 5
	}
	if config.CallTimeout <= 0 {
		config.CallTimeout = 10 * time.Second
	}
	if config.OpenDuration <= 0 {
		config.OpenDuration = 30 * time.Second
	}

	return &CircuitBreaker{
		config: config,
		events: events,
		state:  StateClosed,
	}
}

// Name returns the breaker's registered name.
func (cb *CircuitBreaker) Name() string { return cb.config.Name }

// Execute runs operation through the breaker under the configured call
// timeout. While the breaker is open (or a half-open trial is already in
// flight) the operation is never invoked: fallback runs instead if provided,
// otherwise a CIRCUIT_OPEN error is returned. After an operation failure,
// fallback (if provided) absorbs the error and its result is returned.
func (cb *CircuitBreaker) Execute(ctx context.Context, operation Operation, fallback Operation) error {
	if !cb.allowRequest() {
		if fallback != nil {
			return fallback(ctx)
		}
		return errors.CircuitOpen(cb.config.Name)
	}

	start := time.Now()
	err := callWithDeadline(ctx, cb.config.Name, cb.config.CallTimeout, operation)
	cb.recordResult(err, time.Since(start))

	if err != nil && fallback != nil {
		return fallback(ctx)
	}
	return err
}

// State returns the current breaker state, applying the open-duration
// transition if it has elapsed.
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.currentState()
}

// Reset forces the breaker back to closed and clears failure tracking.
// Lifetime counters are preserved.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.toState(StateClosed)
	cb.consecutiveFailures = 0
	cb.trialInFlight = false
}

// allowRequest decides whether a call may proceed, claiming the half-open
// trial slot when applicable.
func (cb *CircuitBreaker) allowRequest() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.currentState() {
	case StateClosed:
		return true
	case StateHalfOpen:
		if !cb.trialInFlight {
			cb.trialInFlight = true
			return true
		}
		cb.counters.Rejected++
		return false
	default:
		cb.counters.Rejected++
		return false
	}
}

// recordResult applies the outcome of an allowed call.
func (cb *CircuitBreaker) recordResult(err error, latency time.Duration) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.counters.Calls++
	cb.counters.TotalLatency += latency
	cb.trialInFlight = false

	if err != nil {
		cb.onFailure()
	} else {
		cb.onSuccess()
	}
}

func (cb *CircuitBreaker) onSuccess() {
	cb.counters.Successes++
	cb.lastSuccessAt = time.Now()
	cb.consecutiveFailures = 0

	if cb.state == StateHalfOpen {
		cb.toState(StateClosed)
	}
}

func (cb *CircuitBreaker) onFailure() {
	cb.counters.Failures++
	cb.consecutiveFailures++
	cb.lastFailureAt = time.Now()

	switch cb.state {
	case StateClosed:
		if cb.consecutiveFailures >= cb.config.FailureThreshold {
			cb.toState(StateOpen)
		}
	case StateHalfOpen:
		// A single trial failure re-opens and restarts the timer.
		cb.toState(StateOpen)
	}
}

// currentState returns the state, handling the open → half-open transition.
// Callers must hold cb.mu.
func (cb *CircuitBreaker) currentState() State {
	if cb.state == StateOpen && time.Since(cb.lastFailureAt) >= cb.config.OpenDuration {
		cb.toState(StateHalfOpen)
	}
	return cb.state
}

// toState transitions to a new state and publishes the change.
// Callers must hold cb.mu.
func (cb *CircuitBreaker) toState(to State) {
	if cb.state == to {
		return
	}

	from := cb.state
	cb.state = to

	switch to {
	case StateHalfOpen:
		// Entry to half-open resets the failure streak for the trial.
		cb.consecutiveFailures = 0
		cb.trialInFlight = false
	case StateClosed:
		cb.consecutiveFailures = 0
		cb.trialInFlight = false
	}

	if cb.events != nil {
		cb.events.Publish(Event{
			Kind: KindCircuitBreaker,
			Name: cb.config.Name,
			Type: EventStateChange,
			From: from.String(),
			To:   to.String(),
		})
	}
}

// BreakerSnapshot is a point-in-time copy of breaker state and counters.
type BreakerSnapshot struct {
	Name                string          `json:"name"`
	State               string          `json:"state"`
	ConsecutiveFailures int             `json:"consecutive_failures"`
	LastFailureAt       time.Time       `json:"last_failure_at"`
	LastSuccessAt       time.Time       `json:"last_success_at"`
	Counters            BreakerCounters `json:"counters"`
	AverageLatency      time.Duration   `json:"average_latency"`
}

// Snapshot returns a consistent copy of the breaker's state and counters.
func (cb *CircuitBreaker) Snapshot() BreakerSnapshot {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	snap := BreakerSnapshot{
		Name:                cb.config.Name,
		State:               cb.currentState().String(),
		ConsecutiveFailures: cb.consecutiveFailures,
		LastFailureAt:       cb.lastFailureAt,
		LastSuccessAt:       cb.lastSuccessAt,
		Counters:            cb.counters,
	}
	if cb.counters.Calls > 0 {
		snap.AverageLatency = cb.counters.TotalLatency / time.Duration(cb.counters.Calls)
	}
	return snap
}
