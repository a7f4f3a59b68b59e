package resilience

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/skillsenselab/faultkit/errors"
)

// RetryConfig configures a retry executor.
type RetryConfig struct {
	// Name identifies this retrier for errors and metrics.
	Name string `mapstructure:"name"`
	// MaxRetries is the number of re-invocations after the first attempt.
	MaxRetries int `mapstructure:"max_retries" validate:"gte=0"`
	// BaseDelay is the delay before the first retry.
	BaseDelay time.Duration `mapstructure:"base_delay" validate:"gt=0"`
	// BackoffMultiplier scales the delay after each attempt.
	BackoffMultiplier float64 `mapstructure:"backoff_multiplier" validate:"gte=1"`
	// MaxDelay caps the computed backoff delay.
	MaxDelay time.Duration `mapstructure:"max_delay" validate:"gt=0,gtefield=BaseDelay"`
}

// DefaultRetryConfig returns sensible defaults.
func DefaultRetryConfig(name string) RetryConfig {
	return RetryConfig{
		Name:              name,
		MaxRetries:        3,
		BaseDelay:         100 * time.Millisecond,
		BackoffMultiplier: 2.0,
		MaxDelay:          10 * time.Second,
	}
}

// RetryCounters accumulates lifetime retry statistics.
type RetryCounters struct {
	Attempts  uint64 `json:"attempts"`
	Retries   uint64 `json:"retries"`
	Successes uint64 `json:"successes"`
	Exhausted uint64 `json:"exhausted"`
}

// RetryExecutor re-invokes a failing operation with exponential backoff.
// All loop state is local to one Execute call; only counters are shared.
type RetryExecutor struct {
	config RetryConfig

	mu       sync.Mutex
	counters RetryCounters
}

// NewRetryExecutor creates a retry executor.
func NewRetryExecutor(config RetryConfig) *RetryExecutor {
	if config.MaxRetries < 0 {
		config.MaxRetries = 0
	}
	if config.BaseDelay <= 0 {
		config.BaseDelay = 100 * time.Millisecond
	}
	if config.BackoffMultiplier < 1 {
		config.BackoffMultiplier = 2.0
	}
	if config.MaxDelay < config.BaseDelay {
		config.MaxDelay = config.BaseDelay
	}

	return &RetryExecutor{config: config}
}

// Name returns the executor's registered name.
func (re *RetryExecutor) Name() string { return re.config.Name }

// Execute invokes operation, retrying on failure with exponential backoff.
// isRetriable classifies errors; nil means every error is retriable. A
// non-retriable error propagates immediately with no delay. Once MaxRetries
// re-invocations are consumed the last error is returned wrapped in a
// RETRIES_EXHAUSTED error. The backoff wait is cancellable: ctx cancellation
// during a delay aborts the loop and returns ctx.Err().
func (re *RetryExecutor) Execute(ctx context.Context, operation Operation, isRetriable func(error) bool) error {
	var lastErr error

	for attempt := 0; ; attempt++ {
		re.addAttempt()

		lastErr = operation(ctx)
		if lastErr == nil {
			re.addSuccess()
			return nil
		}

		if isRetriable != nil && !isRetriable(lastErr) {
			return lastErr
		}

		if attempt >= re.config.MaxRetries {
			re.addExhausted()
			return errors.RetriesExhausted(re.config.Name, attempt+1, lastErr)
		}

		delay := backoffDelay(attempt, re.config)

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}

		re.addRetry()
	}
}

// backoffDelay computes min(baseDelay * multiplier^attempt, maxDelay).
func backoffDelay(attempt int, cfg RetryConfig) time.Duration {
	d := float64(cfg.BaseDelay) * math.Pow(cfg.BackoffMultiplier, float64(attempt))
	if d > float64(cfg.MaxDelay) {
		return cfg.MaxDelay
	}
	return time.Duration(d)
}

func (re *RetryExecutor) addAttempt() {
	re.mu.Lock()
	re.counters.Attempts++
	re.mu.Unlock()
}

func (re *RetryExecutor) addRetry() {
	re.mu.Lock()
	re.counters.Retries++
	re.mu.Unlock()
}

func (re *RetryExecutor) addSuccess() {
	re.mu.Lock()
	re.counters.Successes++
	re.mu.Unlock()
}

func (re *RetryExecutor) addExhausted() {
	re.mu.Lock()
	re.counters.Exhausted++
	re.mu.Unlock()
}

// RetrySnapshot is a point-in-time copy of retry counters.
type RetrySnapshot struct {
	Name     string        `json:"name"`
	Counters RetryCounters `json:"counters"`
}

// Snapshot returns a consistent copy of the executor's counters.
func (re *RetryExecutor) Snapshot() RetrySnapshot {
	re.mu.Lock()
	defer re.mu.Unlock()
	return RetrySnapshot{Name: re.config.Name, Counters: re.counters}
}
