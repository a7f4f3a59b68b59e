package resilience

import (
	"context"
	"sync"
	"time"

	"github.com/skillsenselab/faultkit/errors"
)

// RateLimiterConfig configures a token bucket rate limiter.
type RateLimiterConfig struct {
	// Name identifies this limiter for errors and metrics.
	Name string `mapstructure:"name"`
	// Rate is the number of calls allowed per second.
	Rate float64 `mapstructure:"rate" validate:"gt=0"`
	// Burst is the maximum burst size.
	Burst int `mapstructure:"burst" validate:"gte=0"`
}

// DefaultRateLimiterConfig returns sensible defaults.
func DefaultRateLimiterConfig(name string) RateLimiterConfig {
	return RateLimiterConfig{
		Name:  name,
		Rate:  10.0,
		Burst: 20,
	}
}

// RateLimiterCounters accumulates lifetime admission statistics.
type RateLimiterCounters struct {
	Allowed uint64 `json:"allowed"`
	Limited uint64 `json:"limited"`
}

// RateLimiter implements a token bucket. It fails fast: a call arriving with
// no token available is rejected, never queued.
type RateLimiter struct {
	config RateLimiterConfig

	mu         sync.Mutex
	tokens     float64
	lastRefill time.Time
	counters   RateLimiterCounters
}

// NewRateLimiter creates a rate limiter with a full bucket.
func NewRateLimiter(config RateLimiterConfig) *RateLimiter {
	if config.Rate <= 0 {
		config.Rate = 10.0
	}
	if config.Burst <= 0 {
		config.Burst = int(config.Rate)
	}

	return &RateLimiter{
		config:     config,
		tokens:     float64(config.Burst),
		lastRefill: time.Now(),
	}
}

// Name returns the limiter's registered name.
func (rl *RateLimiter) Name() string { return rl.config.Name }

// Allow consumes one token if available. Returns false when limited.
func (rl *RateLimiter) Allow() bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	rl.refill()

	if rl.tokens >= 1 {
		rl.tokens--
		rl.counters.Allowed++
		return true
	}

	rl.counters.Limited++
	return false
}

// Execute runs operation if a token is available, otherwise fails fast with
// a RATE_LIMITED error.
func (rl *RateLimiter) Execute(ctx context.Context, operation Operation) error {
	if !rl.Allow() {
		return errors.RateLimited(rl.config.Name)
	}
	return operation(ctx)
}

// refill adds tokens based on time elapsed. Callers must hold rl.mu.
func (rl *RateLimiter) refill() {
	now := time.Now()
	elapsed := now.Sub(rl.lastRefill).Seconds()
	rl.lastRefill = now

	rl.tokens += elapsed * rl.config.Rate
	if rl.tokens > float64(rl.config.Burst) {
		rl.tokens = float64(rl.config.Burst)
	}
}

// RateLimiterSnapshot is a point-in-time copy of limiter state and counters.
type RateLimiterSnapshot struct {
	Name     string              `json:"name"`
	Tokens   float64             `json:"tokens"`
	Rate     float64             `json:"rate"`
	Burst    int                 `json:"burst"`
	Counters RateLimiterCounters `json:"counters"`
}

// Snapshot returns a consistent copy of the limiter's state and counters.
func (rl *RateLimiter) Snapshot() RateLimiterSnapshot {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	rl.refill()
	return RateLimiterSnapshot{
		Name:     rl.config.Name,
		Tokens:   rl.tokens,
		Rate:     rl.config.Rate,
		Burst:    rl.config.Burst,
		Counters: rl.counters,
	}
}
