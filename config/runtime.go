package config

import (
	"fmt"
	"time"

	"github.com/skillsenselab/faultkit/logger"
	"github.com/skillsenselab/faultkit/resilience"
	"github.com/skillsenselab/faultkit/validation"
)

// RuntimeConfig is the top-level configuration for a fault tolerance runtime.
// Primitive maps are keyed by resource name; the key becomes the primitive's
// Name when the entry leaves it empty.
type RuntimeConfig struct {
	Name        string `yaml:"name" mapstructure:"name"`
	Environment string `yaml:"environment" mapstructure:"environment"`
	Version     string `yaml:"version" mapstructure:"version"`

	Logging   logger.Config   `yaml:"logging" mapstructure:"logging"`
	HTTP      HTTPConfig      `yaml:"http" mapstructure:"http"`
	Telemetry TelemetryConfig `yaml:"telemetry" mapstructure:"telemetry"`

	// MetricsInterval is the period between runtime snapshot emissions.
	MetricsInterval time.Duration `yaml:"metrics_interval" mapstructure:"metrics_interval"`
	// EventBuffer bounds the transition event channel.
	EventBuffer int `yaml:"event_buffer" mapstructure:"event_buffer"`

	CircuitBreakers map[string]resilience.CircuitBreakerConfig `yaml:"circuit_breakers" mapstructure:"circuit_breakers"`
	Retries         map[string]resilience.RetryConfig          `yaml:"retries" mapstructure:"retries"`
	Bulkheads       map[string]resilience.BulkheadConfig       `yaml:"bulkheads" mapstructure:"bulkheads"`
	HealthCheckers  map[string]resilience.HealthCheckerConfig  `yaml:"health_checkers" mapstructure:"health_checkers"`
	RateLimiters    map[string]resilience.RateLimiterConfig    `yaml:"rate_limiters" mapstructure:"rate_limiters"`
}

// HTTPConfig configures the optional status HTTP server.
type HTTPConfig struct {
	Enabled         bool          `yaml:"enabled" mapstructure:"enabled"`
	Addr            string        `yaml:"addr" mapstructure:"addr"`
	ReadTimeout     time.Duration `yaml:"read_timeout" mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout" mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" mapstructure:"shutdown_timeout"`
}

// TelemetryConfig configures OTLP export of runtime metrics and traces.
type TelemetryConfig struct {
	Enabled    bool          `yaml:"enabled" mapstructure:"enabled"`
	Endpoint   string        `yaml:"endpoint" mapstructure:"endpoint"`
	Insecure   bool          `yaml:"insecure" mapstructure:"insecure"`
	SampleRate float64       `yaml:"sample_rate" mapstructure:"sample_rate"`
	Interval   time.Duration `yaml:"interval" mapstructure:"interval"`
}

// ApplyDefaults fills zero-value fields with sensible defaults. Primitive
// entries inherit their name from the map key and their unset fields from the
// per-primitive defaults.
func (c *RuntimeConfig) ApplyDefaults() {
	if c.Environment == "" {
		c.Environment = "development"
	}
	c.Logging.ApplyDefaults()

	if c.MetricsInterval <= 0 {
		c.MetricsInterval = 10 * time.Second
	}
	if c.EventBuffer <= 0 {
		c.EventBuffer = resilience.DefaultEventBuffer
	}

	if c.HTTP.Addr == "" {
		c.HTTP.Addr = ":8080"
	}
	if c.HTTP.ReadTimeout <= 0 {
		c.HTTP.ReadTimeout = 10 * time.Second
	}
	if c.HTTP.WriteTimeout <= 0 {
		c.HTTP.WriteTimeout = 10 * time.Second
	}
	if c.HTTP.ShutdownTimeout <= 0 {
		c.HTTP.ShutdownTimeout = 15 * time.Second
	}

	if c.Telemetry.Endpoint == "" {
		c.Telemetry.Endpoint = "localhost:4318"
	}
	if c.Telemetry.SampleRate <= 0 {
		c.Telemetry.SampleRate = 1.0
	}
	if c.Telemetry.Interval <= 0 {
		c.Telemetry.Interval = 15 * time.Second
	}

	for name, cb := range c.CircuitBreakers {
		def := resilience.DefaultCircuitBreakerConfig(name)
		if cb.Name == "" {
			cb.Name = name
		}
		if cb.FailureThreshold <= 0 {
			cb.FailureThreshold = def.FailureThreshold
		}
		if cb.CallTimeout <= 0 {
			cb.CallTimeout = def.CallTimeout
		}
		if cb.OpenDuration <= 0 {
			cb.OpenDuration = def.OpenDuration
		}
		c.CircuitBreakers[name] = cb
	}

	for name, r := range c.Retries {
		def := resilience.DefaultRetryConfig(name)
		if r.Name == "" {
			r.Name = name
		}
		if r.BaseDelay <= 0 {
			r.BaseDelay = def.BaseDelay
		}
		if r.BackoffMultiplier < 1 {
			r.BackoffMultiplier = def.BackoffMultiplier
		}
		if r.MaxDelay <= 0 {
			r.MaxDelay = def.MaxDelay
		}
		c.Retries[name] = r
	}

	for name, b := range c.Bulkheads {
		def := resilience.DefaultBulkheadConfig(name)
		if b.Name == "" {
			b.Name = name
		}
		if b.MaxConcurrent <= 0 {
			b.MaxConcurrent = def.MaxConcurrent
		}
		c.Bulkheads[name] = b
	}

	for name, hc := range c.HealthCheckers {
		def := resilience.DefaultHealthCheckerConfig(name)
		if hc.Name == "" {
			hc.Name = name
		}
		if hc.CheckInterval <= 0 {
			hc.CheckInterval = def.CheckInterval
		}
		if hc.CheckTimeout <= 0 {
			hc.CheckTimeout = def.CheckTimeout
		}
		c.HealthCheckers[name] = hc
	}

	for name, rl := range c.RateLimiters {
		def := resilience.DefaultRateLimiterConfig(name)
		if rl.Name == "" {
			rl.Name = name
		}
		if rl.Rate <= 0 {
			rl.Rate = def.Rate
		}
		if rl.Burst <= 0 {
			rl.Burst = def.Burst
		}
		c.RateLimiters[name] = rl
	}
}

// Validate checks the configuration. Call ApplyDefaults first.
func (c *RuntimeConfig) Validate() error {
	if c.Name == "" {
		return fmt.Errorf("config.name is required")
	}
	switch c.Environment {
	case "development", "staging", "production":
	default:
		return fmt.Errorf("config.environment must be one of [development, staging, production] (got: %s)", c.Environment)
	}

	for name, cb := range c.CircuitBreakers {
		if err := validation.Validate(cb); err != nil {
			return fmt.Errorf("circuit_breakers.%s: %w", name, err)
		}
	}
	for name, r := range c.Retries {
		if err := validation.Validate(r); err != nil {
			return fmt.Errorf("retries.%s: %w", name, err)
		}
	}
	for name, b := range c.Bulkheads {
		if err := validation.Validate(b); err != nil {
			return fmt.Errorf("bulkheads.%s: %w", name, err)
		}
	}
	for name, hc := range c.HealthCheckers {
		if err := validation.Validate(hc); err != nil {
			return fmt.Errorf("health_checkers.%s: %w", name, err)
		}
	}
	for name, rl := range c.RateLimiters {
		if err := validation.Validate(rl); err != nil {
			return fmt.Errorf("rate_limiters.%s: %w", name, err)
		}
	}
	return nil
}
