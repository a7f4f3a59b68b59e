package runtime

import (
	"context"
	"sync"

	"github.com/skillsenselab/faultkit/config"
	"github.com/skillsenselab/faultkit/errors"
	"github.com/skillsenselab/faultkit/logger"
	"github.com/skillsenselab/faultkit/observability"
	"github.com/skillsenselab/faultkit/resilience"
	"github.com/skillsenselab/faultkit/validation"
)

// Registry kind names used in NOT_FOUND / ALREADY_EXISTS errors.
const (
	kindCircuitBreaker = "circuit_breaker"
	kindRetryExecutor  = "retry_executor"
	kindBulkhead       = "bulkhead"
	kindHealthChecker  = "health_checker"
	kindRateLimiter    = "rate_limiter"
)

// Runtime owns the named resilience primitives of one process. All state is
// process-local and lost on restart.
type Runtime struct {
	name   string
	log    *logger.Logger
	events *resilience.Publisher

	mu        sync.RWMutex
	closed    bool
	breakers  map[string]*resilience.CircuitBreaker
	retries   map[string]*resilience.RetryExecutor
	bulkheads map[string]*resilience.Bulkhead
	checkers  map[string]*resilience.HealthChecker
	limiters  map[string]*resilience.RateLimiter

	// checkerConfigs holds health checker entries from the config file,
	// applied when the caller supplies the probe.
	checkerConfigs map[string]resilience.HealthCheckerConfig

	baseCtx context.Context
	cancel  context.CancelFunc

	snapshots *snapshotLoop

	shutdownOnce sync.Once
}

// Option customizes a Runtime.
type Option func(*Runtime)

// WithRecorder exports every snapshot through the given OpenTelemetry
// instrument set.
func WithRecorder(rm *observability.ResilienceMetrics) Option {
	return func(r *Runtime) { r.snapshots.recorder = rm }
}

// New constructs a runtime from config. Breakers, retry executors, bulkheads
// and rate limiters declared in the config are registered immediately; health
// checker entries are held until CreateHealthChecker supplies their probes.
// The snapshot loop starts right away on cfg.MetricsInterval.
func New(cfg config.RuntimeConfig, log *logger.Logger, opts ...Option) (*Runtime, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if log == nil {
		log = logger.Nop()
	}

	ctx, cancel := context.WithCancel(context.Background())
	r := &Runtime{
		name:           cfg.Name,
		log:            log.WithComponent("runtime"),
		events:         resilience.NewPublisher(cfg.EventBuffer),
		breakers:       make(map[string]*resilience.CircuitBreaker),
		retries:        make(map[string]*resilience.RetryExecutor),
		bulkheads:      make(map[string]*resilience.Bulkhead),
		checkers:       make(map[string]*resilience.HealthChecker),
		limiters:       make(map[string]*resilience.RateLimiter),
		checkerConfigs: make(map[string]resilience.HealthCheckerConfig),
		baseCtx:        ctx,
		cancel:         cancel,
	}
	r.snapshots = newSnapshotLoop(r, cfg.MetricsInterval)

	for _, opt := range opts {
		opt(r)
	}

	for _, c := range cfg.CircuitBreakers {
		if _, err := r.CreateCircuitBreaker(c); err != nil {
			r.teardown()
			return nil, err
		}
	}
	for _, c := range cfg.Retries {
		if _, err := r.CreateRetryExecutor(c); err != nil {
			r.teardown()
			return nil, err
		}
	}
	for _, c := range cfg.Bulkheads {
		if _, err := r.CreateBulkhead(c); err != nil {
			r.teardown()
			return nil, err
		}
	}
	for _, c := range cfg.RateLimiters {
		if _, err := r.CreateRateLimiter(c); err != nil {
			r.teardown()
			return nil, err
		}
	}
	for name, c := range cfg.HealthCheckers {
		r.checkerConfigs[name] = c
	}

	r.snapshots.start()
	r.log.Info("runtime started", logger.Fields("name", cfg.Name))
	return r, nil
}

// Name returns the runtime's configured name.
func (r *Runtime) Name() string { return r.name }

// Events exposes the bounded transition event stream. Closed by Shutdown.
func (r *Runtime) Events() <-chan resilience.Event { return r.events.Events() }

// CreateCircuitBreaker registers a breaker under cfg.Name.
func (r *Runtime) CreateCircuitBreaker(cfg resilience.CircuitBreakerConfig) (*resilience.CircuitBreaker, error) {
	def := resilience.DefaultCircuitBreakerConfig(cfg.Name)
	if cfg.FailureThreshold == 0 {
		cfg.FailureThreshold = def.FailureThreshold
	}
	if cfg.CallTimeout == 0 {
		cfg.CallTimeout = def.CallTimeout
	}
	if cfg.OpenDuration == 0 {
		cfg.OpenDuration = def.OpenDuration
	}
	if err := r.checkRegistration(kindCircuitBreaker, cfg.Name, cfg); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil, errors.ShuttingDown()
	}
	if _, ok := r.breakers[cfg.Name]; ok {
		return nil, errors.DuplicateName(kindCircuitBreaker, cfg.Name)
	}
	cb := resilience.NewCircuitBreaker(cfg, r.events)
	r.breakers[cfg.Name] = cb
	r.log.Info("circuit breaker registered", logger.Fields(logger.FieldResource, cfg.Name))
	return cb, nil
}

// CreateRetryExecutor registers a retry executor under cfg.Name.
func (r *Runtime) CreateRetryExecutor(cfg resilience.RetryConfig) (*resilience.RetryExecutor, error) {
	def := resilience.DefaultRetryConfig(cfg.Name)
	if cfg.BaseDelay == 0 {
		cfg.BaseDelay = def.BaseDelay
	}
	if cfg.BackoffMultiplier == 0 {
		cfg.BackoffMultiplier = def.BackoffMultiplier
	}
	if cfg.MaxDelay == 0 {
		cfg.MaxDelay = def.MaxDelay
	}
	if err := r.checkRegistration(kindRetryExecutor, cfg.Name, cfg); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil, errors.ShuttingDown()
	}
	if _, ok := r.retries[cfg.Name]; ok {
		return nil, errors.DuplicateName(kindRetryExecutor, cfg.Name)
	}
	re := resilience.NewRetryExecutor(cfg)
	r.retries[cfg.Name] = re
	r.log.Info("retry executor registered", logger.Fields(logger.FieldResource, cfg.Name))
	return re, nil
}

// CreateBulkhead registers a bulkhead under cfg.Name.
func (r *Runtime) CreateBulkhead(cfg resilience.BulkheadConfig) (*resilience.Bulkhead, error) {
	if cfg.MaxConcurrent == 0 {
		cfg.MaxConcurrent = resilience.DefaultBulkheadConfig(cfg.Name).MaxConcurrent
	}
	if err := r.checkRegistration(kindBulkhead, cfg.Name, cfg); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil, errors.ShuttingDown()
	}
	if _, ok := r.bulkheads[cfg.Name]; ok {
		return nil, errors.DuplicateName(kindBulkhead, cfg.Name)
	}
	b := resilience.NewBulkhead(cfg)
	r.bulkheads[cfg.Name] = b
	r.log.Info("bulkhead registered", logger.Fields(logger.FieldResource, cfg.Name))
	return b, nil
}

// CreateHealthChecker registers a checker under cfg.Name and starts probing
// immediately. When the runtime's config file declared a checker with the
// same name, the declared settings override zero fields of cfg.
func (r *Runtime) CreateHealthChecker(cfg resilience.HealthCheckerConfig, probe resilience.Probe) (*resilience.HealthChecker, error) {
	if probe == nil {
		return nil, errors.InvalidConfig("probe", "is required")
	}

	r.mu.Lock()
	if declared, ok := r.checkerConfigs[cfg.Name]; ok {
		if cfg.CheckInterval == 0 {
			cfg.CheckInterval = declared.CheckInterval
		}
		if cfg.CheckTimeout == 0 {
			cfg.CheckTimeout = declared.CheckTimeout
		}
	}
	r.mu.Unlock()

	def := resilience.DefaultHealthCheckerConfig(cfg.Name)
	if cfg.CheckInterval == 0 {
		cfg.CheckInterval = def.CheckInterval
	}
	if cfg.CheckTimeout == 0 {
		cfg.CheckTimeout = def.CheckTimeout
	}
	if err := r.checkRegistration(kindHealthChecker, cfg.Name, cfg); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil, errors.ShuttingDown()
	}
	if _, ok := r.checkers[cfg.Name]; ok {
		return nil, errors.DuplicateName(kindHealthChecker, cfg.Name)
	}
	hc := resilience.NewHealthChecker(cfg, probe, r.events)
	hc.Start(r.baseCtx)
	r.checkers[cfg.Name] = hc
	r.log.Info("health checker registered", logger.Fields(logger.FieldResource, cfg.Name))
	return hc, nil
}

// CreateRateLimiter registers a rate limiter under cfg.Name.
func (r *Runtime) CreateRateLimiter(cfg resilience.RateLimiterConfig) (*resilience.RateLimiter, error) {
	def := resilience.DefaultRateLimiterConfig(cfg.Name)
	if cfg.Rate == 0 {
		cfg.Rate = def.Rate
	}
	if cfg.Burst == 0 {
		cfg.Burst = def.Burst
	}
	if err := r.checkRegistration(kindRateLimiter, cfg.Name, cfg); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil, errors.ShuttingDown()
	}
	if _, ok := r.limiters[cfg.Name]; ok {
		return nil, errors.DuplicateName(kindRateLimiter, cfg.Name)
	}
	rl := resilience.NewRateLimiter(cfg)
	r.limiters[cfg.Name] = rl
	r.log.Info("rate limiter registered", logger.Fields(logger.FieldResource, cfg.Name))
	return rl, nil
}

func (r *Runtime) checkRegistration(kind, name string, cfg any) error {
	if name == "" {
		return errors.InvalidConfig(kind+".name", "is required")
	}
	return validation.Validate(cfg)
}

// ExecuteWithCircuitBreaker runs operation through the named breaker.
// fallback may be nil.
func (r *Runtime) ExecuteWithCircuitBreaker(ctx context.Context, name string, operation, fallback resilience.Operation) error {
	r.mu.RLock()
	cb := r.breakers[name]
	r.mu.RUnlock()
	if cb == nil {
		return errors.NotFound(kindCircuitBreaker, name)
	}
	return cb.Execute(ctx, operation, fallback)
}

// ExecuteWithRetry runs operation through the named retry executor.
// isRetriable may be nil (every error is retried).
func (r *Runtime) ExecuteWithRetry(ctx context.Context, name string, operation resilience.Operation, isRetriable func(error) bool) error {
	r.mu.RLock()
	re := r.retries[name]
	r.mu.RUnlock()
	if re == nil {
		return errors.NotFound(kindRetryExecutor, name)
	}
	return re.Execute(ctx, operation, isRetriable)
}

// ExecuteWithBulkhead runs operation through the named bulkhead.
func (r *Runtime) ExecuteWithBulkhead(ctx context.Context, name string, operation resilience.Operation) error {
	r.mu.RLock()
	b := r.bulkheads[name]
	r.mu.RUnlock()
	if b == nil {
		return errors.NotFound(kindBulkhead, name)
	}
	return b.Execute(ctx, operation)
}

// ExecuteWithRateLimiter runs operation through the named rate limiter.
func (r *Runtime) ExecuteWithRateLimiter(ctx context.Context, name string, operation resilience.Operation) error {
	r.mu.RLock()
	rl := r.limiters[name]
	r.mu.RUnlock()
	if rl == nil {
		return errors.NotFound(kindRateLimiter, name)
	}
	return rl.Execute(ctx, operation)
}

// ExecuteProtected runs operation through every primitive registered under
// name, chained RateLimiter → Bulkhead → CircuitBreaker → Retry → operation.
// Unregistered layers are skipped; with nothing registered the operation runs
// bare. The retry layer retries only errors classified retryable by the
// error taxonomy.
func (r *Runtime) ExecuteProtected(ctx context.Context, name string, operation resilience.Operation) error {
	r.mu.RLock()
	rl := r.limiters[name]
	b := r.bulkheads[name]
	cb := r.breakers[name]
	re := r.retries[name]
	r.mu.RUnlock()

	call := operation
	if re != nil {
		inner := call
		call = func(ctx context.Context) error {
			return re.Execute(ctx, inner, errors.IsRetryable)
		}
	}
	if cb != nil {
		inner := call
		call = func(ctx context.Context) error {
			return cb.Execute(ctx, inner, nil)
		}
	}
	if b != nil {
		inner := call
		call = func(ctx context.Context) error {
			return b.Execute(ctx, inner)
		}
	}
	if rl != nil {
		inner := call
		call = func(ctx context.Context) error {
			return rl.Execute(ctx, inner)
		}
	}
	return call(ctx)
}

// Shutdown tears the runtime down: health checkers and the snapshot loop
// stop, queued bulkhead callers are rejected with SHUTTING_DOWN, and the
// event stream closes. Idempotent.
func (r *Runtime) Shutdown() {
	r.shutdownOnce.Do(r.teardown)
}

func (r *Runtime) teardown() {
	r.mu.Lock()
	r.closed = true
	checkers := make([]*resilience.HealthChecker, 0, len(r.checkers))
	for _, hc := range r.checkers {
		checkers = append(checkers, hc)
	}
	bulkheads := make([]*resilience.Bulkhead, 0, len(r.bulkheads))
	for _, b := range r.bulkheads {
		bulkheads = append(bulkheads, b)
	}
	r.mu.Unlock()

	for _, hc := range checkers {
		hc.Stop()
	}
	r.snapshots.stopLoop()
	r.cancel()
	for _, b := range bulkheads {
		b.Close()
	}
	r.events.Close()
	r.log.Info("runtime stopped", logger.Fields("name", r.name))
}
