package runtime

import (
	"context"
	stderrors "errors"
	"testing"
	"time"

	"github.com/skillsenselab/faultkit/config"
	"github.com/skillsenselab/faultkit/errors"
	"github.com/skillsenselab/faultkit/resilience"
)

func newTestRuntime(t *testing.T) *Runtime {
	t.Helper()
	rt, err := New(config.RuntimeConfig{Name: "test"}, nil)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	t.Cleanup(rt.Shutdown)
	return rt
}

func TestNew_RejectsInvalidConfig(t *testing.T) {
	_, err := New(config.RuntimeConfig{}, nil)
	if err == nil {
		t.Fatal("expected error for missing name")
	}
}

func TestNew_RegistersConfiguredPrimitives(t *testing.T) {
	cfg := config.RuntimeConfig{
		Name: "test",
		CircuitBreakers: map[string]resilience.CircuitBreakerConfig{
			"db": {},
		},
		Bulkheads: map[string]resilience.BulkheadConfig{
			"db": {MaxConcurrent: 2},
		},
	}
	rt, err := New(cfg, nil)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer rt.Shutdown()

	if err := rt.ExecuteWithCircuitBreaker(context.Background(), "db",
		func(ctx context.Context) error { return nil }, nil); err != nil {
		t.Errorf("configured breaker not registered: %v", err)
	}
	if err := rt.ExecuteWithBulkhead(context.Background(), "db",
		func(ctx context.Context) error { return nil }); err != nil {
		t.Errorf("configured bulkhead not registered: %v", err)
	}
}

func TestCreate_DuplicateName(t *testing.T) {
	rt := newTestRuntime(t)

	if _, err := rt.CreateCircuitBreaker(resilience.CircuitBreakerConfig{Name: "db"}); err != nil {
		t.Fatalf("first create failed: %v", err)
	}
	_, err := rt.CreateCircuitBreaker(resilience.CircuitBreakerConfig{Name: "db"})
	if !errors.HasCode(err, errors.ErrCodeAlreadyExists) {
		t.Errorf("expected ALREADY_EXISTS, got %v", err)
	}

	// Same name is fine for a different component type.
	if _, err := rt.CreateBulkhead(resilience.BulkheadConfig{Name: "db"}); err != nil {
		t.Errorf("same name across types should be allowed: %v", err)
	}
}

func TestCreate_EmptyNameRejected(t *testing.T) {
	rt := newTestRuntime(t)

	_, err := rt.CreateRetryExecutor(resilience.RetryConfig{})
	if !errors.HasCode(err, errors.ErrCodeInvalidConfig) {
		t.Errorf("expected INVALID_CONFIG, got %v", err)
	}
}

func TestCreateHealthChecker_RequiresProbe(t *testing.T) {
	rt := newTestRuntime(t)

	_, err := rt.CreateHealthChecker(resilience.HealthCheckerConfig{Name: "db"}, nil)
	if !errors.HasCode(err, errors.ErrCodeInvalidConfig) {
		t.Errorf("expected INVALID_CONFIG, got %v", err)
	}
}

func TestCreateHealthChecker_UsesDeclaredConfig(t *testing.T) {
	cfg := config.RuntimeConfig{
		Name: "test",
		HealthCheckers: map[string]resilience.HealthCheckerConfig{
			"db": {Name: "db", CheckInterval: time.Hour, CheckTimeout: time.Second},
		},
	}
	rt, err := New(cfg, nil)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer rt.Shutdown()

	hc, err := rt.CreateHealthChecker(resilience.HealthCheckerConfig{Name: "db"},
		func(ctx context.Context) error { return nil })
	if err != nil {
		t.Fatalf("CreateHealthChecker failed: %v", err)
	}

	// Only the immediate probe should run with a one-hour interval.
	deadline := time.Now().Add(time.Second)
	for hc.Snapshot().Counters.TotalChecks == 0 && time.Now().Before(deadline) {
		time.Sleep(2 * time.Millisecond)
	}
	if got := hc.Snapshot().Counters.TotalChecks; got != 1 {
		t.Errorf("total checks = %d, want 1", got)
	}
}

func TestExecute_UnknownNameNotFound(t *testing.T) {
	rt := newTestRuntime(t)
	op := func(ctx context.Context) error { return nil }

	if err := rt.ExecuteWithCircuitBreaker(context.Background(), "ghost", op, nil); !errors.HasCode(err, errors.ErrCodeNotFound) {
		t.Errorf("breaker: expected NOT_FOUND, got %v", err)
	}
	if err := rt.ExecuteWithRetry(context.Background(), "ghost", op, nil); !errors.HasCode(err, errors.ErrCodeNotFound) {
		t.Errorf("retry: expected NOT_FOUND, got %v", err)
	}
	if err := rt.ExecuteWithBulkhead(context.Background(), "ghost", op); !errors.HasCode(err, errors.ErrCodeNotFound) {
		t.Errorf("bulkhead: expected NOT_FOUND, got %v", err)
	}
	if err := rt.ExecuteWithRateLimiter(context.Background(), "ghost", op); !errors.HasCode(err, errors.ErrCodeNotFound) {
		t.Errorf("rate limiter: expected NOT_FOUND, got %v", err)
	}
}

func TestExecuteProtected_ChainsRegisteredLayers(t *testing.T) {
	rt := newTestRuntime(t)

	if _, err := rt.CreateRetryExecutor(resilience.RetryConfig{
		Name:       "api",
		MaxRetries: 3,
		BaseDelay:  time.Millisecond,
		MaxDelay:   2 * time.Millisecond,
	}); err != nil {
		t.Fatalf("create retry: %v", err)
	}
	if _, err := rt.CreateCircuitBreaker(resilience.CircuitBreakerConfig{Name: "api"}); err != nil {
		t.Fatalf("create breaker: %v", err)
	}
	if _, err := rt.CreateBulkhead(resilience.BulkheadConfig{Name: "api", MaxConcurrent: 2}); err != nil {
		t.Fatalf("create bulkhead: %v", err)
	}

	var calls int
	err := rt.ExecuteProtected(context.Background(), "api", func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return errors.Timeout("api", time.Second) // retryable
		}
		return nil
	})

	if err != nil {
		t.Errorf("expected success after retries, got %v", err)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
}

func TestExecuteProtected_RateLimiterRejectsFirst(t *testing.T) {
	rt := newTestRuntime(t)

	if _, err := rt.CreateRateLimiter(resilience.RateLimiterConfig{Name: "api", Rate: 0.001, Burst: 1}); err != nil {
		t.Fatalf("create limiter: %v", err)
	}
	if _, err := rt.CreateCircuitBreaker(resilience.CircuitBreakerConfig{Name: "api"}); err != nil {
		t.Fatalf("create breaker: %v", err)
	}

	op := func(ctx context.Context) error { return nil }
	if err := rt.ExecuteProtected(context.Background(), "api", op); err != nil {
		t.Fatalf("first call should pass: %v", err)
	}

	var ran bool
	err := rt.ExecuteProtected(context.Background(), "api", func(ctx context.Context) error {
		ran = true
		return nil
	})
	if !errors.HasCode(err, errors.ErrCodeRateLimited) {
		t.Errorf("expected RATE_LIMITED, got %v", err)
	}
	if ran {
		t.Error("rate limited call must not reach the operation")
	}
}

func TestExecuteProtected_NoLayersRunsBare(t *testing.T) {
	rt := newTestRuntime(t)

	var called bool
	err := rt.ExecuteProtected(context.Background(), "nothing", func(ctx context.Context) error {
		called = true
		return nil
	})
	if err != nil || !called {
		t.Errorf("bare run failed: err=%v called=%v", err, called)
	}
}

func TestShutdown_RejectsPendingAndNewWork(t *testing.T) {
	rt, err := New(config.RuntimeConfig{Name: "test"}, nil)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	if _, err := rt.CreateBulkhead(resilience.BulkheadConfig{Name: "db", MaxConcurrent: 1, MaxQueueLength: 1}); err != nil {
		t.Fatalf("create bulkhead: %v", err)
	}

	release := make(chan struct{})
	holding := make(chan struct{})
	go func() {
		_ = rt.ExecuteWithBulkhead(context.Background(), "db", func(ctx context.Context) error {
			close(holding)
			<-release
			return nil
		})
	}()
	<-holding

	queuedErr := make(chan error, 1)
	go func() {
		queuedErr <- rt.ExecuteWithBulkhead(context.Background(), "db", func(ctx context.Context) error {
			return nil
		})
	}()

	// Wait for the second caller to enqueue.
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		s := rt.GetStatus()
		if len(s.Bulkheads) == 1 && s.Bulkheads[0].Queued == 1 {
			break
		}
		time.Sleep(time.Millisecond)
	}

	rt.Shutdown()

	if err := <-queuedErr; !errors.HasCode(err, errors.ErrCodeShuttingDown) {
		t.Errorf("queued caller: expected SHUTTING_DOWN, got %v", err)
	}
	if _, err := rt.CreateCircuitBreaker(resilience.CircuitBreakerConfig{Name: "late"}); !errors.HasCode(err, errors.ErrCodeShuttingDown) {
		t.Errorf("create after shutdown: expected SHUTTING_DOWN, got %v", err)
	}

	close(release)
	rt.Shutdown() // idempotent
}

func TestShutdown_StopsHealthCheckers(t *testing.T) {
	rt, err := New(config.RuntimeConfig{Name: "test"}, nil)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	hc, err := rt.CreateHealthChecker(resilience.HealthCheckerConfig{
		Name:          "db",
		CheckInterval: 5 * time.Millisecond,
		CheckTimeout:  time.Second,
	}, func(ctx context.Context) error { return nil })
	if err != nil {
		t.Fatalf("create checker: %v", err)
	}

	time.Sleep(20 * time.Millisecond)
	rt.Shutdown()

	first := hc.Snapshot().Counters
	time.Sleep(20 * time.Millisecond)
	if second := hc.Snapshot().Counters; first != second {
		t.Errorf("checker still probing after shutdown: %+v -> %+v", first, second)
	}
}

func TestShutdown_ClosesEventStream(t *testing.T) {
	rt, err := New(config.RuntimeConfig{Name: "test"}, nil)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	events := rt.Events()
	rt.Shutdown()

	select {
	case _, ok := <-events:
		if ok {
			return // buffered event is fine; channel will close after drain
		}
	case <-time.After(time.Second):
		t.Fatal("event stream not closed by shutdown")
	}
}

func TestRuntime_ErrorTaxonomyThroughComposition(t *testing.T) {
	rt := newTestRuntime(t)

	if _, err := rt.CreateCircuitBreaker(resilience.CircuitBreakerConfig{
		Name:             "api",
		FailureThreshold: 1,
		CallTimeout:      time.Second,
		OpenDuration:     time.Minute,
	}); err != nil {
		t.Fatalf("create breaker: %v", err)
	}

	boom := stderrors.New("boom")
	err := rt.ExecuteWithCircuitBreaker(context.Background(), "api",
		func(ctx context.Context) error { return boom }, nil)
	if !stderrors.Is(err, boom) {
		t.Errorf("operation error should propagate unwrapped, got %v", err)
	}

	err = rt.ExecuteWithCircuitBreaker(context.Background(), "api",
		func(ctx context.Context) error { return nil }, nil)
	if !errors.HasCode(err, errors.ErrCodeCircuitOpen) {
		t.Errorf("expected CIRCUIT_OPEN, got %v", err)
	}
}
