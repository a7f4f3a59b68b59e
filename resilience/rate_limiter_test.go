package resilience

import (
	"context"
	"testing"
	"time"

	"github.com/skillsenselab/faultkit/errors"
)

func TestRateLimiter_AllowsUpToBurst(t *testing.T) {
	rl := NewRateLimiter(RateLimiterConfig{Name: "test", Rate: 1.0, Burst: 5})

	for i := 0; i < 5; i++ {
		if !rl.Allow() {
			t.Fatalf("call %d within burst should be allowed", i)
		}
	}
	if rl.Allow() {
		t.Error("call beyond burst should be limited")
	}

	snap := rl.Snapshot()
	if snap.Counters.Allowed != 5 || snap.Counters.Limited != 1 {
		t.Errorf("unexpected counters: %+v", snap.Counters)
	}
}

func TestRateLimiter_RefillsOverTime(t *testing.T) {
	rl := NewRateLimiter(RateLimiterConfig{Name: "test", Rate: 100.0, Burst: 1})

	if !rl.Allow() {
		t.Fatal("first call should be allowed")
	}
	if rl.Allow() {
		t.Fatal("bucket should be empty")
	}

	// At 100/s a token is back within ~10ms.
	time.Sleep(30 * time.Millisecond)
	if !rl.Allow() {
		t.Error("bucket should have refilled")
	}
}

func TestRateLimiter_ExecuteFailsFast(t *testing.T) {
	rl := NewRateLimiter(RateLimiterConfig{Name: "test", Rate: 0.001, Burst: 1})

	if err := rl.Execute(context.Background(), func(ctx context.Context) error { return nil }); err != nil {
		t.Fatalf("first call should pass, got %v", err)
	}

	start := time.Now()
	err := rl.Execute(context.Background(), func(ctx context.Context) error {
		t.Error("limited call must never execute")
		return nil
	})
	if !errors.HasCode(err, errors.ErrCodeRateLimited) {
		t.Errorf("expected RATE_LIMITED, got %v", err)
	}
	if time.Since(start) > 50*time.Millisecond {
		t.Error("rejection should be immediate, not blocking")
	}
}

func TestRateLimiter_BurstNeverExceeded(t *testing.T) {
	rl := NewRateLimiter(RateLimiterConfig{Name: "test", Rate: 1000.0, Burst: 3})

	time.Sleep(20 * time.Millisecond)

	if got := rl.Snapshot().Tokens; got > 3 {
		t.Errorf("tokens = %f, must not exceed burst of 3", got)
	}
}
