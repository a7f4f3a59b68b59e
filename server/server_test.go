package server

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/skillsenselab/faultkit/config"
	"github.com/skillsenselab/faultkit/resilience"
	"github.com/skillsenselab/faultkit/runtime"
)

func newTestServer(t *testing.T) (*Server, *runtime.Runtime) {
	t.Helper()
	rt, err := runtime.New(config.RuntimeConfig{Name: "test"}, nil)
	if err != nil {
		t.Fatalf("runtime.New failed: %v", err)
	}
	t.Cleanup(rt.Shutdown)

	srv := New(config.HTTPConfig{Addr: "127.0.0.1:0"}, rt, nil)
	return srv, rt
}

func get(t *testing.T, srv *Server, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	w := httptest.NewRecorder()
	srv.Engine().ServeHTTP(w, req)
	return w
}

func TestHealthz_HealthyRuntime(t *testing.T) {
	srv, _ := newTestServer(t)

	w := get(t, srv, "/healthz")
	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", w.Code)
	}

	var body map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if body["status"] != "healthy" {
		t.Errorf("status field = %v, want healthy", body["status"])
	}
	if body["name"] != "test" {
		t.Errorf("name field = %v, want test", body["name"])
	}
}

func TestHealthz_DegradedStaysServing(t *testing.T) {
	srv, rt := newTestServer(t)

	if _, err := rt.CreateCircuitBreaker(resilience.CircuitBreakerConfig{
		Name:             "db",
		FailureThreshold: 1,
		CallTimeout:      time.Second,
		OpenDuration:     time.Minute,
	}); err != nil {
		t.Fatalf("create breaker: %v", err)
	}
	_ = rt.ExecuteWithCircuitBreaker(context.Background(), "db",
		func(ctx context.Context) error { return stderrors.New("fail") }, nil)

	w := get(t, srv, "/healthz")
	if w.Code != http.StatusOK {
		t.Errorf("degraded should still serve 200, got %d", w.Code)
	}

	var body map[string]any
	_ = json.Unmarshal(w.Body.Bytes(), &body)
	if body["status"] != "degraded" {
		t.Errorf("status field = %v, want degraded", body["status"])
	}
}

func TestHealthz_UnhealthyReturns503(t *testing.T) {
	srv, rt := newTestServer(t)

	for _, name := range []string{"db", "cache"} {
		if _, err := rt.CreateCircuitBreaker(resilience.CircuitBreakerConfig{
			Name:             name,
			FailureThreshold: 1,
			CallTimeout:      time.Second,
			OpenDuration:     time.Minute,
		}); err != nil {
			t.Fatalf("create breaker %s: %v", name, err)
		}
		_ = rt.ExecuteWithCircuitBreaker(context.Background(), name,
			func(ctx context.Context) error { return stderrors.New("fail") }, nil)
	}

	w := get(t, srv, "/healthz")
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", w.Code)
	}
}

func TestStatus_FullSnapshot(t *testing.T) {
	srv, rt := newTestServer(t)

	if _, err := rt.CreateBulkhead(resilience.BulkheadConfig{Name: "db", MaxConcurrent: 3}); err != nil {
		t.Fatalf("create bulkhead: %v", err)
	}
	_ = rt.ExecuteWithBulkhead(context.Background(), "db",
		func(ctx context.Context) error { return nil })

	w := get(t, srv, "/status")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}

	var status runtime.Status
	if err := json.Unmarshal(w.Body.Bytes(), &status); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if len(status.Bulkheads) != 1 || status.Bulkheads[0].Name != "db" {
		t.Errorf("missing bulkhead snapshot: %+v", status.Bulkheads)
	}
	if status.Bulkheads[0].Counters.TotalCalls != 1 {
		t.Errorf("total calls = %d, want 1", status.Bulkheads[0].Counters.TotalCalls)
	}
}

func TestMetrics_ProcessStats(t *testing.T) {
	srv, _ := newTestServer(t)

	w := get(t, srv, "/metrics")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}

	var body map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if _, ok := body["goroutines"]; !ok {
		t.Error("missing goroutines field")
	}
	if _, ok := body["memory"]; !ok {
		t.Error("missing memory field")
	}
}

func TestServer_StartStop(t *testing.T) {
	srv, _ := newTestServer(t)

	if err := srv.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if err := srv.Stop(context.Background()); err != nil {
		t.Errorf("Stop failed: %v", err)
	}
}
