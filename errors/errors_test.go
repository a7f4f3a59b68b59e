package errors

import (
	stderrors "errors"
	"testing"
	"time"
)

func TestAppError_ErrorString(t *testing.T) {
	err := CircuitOpen("payments")
	want := `CIRCUIT_OPEN: circuit breaker "payments" is open`
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
}

func TestAppError_ErrorStringWithCause(t *testing.T) {
	cause := stderrors.New("connection refused")
	err := RetriesExhausted("search", 4, cause)

	if err.Unwrap() != cause {
		t.Errorf("Unwrap() = %v, want %v", err.Unwrap(), cause)
	}
	if !stderrors.Is(err, cause) {
		t.Error("errors.Is should match the wrapped cause")
	}
}

func TestHasCode(t *testing.T) {
	err := BulkheadFull("db")

	if !HasCode(err, ErrCodeBulkheadFull) {
		t.Error("HasCode should match BULKHEAD_FULL")
	}
	if HasCode(err, ErrCodeTimeout) {
		t.Error("HasCode should not match TIMEOUT")
	}
	if HasCode(stderrors.New("plain"), ErrCodeTimeout) {
		t.Error("HasCode should be false for non-AppError")
	}
}

func TestHasCode_WrappedChain(t *testing.T) {
	inner := Timeout("probe", time.Second)
	outer := RetriesExhausted("probe", 3, inner)

	if !HasCode(outer, ErrCodeRetriesExhausted) {
		t.Error("outer code should be RETRIES_EXHAUSTED")
	}
	// errors.As finds the outermost AppError, not the cause.
	appErr, ok := AsAppError(outer)
	if !ok || appErr.Code != ErrCodeRetriesExhausted {
		t.Errorf("AsAppError returned %v", appErr)
	}
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"circuit open", CircuitOpen("x"), true},
		{"timeout", Timeout("op", time.Second), true},
		{"bulkhead full", BulkheadFull("x"), true},
		{"rate limited", RateLimited("x"), true},
		{"retries exhausted", RetriesExhausted("x", 3, nil), false},
		{"duplicate name", DuplicateName("breaker", "x"), false},
		{"not found", NotFound("breaker", "x"), false},
		{"shutting down", ShuttingDown(), false},
		{"unknown error defaults retryable", stderrors.New("whatever"), true},
	}

	for _, tt := range tests {
		if got := IsRetryable(tt.err); got != tt.want {
			t.Errorf("%s: IsRetryable = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestWithDetail(t *testing.T) {
	err := New(ErrCodeInternal, "boom").WithDetail("op", "snapshot")
	if err.Details["op"] != "snapshot" {
		t.Errorf("Details[op] = %v, want snapshot", err.Details["op"])
	}
	if err.Retryable {
		t.Error("INTERNAL_ERROR should not be retryable")
	}
}

func TestConstructorDetails(t *testing.T) {
	err := NotFound("bulkhead", "db")
	if err.Details["kind"] != "bulkhead" || err.Details["name"] != "db" {
		t.Errorf("unexpected details: %v", err.Details)
	}
}
