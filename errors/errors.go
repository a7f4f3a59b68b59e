// Package errors provides unified error handling for the fault tolerance
// runtime. It implements structured error types with machine-readable codes,
// retryable detection, and cause chaining compatible with errors.Is/As.
package errors

import (
	"errors"
	"fmt"
	"time"
)

// AppError is the unified error type returned by every runtime operation.
type AppError struct {
	// Code is a machine-readable error code.
	Code ErrorCode `json:"code"`
	// Message is a human-readable error message.
	Message string `json:"message"`
	// Retryable indicates if the operation can be retried.
	Retryable bool `json:"retryable"`
	// Details contains additional context for the error.
	Details map[string]any `json:"details,omitempty"`
	// Cause is the underlying error that caused this error.
	Cause error `json:"-"`
}

// Error returns the string representation of the error.
func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (cause: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause of the error.
func (e *AppError) Unwrap() error { return e.Cause }

// WithCause sets the underlying cause of the error and returns the receiver.
func (e *AppError) WithCause(cause error) *AppError {
	e.Cause = cause
	return e
}

// WithDetail sets a single detail key-value pair and returns the receiver.
func (e *AppError) WithDetail(key string, value any) *AppError {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

// New creates a new AppError with automatic retryable detection.
func New(code ErrorCode, message string) *AppError {
	return &AppError{
		Code:      code,
		Message:   message,
		Retryable: IsRetryableCode(code),
	}
}

// AsAppError extracts an AppError from an error chain.
func AsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// HasCode reports whether err carries the given error code.
func HasCode(err error, code ErrorCode) bool {
	if appErr, ok := AsAppError(err); ok {
		return appErr.Code == code
	}
	return false
}

// IsRetryable reports whether err is marked retryable. Unknown error types
// default to retryable so transient dependency failures are not dropped.
func IsRetryable(err error) bool {
	if appErr, ok := AsAppError(err); ok {
		return appErr.Retryable
	}
	return true
}

// --- Common Error Constructors ---

// CircuitOpen creates a new AppError for a call rejected by an open breaker.
func CircuitOpen(name string) *AppError {
	return &AppError{
		Code: ErrCodeCircuitOpen, Message: fmt.Sprintf("circuit breaker %q is open", name),
		Retryable: true,
		Details:   map[string]any{"breaker": name},
	}
}

// Timeout creates a new AppError for an operation that exceeded its deadline.
func Timeout(operation string, limit time.Duration) *AppError {
	return &AppError{
		Code: ErrCodeTimeout, Message: fmt.Sprintf("operation %q exceeded its %s deadline", operation, limit),
		Retryable: true,
		Details:   map[string]any{"operation": operation, "timeout": limit.String()},
	}
}

// RetriesExhausted creates a new AppError wrapping the last failure after all
// retry attempts were consumed.
func RetriesExhausted(name string, attempts int, cause error) *AppError {
	return &AppError{
		Code: ErrCodeRetriesExhausted, Message: fmt.Sprintf("retries exhausted for %q after %d attempts", name, attempts),
		Retryable: false, Cause: cause,
		Details: map[string]any{"retrier": name, "attempts": attempts},
	}
}

// BulkheadFull creates a new AppError for a call rejected at queue capacity.
func BulkheadFull(name string) *AppError {
	return &AppError{
		Code: ErrCodeBulkheadFull, Message: fmt.Sprintf("bulkhead %q is at capacity", name),
		Retryable: true,
		Details:   map[string]any{"bulkhead": name},
	}
}

// RateLimited creates a new AppError for a call rejected by a rate limiter.
func RateLimited(name string) *AppError {
	return &AppError{
		Code: ErrCodeRateLimited, Message: fmt.Sprintf("rate limit exceeded for %q", name),
		Retryable: true,
		Details:   map[string]any{"limiter": name},
	}
}

// NotFound creates a new AppError for an unregistered primitive name.
func NotFound(kind, name string) *AppError {
	return &AppError{
		Code: ErrCodeNotFound, Message: fmt.Sprintf("no %s registered under %q", kind, name),
		Retryable: false,
		Details:   map[string]any{"kind": kind, "name": name},
	}
}

// DuplicateName creates a new AppError for a name that is already registered.
func DuplicateName(kind, name string) *AppError {
	return &AppError{
		Code: ErrCodeAlreadyExists, Message: fmt.Sprintf("%s %q is already registered", kind, name),
		Retryable: false,
		Details:   map[string]any{"kind": kind, "name": name},
	}
}

// InvalidConfig creates a new AppError for a configuration value out of range.
func InvalidConfig(field, reason string) *AppError {
	return &AppError{
		Code: ErrCodeInvalidConfig, Message: fmt.Sprintf("invalid config: %s %s", field, reason),
		Retryable: false,
		Details:   map[string]any{"field": field},
	}
}

// Validation creates a new AppError for validation failures.
func Validation(message string) *AppError {
	return &AppError{
		Code: ErrCodeInvalidConfig, Message: message,
		Retryable: false,
	}
}

// ShuttingDown creates a new AppError for calls pending during teardown.
func ShuttingDown() *AppError {
	return &AppError{
		Code: ErrCodeShuttingDown, Message: "runtime is shutting down",
		Retryable: false,
	}
}

// Internal creates a new AppError for an unexpected internal error.
func Internal(cause error) *AppError {
	return &AppError{
		Code: ErrCodeInternal, Message: "an unexpected internal error occurred",
		Retryable: false, Cause: cause,
	}
}
