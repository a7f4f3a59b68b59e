package errors

// ErrorCode represents a machine-readable error code.
type ErrorCode string

// Availability errors
const (
	// ErrCodeCircuitOpen indicates a circuit breaker rejected the call.
	ErrCodeCircuitOpen ErrorCode = "CIRCUIT_OPEN"
	// ErrCodeTimeout indicates the operation exceeded its deadline.
	ErrCodeTimeout ErrorCode = "TIMEOUT"
	// ErrCodeRateLimited indicates the caller exceeded the configured rate.
	ErrCodeRateLimited ErrorCode = "RATE_LIMITED"
	// ErrCodeRetriesExhausted indicates all retry attempts were consumed.
	ErrCodeRetriesExhausted ErrorCode = "RETRIES_EXHAUSTED"
	// ErrCodeBulkheadFull indicates the bulkhead queue is at capacity.
	ErrCodeBulkheadFull ErrorCode = "BULKHEAD_FULL"
)

// Registration errors
const (
	// ErrCodeNotFound indicates the named primitive was never registered.
	ErrCodeNotFound ErrorCode = "NOT_FOUND"
	// ErrCodeAlreadyExists indicates the name is already registered.
	ErrCodeAlreadyExists ErrorCode = "ALREADY_EXISTS"
	// ErrCodeInvalidConfig indicates a configuration value is out of range.
	ErrCodeInvalidConfig ErrorCode = "INVALID_CONFIG"
)

// Lifecycle errors
const (
	// ErrCodeShuttingDown indicates the runtime is tearing down.
	ErrCodeShuttingDown ErrorCode = "SHUTTING_DOWN"
	// ErrCodeInternal indicates an unexpected internal error.
	ErrCodeInternal ErrorCode = "INTERNAL_ERROR"
)

var retryableCodes = map[ErrorCode]bool{
	ErrCodeCircuitOpen:      true,
	ErrCodeTimeout:          true,
	ErrCodeRateLimited:      true,
	ErrCodeBulkheadFull:     true,
	ErrCodeRetriesExhausted: false,
	ErrCodeShuttingDown:     false,
	ErrCodeInternal:         false,
}

// IsRetryableCode returns true if the error code indicates a retryable error.
func IsRetryableCode(code ErrorCode) bool {
	return retryableCodes[code]
}
