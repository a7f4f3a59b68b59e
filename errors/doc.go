// Package errors defines the error taxonomy of the fault tolerance runtime.
//
// Every failure surfaced by the runtime is an *AppError carrying a
// machine-readable code, a retryable flag, structured details, and the
// underlying cause. Callers classify failures by code:
//
//	err := rt.ExecuteWithCircuitBreaker(ctx, "payments", op, nil)
//	if errors.HasCode(err, errors.ErrCodeCircuitOpen) {
//	    // dependency is cooling down, serve degraded response
//	}
//
// AppError implements Unwrap, so stdlib errors.Is/As work across the chain.
package errors
