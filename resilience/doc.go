// Package resilience provides the fault tolerance primitives of the runtime:
// circuit breaker, retry executor, bulkhead, health checker, and rate limiter.
//
// Each primitive wraps a single named operation and owns its counters behind
// a mutex; nothing outside a primitive mutates its state. State transitions
// (breaker open/close, health degraded/recovered) are published as immutable
// Event records onto a bounded Publisher channel instead of inline callbacks,
// so slow consumers never stall the request path.
//
// Primitives compose by nesting:
//
//	bh.Execute(ctx, func(ctx context.Context) error {
//	    return cb.Execute(ctx, func(ctx context.Context) error {
//	        return re.Execute(ctx, op, nil)
//	    }, nil)
//	})
//
// The runtime package owns registries of these primitives by name and is the
// intended entry point for most callers.
package resilience
