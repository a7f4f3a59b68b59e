// Package runtime is the fault tolerance facade: it owns named registries of
// resilience primitives, executes operations through them, aggregates system
// health, and periodically emits metrics snapshots.
//
// A Runtime is an explicit handle, never a process-wide singleton:
//
//	rt, err := runtime.New(cfg, log)
//	defer rt.Shutdown()
//
//	_, err = rt.CreateCircuitBreaker(resilience.DefaultCircuitBreakerConfig("db"))
//	err = rt.ExecuteWithCircuitBreaker(ctx, "db", queryOp, nil)
//
//	status := rt.GetStatus()
package runtime
