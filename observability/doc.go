// Package observability provides OpenTelemetry tracing and metrics export
// for the fault tolerance runtime.
//
// Tracing:
//
//	tp, err := observability.InitTracer(ctx, observability.DefaultTracerConfig("payments"))
//	defer tp.Shutdown(ctx)
//
// Metrics:
//
//	mp, err := observability.InitMeter(ctx, observability.DefaultMeterConfig("payments"))
//	defer mp.Shutdown(ctx)
//
//	rm, err := observability.NewResilienceMetrics(observability.Meter("payments"))
//	rm.RecordBreaker(ctx, breaker.Snapshot())
package observability
