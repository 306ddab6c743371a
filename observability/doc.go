// Package observability provides OpenTelemetry metrics and tracing for bridges.
//
// Metrics:
//
//	mp, err := observability.InitMeter(ctx, &cfg)
//	defer mp.Shutdown(ctx)
//
//	metrics, err := observability.NewBridgeMetrics(observability.Meter(observability.MeterName))
//	b := bridge.New(listener, bridge.WithMetrics[int, struct{}](metrics))
//
// Tracing:
//
//	tp, err := observability.InitTracer(ctx, observability.DefaultTracerConfig("ingest"))
//	defer tp.Shutdown(ctx)
//
// Bridges open bridge.close and bridge.fault spans on the global tracer unless
// given one explicitly.
//
// Health:
//
//	report := observability.NewHealthReport("ingest").Collect(ctx, b1, b2)
package observability
