package observability

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"github.com/kbukum/asyncify/logger"
	"github.com/kbukum/asyncify/version"
)

// MeterName is the instrumentation name bridges use by default.
const MeterName = "github.com/kbukum/asyncify/bridge"

// MeterConfig configures the OpenTelemetry meter provider.
type MeterConfig struct {
	// ServiceName is the name of the service.
	ServiceName string
	// ServiceVersion is the version of the service.
	ServiceVersion string
	// Environment is the deployment environment (dev, staging, prod).
	Environment string
	// Endpoint is the OTLP HTTP endpoint host:port (e.g., "localhost:4318").
	Endpoint string
	// Insecure allows insecure connections (for development).
	Insecure bool
	// Interval is the metric export interval.
	Interval time.Duration
}

// DefaultMeterConfig returns sensible defaults for development.
func DefaultMeterConfig(serviceName string) MeterConfig {
	return MeterConfig{
		ServiceName:    serviceName,
		ServiceVersion: version.Get().String(),
		Environment:    "development",
		Endpoint:       "localhost:4318",
		Insecure:       true,
		Interval:       15 * time.Second,
	}
}

// InitMeter initializes the OpenTelemetry meter provider.
// Returns a MeterProvider that should be shut down on application exit.
func InitMeter(ctx context.Context, config *MeterConfig) (*sdkmetric.MeterProvider, error) {
	opts := []otlpmetrichttp.Option{
		otlpmetrichttp.WithEndpoint(config.Endpoint),
	}
	if config.Insecure {
		opts = append(opts, otlpmetrichttp.WithInsecure())
	}

	exporter, err := otlpmetrichttp.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating metric exporter: %w", err)
	}

	res, err := newResource(config.ServiceName, config.ServiceVersion, config.Environment)
	if err != nil {
		return nil, fmt.Errorf("creating resource: %w", err)
	}

	readerOpts := []sdkmetric.PeriodicReaderOption{}
	if config.Interval > 0 {
		readerOpts = append(readerOpts, sdkmetric.WithInterval(config.Interval))
	}

	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter, readerOpts...)),
		sdkmetric.WithResource(res),
	)

	otel.SetMeterProvider(mp)

	logger.Info("meter initialized", logger.Fields(
		"service", config.ServiceName,
		"endpoint", config.Endpoint,
		"interval", config.Interval.String(),
	))

	return mp, nil
}

// Meter returns a named meter from the global provider.
func Meter(name string) metric.Meter {
	return otel.Meter(name)
}

// Emit outcomes recorded on bridge.emitted.
const (
	OutcomeDelivered = "delivered"
	OutcomeBuffered  = "buffered"
	OutcomeDropped   = "dropped"
)

// BridgeMetrics holds the instruments shared by every bridge of a process.
// A nil *BridgeMetrics records nothing.
type BridgeMetrics struct {
	emitted  metric.Int64Counter
	pulls    metric.Int64Counter
	buffered metric.Int64UpDownCounter
	pending  metric.Int64UpDownCounter
	closed   metric.Int64Counter
	errors   metric.Int64Counter
}

// NewBridgeMetrics creates bridge instruments on the given meter.
func NewBridgeMetrics(meter metric.Meter) (*BridgeMetrics, error) {
	emitted, err := meter.Int64Counter("bridge.emitted",
		metric.WithDescription("Values emitted by listeners, by outcome"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating bridge.emitted counter: %w", err)
	}

	pulls, err := meter.Int64Counter("bridge.pulls",
		metric.WithDescription("Pulls issued by consumers"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating bridge.pulls counter: %w", err)
	}

	buffered, err := meter.Int64UpDownCounter("bridge.buffered",
		metric.WithDescription("Values held while no pull is waiting"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating bridge.buffered gauge: %w", err)
	}

	pending, err := meter.Int64UpDownCounter("bridge.pending",
		metric.WithDescription("Pulls waiting for a value"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating bridge.pending gauge: %w", err)
	}

	closed, err := meter.Int64Counter("bridge.closed",
		metric.WithDescription("Bridges terminated"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating bridge.closed counter: %w", err)
	}

	errorTotal, err := meter.Int64Counter("bridge.errors",
		metric.WithDescription("Failures routed to error handlers, by source"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating bridge.errors counter: %w", err)
	}

	return &BridgeMetrics{
		emitted:  emitted,
		pulls:    pulls,
		buffered: buffered,
		pending:  pending,
		closed:   closed,
		errors:   errorTotal,
	}, nil
}

// RecordEmit records one emitted value and what happened to it.
func (m *BridgeMetrics) RecordEmit(ctx context.Context, bridge, outcome string) {
	if m == nil {
		return
	}
	m.emitted.Add(ctx, 1, metric.WithAttributes(
		attribute.String(AttrBridgeName, bridge),
		attribute.String(AttrOutcome, outcome),
	))
	if outcome == OutcomeBuffered {
		m.buffered.Add(ctx, 1, metric.WithAttributes(attribute.String(AttrBridgeName, bridge)))
	}
}

// RecordPull records one pull; fromBuffer is true when it drained a buffered value
// and waiting is true when it had to queue.
func (m *BridgeMetrics) RecordPull(ctx context.Context, bridge string, fromBuffer, waiting bool) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String(AttrBridgeName, bridge))
	m.pulls.Add(ctx, 1, attrs)
	if fromBuffer {
		m.buffered.Add(ctx, -1, attrs)
	}
	if waiting {
		m.pending.Add(ctx, 1, attrs)
	}
}

// RecordResolved records n waiting pulls leaving the queue.
func (m *BridgeMetrics) RecordResolved(ctx context.Context, bridge string, n int) {
	if m == nil || n == 0 {
		return
	}
	m.pending.Add(ctx, -int64(n), metric.WithAttributes(attribute.String(AttrBridgeName, bridge)))
}

// RecordClose records termination; discarded is the number of buffered values cleared.
func (m *BridgeMetrics) RecordClose(ctx context.Context, bridge string, discarded int) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String(AttrBridgeName, bridge))
	m.closed.Add(ctx, 1, attrs)
	if discarded > 0 {
		m.buffered.Add(ctx, -int64(discarded), attrs)
	}
}

// RecordError records one failure routed to an error handler.
func (m *BridgeMetrics) RecordError(ctx context.Context, bridge, source string) {
	if m == nil {
		return
	}
	m.errors.Add(ctx, 1, metric.WithAttributes(
		attribute.String(AttrBridgeName, bridge),
		attribute.String(AttrSource, source),
	))
}
