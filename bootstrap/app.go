package bootstrap

import (
	"context"
	stderrors "errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/kbukum/asyncify/bridge"
	"github.com/kbukum/asyncify/config"
	"github.com/kbukum/asyncify/logger"
	"github.com/kbukum/asyncify/observability"
	"github.com/kbukum/asyncify/version"
)

// managed is what the App needs from a bridge to supervise it.
type managed interface {
	observability.HealthChecker
	Close() error
	Wait()
}

// App owns the process-wide pieces bridges share: the logger, the metric
// instruments, the tracer and the set of bridges to close on shutdown.
//
// Example:
//
//	cfg, _ := config.Load("ingest")
//	app, err := bootstrap.NewApp(ctx, cfg)
//	b := bootstrap.NewBridge(app, bridge.FromChannel(events), bridge.WithName("events"))
//	app.RunTask(ctx, func(ctx context.Context) error {
//	    return bridge.ForEach(ctx, b, handle)
//	})
type App struct {
	Name    string
	Version string
	Cfg     *config.Config
	Logger  *logger.Logger
	Metrics *observability.BridgeMetrics

	tracer          trace.Tracer
	gracefulTimeout time.Duration

	mu      sync.Mutex
	bridges []managed
	onStop  []Hook
}

// NewApp validates cfg, initializes logging and, when observability is
// enabled, the OTLP tracer and meter providers. Providers it creates are shut
// down by Shutdown.
func NewApp(ctx context.Context, cfg *config.Config, opts ...Option) (*App, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	o := resolveOptions(opts)
	app := &App{
		Name:            cfg.Name,
		Version:         version.Get().String(),
		Cfg:             cfg,
		gracefulTimeout: 15 * time.Second,
	}
	if o.gracefulTimeout != nil {
		app.gracefulTimeout = *o.gracefulTimeout
	}

	if o.logger != nil {
		app.Logger = o.logger
	} else {
		logger.Init(&cfg.Logging)
		app.Logger = logger.GetGlobalLogger()
	}

	tp, err := app.tracerProvider(ctx, o.tracerProvider)
	if err != nil {
		return nil, err
	}
	app.tracer = tp.Tracer(observability.TracerName)

	mp, err := app.meterProvider(ctx, o.meterProvider)
	if err != nil {
		_ = app.runStopHooks(ctx)
		return nil, err
	}
	app.Metrics, err = observability.NewBridgeMetrics(mp.Meter(observability.MeterName))
	if err != nil {
		_ = app.runStopHooks(ctx)
		return nil, err
	}

	return app, nil
}

func (a *App) tracerProvider(ctx context.Context, given trace.TracerProvider) (trace.TracerProvider, error) {
	if given != nil {
		return given, nil
	}
	obs := a.Cfg.Observability
	if !obs.Enabled {
		return otel.GetTracerProvider(), nil
	}

	tc := observability.DefaultTracerConfig(a.Name)
	tc.ServiceVersion = a.Version
	tc.Environment = obs.Environment
	tc.Endpoint = obs.Endpoint
	tc.Insecure = obs.Insecure
	tc.SampleRate = obs.SampleRate
	tp, err := observability.InitTracer(ctx, &tc)
	if err != nil {
		return nil, fmt.Errorf("tracer init: %w", err)
	}
	a.OnStop(tp.Shutdown)
	return tp, nil
}

func (a *App) meterProvider(ctx context.Context, given metric.MeterProvider) (metric.MeterProvider, error) {
	if given != nil {
		return given, nil
	}
	obs := a.Cfg.Observability
	if !obs.Enabled {
		return otel.GetMeterProvider(), nil
	}

	mc := observability.DefaultMeterConfig(a.Name)
	mc.ServiceVersion = a.Version
	mc.Environment = obs.Environment
	mc.Endpoint = obs.Endpoint
	mc.Insecure = obs.Insecure
	mc.Interval = obs.Interval
	mp, err := observability.InitMeter(ctx, &mc)
	if err != nil {
		return nil, fmt.Errorf("meter init: %w", err)
	}
	a.OnStop(mp.Shutdown)
	return mp, nil
}

// BridgeOptions returns the options that attach a bridge to this App's
// configuration, logger and telemetry. extra is applied last.
func (a *App) BridgeOptions(extra ...bridge.Option) []bridge.Option {
	opts := bridge.FromConfig(a.Cfg.Bridge)
	opts = append(opts,
		bridge.WithLogger(a.Logger.WithComponent("bridge")),
		bridge.WithMetrics(a.Metrics),
		bridge.WithTracer(a.tracer),
	)
	return append(opts, extra...)
}

// NewBridge builds a bridge with the App's options and tracks it for health
// reporting and shutdown.
func NewBridge[T, R any](a *App, listener bridge.Listener[T, R], opts ...bridge.Option) *bridge.Bridge[T, R] {
	b := bridge.New(listener, a.BridgeOptions(opts...)...)
	a.mu.Lock()
	a.bridges = append(a.bridges, b)
	a.mu.Unlock()
	return b
}

// Health reports every tracked bridge.
func (a *App) Health(ctx context.Context) *observability.HealthReport {
	a.mu.Lock()
	checkers := make([]observability.HealthChecker, len(a.bridges))
	for i, b := range a.bridges {
		checkers[i] = b
	}
	a.mu.Unlock()
	return observability.NewHealthReport(a.Name).Collect(ctx, checkers...)
}

// RunTask runs task and shuts the App down when it returns. SIGINT and
// SIGTERM cancel the task's context.
func (a *App) RunTask(ctx context.Context, task func(ctx context.Context) error) error {
	taskCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	a.Logger.Info("Starting application", logger.Fields("name", a.Name, "version", a.Version))
	taskErr := task(taskCtx)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.gracefulTimeout)
	defer cancel()
	if err := a.Shutdown(shutdownCtx); err != nil && taskErr == nil {
		return err
	}
	return taskErr
}

// Shutdown closes every tracked bridge, waits for their background work
// until ctx ends, then runs the OnStop hooks in reverse registration order.
func (a *App) Shutdown(ctx context.Context) error {
	a.mu.Lock()
	bridges := a.bridges
	a.bridges = nil
	a.mu.Unlock()

	a.Logger.Info("Shutting down application", logger.Fields("bridges", len(bridges)))

	// Close errors are registration failures already routed at construction.
	for _, b := range bridges {
		_ = b.Close()
	}

	var shutdownErr error
	if err := waitAll(ctx, bridges); err != nil {
		a.Logger.Warn("Bridges still busy at shutdown", logger.Fields(logger.FieldError, err.Error()))
		shutdownErr = err
	}
	if err := a.runStopHooks(ctx); err != nil {
		a.Logger.Error("OnStop hook error", logger.Fields(logger.FieldError, err.Error()))
		shutdownErr = stderrors.Join(shutdownErr, err)
	}

	a.Logger.Info("Application shutdown complete")
	return shutdownErr
}

// waitAll returns once every bridge's goroutines have exited or ctx ends. A
// bridge whose listener never settles keeps its watcher alive, so the wait is
// abandoned rather than joined when ctx ends first.
func waitAll(ctx context.Context, bridges []managed) error {
	done := make(chan struct{})
	go func() {
		defer close(done)
		for _, b := range bridges {
			b.Wait()
		}
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for bridges: %w", ctx.Err())
	}
}
