package bridge

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/trace"

	"github.com/kbukum/asyncify/config"
	"github.com/kbukum/asyncify/logger"
	"github.com/kbukum/asyncify/observability"
)

// ErrorPolicy selects the error handler used when none is configured.
type ErrorPolicy string

const (
	// PolicyPanic logs the failure and panics with an UNHANDLED error. Failures
	// on the caller's goroutine (New, Close hooks, Fault) panic at once.
	// Background failures (a failed completion, an async close hook) are
	// logged when they happen and re-panic from Wait.
	PolicyPanic ErrorPolicy = config.ErrorPolicyPanic
	// PolicyLog logs the failure and carries on.
	PolicyLog ErrorPolicy = config.ErrorPolicyLog
)

// Option configures a Bridge.
type Option func(*settings)

type settings struct {
	name         string
	buffering    bool
	policy       ErrorPolicy
	onError      func(error)
	onClose      func(result any, ok bool) error
	onCloseAsync func(ctx context.Context, result any, ok bool) error
	log          *logger.Logger
	metrics      *observability.BridgeMetrics
	tracer       trace.Tracer
}

func defaultSettings() settings {
	return settings{
		name:      "bridge",
		buffering: true,
		policy:    PolicyPanic,
	}
}

// WithName labels the bridge in logs, metrics and spans.
func WithName(name string) Option {
	return func(s *settings) {
		if name != "" {
			s.name = name
		}
	}
}

// WithBuffering controls whether values emitted while no pull is waiting are
// kept. With buffering off such values are discarded.
func WithBuffering(enabled bool) Option {
	return func(s *settings) { s.buffering = enabled }
}

// WithErrorPolicy picks the default error handler. Ignored when WithOnError is set.
func WithErrorPolicy(policy ErrorPolicy) Option {
	return func(s *settings) { s.policy = policy }
}

// WithOnError sets the handler that receives every routed failure: listener
// registration and completion failures, close hook failures and faults.
func WithOnError(fn func(error)) Option {
	return func(s *settings) { s.onError = fn }
}

// WithOnClose sets a hook run once, inline, when the bridge terminates. It
// receives the listener's final result and whether one had arrived. A
// returned error or panic goes to the error handler; Close still succeeds.
func WithOnClose[R any](fn func(result R, ok bool) error) Option {
	return func(s *settings) {
		s.onClose = func(v any, ok bool) error {
			r, err := castResult[R](v, ok)
			if err != nil {
				return err
			}
			return fn(r, ok)
		}
	}
}

// WithOnCloseAsync is WithOnClose for hooks that do slow work. The hook runs
// on its own goroutine, Close does not wait for it, and its failure reaches
// the error handler whenever it happens. Use Wait to join it.
func WithOnCloseAsync[R any](fn func(ctx context.Context, result R, ok bool) error) Option {
	return func(s *settings) {
		s.onCloseAsync = func(ctx context.Context, v any, ok bool) error {
			r, err := castResult[R](v, ok)
			if err != nil {
				return err
			}
			return fn(ctx, r, ok)
		}
	}
}

// WithLogger sets the logger. Defaults to the "bridge" logger from the registry.
func WithLogger(l *logger.Logger) Option {
	return func(s *settings) { s.log = l }
}

// WithMetrics records bridge activity on the given instruments.
func WithMetrics(m *observability.BridgeMetrics) Option {
	return func(s *settings) { s.metrics = m }
}

// WithTracer sets the tracer for close and fault spans. Defaults to the
// global tracer provider.
func WithTracer(t trace.Tracer) Option {
	return func(s *settings) { s.tracer = t }
}

// FromConfig maps loaded configuration onto options.
func FromConfig(cfg config.BridgeConfig) []Option {
	opts := []Option{WithBuffering(cfg.Buffering)}
	if cfg.ErrorPolicy != "" {
		opts = append(opts, WithErrorPolicy(ErrorPolicy(cfg.ErrorPolicy)))
	}
	return opts
}

func castResult[R any](v any, ok bool) (R, error) {
	var zero R
	if !ok || v == nil {
		return zero, nil
	}
	r, isR := v.(R)
	if !isR {
		return zero, fmt.Errorf("close hook expects %T, listener produced %T", zero, v)
	}
	return r, nil
}
