package bridge

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	"github.com/google/uuid"
	"github.com/sourcegraph/conc"
	"github.com/sourcegraph/conc/panics"
	"go.opentelemetry.io/otel/attribute"

	"github.com/kbukum/asyncify/errors"
	"github.com/kbukum/asyncify/logger"
	"github.com/kbukum/asyncify/observability"
)

// Failure sources reported to metrics and logs.
const (
	sourceRegistration = "registration"
	sourceProducer     = "producer"
	sourceCloseHook    = "close_hook"
	sourceFault        = "fault"
)

// Iterator provides pull-based sequential access to a stream of values.
type Iterator[T any] interface {
	// Next returns the next value. Returns (zero, false, nil) when exhausted.
	Next(ctx context.Context) (T, bool, error)
	// Close releases any resources held by the iterator.
	Close() error
}

var _ Iterator[int] = (*Bridge[int, struct{}])(nil)

// Result is the resolution of one pull.
type Result[T any] struct {
	Value T
	Done  bool
	// Err is set only when the bridge failed to register its listener.
	Err error
}

// Stats is a snapshot of a bridge's queues and lifecycle.
type Stats struct {
	Buffered int
	Pending  int
	Closed   bool
	Settled  bool
}

// Bridge turns a callback listener into a pull sequence. Values the listener
// emits are handed to waiting pulls in the order the pulls were made, or
// held in emission order until a pull arrives. At most one of those two
// queues is non-empty at any time.
type Bridge[T, R any] struct {
	id  string
	set settings
	log *logger.Logger

	// failure is set once in New and never changes.
	failure error

	mu      sync.Mutex
	pulls   []chan Result[T]
	values  []T
	closed  bool
	outcome R
	settled bool
	prodErr error

	wg conc.WaitGroup
}

// New starts listener immediately and returns the bridge over it.
//
// If listener returns an error or panics, the bridge is permanently failed:
// the error handler sees a REGISTRATION_FAILED error once, and Next, Pull and
// Close report that error from then on.
func New[T, R any](listener Listener[T, R], opts ...Option) *Bridge[T, R] {
	set := defaultSettings()
	for _, opt := range opts {
		opt(&set)
	}

	b := &Bridge[T, R]{
		id:  uuid.NewString(),
		set: set,
	}
	base := set.log
	if base == nil {
		base = logger.Get("bridge")
	}
	b.log = base.WithFields(logger.Fields(
		logger.FieldBridgeID, b.id,
		logger.FieldBridge, set.name,
	))

	var (
		completion Completion[R]
		err        error
	)
	var pc panics.Catcher
	pc.Try(func() { completion, err = listener(b.emit) })
	if r := pc.Recovered(); r != nil {
		err = r.AsError()
	}

	if err != nil {
		b.mu.Lock()
		b.closed = true
		discarded := len(b.values)
		b.values = nil
		b.mu.Unlock()
		ctx := context.Background()
		b.set.metrics.RecordClose(ctx, set.name, discarded)
		b.failure = errors.RegistrationFailed(set.name, err).WithDetail("bridge_id", b.id)
		b.routeError(ctx, sourceRegistration, b.failure)
		return b
	}

	if completion != nil {
		b.wg.Go(func() { b.await(completion) })
	}
	b.log.Debug("bridge started", logger.Fields("buffering", set.buffering))
	return b
}

// ID returns the bridge's unique identifier.
func (b *Bridge[T, R]) ID() string { return b.id }

// Name returns the name set with WithName.
func (b *Bridge[T, R]) Name() string { return b.set.name }

// Err returns the registration failure, or nil for a working bridge.
func (b *Bridge[T, R]) Err() error { return b.failure }

func (b *Bridge[T, R]) emit(v T) {
	ctx := context.Background()

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		b.set.metrics.RecordEmit(ctx, b.set.name, observability.OutcomeDropped)
		return
	}
	if len(b.pulls) > 0 {
		ch := b.pulls[0]
		b.pulls[0] = nil
		b.pulls = b.pulls[1:]
		ch <- Result[T]{Value: v}
		b.set.metrics.RecordResolved(ctx, b.set.name, 1)
		b.mu.Unlock()
		b.set.metrics.RecordEmit(ctx, b.set.name, observability.OutcomeDelivered)
		return
	}
	if b.set.buffering {
		b.values = append(b.values, v)
		b.set.metrics.RecordEmit(ctx, b.set.name, observability.OutcomeBuffered)
		b.mu.Unlock()
		return
	}
	b.mu.Unlock()
	b.set.metrics.RecordEmit(ctx, b.set.name, observability.OutcomeDropped)
	b.log.Debug("value dropped, no pull waiting")
}

// Pull requests the next value. The returned channel receives exactly one
// Result: a buffered value at once, the next emitted value once it arrives,
// or Done when the bridge terminates. Abandoning the channel of a waiting
// pull loses the value later sent to it; Next withdraws cleanly instead.
func (b *Bridge[T, R]) Pull() <-chan Result[T] {
	ch := make(chan Result[T], 1)
	if b.failure != nil {
		ch <- Result[T]{Done: true, Err: b.failure}
		return ch
	}

	ctx := context.Background()
	b.mu.Lock()
	// Gauge updates happen under the lock so bridge.pending and
	// bridge.buffered never go negative.
	if b.closed {
		b.set.metrics.RecordPull(ctx, b.set.name, false, false)
		b.mu.Unlock()
		ch <- Result[T]{Done: true}
		return ch
	}
	if len(b.values) > 0 {
		v := b.values[0]
		var zero T
		b.values[0] = zero
		b.values = b.values[1:]
		b.set.metrics.RecordPull(ctx, b.set.name, true, false)
		b.mu.Unlock()
		ch <- Result[T]{Value: v}
		return ch
	}
	b.pulls = append(b.pulls, ch)
	b.set.metrics.RecordPull(ctx, b.set.name, false, true)
	b.mu.Unlock()
	return ch
}

// Next returns the next value, blocking until one is emitted or the bridge
// terminates. It returns (zero, false, nil) once the bridge is closed.
//
// When ctx ends first, the pull is withdrawn so a later value is not lost and
// a CANCELED error wrapping ctx.Err() is returned; the bridge stays open. If
// a value raced the cancellation, the value wins.
func (b *Bridge[T, R]) Next(ctx context.Context) (T, bool, error) {
	var zero T
	if b.failure != nil {
		return zero, false, b.failure
	}
	if err := ctx.Err(); err != nil {
		return zero, false, errors.Canceled("next", err)
	}

	ch := b.Pull()
	select {
	case r := <-ch:
		return r.Value, !r.Done, r.Err
	case <-ctx.Done():
		if b.withdraw(ch) {
			return zero, false, errors.Canceled("next", ctx.Err())
		}
		// Already resolved under the lock, so the result is buffered in ch.
		r := <-ch
		return r.Value, !r.Done, r.Err
	}
}

func (b *Bridge[T, R]) withdraw(ch <-chan Result[T]) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, pending := range b.pulls {
		if pending == ch {
			b.pulls = append(b.pulls[:i], b.pulls[i+1:]...)
			b.set.metrics.RecordResolved(context.Background(), b.set.name, 1)
			return true
		}
	}
	return false
}

// Close terminates the bridge. Only the first call has an effect: every
// waiting pull resolves as done in the order it was made, buffered values are
// discarded, and the close hook runs with the listener's final result if it
// has arrived. Close never reports hook failures; those go to the error
// handler. A failed bridge returns its registration error.
func (b *Bridge[T, R]) Close() error {
	return b.close(context.Background())
}

func (b *Bridge[T, R]) close(parent context.Context) error {
	if b.failure != nil {
		return b.failure
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	pulls := b.pulls
	discarded := len(b.values)
	b.pulls = nil
	b.values = nil
	outcome, settled := b.outcome, b.settled
	for _, ch := range pulls {
		ch <- Result[T]{Done: true}
	}
	b.set.metrics.RecordResolved(parent, b.set.name, len(pulls))
	b.set.metrics.RecordClose(parent, b.set.name, discarded)
	b.mu.Unlock()

	ctx, span := observability.StartSpan(parent, b.set.tracer, observability.SpanBridgeClose,
		attribute.String(observability.AttrBridgeID, b.id),
		attribute.String(observability.AttrBridgeName, b.set.name),
		attribute.Int(observability.AttrPending, len(pulls)),
		attribute.Int(observability.AttrBuffered, discarded),
		attribute.Bool(observability.AttrSettled, settled),
	)
	defer span.End()

	b.log.WithContext(ctx).Debug("bridge closed", logger.Fields(
		logger.FieldPending, len(pulls),
		logger.FieldBuffered, discarded,
		logger.FieldSettled, settled,
	))

	b.runCloseHooks(ctx, any(outcome), settled)
	return nil
}

func (b *Bridge[T, R]) runCloseHooks(ctx context.Context, outcome any, settled bool) {
	if hook := b.set.onClose; hook != nil {
		if err := callHook(func() error { return hook(outcome, settled) }); err != nil {
			observability.SetSpanError(observability.SpanFromContext(ctx), err)
			b.routeError(ctx, sourceCloseHook, errors.CloseHookFailed(b.set.name, err))
		}
	}
	if hook := b.set.onCloseAsync; hook != nil {
		b.wg.Go(func() {
			if err := callHook(func() error { return hook(ctx, outcome, settled) }); err != nil {
				b.routeError(ctx, sourceCloseHook, errors.CloseHookFailed(b.set.name, err))
			}
		})
	}
}

// Fault closes the bridge, reports err to the error handler and returns err,
// letting a consumer abort the sequence while cleanup still runs once. A
// failed bridge returns err untouched. Fault(nil) only closes.
func (b *Bridge[T, R]) Fault(err error) error {
	if b.failure != nil {
		return err
	}
	if err == nil {
		return b.Close()
	}

	ctx, span := observability.StartSpan(context.Background(), b.set.tracer, observability.SpanBridgeFault,
		attribute.String(observability.AttrBridgeID, b.id),
		attribute.String(observability.AttrBridgeName, b.set.name),
	)
	defer span.End()
	observability.SetSpanError(span, err)

	_ = b.close(ctx)
	b.routeError(ctx, sourceFault, err)
	return err
}

// Wait blocks until the goroutines the bridge started have returned: the
// watcher of the listener's completion and any async close hook. It never
// returns for a listener whose completion never settles. A panic raised on
// those goroutines by the panic error policy is re-raised here.
func (b *Bridge[T, R]) Wait() {
	b.wg.Wait()
}

// Outcome returns the listener's final result and whether it has arrived.
func (b *Bridge[T, R]) Outcome() (R, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.outcome, b.settled
}

// Stats returns a snapshot of the queues.
func (b *Bridge[T, R]) Stats() Stats {
	b.mu.Lock()
	defer b.mu.Unlock()
	return Stats{
		Buffered: len(b.values),
		Pending:  len(b.pulls),
		Closed:   b.closed,
		Settled:  b.settled,
	}
}

// CheckHealth reports down for a failed or closed bridge, degraded when the
// listener's completion failed, and up otherwise.
func (b *Bridge[T, R]) CheckHealth(_ context.Context) observability.Health {
	h := observability.Health{Name: b.set.name, Status: observability.HealthStatusUp}
	if b.failure != nil {
		h.Status = observability.HealthStatusDown
		h.Message = b.failure.Error()
		return h
	}

	b.mu.Lock()
	h.Details = map[string]string{
		"id":       b.id,
		"buffered": strconv.Itoa(len(b.values)),
		"pending":  strconv.Itoa(len(b.pulls)),
	}
	closed, prodErr := b.closed, b.prodErr
	b.mu.Unlock()

	switch {
	case closed:
		h.Status = observability.HealthStatusDown
		h.Message = "closed"
	case prodErr != nil:
		h.Status = observability.HealthStatusDegraded
		h.Message = prodErr.Error()
	}
	return h
}

func (b *Bridge[T, R]) await(completion Completion[R]) {
	var (
		result R
		err    error
	)
	var pc panics.Catcher
	pc.Try(func() { result, err = completion() })
	if r := pc.Recovered(); r != nil {
		err = r.AsError()
	}

	if err != nil {
		b.mu.Lock()
		b.prodErr = err
		b.mu.Unlock()
		b.routeError(context.Background(), sourceProducer, errors.ProducerFailed(b.set.name, err))
		return
	}

	b.mu.Lock()
	b.outcome = result
	b.settled = true
	closed := b.closed
	b.mu.Unlock()
	if closed {
		b.log.Debug("listener settled after close")
	}
}

func (b *Bridge[T, R]) routeError(ctx context.Context, source string, err error) {
	b.set.metrics.RecordError(ctx, b.set.name, source)

	log := b.log.WithContext(ctx)
	if b.set.onError != nil {
		log.Debug("routing failure to error handler", logger.Fields(
			logger.FieldSource, source,
			logger.FieldError, err.Error(),
		))
		b.set.onError(err)
		return
	}

	log.Error("unhandled bridge failure", logger.Fields(
		logger.FieldSource, source,
		logger.FieldError, err.Error(),
	))
	if b.set.policy != PolicyLog {
		panic(errors.Unhandled(err))
	}
}

// callHook runs fn and turns a panic into an error.
func callHook(fn func() error) (err error) {
	var pc panics.Catcher
	pc.Try(func() { err = fn() })
	if r := pc.Recovered(); r != nil {
		return fmt.Errorf("close hook panicked: %w", r.AsError())
	}
	return err
}
