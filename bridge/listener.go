package bridge

import (
	"context"

	"github.com/sourcegraph/conc/panics"
)

// Completion blocks until the listener's producer settles and returns its
// final result. A nil Completion never settles.
type Completion[R any] func() (R, error)

// Listener registers emit with a producer and returns how to wait for that
// producer to finish. emit may be called any number of times from any
// goroutine, including before Listener returns. A returned error means
// registration itself failed.
type Listener[T, R any] func(emit func(T)) (Completion[R], error)

// Settled returns a Completion that has already succeeded with r.
func Settled[R any](r R) Completion[R] {
	return func() (R, error) { return r, nil }
}

// Failed returns a Completion that has already failed with err.
func Failed[R any](err error) Completion[R] {
	return func() (R, error) {
		var zero R
		return zero, err
	}
}

// Pending returns a Completion that never settles.
func Pending[R any]() Completion[R] {
	return nil
}

// FromFunc adapts a blocking producer. fn runs on its own goroutine with ctx
// and emit; its return value becomes the listener's completion. A panic in fn
// is reported as a completion failure.
func FromFunc[T, R any](ctx context.Context, fn func(ctx context.Context, emit func(T)) (R, error)) Listener[T, R] {
	return func(emit func(T)) (Completion[R], error) {
		done := make(chan struct{})
		var (
			result R
			err    error
		)
		go func() {
			defer close(done)
			var pc panics.Catcher
			pc.Try(func() { result, err = fn(ctx, emit) })
			if r := pc.Recovered(); r != nil {
				err = r.AsError()
			}
		}()
		return func() (R, error) {
			<-done
			return result, err
		}, nil
	}
}

// FromChannel forwards every value received on ch. The completion settles
// when ch is closed.
func FromChannel[T any](ch <-chan T) Listener[T, struct{}] {
	return FromFunc(context.Background(), func(_ context.Context, emit func(T)) (struct{}, error) {
		for v := range ch {
			emit(v)
		}
		return struct{}{}, nil
	})
}
