package bridge

import (
	"context"
	"iter"
)

// All returns the bridge as a range-over-func sequence. The loop ends when the
// bridge closes or ctx ends. Breaking out of the loop closes the bridge.
// Failures are dropped; use Seq2 to observe them.
func (b *Bridge[T, R]) All(ctx context.Context) iter.Seq[T] {
	return func(yield func(T) bool) {
		for {
			v, ok, err := b.Next(ctx)
			if err != nil || !ok {
				return
			}
			if !yield(v) {
				_ = b.Close()
				return
			}
		}
	}
}

// Seq2 is All with errors. A failure is yielded once with the zero value and
// ends the loop without closing the bridge.
func (b *Bridge[T, R]) Seq2(ctx context.Context) iter.Seq2[T, error] {
	return func(yield func(T, error) bool) {
		for {
			v, ok, err := b.Next(ctx)
			if err != nil {
				var zero T
				yield(zero, err)
				return
			}
			if !ok {
				return
			}
			if !yield(v, nil) {
				_ = b.Close()
				return
			}
		}
	}
}
