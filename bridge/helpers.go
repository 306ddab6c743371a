package bridge

import (
	"context"
	"time"

	"github.com/kbukum/asyncify/errors"
)

// Source is an Iterator the consumer can abort with an error.
type Source[T any] interface {
	Iterator[T]
	Fault(err error) error
}

var _ Source[int] = (*Bridge[int, struct{}])(nil)

// Collect pulls up to n values from it, or every value until it is exhausted
// when n <= 0. Values read before a failure are returned with the error.
func Collect[T any](ctx context.Context, it Iterator[T], n int) ([]T, error) {
	var out []T
	for n <= 0 || len(out) < n {
		v, ok, err := it.Next(ctx)
		if err != nil {
			return out, err
		}
		if !ok {
			break
		}
		out = append(out, v)
	}
	return out, nil
}

// ForEach calls fn for every value until src is exhausted. When fn fails, src
// is faulted with the failure and ForEach returns it.
func ForEach[T any](ctx context.Context, src Source[T], fn func(T) error) error {
	for {
		v, ok, err := src.Next(ctx)
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		if err := fn(v); err != nil {
			return src.Fault(err)
		}
	}
}

// NextTimeout waits at most d for the next value. On expiry src is faulted
// with a TIMEOUT error, which is also returned.
func NextTimeout[T any](src Source[T], d time.Duration) (T, bool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), d)
	defer cancel()

	v, ok, err := src.Next(ctx)
	if err != nil && errors.HasCode(err, errors.ErrCodeCanceled) && ctx.Err() == context.DeadlineExceeded {
		var zero T
		return zero, false, src.Fault(errors.Timeout("next", d))
	}
	return v, ok, err
}
