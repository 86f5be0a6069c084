// Package timeout bounds how long a caller waits on a slow operation.
package timeout

import (
	"context"
	"time"

	"github.com/edustack/edustack/internal/auth"
)

type result[T any] struct {
	val T
	err error
}

// Do runs fn and waits at most d for it to return. When d elapses first Do
// returns a *auth.TimeoutError carrying msg. fn is not cancelled: it keeps
// running with the caller's context and its late result is dropped. If ctx is
// done before either side finishes, ctx.Err() is returned.
func Do[T any](ctx context.Context, d time.Duration, msg string, fn func(context.Context) (T, error)) (T, error) {
	done := make(chan result[T], 1)
	go func() {
		v, err := fn(ctx)
		done <- result[T]{val: v, err: err}
	}()

	timer := time.NewTimer(d)
	defer timer.Stop()

	var zero T
	select {
	case r := <-done:
		return r.val, r.err
	case <-timer.C:
		return zero, &auth.TimeoutError{Message: msg, After: d}
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}
