package zipkintracer

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/zoobzio/clockz"
)

var (
	// ErrTimeout is returned when a bounded wait on a Future elapses.
	ErrTimeout = errors.New("timed out waiting for result")
	// ErrInterrupted is returned when the context of a wait is cancelled.
	ErrInterrupted = errors.New("wait interrupted")
)

// FutureOption configures a Future.
type FutureOption func(*futureOptions)

type futureOptions struct {
	clock clockz.Clock
}

// WithClock sets the clock used for bounded waits.
func WithClock(clock clockz.Clock) FutureOption {
	return func(o *futureOptions) {
		if clock != nil {
			o.clock = clock
		}
	}
}

// Future is the pending result of work dispatched with Go. The context
// captured at dispatch time, including its active span, is the one handed
// to the work and to every continuation, whichever goroutine runs them.
type Future[T any] struct {
	ctx   context.Context
	clock clockz.Clock
	done  chan struct{}
	value T
	err   error
}

func newFuture[T any](ctx context.Context, opts ...FutureOption) *Future[T] {
	if ctx == nil {
		ctx = context.Background()
	}
	o := futureOptions{clock: clockz.RealClock}
	for _, opt := range opts {
		opt(&o)
	}
	return &Future[T]{
		ctx:   ctx,
		clock: o.clock,
		done:  make(chan struct{}),
	}
}

// Go runs fn on a new goroutine with ctx captured as it is now.
func Go[T any](ctx context.Context, fn func(context.Context) (T, error), opts ...FutureOption) *Future[T] {
	f := newFuture[T](ctx, opts...)
	go func() {
		v, err := fn(f.ctx)
		f.resolve(v, err)
	}()
	return f
}

// Then runs fn once f resolves, with f's captured context, and returns
// the future of its result.
func Then[T, U any](f *Future[T], fn func(context.Context, T, error) (U, error)) *Future[U] {
	next := newFuture[U](f.ctx, WithClock(f.clock))
	go func() {
		<-f.done
		v, err := fn(f.ctx, f.value, f.err)
		next.resolve(v, err)
	}()
	return next
}

func (f *Future[T]) resolve(v T, err error) {
	f.value, f.err = v, err
	close(f.done)
}

// Context returns the context captured at dispatch.
func (f *Future[T]) Context() context.Context {
	return f.ctx
}

// Done is closed once the result is available.
func (f *Future[T]) Done() <-chan struct{} {
	return f.done
}

// Get waits for the result. A cancelled ctx yields ErrInterrupted, an
// expired deadline yields ErrTimeout. Waiting has no tracing side effects.
func (f *Future[T]) Get(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		return f.value, f.err
	default:
	}

	select {
	case <-f.done:
		return f.value, f.err
	case <-ctx.Done():
		var zero T
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return zero, ErrTimeout
		}
		return zero, ErrInterrupted
	}
}

// GetTimeout waits at most d. Work still running when the wait gives up
// keeps running and finishes its spans on its own.
func (f *Future[T]) GetTimeout(d time.Duration) (T, error) {
	select {
	case <-f.done:
		return f.value, f.err
	default:
	}

	select {
	case <-f.done:
		return f.value, f.err
	case <-f.clock.After(d):
		var zero T
		return zero, ErrTimeout
	}
}
