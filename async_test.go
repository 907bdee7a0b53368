package zipkintracer

import (
	"context"
	"errors"
	"testing"
	"time"

	opentracing "github.com/opentracing/opentracing-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zoobzio/clockz"
)

func TestGoCapturesActiveSpan(t *testing.T) {
	tracer, rec := newScopeTracer(t)

	scope, ctx := StartActive(context.Background(), tracer, "caller")
	f := Go(ctx, func(ctx context.Context) (string, error) {
		var name string
		err := Trace(ctx, tracer, "work", func(ctx context.Context) error {
			name = "done"
			return nil
		})
		return name, err
	})

	v, err := f.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "done", v)
	assert.Equal(t, scope.Span(), opentracing.SpanFromContext(f.Context()))
	assert.Equal(t, scope.Span(), opentracing.SpanFromContext(ctx), "still active after resolution")

	scope.Close()
	spans := rec.Flush()
	require.Len(t, spans, 2)
	assert.Equal(t, "work", spans[0].Name)
	assert.Equal(t, spans[1].ID, parentOf(spans[0]))
}

func TestThenRunsWithDispatchContext(t *testing.T) {
	tracer, _ := newScopeTracer(t)

	scope, ctx := StartActive(context.Background(), tracer, "caller")
	defer scope.Close()

	release := make(chan struct{})
	f := Go(ctx, func(context.Context) (int, error) {
		<-release
		return 20, nil
	})
	next := Then(f, func(ctx context.Context, v int, err error) (opentracing.Span, error) {
		if err != nil {
			return nil, err
		}
		if v != 20 {
			return nil, errors.New("unexpected value")
		}
		return opentracing.SpanFromContext(ctx), nil
	})

	// resolved from a goroutine with an unrelated active span
	go func() {
		other, _ := StartActive(context.Background(), tracer, "other")
		defer other.Close()
		close(release)
	}()

	sp, err := next.GetTimeout(time.Second)
	require.NoError(t, err)
	assert.Equal(t, scope.Span(), sp)
}

func TestThenSeesUpstreamError(t *testing.T) {
	boom := errors.New("boom")
	f := Go(context.Background(), func(context.Context) (int, error) { return 0, boom })
	next := Then(f, func(_ context.Context, _ int, err error) (string, error) {
		return "", err
	})

	_, err := next.Get(context.Background())
	assert.Same(t, boom, err)
}

func TestGetDistinguishesTimeoutAndInterrupt(t *testing.T) {
	block := make(chan struct{})
	defer close(block)
	f := Go(context.Background(), func(context.Context) (int, error) {
		<-block
		return 1, nil
	})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err := f.Get(ctx)
	assert.Equal(t, ErrTimeout, err)

	ctx, cancel = context.WithCancel(context.Background())
	cancel()
	_, err = f.Get(ctx)
	assert.Equal(t, ErrInterrupted, err)

	select {
	case <-f.Done():
		t.Fatal("work must keep running after a failed wait")
	default:
	}
}

func TestGetTimeoutUsesClock(t *testing.T) {
	clock := clockz.NewFakeClock()
	block := make(chan struct{})
	defer close(block)

	f := Go(context.Background(), func(context.Context) (int, error) {
		<-block
		return 1, nil
	}, WithClock(clock))

	errc := make(chan error, 1)
	go func() {
		_, err := f.GetTimeout(time.Minute)
		errc <- err
	}()

	var err error
	require.Eventually(t, func() bool {
		clock.Advance(time.Minute)
		clock.BlockUntilReady()
		select {
		case err = <-errc:
			return true
		default:
			return false
		}
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, ErrTimeout, err)
}

func TestTimedOutWaitLeavesSpanRunning(t *testing.T) {
	tracer, rec := newScopeTracer(t)
	release := make(chan struct{})

	f := Go(context.Background(), func(ctx context.Context) (int, error) {
		return 1, Trace(ctx, tracer, "slow", func(context.Context) error {
			<-release
			return nil
		})
	})

	_, err := f.GetTimeout(10 * time.Millisecond)
	assert.Equal(t, ErrTimeout, err)
	assert.Empty(t, rec.Flush(), "a timed out wait does not finish the span")

	close(release)
	v, err := f.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, v)
	assert.Len(t, rec.Flush(), 1)
}

func TestGetAfterResolution(t *testing.T) {
	f := Go(context.Background(), func(context.Context) (string, error) { return "ok", nil })
	<-f.Done()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	v, err := f.Get(ctx)
	require.NoError(t, err, "a resolved future ignores the waiting context")
	assert.Equal(t, "ok", v)

	v, err = f.GetTimeout(0)
	require.NoError(t, err)
	assert.Equal(t, "ok", v)
}
