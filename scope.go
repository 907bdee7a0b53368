package zipkintracer

import (
	"context"
	"fmt"
	"sync/atomic"

	opentracing "github.com/opentracing/opentracing-go"
	"github.com/opentracing/opentracing-go/ext"
	"github.com/opentracing/opentracing-go/log"
)

// Scope ties a span to the unit of work it measures. The context returned
// alongside a Scope carries the span as the active one; the caller's
// context is never modified, so leaving the scope restores whatever was
// active before on every exit path.
type Scope struct {
	span          opentracing.Span
	finishOnClose bool
	closed        int32
}

// StartActive starts a span and makes it active in the returned context.
//
// When opts carry no reference, the span active in ctx (if any) becomes the
// parent. An explicit reference, such as an extracted inbound context
// passed as opentracing.ChildOf, always wins over the ambient span.
func StartActive(ctx context.Context, tracer opentracing.Tracer, operationName string, opts ...opentracing.StartSpanOption) (*Scope, context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}

	var sso opentracing.StartSpanOptions
	for _, o := range opts {
		o.Apply(&sso)
	}
	if len(sso.References) == 0 {
		if parent := opentracing.SpanFromContext(ctx); parent != nil {
			opts = append(opts, opentracing.ChildOf(parent.Context()))
		}
	}

	span := tracer.StartSpan(operationName, opts...)
	return &Scope{span: span, finishOnClose: true}, opentracing.ContextWithSpan(ctx, span)
}

// Activate makes an externally managed span active in the returned
// context. Closing the scope does not finish the span.
func Activate(ctx context.Context, span opentracing.Span) (*Scope, context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}
	return &Scope{span: span}, opentracing.ContextWithSpan(ctx, span)
}

// Span returns the scope's span.
func (s *Scope) Span() opentracing.Span {
	return s.span
}

// Close finishes the span if the scope owns it. Only the first call has
// an effect.
func (s *Scope) Close() {
	if !atomic.CompareAndSwapInt32(&s.closed, 0, 1) {
		return
	}
	if s.finishOnClose {
		s.span.Finish()
	}
}

// Trace runs fn inside a new active span. A returned error or a panic is
// recorded on the span, the span is finished either way, and the error (or
// panic) reaches the caller unchanged.
func Trace(ctx context.Context, tracer opentracing.Tracer, operationName string, fn func(context.Context) error, opts ...opentracing.StartSpanOption) (err error) {
	scope, ctx := StartActive(ctx, tracer, operationName, opts...)
	defer scope.Close()
	defer func() {
		if r := recover(); r != nil {
			MarkError(scope.Span(), fmt.Errorf("panic: %v", r))
			scope.Close()
			panic(r)
		}
	}()

	if err = fn(ctx); err != nil {
		MarkError(scope.Span(), err)
	}
	return err
}

// MarkError tags span as failed and logs err on it.
func MarkError(span opentracing.Span, err error) {
	if span == nil || err == nil {
		return
	}
	ext.Error.Set(span, true)
	span.LogFields(log.String("event", "error"), log.Error(err))
}
