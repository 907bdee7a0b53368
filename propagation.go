package zipkintracer

import (
	"errors"

	opentracing "github.com/opentracing/opentracing-go"
	"github.com/openzipkin/zipkin-go/model"

	"github.com/openzipkin-contrib/zipkin-go-ottrace/propagation/b3"
)

type textMapPropagator struct {
	tracer *tracerImpl
}

func (p *textMapPropagator) Inject(
	spanContext opentracing.SpanContext,
	carrier interface{},
) error {
	sc, ok := FromSpanContext(spanContext)
	if !ok {
		return opentracing.ErrInvalidSpanContext
	}

	switch p.tracer.opts.b3InjectOpt {
	case B3InjectSingle:
		return b3.InjectSingle(model.SpanContext(sc), carrier)
	case B3InjectBoth:
		if err := b3.InjectSingle(model.SpanContext(sc), carrier); err != nil {
			return err
		}
	}
	return b3.InjectHTTP(model.SpanContext(sc), carrier)
}

// Extract maps every B3 failure onto the opentracing sentinels: no headers
// is ErrSpanContextNotFound, anything unparseable is ErrSpanContextCorrupted.
func (p *textMapPropagator) Extract(
	carrier interface{},
) (opentracing.SpanContext, error) {
	sc, err := b3.ExtractHTTP(carrier)
	switch {
	case err == nil:
		return SpanContext(*sc), nil
	case errors.Is(err, b3.ErrNoContext):
		return nil, opentracing.ErrSpanContextNotFound
	case errors.Is(err, opentracing.ErrInvalidCarrier):
		return nil, err
	}
	_ = p.tracer.opts.logger.Log("msg", "discarding malformed b3 headers", "err", err)
	return nil, opentracing.ErrSpanContextCorrupted
}

type accessorPropagator struct {
	tracer *tracerImpl
}

// DelegatingCarrier is a flexible carrier interface which can be implemented
// by types which have a means of storing the trace metadata and already know
// how to serialize themselves (for example, protocol buffers).
//
// Its state holds 64-bit trace ids only, so injecting a context with a
// 128-bit trace id fails with opentracing.ErrInvalidSpanContext. The sampled
// flag is a plain bool: an undecided context is carried as not sampled.
type DelegatingCarrier interface {
	SetState(traceID, spanID, parentSpanID uint64, sampled bool)
	State() (traceID, spanID, parentSpanID uint64, sampled bool)
	SetBaggageItem(key, value string)
	GetBaggage(func(key, value string))
}

func (p *accessorPropagator) Inject(
	spanContext opentracing.SpanContext,
	carrier interface{},
) error {
	ac, ok := carrier.(DelegatingCarrier)
	if !ok || ac == nil {
		return opentracing.ErrInvalidCarrier
	}
	sc, ok := FromSpanContext(spanContext)
	if !ok || sc.TraceID.High != 0 {
		return opentracing.ErrInvalidSpanContext
	}
	var parentSpanID uint64
	if sc.ParentID != nil {
		parentSpanID = uint64(*sc.ParentID)
	}
	ac.SetState(sc.TraceID.Low, uint64(sc.ID), parentSpanID, sc.IsSampled())
	return nil
}

func (p *accessorPropagator) Extract(
	carrier interface{},
) (opentracing.SpanContext, error) {
	ac, ok := carrier.(DelegatingCarrier)
	if !ok || ac == nil {
		return nil, opentracing.ErrInvalidCarrier
	}

	traceID, spanID, parentSpanID, sampled := ac.State()
	if traceID == 0 && spanID == 0 {
		return nil, opentracing.ErrSpanContextNotFound
	}
	if traceID == 0 || spanID == 0 {
		return nil, opentracing.ErrSpanContextCorrupted
	}

	sc := SpanContext{
		TraceID: model.TraceID{Low: traceID},
		ID:      model.ID(spanID),
		Sampled: &sampled,
	}
	if parentSpanID != 0 {
		parent := model.ID(parentSpanID)
		sc.ParentID = &parent
	}

	return sc, nil
}

// ExtractFrom extracts a span context and reports absent or malformed
// carrier data as "no context" rather than as an error.
func ExtractFrom(tracer opentracing.Tracer, format, carrier interface{}) (opentracing.SpanContext, bool) {
	sc, err := tracer.Extract(format, carrier)
	if err != nil || sc == nil {
		return nil, false
	}
	return sc, true
}
