package zipkintracer

import (
	"time"

	otobserver "github.com/opentracing-contrib/go-observer"
	opentracing "github.com/opentracing/opentracing-go"
)

// observer is a dispatcher to other observers
type observer struct {
	observers []otobserver.Observer
}

// spanObserver is a dispatcher to other span observers
type spanObserver struct {
	observers []otobserver.SpanObserver
}

func (o *observer) OnStartSpan(sp opentracing.Span, operationName string, options opentracing.StartSpanOptions) (otobserver.SpanObserver, bool) {
	var spanObservers []otobserver.SpanObserver
	for _, obs := range o.observers {
		spanObs, ok := obs.OnStartSpan(sp, operationName, options)
		if ok && spanObs != nil {
			if spanObservers == nil {
				spanObservers = make([]otobserver.SpanObserver, 0, len(o.observers))
			}
			spanObservers = append(spanObservers, spanObs)
		}
	}
	if len(spanObservers) == 0 {
		return nil, false
	}

	return spanObserver{observers: spanObservers}, true
}

func (o spanObserver) OnSetOperationName(operationName string) {
	for _, obs := range o.observers {
		obs.OnSetOperationName(operationName)
	}
}

func (o spanObserver) OnSetTag(key string, value interface{}) {
	for _, obs := range o.observers {
		obs.OnSetTag(key, value)
	}
}

func (o spanObserver) OnFinish(options opentracing.FinishOptions) {
	for _, obs := range o.observers {
		obs.OnFinish(options)
	}
}

// LoggingObserver logs every finished span with its operation name,
// duration and whether it was tagged as an error.
type LoggingObserver struct {
	logger Logger
}

// NewLoggingObserver returns an observer writing to logger.
func NewLoggingObserver(logger Logger) *LoggingObserver {
	return &LoggingObserver{logger: logger}
}

// OnStartSpan implements otobserver.Observer.
func (o *LoggingObserver) OnStartSpan(sp opentracing.Span, operationName string, options opentracing.StartSpanOptions) (otobserver.SpanObserver, bool) {
	start := options.StartTime
	if start.IsZero() {
		start = time.Now()
	}
	return &loggingSpanObserver{
		logger:    o.logger,
		operation: operationName,
		start:     start,
	}, true
}

type loggingSpanObserver struct {
	logger    Logger
	operation string
	start     time.Time
	failed    bool
}

func (o *loggingSpanObserver) OnSetOperationName(operationName string) {
	o.operation = operationName
}

func (o *loggingSpanObserver) OnSetTag(key string, value interface{}) {
	if key == "error" {
		b, _ := value.(bool)
		o.failed = b
	}
}

func (o *loggingSpanObserver) OnFinish(options opentracing.FinishOptions) {
	end := options.FinishTime
	if end.IsZero() {
		end = time.Now()
	}
	_ = o.logger.Log(
		"msg", "span finished",
		"operation", o.operation,
		"duration", end.Sub(o.start).String(),
		"error", o.failed,
	)
}
