// Package events mirrors spans into golang.org/x/net/trace so they show up
// on the /debug/requests page.
package events

import (
	"sync"

	otobserver "github.com/opentracing-contrib/go-observer"
	opentracing "github.com/opentracing/opentracing-go"
	"golang.org/x/net/trace"
)

// NetTraceObserver can be registered with zipkintracer.WithObserver and
// causes all spans to be registered with the net/trace endpoint.
type NetTraceObserver struct {
	family string
}

// NewNetTraceObserver returns an observer filing spans under family.
func NewNetTraceObserver(family string) *NetTraceObserver {
	return &NetTraceObserver{family: family}
}

// OnStartSpan implements otobserver.Observer.
func (o *NetTraceObserver) OnStartSpan(sp opentracing.Span, operationName string, options opentracing.StartSpanOptions) (otobserver.SpanObserver, bool) {
	tr := trace.New(o.family, operationName)
	for k, v := range options.Tags {
		tr.LazyPrintf("%s=%v", k, v)
	}
	return &netTraceSpan{tr: tr}, true
}

type netTraceSpan struct {
	mu       sync.Mutex
	tr       trace.Trace
	finished bool
}

func (s *netTraceSpan) OnSetOperationName(operationName string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.finished {
		s.tr.LazyPrintf("renamed to %s", operationName)
	}
}

func (s *netTraceSpan) OnSetTag(key string, value interface{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.finished {
		return
	}
	if key == "error" {
		if b, _ := value.(bool); b {
			s.tr.SetError()
		}
	}
	s.tr.LazyPrintf("%s=%v", key, value)
}

func (s *netTraceSpan) OnFinish(options opentracing.FinishOptions) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.finished {
		return
	}
	for _, lr := range options.LogRecords {
		for _, f := range lr.Fields {
			s.tr.LazyPrintf("%s", f.String())
		}
	}
	s.finished = true
	s.tr.Finish()
}
