// Copyright 2019 The OpenZipkin Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package zipkintracer

import (
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	otobserver "github.com/opentracing-contrib/go-observer"
	opentracing "github.com/opentracing/opentracing-go"
	"github.com/opentracing/opentracing-go/ext"
	"github.com/opentracing/opentracing-go/log"
	"github.com/openzipkin/zipkin-go"
	"github.com/openzipkin/zipkin-go/model"
)

const eventField = "event"

type spanImpl struct {
	tracer     *tracerImpl
	zipkinSpan zipkin.Span
	observer   otobserver.SpanObserver
	startTime  time.Time
	references []opentracing.SpanReference
	finished   int32

	mu             sync.Mutex
	remoteEndpoint model.Endpoint
}

// References returns the references the span was started with.
func References(sp opentracing.Span) []opentracing.SpanReference {
	if s, ok := sp.(*spanImpl); ok {
		return s.references
	}
	return nil
}

func (s *spanImpl) SetOperationName(operationName string) opentracing.Span {
	if s.observer != nil {
		s.observer.OnSetOperationName(operationName)
	}

	s.zipkinSpan.SetName(operationName)
	return s
}

func (s *spanImpl) SetTag(key string, value interface{}) opentracing.Span {
	if s.observer != nil {
		s.observer.OnSetTag(key, value)
	}

	switch key {
	case string(ext.SamplingPriority):
		// there are no means for now to change the sampling decision
		// but when finishedSpanHandler is in place we could change this.
		return s
	case string(ext.SpanKind):
		// this tag is translated into kind which can
		// only be set on span creation
		return s
	case string(ext.PeerService), string(ext.PeerHostIPv4), string(ext.PeerHostIPv6), string(ext.PeerPort):
		s.setRemoteEndpoint(key, value)
		return s
	}

	s.zipkinSpan.Tag(key, fmt.Sprint(value))
	return s
}

func (s *spanImpl) setRemoteEndpoint(key string, value interface{}) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch key {
	case string(ext.PeerService):
		serviceName, _ := value.(string)
		s.remoteEndpoint.ServiceName = serviceName
	case string(ext.PeerHostIPv4):
		ipv4, _ := value.(string)
		s.remoteEndpoint.IPv4 = net.ParseIP(ipv4)
	case string(ext.PeerHostIPv6):
		ipv6, _ := value.(string)
		s.remoteEndpoint.IPv6 = net.ParseIP(ipv6)
	case string(ext.PeerPort):
		port, _ := value.(uint16)
		s.remoteEndpoint.Port = port
	}

	ep := s.remoteEndpoint
	s.zipkinSpan.SetRemoteEndpoint(&ep)
}

func (s *spanImpl) LogKV(keyValues ...interface{}) {
	fields, err := log.InterleavedKVToFields(keyValues...)
	if err != nil {
		return
	}

	s.logFields(time.Now(), fields...)
}

func (s *spanImpl) LogFields(fields ...log.Field) {
	s.logFields(time.Now(), fields...)
}

func (s *spanImpl) logFields(t time.Time, fields ...log.Field) {
	for _, field := range fields {
		s.zipkinSpan.Annotate(t, annotationValue(field))
	}
}

// annotationValue renders an "event" field as its bare value and every
// other field as key:value.
func annotationValue(field log.Field) string {
	if field.Key() == eventField {
		return fmt.Sprint(field.Value())
	}
	return field.String()
}

func (s *spanImpl) LogEvent(event string) {
	s.Log(opentracing.LogData{
		Event: event,
	})
}

func (s *spanImpl) LogEventWithPayload(event string, payload interface{}) {
	s.Log(opentracing.LogData{
		Event:   event,
		Payload: payload,
	})
}

func (s *spanImpl) Log(ld opentracing.LogData) {
	if ld.Timestamp.IsZero() {
		ld.Timestamp = time.Now()
	}

	annotation := ld.Event
	if ld.Payload != nil {
		annotation = fmt.Sprintf("%s:%s", ld.Event, ld.Payload)
	}

	s.zipkinSpan.Annotate(ld.Timestamp, annotation)
}

// finish reports whether this call is the one that finishes the span.
func (s *spanImpl) finish() bool {
	return atomic.CompareAndSwapInt32(&s.finished, 0, 1)
}

func (s *spanImpl) Finish() {
	s.FinishWithOptions(opentracing.FinishOptions{})
}

func (s *spanImpl) FinishWithOptions(opts opentracing.FinishOptions) {
	if !s.finish() {
		return
	}

	if s.observer != nil {
		s.observer.OnFinish(opts)
	}

	for _, lr := range opts.LogRecords {
		s.logFields(lr.Timestamp, lr.Fields...)
	}

	if !opts.FinishTime.IsZero() {
		s.zipkinSpan.FinishedWithDuration(opts.FinishTime.Sub(s.startTime))
		return
	}

	s.zipkinSpan.Finish()
}

func (s *spanImpl) Tracer() opentracing.Tracer {
	return s.tracer
}

func (s *spanImpl) Context() opentracing.SpanContext {
	return SpanContext(s.zipkinSpan.Context())
}

func (s *spanImpl) SetBaggageItem(key, val string) opentracing.Span {
	return s
}

func (s *spanImpl) BaggageItem(key string) string {
	return ""
}
