// Copyright 2022 The OpenZipkin Authors
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
	"strings"
	"time"

	opentracing "github.com/opentracing/opentracing-go"
	"github.com/opentracing/opentracing-go/ext"
	"github.com/openzipkin/zipkin-go"
	"github.com/openzipkin/zipkin-go/model"
	"github.com/openzipkin/zipkin-go/reporter"
)

// RefTypeTag is set to RefTypeFollowsFrom on spans whose parent came from
// a FollowsFrom reference. Zipkin has no reference kinds of its own.
const (
	RefTypeTag         = "opentracing.ref_type"
	RefTypeFollowsFrom = "follows-from"
)

type tracerImpl struct {
	zipkinTracer       *zipkin.Tracer
	textPropagator     *textMapPropagator
	accessorPropagator *accessorPropagator
	opts               *TracerOptions
}

// Wrap receives a zipkin tracer and returns an opentracing
// tracer
func Wrap(tr *zipkin.Tracer, opts ...TracerOption) opentracing.Tracer {
	t := &tracerImpl{
		zipkinTracer: tr,
		opts: &TracerOptions{
			logger: NewNopLogger(),
		},
	}
	t.textPropagator = &textMapPropagator{t}
	t.accessorPropagator = &accessorPropagator{t}

	for _, o := range opts {
		o(t.opts)
	}

	return t
}

// NewTracer creates a zipkin tracer reporting to rep and wraps it.
func NewTracer(rep reporter.Reporter, zopts []zipkin.TracerOption, opts ...TracerOption) (opentracing.Tracer, error) {
	tr, err := zipkin.NewTracer(rep, zopts...)
	if err != nil {
		return nil, err
	}
	return Wrap(tr, opts...), nil
}

func (t *tracerImpl) StartSpan(operationName string, opts ...opentracing.StartSpanOption) opentracing.Span {
	var startSpanOptions opentracing.StartSpanOptions
	for _, opt := range opts {
		opt.Apply(&startSpanOptions)
	}

	zopts := make([]zipkin.SpanOption, 0)

	// Parent
	if parent, refType, ok := parentFromReferences(startSpanOptions.References); ok {
		zopts = append(zopts, zipkin.Parent(model.SpanContext(parent)))
		if refType == opentracing.FollowsFromRef {
			zopts = append(zopts, zipkin.Tags(map[string]string{RefTypeTag: RefTypeFollowsFrom}))
		}
	}

	startTime := time.Now()
	// Time
	if !startSpanOptions.StartTime.IsZero() {
		zopts = append(zopts, zipkin.StartTime(startSpanOptions.StartTime))
		startTime = startSpanOptions.StartTime
	}

	zopts = append(zopts, parseTagsAsZipkinOptions(startSpanOptions.Tags)...)

	newSpan := t.zipkinTracer.StartSpan(operationName, zopts...)

	sp := &spanImpl{
		zipkinSpan: newSpan,
		tracer:     t,
		startTime:  startTime,
		references: startSpanOptions.References,
	}
	if ep := remoteEndpointFromTags(startSpanOptions.Tags); ep != nil {
		sp.remoteEndpoint = *ep
	}
	if t.opts.observer != nil {
		if observer, ok := t.opts.observer.OnStartSpan(sp, operationName, startSpanOptions); ok {
			sp.observer = observer
		}
	}

	return sp
}

// parentFromReferences picks the zipkin parent: the first ChildOf reference
// wins, otherwise the first FollowsFrom reference.
func parentFromReferences(refs []opentracing.SpanReference) (SpanContext, opentracing.SpanReferenceType, bool) {
	var (
		parent SpanContext
		found  bool
	)
	for _, ref := range refs {
		sc, ok := FromSpanContext(ref.ReferencedContext)
		if !ok {
			continue
		}
		if ref.Type == opentracing.ChildOfRef {
			return sc, opentracing.ChildOfRef, true
		}
		if !found {
			parent, found = sc, true
		}
	}
	return parent, opentracing.FollowsFromRef, found
}

func spanKind(val interface{}) string {
	switch v := val.(type) {
	case string:
		return v
	case ext.SpanKindEnum:
		return string(v)
	}
	return ""
}

func remoteEndpointFromTags(t map[string]interface{}) *model.Endpoint {
	remoteEndpoint := &model.Endpoint{}

	if val, ok := t[string(ext.PeerService)]; ok {
		serviceName, _ := val.(string)
		remoteEndpoint.ServiceName = serviceName
	}

	if val, ok := t[string(ext.PeerHostIPv4)]; ok {
		ipv4, _ := val.(string)
		remoteEndpoint.IPv4 = net.ParseIP(ipv4)
	}

	if val, ok := t[string(ext.PeerHostIPv6)]; ok {
		ipv6, _ := val.(string)
		remoteEndpoint.IPv6 = net.ParseIP(ipv6)
	}

	if val, ok := t[string(ext.PeerPort)]; ok {
		port, _ := val.(uint16)
		remoteEndpoint.Port = port
	}

	if remoteEndpoint.Empty() {
		return nil
	}
	return remoteEndpoint
}

func parseTagsAsZipkinOptions(t map[string]interface{}) []zipkin.SpanOption {
	zopts := make([]zipkin.SpanOption, 0)

	tags := map[string]string{}

	if val, ok := t[string(ext.SpanKind)]; ok {
		kind := model.Kind(strings.ToUpper(spanKind(val)))
		switch kind {
		case model.Client, model.Server, model.Producer, model.Consumer:
			zopts = append(zopts, zipkin.Kind(kind))
		default:
			// unknown kinds are kept as a plain tag
			tags[string(ext.SpanKind)] = fmt.Sprint(val)
		}
	}

	for key, val := range t {
		if key == string(ext.SpanKind) ||
			key == string(ext.PeerService) ||
			key == string(ext.PeerHostIPv4) ||
			key == string(ext.PeerHostIPv6) ||
			key == string(ext.PeerPort) {
			continue
		}

		tags[key] = fmt.Sprint(val)
	}

	if len(tags) > 0 {
		zopts = append(zopts, zipkin.Tags(tags))
	}

	if ep := remoteEndpointFromTags(t); ep != nil {
		zopts = append(zopts, zipkin.RemoteEndpoint(ep))
	}

	return zopts
}

type delegatorType struct{}

// Delegator is the format to use for DelegatingCarrier.
var Delegator delegatorType

func (t *tracerImpl) Inject(sc opentracing.SpanContext, format interface{}, carrier interface{}) error {
	switch format {
	case opentracing.TextMap, opentracing.HTTPHeaders:
		return t.textPropagator.Inject(sc, carrier)
	}
	if _, ok := format.(delegatorType); ok {
		return t.accessorPropagator.Inject(sc, carrier)
	}
	return opentracing.ErrUnsupportedFormat
}

func (t *tracerImpl) Extract(format interface{}, carrier interface{}) (opentracing.SpanContext, error) {
	switch format {
	case opentracing.TextMap, opentracing.HTTPHeaders:
		return t.textPropagator.Extract(carrier)
	}
	if _, ok := format.(delegatorType); ok {
		return t.accessorPropagator.Extract(carrier)
	}
	return nil, opentracing.ErrUnsupportedFormat
}
