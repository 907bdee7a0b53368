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
	opentracing "github.com/opentracing/opentracing-go"
	"github.com/openzipkin/zipkin-go/model"
)

// SpanContext holds the basic Span metadata: trace id, span id, parent id
// and the sampling decision.
type SpanContext model.SpanContext

// ForeachBaggageItem belongs to the opentracing.SpanContext interface
func (c SpanContext) ForeachBaggageItem(handler func(k, v string) bool) {
}

// IsSampled reports whether spans in this context are recorded.
func (c SpanContext) IsSampled() bool {
	return c.Debug || (c.Sampled != nil && *c.Sampled)
}

// Equal compares ids, parent id and sampling state by value.
func (c SpanContext) Equal(o SpanContext) bool {
	if c.TraceID != o.TraceID || c.ID != o.ID || c.Debug != o.Debug {
		return false
	}
	if (c.ParentID == nil) != (o.ParentID == nil) {
		return false
	}
	if c.ParentID != nil && *c.ParentID != *o.ParentID {
		return false
	}
	if (c.Sampled == nil) != (o.Sampled == nil) {
		return false
	}
	return c.Sampled == nil || *c.Sampled == *o.Sampled
}

// FromSpanContext returns the zipkin view of an opentracing.SpanContext
// created by this package.
func FromSpanContext(sc opentracing.SpanContext) (SpanContext, bool) {
	switch c := sc.(type) {
	case SpanContext:
		return c, true
	case *SpanContext:
		if c == nil {
			return SpanContext{}, false
		}
		return *c, true
	}
	return SpanContext{}, false
}
