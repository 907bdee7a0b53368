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

// Package b3 reads and writes B3 trace headers on OpenTracing text map
// carriers.
package b3

import (
	"errors"
	"strings"

	"github.com/opentracing/opentracing-go"
	"github.com/openzipkin/zipkin-go/model"
	zb3 "github.com/openzipkin/zipkin-go/propagation/b3"
)

const (
	traceIDHeader      = "x-b3-traceid"
	spanIDHeader       = "x-b3-spanid"
	parentSpanIDHeader = "x-b3-parentspanid"
	sampledHeader      = "x-b3-sampled"
	flagsHeader        = "x-b3-flags"
	singleHeader       = "b3"
)

// ErrNoContext is returned by ExtractHTTP when the carrier holds no B3
// header at all.
var ErrNoContext = errors.New("b3: no trace context in carrier")

// InjectHTTP writes sc as B3 multi headers.
func InjectHTTP(sc model.SpanContext, carrier interface{}) error {
	c, ok := carrier.(opentracing.TextMapWriter)
	if !ok {
		return opentracing.ErrInvalidCarrier
	}

	if (model.SpanContext{}) == sc {
		return zb3.ErrEmptyContext
	}

	if !sc.TraceID.Empty() && sc.ID > 0 {
		c.Set(traceIDHeader, sc.TraceID.String())
		c.Set(spanIDHeader, sc.ID.String())
		if sc.ParentID != nil {
			c.Set(parentSpanIDHeader, sc.ParentID.String())
		}
	}

	if sc.Debug {
		c.Set(flagsHeader, "1")
	} else if sc.Sampled != nil {
		if *sc.Sampled {
			c.Set(sampledHeader, "1")
		} else {
			c.Set(sampledHeader, "0")
		}
	}

	return nil
}

// InjectSingle writes sc as the single "b3" header.
func InjectSingle(sc model.SpanContext, carrier interface{}) error {
	c, ok := carrier.(opentracing.TextMapWriter)
	if !ok {
		return opentracing.ErrInvalidCarrier
	}

	if (model.SpanContext{}) == sc {
		return zb3.ErrEmptyContext
	}

	c.Set(singleHeader, zb3.BuildSingleHeader(sc))
	return nil
}

// ExtractHTTP reads a span context from either header style. The single
// header takes precedence when both are present. Header names are matched
// case-insensitively.
func ExtractHTTP(carrier interface{}) (*model.SpanContext, error) {
	c, ok := carrier.(opentracing.TextMapReader)
	if !ok {
		return nil, opentracing.ErrInvalidCarrier
	}

	var (
		traceID      string
		spanID       string
		parentSpanID string
		sampled      string
		flags        string
		single       string
		found        bool
	)

	err := c.ForeachKey(func(key, val string) error {
		switch strings.ToLower(key) {
		case traceIDHeader:
			traceID = val
		case spanIDHeader:
			spanID = val
		case parentSpanIDHeader:
			parentSpanID = val
		case sampledHeader:
			sampled = val
		case flagsHeader:
			flags = val
		case singleHeader:
			single = val
		default:
			return nil
		}
		found = true
		return nil
	})
	if err != nil {
		return nil, err
	}

	if !found {
		return nil, ErrNoContext
	}

	if single != "" {
		return zb3.ParseSingleHeader(single)
	}

	return zb3.ParseHeaders(traceID, spanID, parentSpanID, sampled, flags)
}
