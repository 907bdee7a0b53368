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

// Package http adds OpenTracing instrumentation to net/http servers and
// clients, propagating span contexts as B3 headers.
package http

import (
	"context"
	"fmt"
	"net/http"
	"sync/atomic"

	opentracing "github.com/opentracing/opentracing-go"
	"github.com/opentracing/opentracing-go/ext"

	zipkintracer "github.com/openzipkin-contrib/zipkin-go-ottrace"
)

type serverKey struct{}

// serverState is the per-request handle on the server span.
type serverState struct {
	scope     *zipkintracer.Scope
	suspended int32
}

type handler struct {
	tracer   opentracing.Tracer
	next     http.Handler
	spanName func(r *http.Request) string
	tags     map[string]interface{}
}

// ServerOption allows Middleware to be optionally configured.
type ServerOption func(*handler)

// SpanName sets the function naming server spans. The default is
// "<METHOD> <path>", e.g. "GET /bookstore/books".
func SpanName(fn func(r *http.Request) string) ServerOption {
	return func(h *handler) { h.spanName = fn }
}

// ServerTags adds tags to every server span.
func ServerTags(tags map[string]interface{}) ServerOption {
	return func(h *handler) {
		for k, v := range tags {
			h.tags[k] = v
		}
	}
}

// NewServerMiddleware returns a http.Handler middleware starting a server
// span per request. The span is a child of the B3 context found in the
// request headers; without one (or with a malformed one) it is a root.
func NewServerMiddleware(tracer opentracing.Tracer, options ...ServerOption) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		h := &handler{
			tracer:   tracer,
			next:     next,
			spanName: defaultSpanName,
			tags:     map[string]interface{}{},
		}
		for _, option := range options {
			option(h)
		}
		return h
	}
}

func defaultSpanName(r *http.Request) string {
	return r.Method + " " + r.URL.Path
}

// ServeHTTP implements http.Handler.
func (h *handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	opts := []opentracing.StartSpanOption{ext.SpanKindRPCServer}
	if sc, ok := zipkintracer.ExtractFrom(h.tracer, opentracing.HTTPHeaders, opentracing.HTTPHeadersCarrier(r.Header)); ok {
		opts = append(opts, opentracing.ChildOf(sc))
	}
	for k, v := range h.tags {
		opts = append(opts, opentracing.Tag{Key: k, Value: v})
	}

	scope, ctx := zipkintracer.StartActive(r.Context(), h.tracer, h.spanName(r), opts...)
	span := scope.Span()
	ext.HTTPMethod.Set(span, r.Method)
	ext.HTTPUrl.Set(span, r.URL.String())

	state := &serverState{scope: scope}
	ctx = context.WithValue(ctx, serverKey{}, state)

	sw := &statusWriter{ResponseWriter: w, code: http.StatusOK}
	defer func() {
		if rec := recover(); rec != nil {
			zipkintracer.MarkError(span, fmt.Errorf("panic: %v", rec))
			scope.Close()
			panic(rec)
		}
		if atomic.LoadInt32(&state.suspended) == 0 {
			ext.HTTPStatusCode.Set(span, uint16(sw.code))
			if sw.code >= http.StatusInternalServerError {
				ext.Error.Set(span, true)
			}
		}
		scope.Close()
	}()

	h.next.ServeHTTP(sw, r.WithContext(ctx))
}

// Suspend finishes the server span of the request carried by ctx ahead of
// the response, the way an asynchronous resource hands its response off to
// another goroutine. Spans started afterwards from ctx are still children
// of the server span. It reports false when ctx carries no server span.
func Suspend(ctx context.Context) bool {
	state, ok := ctx.Value(serverKey{}).(*serverState)
	if !ok {
		return false
	}
	if atomic.CompareAndSwapInt32(&state.suspended, 0, 1) {
		state.scope.Close()
	}
	return true
}

type statusWriter struct {
	http.ResponseWriter
	code        int
	wroteHeader bool
}

func (w *statusWriter) WriteHeader(code int) {
	if !w.wroteHeader {
		w.code = code
		w.wroteHeader = true
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Write(b []byte) (int, error) {
	w.wroteHeader = true
	return w.ResponseWriter.Write(b)
}

// Flush implements http.Flusher when the wrapped writer does.
func (w *statusWriter) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}
