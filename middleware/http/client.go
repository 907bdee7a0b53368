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

package http

import (
	"context"
	"net/http"
	"time"

	opentracing "github.com/opentracing/opentracing-go"
	"github.com/opentracing/opentracing-go/ext"

	zipkintracer "github.com/openzipkin-contrib/zipkin-go-ottrace"
)

type transport struct {
	tracer opentracing.Tracer
	rt     http.RoundTripper
	logger zipkintracer.Logger
}

// TransportOption allows one to configure optional transport configuration.
type TransportOption func(*transport)

// RoundTripper adds the Transport RoundTripper to wrap.
func RoundTripper(rt http.RoundTripper) TransportOption {
	return func(t *transport) {
		if rt != nil {
			t.rt = rt
		}
	}
}

// TransportLogger sets the logger used when injection fails.
func TransportLogger(logger zipkintracer.Logger) TransportOption {
	return func(t *transport) {
		if logger != nil {
			t.logger = logger
		}
	}
}

// NewTransport returns a http.RoundTripper starting a client span
// "<METHOD> <url>" for every request, as a child of the span active in the
// request context, and injecting it into the outgoing headers.
func NewTransport(tracer opentracing.Tracer, options ...TransportOption) http.RoundTripper {
	t := &transport{
		tracer: tracer,
		rt:     http.DefaultTransport,
		logger: zipkintracer.NewNopLogger(),
	}
	for _, option := range options {
		option(t)
	}
	return t
}

// RoundTrip satisfies the RoundTripper interface.
func (t *transport) RoundTrip(req *http.Request) (*http.Response, error) {
	scope, ctx := zipkintracer.StartActive(
		req.Context(), t.tracer, req.Method+" "+req.URL.String(), ext.SpanKindRPCClient,
	)
	defer scope.Close()

	span := scope.Span()
	ext.HTTPMethod.Set(span, req.Method)
	ext.HTTPUrl.Set(span, req.URL.String())

	// a RoundTripper must not modify the caller's request
	outReq := req.Clone(ctx)
	if err := t.tracer.Inject(span.Context(), opentracing.HTTPHeaders, opentracing.HTTPHeadersCarrier(outReq.Header)); err != nil {
		_ = t.logger.Log("msg", "unable to inject span context", "err", err)
	}

	res, err := t.rt.RoundTrip(outReq)
	if err != nil {
		zipkintracer.MarkError(span, err)
		return nil, err
	}

	ext.HTTPStatusCode.Set(span, uint16(res.StatusCode))
	if res.StatusCode >= http.StatusInternalServerError {
		ext.Error.Set(span, true)
	}
	return res, nil
}

// Client is a traced HTTP client.
type Client struct {
	*http.Client
	tracer opentracing.Tracer
}

// ClientOption allows optional configuration of Client.
type ClientOption func(*Client)

// WithClient replaces the underlying http.Client. Its Transport is wrapped.
func WithClient(client *http.Client) ClientOption {
	return func(c *Client) {
		if client != nil {
			cp := *client
			c.Client = &cp
		}
	}
}

// ClientTimeout sets the timeout of the underlying http.Client.
func ClientTimeout(d time.Duration) ClientOption {
	return func(c *Client) { c.Client.Timeout = d }
}

// NewClient returns a Client whose transport traces every request.
func NewClient(tracer opentracing.Tracer, options ...ClientOption) *Client {
	c := &Client{Client: &http.Client{}, tracer: tracer}
	for _, option := range options {
		option(c)
	}
	base := c.Client.Transport
	if base == nil {
		base = http.DefaultTransport
	}
	c.Client.Transport = NewTransport(tracer, RoundTripper(base))
	return c
}

// DoAsync issues req on another goroutine. The request context, with the
// span active in it, is captured now; continuations chained on the
// returned future see that same context.
func (c *Client) DoAsync(req *http.Request) *zipkintracer.Future[*http.Response] {
	return zipkintracer.Go(req.Context(), func(ctx context.Context) (*http.Response, error) {
		return c.Do(req.WithContext(ctx))
	})
}
