// Package grpc propagates B3 span contexts over gRPC metadata with unary
// client and server interceptors.
package grpc

import (
	"context"
	"strings"

	opentracing "github.com/opentracing/opentracing-go"
	"github.com/opentracing/opentracing-go/ext"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	zipkintracer "github.com/openzipkin-contrib/zipkin-go-ottrace"
)

// MetadataCarrier adapts metadata.MD to the OpenTracing text map carrier
// interfaces.
type MetadataCarrier metadata.MD

// Set implements opentracing.TextMapWriter. Keys are lower cased, as gRPC
// requires.
func (c MetadataCarrier) Set(key, val string) {
	key = strings.ToLower(key)
	c[key] = append(c[key], val)
}

// ForeachKey implements opentracing.TextMapReader.
func (c MetadataCarrier) ForeachKey(handler func(key, val string) error) error {
	for k, vals := range c {
		for _, v := range vals {
			if err := handler(k, v); err != nil {
				return err
			}
		}
	}
	return nil
}

// UnaryServerInterceptor starts a server span named after the full method,
// as a child of the context found in the incoming metadata.
func UnaryServerInterceptor(tracer opentracing.Tracer) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		opts := []opentracing.StartSpanOption{ext.SpanKindRPCServer}
		if md, ok := metadata.FromIncomingContext(ctx); ok {
			if sc, ok := zipkintracer.ExtractFrom(tracer, opentracing.TextMap, MetadataCarrier(md)); ok {
				opts = append(opts, opentracing.ChildOf(sc))
			}
		}

		scope, ctx := zipkintracer.StartActive(ctx, tracer, info.FullMethod, opts...)
		defer scope.Close()

		resp, err := handler(ctx, req)
		tagStatus(scope.Span(), err)
		return resp, err
	}
}

// UnaryClientInterceptor starts a client span named after the method and
// injects it into the outgoing metadata.
func UnaryClientInterceptor(tracer opentracing.Tracer) grpc.UnaryClientInterceptor {
	return func(ctx context.Context, method string, req, reply interface{}, cc *grpc.ClientConn, invoker grpc.UnaryInvoker, opts ...grpc.CallOption) error {
		scope, ctx := zipkintracer.StartActive(ctx, tracer, method, ext.SpanKindRPCClient)
		defer scope.Close()

		md, ok := metadata.FromOutgoingContext(ctx)
		if ok {
			md = md.Copy()
		} else {
			md = metadata.MD{}
		}
		if err := tracer.Inject(scope.Span().Context(), opentracing.TextMap, MetadataCarrier(md)); err == nil {
			ctx = metadata.NewOutgoingContext(ctx, md)
		}

		err := invoker(ctx, method, req, reply, cc, opts...)
		tagStatus(scope.Span(), err)
		return err
	}
}

func tagStatus(span opentracing.Span, err error) {
	code := status.Code(err)
	span.SetTag("grpc.status_code", code.String())
	if code != codes.OK {
		zipkintracer.MarkError(span, err)
	}
}
