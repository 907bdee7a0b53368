package grpc

import (
	"context"
	"testing"

	opentracing "github.com/opentracing/opentracing-go"
	"github.com/openzipkin/zipkin-go"
	"github.com/openzipkin/zipkin-go/model"
	"github.com/openzipkin/zipkin-go/reporter/recorder"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	zipkintracer "github.com/openzipkin-contrib/zipkin-go-ottrace"
)

const method = "/bookstore.Books/List"

func newTracer(t *testing.T) (opentracing.Tracer, *recorder.ReporterRecorder) {
	t.Helper()
	rec := recorder.NewReporter()
	tracer, err := zipkintracer.NewTracer(rec, []zipkin.TracerOption{
		zipkin.WithSampler(zipkin.AlwaysSample),
		zipkin.WithSharedSpans(false),
	})
	require.NoError(t, err)
	return tracer, rec
}

func TestMetadataCarrier(t *testing.T) {
	md := metadata.MD{}
	c := MetadataCarrier(md)
	c.Set("X-B3-TraceId", "0000000000000001")
	c.Set("X-B3-TraceId", "0000000000000002")

	assert.Equal(t, []string{"0000000000000001", "0000000000000002"}, md["x-b3-traceid"])

	var seen []string
	require.NoError(t, c.ForeachKey(func(k, v string) error {
		seen = append(seen, k+"="+v)
		return nil
	}))
	assert.Equal(t, []string{"x-b3-traceid=0000000000000001", "x-b3-traceid=0000000000000002"}, seen)

	stop := status.Error(codes.Canceled, "stop")
	assert.Equal(t, stop, c.ForeachKey(func(string, string) error { return stop }))
}

func TestClientToServerPropagation(t *testing.T) {
	tracer, rec := newTracer(t)
	client := UnaryClientInterceptor(tracer)
	server := UnaryServerInterceptor(tracer)

	var sent metadata.MD
	invoker := func(ctx context.Context, method string, req, reply interface{}, _ *grpc.ClientConn, _ ...grpc.CallOption) error {
		sent, _ = metadata.FromOutgoingContext(ctx)
		inCtx := metadata.NewIncomingContext(context.Background(), sent)
		_, err := server(inCtx, req, &grpc.UnaryServerInfo{FullMethod: method}, func(ctx context.Context, req interface{}) (interface{}, error) {
			assert.NotNil(t, opentracing.SpanFromContext(ctx))
			return "ok", nil
		})
		return err
	}

	outCtx := metadata.AppendToOutgoingContext(context.Background(), "authorization", "token")
	require.NoError(t, client(outCtx, method, "req", nil, nil, invoker))

	assert.Equal(t, []string{"token"}, sent["authorization"], "existing metadata is kept")
	require.NotEmpty(t, sent["x-b3-traceid"])

	spans := rec.Flush()
	require.Len(t, spans, 2)
	serverSpan, clientSpan := spans[0], spans[1]
	assert.Equal(t, model.Server, serverSpan.Kind)
	assert.Equal(t, model.Client, clientSpan.Kind)
	assert.Equal(t, method, serverSpan.Name)
	assert.Equal(t, clientSpan.TraceID, serverSpan.TraceID)
	require.NotNil(t, serverSpan.ParentID)
	assert.Equal(t, clientSpan.ID, *serverSpan.ParentID)
	assert.Equal(t, "OK", serverSpan.Tags["grpc.status_code"])
	assert.NotContains(t, clientSpan.Tags, "error")
}

func TestServerWithoutMetadataStartsRoot(t *testing.T) {
	tracer, rec := newTracer(t)
	server := UnaryServerInterceptor(tracer)

	_, err := server(context.Background(), nil, &grpc.UnaryServerInfo{FullMethod: method}, func(context.Context, interface{}) (interface{}, error) {
		return nil, status.Error(codes.NotFound, "no such book")
	})
	assert.Equal(t, codes.NotFound, status.Code(err))

	spans := rec.Flush()
	require.Len(t, spans, 1)
	assert.Nil(t, spans[0].ParentID)
	assert.Equal(t, "NotFound", spans[0].Tags["grpc.status_code"])
	assert.Equal(t, "true", spans[0].Tags["error"])
}

func TestClientFailureIsTagged(t *testing.T) {
	tracer, rec := newTracer(t)
	client := UnaryClientInterceptor(tracer)

	err := client(context.Background(), method, nil, nil, nil, func(context.Context, string, interface{}, interface{}, *grpc.ClientConn, ...grpc.CallOption) error {
		return status.Error(codes.Unavailable, "down")
	})
	assert.Equal(t, codes.Unavailable, status.Code(err))

	spans := rec.Flush()
	require.Len(t, spans, 1)
	assert.Equal(t, "Unavailable", spans[0].Tags["grpc.status_code"])
	assert.Equal(t, "true", spans[0].Tags["error"])
}
