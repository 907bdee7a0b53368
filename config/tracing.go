package config

import (
	opentracing "github.com/opentracing/opentracing-go"
	"github.com/openzipkin/zipkin-go"
	"github.com/pkg/errors"

	zipkintracer "github.com/openzipkin-contrib/zipkin-go-ottrace"
)

// Tracing is a tracer wired to its recorder.
type Tracing struct {
	Tracer   opentracing.Tracer
	Recorder *zipkintracer.BatchRecorder
	// Memory holds the recorded spans when no Zipkin URL is configured.
	Memory *zipkintracer.MemorySender
}

// NewTracing builds the sender, recorder and tracer described by c.
func (c *Config) NewTracing(logger zipkintracer.Logger, options ...zipkintracer.TracerOption) (*Tracing, error) {
	if logger == nil {
		logger = zipkintracer.NewNopLogger()
	}

	ep, err := zipkintracer.NewEndpoint(c.ServiceName, c.HostPort)
	if err != nil {
		return nil, errors.Wrap(err, "local endpoint")
	}
	sampler, err := zipkintracer.NewSampler(c.SampleRate)
	if err != nil {
		return nil, errors.Wrap(err, "sampler")
	}
	inject, err := zipkintracer.ParseB3InjectOption(c.B3Inject)
	if err != nil {
		return nil, errors.Wrap(err, "b3 inject style")
	}

	t := &Tracing{}
	var sender zipkintracer.Sender
	if c.ZipkinURL != "" {
		sender = zipkintracer.NewHTTPSender(c.ZipkinURL)
	} else {
		t.Memory = zipkintracer.NewMemorySender()
		sender = t.Memory
	}

	t.Recorder = zipkintracer.NewBatchRecorder(sender,
		zipkintracer.RecorderLogger(logger),
		zipkintracer.RecorderBatchInterval(c.Recorder.BatchInterval),
		zipkintracer.RecorderBatchSize(c.Recorder.BatchSize),
		zipkintracer.RecorderMaxBacklog(c.Recorder.MaxBacklog),
	)

	options = append([]zipkintracer.TracerOption{
		zipkintracer.WithLogger(logger),
		zipkintracer.WithB3InjectOption(inject),
	}, options...)

	t.Tracer, err = zipkintracer.NewTracer(t.Recorder, []zipkin.TracerOption{
		zipkin.WithLocalEndpoint(ep),
		zipkin.WithSampler(sampler),
		zipkin.WithSharedSpans(c.SharedSpans),
		zipkin.WithTraceID128Bit(c.TraceID128Bit),
	}, options...)
	if err != nil {
		_ = t.Recorder.Close()
		return nil, errors.Wrap(err, "tracer")
	}
	return t, nil
}

// Close flushes pending spans and closes the sender.
func (t *Tracing) Close() error {
	return t.Recorder.Close()
}
