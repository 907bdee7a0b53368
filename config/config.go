// Package config loads tracer and recorder settings from YAML files and
// OTTRACE_* environment variables.
package config

import (
	"fmt"
	"time"

	"github.com/pkg/errors"

	zipkintracer "github.com/openzipkin-contrib/zipkin-go-ottrace"
)

// Config is the full tracing configuration of a service.
type Config struct {
	// ServiceName is the local endpoint's service name.
	ServiceName string `yaml:"service_name"`
	// HostPort is the local endpoint address, e.g. "127.0.0.1:8080".
	HostPort string `yaml:"host_port"`
	// ZipkinURL is the Zipkin v2 spans endpoint. Empty keeps spans in memory.
	ZipkinURL string `yaml:"zipkin_url"`
	// SampleRate is the fraction of new traces sampled, in [0, 1].
	SampleRate float64 `yaml:"sample_rate"`
	// SharedSpans makes server spans reuse the client span id.
	SharedSpans bool `yaml:"shared_spans"`
	// TraceID128Bit generates 128 bit trace ids for new traces.
	TraceID128Bit bool `yaml:"trace_id_128bit"`
	// B3Inject is "standard", "single" or "both".
	B3Inject string         `yaml:"b3_inject"`
	Recorder RecorderConfig `yaml:"recorder"`
}

// RecorderConfig tunes the BatchRecorder.
type RecorderConfig struct {
	BatchInterval time.Duration `yaml:"batch_interval"`
	BatchSize     int           `yaml:"batch_size"`
	MaxBacklog    int           `yaml:"max_backlog"`
}

// Default returns the configuration used when nothing is set.
func Default() *Config {
	return &Config{
		ServiceName: "bookstore",
		SampleRate:  1,
		B3Inject:    "standard",
		Recorder: RecorderConfig{
			BatchInterval: time.Second,
			BatchSize:     100,
			MaxBacklog:    1000,
		},
	}
}

// Error reports an invalid setting.
type Error struct {
	Path  string
	Field string
	Err   error
}

func (e *Error) Error() string {
	switch {
	case e.Path != "":
		return fmt.Sprintf("config %s: %v", e.Path, e.Err)
	case e.Field != "":
		return fmt.Sprintf("config field %s: %v", e.Field, e.Err)
	}
	return fmt.Sprintf("config: %v", e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Validate checks every field.
func (c *Config) Validate() error {
	if c.ServiceName == "" {
		return &Error{Field: "service_name", Err: errors.New("must not be empty")}
	}
	if c.SampleRate < 0 || c.SampleRate > 1 {
		return &Error{Field: "sample_rate", Err: errors.Errorf("%v outside [0, 1]", c.SampleRate)}
	}
	if _, err := zipkintracer.ParseB3InjectOption(c.B3Inject); err != nil {
		return &Error{Field: "b3_inject", Err: err}
	}
	if c.Recorder.BatchInterval <= 0 {
		return &Error{Field: "recorder.batch_interval", Err: errors.New("must be positive")}
	}
	if c.Recorder.BatchSize < 1 {
		return &Error{Field: "recorder.batch_size", Err: errors.New("must be at least 1")}
	}
	if c.Recorder.MaxBacklog < c.Recorder.BatchSize {
		return &Error{Field: "recorder.max_backlog", Err: errors.New("must not be smaller than batch_size")}
	}
	return nil
}
