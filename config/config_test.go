package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	zipkintracer "github.com/openzipkin-contrib/zipkin-go-ottrace"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "bookstore", cfg.ServiceName)
	assert.Equal(t, 1.0, cfg.SampleRate)
	assert.Equal(t, time.Second, cfg.Recorder.BatchInterval)
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tracing.yaml")
	content := `
service_name: catalogue
host_port: "127.0.0.1:9000"
sample_rate: 0.25
b3_inject: single
shared_spans: true
recorder:
  batch_interval: 250ms
  batch_size: 10
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "catalogue", cfg.ServiceName)
	assert.Equal(t, "127.0.0.1:9000", cfg.HostPort)
	assert.Equal(t, 0.25, cfg.SampleRate)
	assert.Equal(t, "single", cfg.B3Inject)
	assert.True(t, cfg.SharedSpans)
	assert.Equal(t, 250*time.Millisecond, cfg.Recorder.BatchInterval)
	assert.Equal(t, 10, cfg.Recorder.BatchSize)
	assert.Equal(t, 1000, cfg.Recorder.MaxBacklog, "unset fields keep their defaults")
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	var cfgErr *Error
	require.True(t, errors.As(err, &cfgErr))
	assert.NotEmpty(t, cfgErr.Path)
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestLoadMalformedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("recorder: [1, 2"), 0o644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("OTTRACE_SERVICE_NAME", "from-env")
	t.Setenv("OTTRACE_SAMPLE_RATE", "0.5")
	t.Setenv("OTTRACE_TRACE_ID_128BIT", "true")
	t.Setenv("OTTRACE_BATCH_INTERVAL", "2s")
	t.Setenv("OTTRACE_BATCH_SIZE", "10")
	t.Setenv("OTTRACE_MAX_BACKLOG", "50")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.ServiceName)
	assert.Equal(t, 0.5, cfg.SampleRate)
	assert.True(t, cfg.TraceID128Bit)
	assert.Equal(t, 2*time.Second, cfg.Recorder.BatchInterval)
	assert.Equal(t, 10, cfg.Recorder.BatchSize)
	assert.Equal(t, 50, cfg.Recorder.MaxBacklog)
}

func TestEnvOverrideErrors(t *testing.T) {
	tests := []struct {
		name, value, field string
	}{
		{"SAMPLE_RATE", "lots", "sample_rate"},
		{"SHARED_SPANS", "maybe", "shared_spans"},
		{"TRACE_ID_128BIT", "yes please", "trace_id_128bit"},
		{"BATCH_INTERVAL", "soon", "recorder.batch_interval"},
		{"BATCH_SIZE", "ten", "recorder.batch_size"},
		{"MAX_BACKLOG", "many", "recorder.max_backlog"},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			cfg := Default()
			err := applyEnv(cfg, func(key string) (string, bool) {
				if key == EnvPrefix+test.name {
					return test.value, true
				}
				return "", false
			})
			var cfgErr *Error
			require.True(t, errors.As(err, &cfgErr), "%v", err)
			assert.Equal(t, test.field, cfgErr.Field)
		})
	}
}

func TestValidate(t *testing.T) {
	tests := map[string]func(*Config){
		"empty service":      func(c *Config) { c.ServiceName = "" },
		"rate below zero":    func(c *Config) { c.SampleRate = -0.1 },
		"rate above one":     func(c *Config) { c.SampleRate = 1.5 },
		"unknown b3 style":   func(c *Config) { c.B3Inject = "w3c" },
		"zero interval":      func(c *Config) { c.Recorder.BatchInterval = 0 },
		"zero batch":         func(c *Config) { c.Recorder.BatchSize = 0 },
		"backlog below size": func(c *Config) { c.Recorder.MaxBacklog = c.Recorder.BatchSize - 1 },
	}
	for name, mutate := range tests {
		t.Run(name, func(t *testing.T) {
			cfg := Default()
			mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestNewTracingRecordsInMemory(t *testing.T) {
	cfg := Default()
	cfg.ServiceName = "config-test"
	cfg.B3Inject = "both"

	tr, err := cfg.NewTracing(nil)
	require.NoError(t, err)
	require.NotNil(t, tr.Memory)
	defer tr.Close()

	err = zipkintracer.Trace(context.Background(), tr.Tracer, "configured", func(context.Context) error { return nil })
	require.NoError(t, err)
	require.NoError(t, tr.Recorder.Flush())

	spans := tr.Memory.AllSpans()
	require.Len(t, spans, 1)
	assert.Equal(t, "configured", spans[0].Name)
	assert.Equal(t, "config-test", spans[0].LocalEndpoint.ServiceName)
}

func TestNewTracingRejectsBadHostPort(t *testing.T) {
	cfg := Default()
	cfg.HostPort = "no-port"

	_, err := cfg.NewTracing(nil)
	assert.Error(t, err)
}
