package config

import (
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "OTTRACE_"

// Load builds a Config from the defaults, the YAML file at path (skipped
// when path is empty) and the OTTRACE_* environment, in that order, and
// validates the result.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, &Error{Path: path, Err: err}
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, &Error{Path: path, Err: err}
		}
	}

	if err := applyEnv(cfg, os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

type lookupFunc func(string) (string, bool)

func applyEnv(cfg *Config, lookup lookupFunc) error {
	str := func(name string, dst *string) {
		if v, ok := lookup(EnvPrefix + name); ok {
			*dst = v
		}
	}
	str("SERVICE_NAME", &cfg.ServiceName)
	str("HOST_PORT", &cfg.HostPort)
	str("ZIPKIN_URL", &cfg.ZipkinURL)
	str("B3_INJECT", &cfg.B3Inject)

	if v, ok := lookup(EnvPrefix + "SAMPLE_RATE"); ok {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return &Error{Field: "sample_rate", Err: err}
		}
		cfg.SampleRate = f
	}

	bools := []struct {
		env, field string
		dst        *bool
	}{
		{"SHARED_SPANS", "shared_spans", &cfg.SharedSpans},
		{"TRACE_ID_128BIT", "trace_id_128bit", &cfg.TraceID128Bit},
	}
	for _, o := range bools {
		if v, ok := lookup(EnvPrefix + o.env); ok {
			b, err := strconv.ParseBool(v)
			if err != nil {
				return &Error{Field: o.field, Err: err}
			}
			*o.dst = b
		}
	}

	if v, ok := lookup(EnvPrefix + "BATCH_INTERVAL"); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			return &Error{Field: "recorder.batch_interval", Err: err}
		}
		cfg.Recorder.BatchInterval = d
	}

	ints := []struct {
		env, field string
		dst        *int
	}{
		{"BATCH_SIZE", "recorder.batch_size", &cfg.Recorder.BatchSize},
		{"MAX_BACKLOG", "recorder.max_backlog", &cfg.Recorder.MaxBacklog},
	}
	for _, o := range ints {
		if v, ok := lookup(EnvPrefix + o.env); ok {
			n, err := strconv.Atoi(v)
			if err != nil {
				return &Error{Field: o.field, Err: err}
			}
			*o.dst = n
		}
	}
	return nil
}
