package zipkintracer

import (
	"time"

	"github.com/openzipkin/zipkin-go"
	"github.com/pkg/errors"
)

// NewSampler maps a sample rate in [0, 1] onto a zipkin sampler: 1 samples
// everything, 0 nothing, anything between samples that fraction of trace ids.
func NewSampler(rate float64) (zipkin.Sampler, error) {
	switch {
	case rate < 0 || rate > 1:
		return nil, errors.Errorf("sample rate %v outside [0, 1]", rate)
	case rate == 0:
		return zipkin.NeverSample, nil
	case rate == 1:
		return zipkin.AlwaysSample, nil
	}
	return zipkin.NewBoundarySampler(rate, time.Now().UnixNano())
}
