package zipkintracer

import (
	"strings"

	otobserver "github.com/opentracing-contrib/go-observer"
	"github.com/pkg/errors"
)

// B3InjectOption type holds information on B3 injection style when using
// native OpenTracing HTTPHeadersCarrier.
type B3InjectOption int

// Available B3InjectOption values
const (
	B3InjectStandard B3InjectOption = iota
	B3InjectSingle
	B3InjectBoth
)

// ParseB3InjectOption maps "standard", "single" or "both" to a B3InjectOption.
// An empty string selects the standard multi-header style.
func ParseB3InjectOption(s string) (B3InjectOption, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "standard", "multi":
		return B3InjectStandard, nil
	case "single":
		return B3InjectSingle, nil
	case "both":
		return B3InjectBoth, nil
	}
	return B3InjectStandard, errors.Errorf("unknown b3 inject style %q", s)
}

// TracerOptions allows creating a customized Tracer.
type TracerOptions struct {
	observer    *observer
	b3InjectOpt B3InjectOption
	logger      Logger
}

// TracerOption allows for functional options.
// See: http://dave.cheney.net/2014/10/17/functional-options-for-friendly-apis
type TracerOption func(opts *TracerOptions)

// WithObserver registers an observer. It can be given more than once; every
// registered observer is notified.
func WithObserver(o otobserver.Observer) TracerOption {
	return func(opts *TracerOptions) {
		if o == nil {
			return
		}
		if opts.observer == nil {
			opts.observer = &observer{}
		}
		opts.observer.observers = append(opts.observer.observers, o)
	}
}

// WithB3InjectOption sets the B3 injection style if using the native OpenTracing HTTPHeadersCarrier
func WithB3InjectOption(b3InjectOption B3InjectOption) TracerOption {
	return func(opts *TracerOptions) {
		opts.b3InjectOpt = b3InjectOption
	}
}

// WithLogger sets the logger used to report propagation problems.
func WithLogger(logger Logger) TracerOption {
	return func(opts *TracerOptions) {
		if logger != nil {
			opts.logger = logger
		}
	}
}
