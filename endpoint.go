package zipkintracer

import (
	"github.com/openzipkin/zipkin-go"
	"github.com/openzipkin/zipkin-go/model"
	"github.com/pkg/errors"
)

// NewEndpoint builds the local endpoint for serviceName. hostPort is
// resolved into an IPv4 and/or IPv6 address and a port; an empty hostPort
// yields an endpoint carrying only the service name.
//
// If the application does not listen for incoming requests use a zero
// port, e.g. "192.168.1.12:0" or "0.0.0.0:0".
func NewEndpoint(serviceName, hostPort string) (*model.Endpoint, error) {
	ep, err := zipkin.NewEndpoint(serviceName, hostPort)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid local endpoint %q", hostPort)
	}
	if ep == nil {
		ep = &model.Endpoint{}
	}
	return ep, nil
}
