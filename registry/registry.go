// Package registry resolves a domain's service name to the instances that serve it.
//
// The default Static registry derives every address from the base port: the gateway
// listens on base_port and the microservice of a domain on base_port + 1 + ordinal. The
// etcd registry is an optional resolver behind the same interface.
package registry

import (
	"context"

	"github.com/cockroachdb/errors"

	"portal-rpc/message"
)

var ErrNoInstances = errors.New("registry: no instances")

// ServiceInstance is one address serving a service.
type ServiceInstance struct {
	Addr    string `json:"addr"`
	Weight  int    `json:"weight"`
	Version string `json:"version"`
}

type Registry interface {
	// Register announces inst under service. ttl is in seconds; resolvers without expiry
	// ignore it.
	Register(ctx context.Context, service string, inst ServiceInstance, ttl int64) error
	Deregister(ctx context.Context, service, addr string) error
	// Discover lists the instances of service, failing with ErrNoInstances when none exist.
	Discover(ctx context.Context, service string) ([]ServiceInstance, error)
	// Watch emits the instance list of service whenever it changes, starting with the
	// current one. The channel is closed when ctx is done.
	Watch(ctx context.Context, service string) <-chan []ServiceInstance
}

// Port returns the port of the microservice that serves domain d.
func Port(base int, d message.Domain) int {
	return base + 1 + int(d)
}

// ServiceName is the name a domain's microservice registers under.
func ServiceName(d message.Domain) string {
	return d.String()
}
