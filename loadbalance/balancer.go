// Package loadbalance picks one instance of a service for each request.
//
// Three strategies are implemented:
//   - RoundRobin:      equal-capacity instances
//   - WeightedRandom:  instances of different capacity
//   - ConsistentHash:  the same record key always reaches the same instance
package loadbalance

import (
	"strings"

	"github.com/cockroachdb/errors"

	"portal-rpc/registry"
)

var (
	ErrNoInstances     = errors.New("loadbalance: no instances available")
	ErrUnknownStrategy = errors.New("loadbalance: unknown strategy")
)

// Balancer selects the instance that serves a request. key is the normalized record key
// the request addresses (see store.Key); strategies that do not need affinity ignore it. Pick is called concurrently.
type Balancer interface {
	Pick(key string, instances []registry.ServiceInstance) (*registry.ServiceInstance, error)
	Name() string
}

// New returns the strategy registered under name. An empty name selects round robin.
func New(name string) (Balancer, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "round_robin", "roundrobin":
		return &RoundRobinBalancer{}, nil
	case "weighted_random", "weightedrandom":
		return &WeightedRandomBalancer{}, nil
	case "consistent_hash", "consistenthash":
		return NewConsistentHashBalancer(), nil
	}
	return nil, errors.Wrapf(ErrUnknownStrategy, "%q", name)
}
