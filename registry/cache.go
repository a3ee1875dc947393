package registry

import (
	"context"
	"sync"

	"github.com/cockroachdb/errors"
)

// Cache serves Discover from instance lists kept current by Watch, so resolving a backend
// does not hit the underlying registry on every request. Services not watched fall through.
type Cache struct {
	Registry

	mu        sync.RWMutex
	instances map[string][]ServiceInstance
}

func NewCache(reg Registry) *Cache {
	return &Cache{Registry: reg, instances: make(map[string][]ServiceInstance)}
}

// Follow keeps the lists of services up to date until ctx is done.
func (c *Cache) Follow(ctx context.Context, services ...string) {
	for _, service := range services {
		updates := c.Registry.Watch(ctx, service)
		go func() {
			for list := range updates {
				c.mu.Lock()
				c.instances[service] = list
				c.mu.Unlock()
			}
			c.mu.Lock()
			delete(c.instances, service)
			c.mu.Unlock()
		}()
	}
}

func (c *Cache) Discover(ctx context.Context, service string) ([]ServiceInstance, error) {
	c.mu.RLock()
	list, ok := c.instances[service]
	c.mu.RUnlock()
	if !ok {
		return c.Registry.Discover(ctx, service)
	}
	if len(list) == 0 {
		return nil, errors.Wrapf(ErrNoInstances, "%q", service)
	}
	return list, nil
}
