package registry

import (
	"context"
	"net"
	"strconv"
	"sync"

	"github.com/cockroachdb/errors"

	"portal-rpc/message"
)

// Static resolves each domain to host:Port(base, domain). Instances registered at runtime
// are listed after the derived one.
type Static struct {
	host     string
	basePort int

	mu       sync.RWMutex
	extra    map[string][]ServiceInstance
	watchers map[string][]chan []ServiceInstance
}

func NewStatic(host string, basePort int) *Static {
	return &Static{
		host:     host,
		basePort: basePort,
		extra:    make(map[string][]ServiceInstance),
		watchers: make(map[string][]chan []ServiceInstance),
	}
}

// Addr returns the derived address of domain d.
func (s *Static) Addr(d message.Domain) string {
	return net.JoinHostPort(s.host, strconv.Itoa(Port(s.basePort, d)))
}

func (s *Static) derived(service string) (ServiceInstance, bool) {
	d, err := message.ParseDomain(service)
	if err != nil {
		return ServiceInstance{}, false
	}
	return ServiceInstance{Addr: s.Addr(d), Weight: 1}, true
}

func (s *Static) Register(_ context.Context, service string, inst ServiceInstance, _ int64) error {
	if fixed, ok := s.derived(service); ok && fixed.Addr == inst.Addr {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	list := s.extra[service]
	for i := range list {
		if list[i].Addr == inst.Addr {
			list[i] = inst
			s.notify(service)
			return nil
		}
	}
	s.extra[service] = append(list, inst)
	s.notify(service)
	return nil
}

// Deregister removes a runtime registration. Derived addresses cannot be removed.
func (s *Static) Deregister(_ context.Context, service, addr string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	list := s.extra[service]
	for i := range list {
		if list[i].Addr == addr {
			s.extra[service] = append(list[:i:i], list[i+1:]...)
			s.notify(service)
			return nil
		}
	}
	return nil
}

func (s *Static) Discover(_ context.Context, service string) ([]ServiceInstance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := s.snapshot(service)
	if len(out) == 0 {
		return nil, errors.Wrapf(ErrNoInstances, "%q", service)
	}
	return out, nil
}

func (s *Static) Watch(ctx context.Context, service string) <-chan []ServiceInstance {
	ch := make(chan []ServiceInstance, 1)
	s.mu.Lock()
	ch <- s.snapshot(service)
	s.watchers[service] = append(s.watchers[service], ch)
	s.mu.Unlock()

	context.AfterFunc(ctx, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		ws := s.watchers[service]
		for i := range ws {
			if ws[i] == ch {
				s.watchers[service] = append(ws[:i:i], ws[i+1:]...)
				break
			}
		}
		close(ch)
	})
	return ch
}

// snapshot must be called with mu held.
func (s *Static) snapshot(service string) []ServiceInstance {
	var out []ServiceInstance
	if fixed, ok := s.derived(service); ok {
		out = append(out, fixed)
	}
	return append(out, s.extra[service]...)
}

// notify replaces any undelivered list with the current one. mu must be held.
func (s *Static) notify(service string) {
	list := s.snapshot(service)
	for _, ch := range s.watchers[service] {
		select {
		case <-ch:
		default:
		}
		ch <- list
	}
}
