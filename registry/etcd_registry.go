package registry

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog"
	clientv3 "go.etcd.io/etcd/client/v3"

	"portal-rpc/logging"
)

const DefaultPrefix = "/portal/"

// EtcdRegistry keeps instances in etcd under {prefix}{service}/{addr}, each key bound to a
// lease that is kept alive until Deregister or Close. A crashed process stops renewing and
// its keys expire after the TTL.
type EtcdRegistry struct {
	client *clientv3.Client
	prefix string
	log    zerolog.Logger

	// keepalives outlive the Register call that started them
	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	leases map[string]clientv3.LeaseID
}

func NewEtcdRegistry(endpoints []string, prefix string, dialTimeout time.Duration) (*EtcdRegistry, error) {
	c, err := clientv3.New(clientv3.Config{
		Endpoints:   endpoints,
		DialTimeout: dialTimeout,
	})
	if err != nil {
		return nil, errors.Wrapf(err, "registry: etcd %v", endpoints)
	}
	if prefix == "" {
		prefix = DefaultPrefix
	}
	if !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &EtcdRegistry{
		client: c,
		prefix: prefix,
		log:    logging.For("registry"),
		ctx:    ctx,
		cancel: cancel,
		leases: make(map[string]clientv3.LeaseID),
	}, nil
}

func (r *EtcdRegistry) servicePrefix(service string) string {
	return r.prefix + service + "/"
}

func (r *EtcdRegistry) key(service, addr string) string {
	return r.servicePrefix(service) + addr
}

func (r *EtcdRegistry) Register(ctx context.Context, service string, inst ServiceInstance, ttl int64) error {
	lease, err := r.client.Grant(ctx, ttl)
	if err != nil {
		return errors.Wrapf(err, "registry: grant lease for %s", service)
	}
	val, err := json.Marshal(inst)
	if err != nil {
		return errors.Wrap(err, "registry: encode instance")
	}
	key := r.key(service, inst.Addr)
	if _, err := r.client.Put(ctx, key, string(val), clientv3.WithLease(lease.ID)); err != nil {
		return errors.Wrapf(err, "registry: put %s", key)
	}
	ch, err := r.client.KeepAlive(r.ctx, lease.ID)
	if err != nil {
		return errors.Wrapf(err, "registry: keepalive %s", key)
	}
	go func() {
		for range ch {
		}
	}()

	r.mu.Lock()
	prev, had := r.leases[key]
	r.leases[key] = lease.ID
	r.mu.Unlock()
	if had {
		_, _ = r.client.Revoke(ctx, prev)
	}
	r.log.Info().Str("key", key).Int64("ttl", ttl).Msg("registered")
	return nil
}

// Deregister deletes the instance key and revokes its lease.
func (r *EtcdRegistry) Deregister(ctx context.Context, service, addr string) error {
	key := r.key(service, addr)
	if _, err := r.client.Delete(ctx, key); err != nil {
		return errors.Wrapf(err, "registry: delete %s", key)
	}
	r.mu.Lock()
	id, ok := r.leases[key]
	delete(r.leases, key)
	r.mu.Unlock()
	if ok {
		if _, err := r.client.Revoke(ctx, id); err != nil {
			return errors.Wrapf(err, "registry: revoke %s", key)
		}
	}
	return nil
}

func (r *EtcdRegistry) Discover(ctx context.Context, service string) ([]ServiceInstance, error) {
	resp, err := r.client.Get(ctx, r.servicePrefix(service), clientv3.WithPrefix())
	if err != nil {
		return nil, errors.Wrapf(err, "registry: get %s", service)
	}
	instances := make([]ServiceInstance, 0, len(resp.Kvs))
	for _, kv := range resp.Kvs {
		var inst ServiceInstance
		if err := json.Unmarshal(kv.Value, &inst); err != nil {
			continue
		}
		instances = append(instances, inst)
	}
	if len(instances) == 0 {
		return nil, errors.Wrapf(ErrNoInstances, "%q", service)
	}
	return instances, nil
}

// Watch re-lists the service on every change under its prefix.
func (r *EtcdRegistry) Watch(ctx context.Context, service string) <-chan []ServiceInstance {
	ch := make(chan []ServiceInstance, 1)
	go func() {
		defer close(ch)
		events := r.client.Watch(ctx, r.servicePrefix(service), clientv3.WithPrefix())
		send := func() bool {
			instances, err := r.Discover(ctx, service)
			if err != nil && !errors.Is(err, ErrNoInstances) {
				return ctx.Err() == nil
			}
			select {
			case ch <- instances:
				return true
			case <-ctx.Done():
				return false
			}
		}
		if !send() {
			return
		}
		for range events {
			if !send() {
				return
			}
		}
	}()
	return ch
}

// Close revokes every lease this registry holds and closes the etcd client.
func (r *EtcdRegistry) Close() error {
	r.mu.Lock()
	leases := r.leases
	r.leases = make(map[string]clientv3.LeaseID)
	r.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	for _, id := range leases {
		_, _ = r.client.Revoke(ctx, id)
	}
	r.cancel()
	return r.client.Close()
}
