package loadbalance

import (
	"hash/crc32"
	"sort"
	"strconv"
	"strings"
	"sync"

	"portal-rpc/registry"
)

// ConsistentHashBalancer maps record keys onto a hash ring of instances, so updates and
// queries of one city or currency reach the same backend while the instance set is stable.
// Each instance owns replicas virtual nodes to spread keys evenly.
//
//	Hash Ring:
//	                  0
//	                ╱   ╲
//	              ╱       ╲
//	         B ●               ● A
//	           │    key ◆──►   │   (clockwise to nearest node → A)
//	         C ●               ● A' (virtual node of A)
//	              ╲       ╱
//	                ╲   ╱
type ConsistentHashBalancer struct {
	replicas int

	mu   sync.Mutex
	sig  string
	ring *ring
}

type ring struct {
	hashes []uint32
	nodes  map[uint32]registry.ServiceInstance
}

func NewConsistentHashBalancer() *ConsistentHashBalancer {
	return &ConsistentHashBalancer{replicas: 100}
}

func (b *ConsistentHashBalancer) build(instances []registry.ServiceInstance) *ring {
	r := &ring{nodes: make(map[uint32]registry.ServiceInstance, len(instances)*b.replicas)}
	for _, inst := range instances {
		for i := 0; i < b.replicas; i++ {
			h := crc32.ChecksumIEEE([]byte(inst.Addr + "#" + strconv.Itoa(i)))
			if _, taken := r.nodes[h]; taken {
				continue
			}
			r.hashes = append(r.hashes, h)
			r.nodes[h] = inst
		}
	}
	sort.Slice(r.hashes, func(i, j int) bool { return r.hashes[i] < r.hashes[j] })
	return r
}

// ringFor returns the ring of the instance set, rebuilding it only when the set changed.
func (b *ConsistentHashBalancer) ringFor(instances []registry.ServiceInstance) *ring {
	addrs := make([]string, len(instances))
	for i, inst := range instances {
		addrs[i] = inst.Addr
	}
	sort.Strings(addrs)
	sig := strings.Join(addrs, ",")

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.ring == nil || b.sig != sig {
		b.ring = b.build(instances)
		b.sig = sig
	}
	return b.ring
}

func (b *ConsistentHashBalancer) Pick(key string, instances []registry.ServiceInstance) (*registry.ServiceInstance, error) {
	if len(instances) == 0 {
		return nil, ErrNoInstances
	}
	r := b.ringFor(instances)
	h := crc32.ChecksumIEEE([]byte(key))
	idx := sort.Search(len(r.hashes), func(i int) bool { return r.hashes[i] >= h })
	if idx == len(r.hashes) {
		idx = 0
	}
	inst := r.nodes[r.hashes[idx]]
	return &inst, nil
}

func (b *ConsistentHashBalancer) Name() string {
	return "consistent_hash"
}
