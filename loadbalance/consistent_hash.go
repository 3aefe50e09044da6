package loadbalance

import (
	"crypto/md5"
	"encoding/binary"
	"sort"
	"strings"

	"guide-rpc/message"

	"github.com/golang/groupcache/consistenthash"
	lru "github.com/hashicorp/golang-lru"
)

const (
	// DefaultReplicas is the number of virtual nodes per provider.
	DefaultReplicas = 160
	// DefaultRingCacheSize bounds how many service rings are kept.
	DefaultRingCacheSize = 256
)

// ConsistentHash maps a request's hash key (service key + arguments) onto a ring of
// virtual nodes and picks the first node clockwise, wrapping to the smallest hash.
//
// One ring is kept per service key and rebuilt only when that service's candidate set changes.
//
//	Hash Ring:
//	                  0
//	                ╱   ╲
//	         B ●               ● A
//	           │    key ◆──►   │   (clockwise to nearest node → A)
//	         C ●               ● A' (virtual node of A)
//	                ╲   ╱
type ConsistentHash struct {
	replicas int
	rings    *lru.Cache // service key → *ring
}

type ring struct {
	identity string // sorted candidates the ring was built from
	m        *consistenthash.Map
}

// NewConsistentHash creates a balancer. Non-positive arguments use the defaults.
func NewConsistentHash(replicas, ringCacheSize int) (*ConsistentHash, error) {
	if replicas <= 0 {
		replicas = DefaultReplicas
	}
	if ringCacheSize <= 0 {
		ringCacheSize = DefaultRingCacheSize
	}
	rings, err := lru.New(ringCacheSize)
	if err != nil {
		return nil, err
	}
	return &ConsistentHash{replicas: replicas, rings: rings}, nil
}

// md5Hash reads the first four bytes of the md5 digest as a little-endian uint32.
func md5Hash(data []byte) uint32 {
	sum := md5.Sum(data)
	return binary.LittleEndian.Uint32(sum[:4])
}

func (b *ConsistentHash) Select(candidates []string, req *message.RpcRequest) (string, error) {
	return selectAddress(candidates, req, b.pick)
}

func (b *ConsistentHash) pick(candidates []string, req *message.RpcRequest) string {
	return b.ringFor(req.ServiceKey(), candidates).m.Get(req.HashKey())
}

func (b *ConsistentHash) ringFor(serviceKey string, candidates []string) *ring {
	sorted := append([]string(nil), candidates...)
	sort.Strings(sorted)
	identity := strings.Join(sorted, ",")

	if v, ok := b.rings.Get(serviceKey); ok {
		if r := v.(*ring); r.identity == identity {
			return r
		}
	}

	m := consistenthash.New(b.replicas, md5Hash)
	m.Add(sorted...)
	r := &ring{identity: identity, m: m}
	b.rings.Add(serviceKey, r)
	return r
}

func (b *ConsistentHash) Name() string {
	return NameConsistentHash
}
