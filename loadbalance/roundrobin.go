package loadbalance

import (
	"sync/atomic"

	"guide-rpc/message"
)

// RoundRobin cycles through the candidates with a lock-free counter.
// The counter is shared by all services, so the rotation is only even per balancer.
type RoundRobin struct {
	counter atomic.Uint64
}

func (b *RoundRobin) Select(candidates []string, req *message.RpcRequest) (string, error) {
	return selectAddress(candidates, req, b.pick)
}

func (b *RoundRobin) pick(candidates []string, _ *message.RpcRequest) string {
	n := b.counter.Add(1) - 1
	return candidates[n%uint64(len(candidates))]
}

func (b *RoundRobin) Name() string {
	return NameRoundRobin
}
