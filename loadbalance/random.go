package loadbalance

import (
	"math/rand"
	"sync"
	"time"

	"guide-rpc/message"
)

// Random picks an index uniformly in [0, len).
type Random struct {
	mu  sync.Mutex // *rand.Rand is not goroutine-safe
	rnd *rand.Rand
}

// NewRandom creates a Random balancer. A nil src seeds from the clock.
func NewRandom(src rand.Source) *Random {
	if src == nil {
		src = rand.NewSource(time.Now().UnixNano())
	}
	return &Random{rnd: rand.New(src)}
}

func (b *Random) Select(candidates []string, req *message.RpcRequest) (string, error) {
	return selectAddress(candidates, req, b.pick)
}

func (b *Random) pick(candidates []string, _ *message.RpcRequest) string {
	b.mu.Lock()
	i := b.rnd.Intn(len(candidates))
	b.mu.Unlock()
	return candidates[i]
}

func (b *Random) Name() string {
	return NameRandom
}
