// Package loadbalance picks one provider address among the candidates for a call.
//
// Every strategy shares the same two-step policy: a single candidate is returned directly
// without consulting the strategy, otherwise the strategy decides. Strategies:
//   - Random:          uniform pick, injectable source for tests
//   - ConsistentHash:  hash ring with virtual nodes, same arguments → same provider
//   - RoundRobin:      cycle through the candidates
package loadbalance

import (
	"guide-rpc/message"

	"github.com/pkg/errors"
)

// Names used by the extension registry and configuration.
const (
	NameRandom         = "random"
	NameConsistentHash = "consistenthash"
	NameRoundRobin     = "roundrobin"
)

// ErrNoCandidates is returned when Select is given an empty list.
var ErrNoCandidates = errors.New("no candidates available")

// LoadBalancer selects one address from a non-empty candidate list.
// Implementations must be goroutine-safe.
type LoadBalancer interface {
	Select(candidates []string, req *message.RpcRequest) (string, error)
	Name() string
}

type pickFunc func(candidates []string, req *message.RpcRequest) string

// selectAddress applies the policy shared by all strategies.
func selectAddress(candidates []string, req *message.RpcRequest, pick pickFunc) (string, error) {
	switch len(candidates) {
	case 0:
		return "", ErrNoCandidates
	case 1:
		return candidates[0], nil
	}
	return pick(candidates, req), nil
}
