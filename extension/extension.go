// Package extension resolves a capability and a configured name to a singleton implementation.
//
// Factories are registered at startup; instances are built on first request and then reused
// for the lifetime of the Registry. A factory may resolve other extensions through the
// registry it is given, as long as the dependencies do not form a cycle.
package extension

import (
	"io"
	"sort"
	"sync"

	"guide-rpc/rpcerr"

	"go.uber.org/multierr"
)

// Capabilities resolved through the registry.
const (
	Coordinator  = "coordinator"
	Registry     = "registry"
	Discovery    = "discovery"
	LoadBalance  = "loadbalance"
	Transport    = "transport"
	AddressCache = "addresscache"
)

// Factory builds the implementation of one (capability, name) pair.
type Factory func(r *Extensions) (any, error)

type key struct {
	capability, name string
}

type instance struct {
	mu    sync.Mutex
	built bool
	value any
}

// Extensions is a registry of named factories per capability.
type Extensions struct {
	mu        sync.Mutex
	factories map[key]Factory
	instances map[key]*instance
	order     []key // build order, for Close
}

// New creates an empty registry.
func New() *Extensions {
	return &Extensions{
		factories: make(map[key]Factory),
		instances: make(map[key]*instance),
	}
}

// Register declares the factory of name for capability, replacing any earlier one.
// It must not be called after the pair has been resolved.
func (r *Extensions) Register(capability, name string, factory Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[key{capability, name}] = factory
}

// Names returns the names declared for capability in sorted order.
func (r *Extensions) Names(capability string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var names []string
	for k := range r.factories {
		if k.capability == capability {
			names = append(names, k.name)
		}
	}
	sort.Strings(names)
	return names
}

// Get returns the singleton of (capability, name), building it on first use.
// An undeclared pair is a ConfigurationError. A factory error is returned as is and the
// next Get tries again.
func (r *Extensions) Get(capability, name string) (any, error) {
	k := key{capability, name}
	r.mu.Lock()
	factory, ok := r.factories[k]
	if !ok {
		r.mu.Unlock()
		return nil, rpcerr.New(rpcerr.ConfigurationError, "no %s extension named %q", capability, name)
	}
	inst, ok := r.instances[k]
	if !ok {
		inst = &instance{}
		r.instances[k] = inst
	}
	r.mu.Unlock()

	inst.mu.Lock()
	defer inst.mu.Unlock()
	if inst.built {
		return inst.value, nil
	}
	value, err := factory(r)
	if err != nil {
		return nil, err
	}
	inst.value, inst.built = value, true

	r.mu.Lock()
	r.order = append(r.order, k)
	r.mu.Unlock()
	return value, nil
}

// Get resolves (capability, name) and asserts it to T.
func Get[T any](r *Extensions, capability, name string) (T, error) {
	var zero T
	v, err := r.Get(capability, name)
	if err != nil {
		return zero, err
	}
	t, ok := v.(T)
	if !ok {
		return zero, rpcerr.New(rpcerr.ConfigurationError, "%s extension %q is a %T", capability, name, v)
	}
	return t, nil
}

// Close closes every built instance that is an io.Closer, most recently built first.
func (r *Extensions) Close() error {
	r.mu.Lock()
	order := r.order
	r.order = nil
	instances := make([]any, 0, len(order))
	for i := len(order) - 1; i >= 0; i-- {
		inst := r.instances[order[i]]
		instances = append(instances, inst.value)
		delete(r.instances, order[i])
	}
	r.mu.Unlock()

	var err error
	for _, v := range instances {
		if c, ok := v.(io.Closer); ok {
			err = multierr.Append(err, c.Close())
		}
	}
	return err
}
