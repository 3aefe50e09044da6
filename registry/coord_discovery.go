package registry

import (
	"context"
	"sync"

	"guide-rpc/coordinator"
	"guide-rpc/loadbalance"
	"guide-rpc/message"
	"guide-rpc/rpclog"
	"guide-rpc/rpcerr"

	"github.com/sirupsen/logrus"
)

// CoordDiscovery is a ServiceDiscovery that caches child lists and keeps them fresh with one
// children watch per service key.
//
// Lookups never wait for the watch: they use whatever is cached and read the coordination
// service only on a miss.
type CoordDiscovery struct {
	client   coordinator.Client
	root     string
	cache    *AddressCache
	balancer loadbalance.LoadBalancer
	log      *logrus.Entry

	mu      sync.Mutex
	watched map[string]struct{}
	// updates counts watch deliveries per service key. A cache fill from a direct read is
	// dropped if the count moved during the read.
	updates map[string]uint64

	// watchCtx bounds every watch installed by this discovery.
	watchCtx context.Context
	cancel   context.CancelFunc
}

// NewCoordDiscovery creates a discovery. A nil cache gets a private one without expiry.
func NewCoordDiscovery(client coordinator.Client, root string, cache *AddressCache, balancer loadbalance.LoadBalancer, logger *logrus.Entry) *CoordDiscovery {
	if root == "" {
		root = DefaultRoot
	}
	if cache == nil {
		cache = NewAddressCache(0)
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &CoordDiscovery{
		client:   client,
		root:     root,
		cache:    cache,
		balancer: balancer,
		log:      rpclog.Or(logger, "discovery"),
		watched:  make(map[string]struct{}),
		updates:  make(map[string]uint64),
		watchCtx: ctx,
		cancel:   cancel,
	}
}

// Lookup resolves the request's service key to one provider address.
func (d *CoordDiscovery) Lookup(ctx context.Context, req *message.RpcRequest) (Address, error) {
	serviceKey := req.ServiceKey()
	candidates, err := d.Candidates(ctx, serviceKey)
	if err != nil {
		return Address{}, err
	}
	if len(candidates) == 0 {
		return Address{}, rpcerr.New(rpcerr.ServiceNotFound, "no provider for service %s", serviceKey)
	}

	target, err := d.balancer.Select(candidates, req)
	if err != nil {
		return Address{}, rpcerr.Wrap(rpcerr.ServiceNotFound, err, "no provider selected for service %s", serviceKey)
	}
	addr, err := ParseAddress(target)
	if err != nil {
		return Address{}, err
	}
	d.log.WithFields(logrus.Fields{"service": serviceKey, "address": target}).Debug("service address found")
	return addr, nil
}

// Candidates returns every provider address known for serviceKey, reading the coordination
// service and installing the watch on a cache miss.
func (d *CoordDiscovery) Candidates(ctx context.Context, serviceKey string) ([]string, error) {
	if addrs, ok := d.cache.Get(serviceKey); ok {
		return addrs, nil
	}

	d.mu.Lock()
	seen := d.updates[serviceKey]
	d.mu.Unlock()

	path := coordinator.Join(d.root, serviceKey)
	addrs, err := d.client.Children(ctx, path)
	if err != nil {
		if rpcerr.KindOf(err) != rpcerr.Unknown {
			return nil, err
		}
		return nil, rpcerr.Wrap(rpcerr.ServiceNotFound, err, "listing providers of %s failed", serviceKey)
	}
	if !d.fill(serviceKey, addrs, seen) {
		if cached, ok := d.cache.Get(serviceKey); ok {
			addrs = cached
		}
	}
	d.ensureWatch(serviceKey, path)
	return addrs, nil
}

// fill caches addrs unless a watch update arrived after seen was taken.
func (d *CoordDiscovery) fill(serviceKey string, addrs []string, seen uint64) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.updates[serviceKey] != seen {
		return false
	}
	d.cache.Set(serviceKey, addrs)
	return true
}

func (d *CoordDiscovery) refresh(serviceKey string, children []string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.updates[serviceKey]++
	d.cache.Set(serviceKey, children)
}

// ensureWatch installs at most one children watch per service key.
func (d *CoordDiscovery) ensureWatch(serviceKey, path string) {
	d.mu.Lock()
	if _, ok := d.watched[serviceKey]; ok {
		d.mu.Unlock()
		return
	}
	d.watched[serviceKey] = struct{}{}
	d.mu.Unlock()

	err := d.client.WatchChildren(d.watchCtx, path, func(_ string, children []string) {
		d.refresh(serviceKey, children)
		d.log.WithFields(logrus.Fields{"service": serviceKey, "providers": len(children)}).Debug("provider list refreshed")
	})
	if err != nil {
		d.log.WithError(err).WithField("service", serviceKey).Warn("installing children watch failed")
		d.mu.Lock()
		delete(d.watched, serviceKey)
		d.mu.Unlock()
	}
}

// Invalidate drops the cached list for serviceKey; its watch stays installed.
func (d *CoordDiscovery) Invalidate(serviceKey string) {
	d.cache.Invalidate(serviceKey)
}

// Close stops every watch installed by this discovery.
func (d *CoordDiscovery) Close() error {
	d.cancel()
	return nil
}
