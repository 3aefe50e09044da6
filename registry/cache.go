package registry

import (
	"sync"
	"time"

	"github.com/patrickmn/go-cache"
)

// AddressCache maps a service key to its provider addresses. It is shared by a registry and a
// discovery built on the same coordination client, so local unpublishing purges lookups.
//
// Entries never expire unless a ttl is given; the children watch keeps them fresh.
type AddressCache struct {
	mu sync.Mutex // serializes read-modify-write updates; last write wins
	c  *cache.Cache
}

// NewAddressCache creates a cache. ttl <= 0 disables expiry.
func NewAddressCache(ttl time.Duration) *AddressCache {
	cleanup := time.Duration(0)
	if ttl <= 0 {
		ttl = cache.NoExpiration
	} else {
		cleanup = 2 * ttl
	}
	return &AddressCache{c: cache.New(ttl, cleanup)}
}

// Get returns a copy of the cached list for key.
func (a *AddressCache) Get(key string) ([]string, bool) {
	v, ok := a.c.Get(key)
	if !ok {
		return nil, false
	}
	return append([]string(nil), v.([]string)...), true
}

// Set replaces the list for key.
func (a *AddressCache) Set(key string, addrs []string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.c.SetDefault(key, append([]string(nil), addrs...))
}

// Remove drops addr from the list cached for key, if any.
func (a *AddressCache) Remove(key, addr string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	v, ok := a.c.Get(key)
	if !ok {
		return
	}
	old := v.([]string)
	kept := make([]string, 0, len(old))
	for _, x := range old {
		if x != addr {
			kept = append(kept, x)
		}
	}
	a.c.SetDefault(key, kept)
}

// Invalidate forgets key so the next lookup reads the coordination service.
func (a *AddressCache) Invalidate(key string) {
	a.c.Delete(key)
}
