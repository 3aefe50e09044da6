package registry

import (
	"context"
	"sort"
	"strings"
	"sync"

	"guide-rpc/coordinator"
	"guide-rpc/rpclog"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"go.uber.org/multierr"
)

// CoordRegistry is a ServiceRegistry on top of a coordinator.Client.
type CoordRegistry struct {
	client coordinator.Client
	root   string
	cache  *AddressCache // optional, purged on unpublish
	log    *logrus.Entry

	mu    sync.Mutex
	paths map[string]struct{} // every path this process created
}

// NewCoordRegistry creates a registry rooted at root (DefaultRoot when empty).
// cache may be nil.
func NewCoordRegistry(client coordinator.Client, root string, cache *AddressCache, logger *logrus.Entry) *CoordRegistry {
	if root == "" {
		root = DefaultRoot
	}
	return &CoordRegistry{
		client: client,
		root:   root,
		cache:  cache,
		log:    rpclog.Or(logger, "registry"),
		paths:  make(map[string]struct{}),
	}
}

func (r *CoordRegistry) servicePath(serviceKey, address string) string {
	return coordinator.Join(r.root, serviceKey, address)
}

func (r *CoordRegistry) published(path string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.paths[path]
	return ok
}

// Publish creates the provider node unless this process already did. Two processes racing to
// create the same leaf is harmless: both stand for the same address.
func (r *CoordRegistry) Publish(ctx context.Context, serviceKey, address string) error {
	path := r.servicePath(serviceKey, address)
	log := r.log.WithFields(logrus.Fields{"service": serviceKey, "path": path})
	if r.published(path) {
		log.Debug("service already published by this process")
		return nil
	}

	exists, err := r.client.Exists(ctx, path)
	if err != nil {
		log.WithError(err).Error("checking node failed")
		return errors.Wrapf(err, "publish %s", path)
	}
	if exists {
		log.Info("node already exists")
	} else {
		if err := r.client.CreatePersistent(ctx, path); err != nil {
			log.WithError(err).Error("creating node failed")
			return errors.Wrapf(err, "publish %s", path)
		}
		log.Info("node created")
	}

	r.mu.Lock()
	r.paths[path] = struct{}{}
	r.mu.Unlock()
	return nil
}

// UnpublishAll deletes, concurrently, every published path ending in address. Failures are
// logged and combined; they never stop the remaining deletions. Paths added while this runs
// may or may not be removed.
func (r *CoordRegistry) UnpublishAll(ctx context.Context, address string) error {
	suffix := "/" + address
	var targets []string
	r.mu.Lock()
	for p := range r.paths {
		if strings.HasSuffix(p, suffix) {
			targets = append(targets, p)
		}
	}
	r.mu.Unlock()

	var (
		wg     sync.WaitGroup
		errMu  sync.Mutex
		result error
	)
	for _, p := range targets {
		wg.Add(1)
		go func(path string) {
			defer wg.Done()
			err := r.client.Delete(ctx, path)
			if err != nil && !errors.Is(err, coordinator.ErrNoNode) {
				r.log.WithError(err).WithField("path", path).Error("clearing registry path failed")
				errMu.Lock()
				result = multierr.Append(result, errors.Wrapf(err, "unpublish %s", path))
				errMu.Unlock()
				return
			}
			r.forget(path, address)
		}(p)
	}
	wg.Wait()

	r.log.WithFields(logrus.Fields{"address": address, "paths": len(targets)}).Info("registered services cleared")
	return result
}

func (r *CoordRegistry) forget(path, address string) {
	r.mu.Lock()
	delete(r.paths, path)
	r.mu.Unlock()

	if r.cache != nil {
		prefix := strings.TrimSuffix(coordinator.Join(r.root), "/") + "/"
		serviceKey := strings.TrimSuffix(strings.TrimPrefix(path, prefix), "/"+address)
		r.cache.Remove(serviceKey, address)
	}
}

// Paths returns the registered-path set in sorted order.
func (r *CoordRegistry) Paths() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.paths))
	for p := range r.paths {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}
