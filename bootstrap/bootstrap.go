// Package bootstrap declares every built-in extension and assembles providers and consumers
// from a config.Config.
package bootstrap

import (
	"time"

	"guide-rpc/client"
	"guide-rpc/codec"
	"guide-rpc/config"
	"guide-rpc/coordinator"
	"guide-rpc/extension"
	"guide-rpc/loadbalance"
	"guide-rpc/middleware"
	"guide-rpc/registry"
	"guide-rpc/rpclog"
	"guide-rpc/server"
	"guide-rpc/transport"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// NewExtensions declares the built-in implementations of every capability:
//
//	coordinator, registry, discovery, addresscache: zookeeper, etcd, memory
//	loadbalance: random, consistenthash, roundrobin
//	transport:   socket, gorpc (resolving providers through cfg.Coordinator's discovery)
//
// Registry and discovery of one backend share its coordination client and address cache.
func NewExtensions(cfg *config.Config, logger *logrus.Entry) *extension.Extensions {
	log := rpclog.Or(logger, "bootstrap")
	ext := extension.New()
	retry := coordinator.RetryPolicy{BaseDelay: cfg.RetryBaseDelay.Std(), MaxRetries: cfg.MaxRetries}

	ext.Register(extension.Coordinator, config.CoordinatorZooKeeper, func(*extension.Extensions) (any, error) {
		return coordinator.NewZooKeeper(coordinator.ZooKeeperConfig{
			Servers:        []string{cfg.ZooKeeperAddress},
			SessionTimeout: cfg.SessionTimeout.Std(),
			ConnectTimeout: cfg.ConnectTimeout.Std(),
			Retry:          retry,
			Logger:         logger,
		}), nil
	})
	ext.Register(extension.Coordinator, config.CoordinatorEtcd, func(*extension.Extensions) (any, error) {
		return coordinator.NewEtcd(coordinator.EtcdConfig{
			Endpoints:      cfg.EtcdEndpoints,
			ConnectTimeout: cfg.ConnectTimeout.Std(),
			Retry:          retry,
			Logger:         logger,
		}), nil
	})
	ext.Register(extension.Coordinator, config.CoordinatorMemory, func(*extension.Extensions) (any, error) {
		return coordinator.NewMemory(), nil
	})

	for _, backend := range []string{config.CoordinatorZooKeeper, config.CoordinatorEtcd, config.CoordinatorMemory} {
		ext.Register(extension.AddressCache, backend, func(*extension.Extensions) (any, error) {
			return registry.NewAddressCache(cfg.CacheTTL.Std()), nil
		})
		ext.Register(extension.Registry, backend, func(r *extension.Extensions) (any, error) {
			c, cache, err := backendOf(r, backend)
			if err != nil {
				return nil, err
			}
			return registry.NewCoordRegistry(c, cfg.RootPath, cache, logger), nil
		})
		ext.Register(extension.Discovery, backend, func(r *extension.Extensions) (any, error) {
			c, cache, err := backendOf(r, backend)
			if err != nil {
				return nil, err
			}
			lb, err := extension.Get[loadbalance.LoadBalancer](r, extension.LoadBalance, cfg.LoadBalance)
			if err != nil {
				return nil, err
			}
			return registry.NewCoordDiscovery(c, cfg.RootPath, cache, lb, logger), nil
		})
	}

	ext.Register(extension.LoadBalance, loadbalance.NameRandom, func(*extension.Extensions) (any, error) {
		return loadbalance.NewRandom(nil), nil
	})
	ext.Register(extension.LoadBalance, loadbalance.NameConsistentHash, func(*extension.Extensions) (any, error) {
		return loadbalance.NewConsistentHash(loadbalance.DefaultReplicas, cfg.RingCacheSize)
	})
	ext.Register(extension.LoadBalance, loadbalance.NameRoundRobin, func(*extension.Extensions) (any, error) {
		return &loadbalance.RoundRobin{}, nil
	})

	ext.Register(extension.Transport, transport.NameSocket, func(r *extension.Extensions) (any, error) {
		d, ct, err := transportDeps(r, cfg)
		if err != nil {
			return nil, err
		}
		return transport.NewSocketClient(d,
			transport.WithCodec(ct),
			transport.WithDialTimeout(cfg.DialTimeout.Std()),
			transport.WithLogger(logger),
		), nil
	})
	ext.Register(extension.Transport, transport.NameGorpc, func(r *extension.Extensions) (any, error) {
		d, ct, err := transportDeps(r, cfg)
		if err != nil {
			return nil, err
		}
		return transport.NewGorpcClient(d, ct, 0, logger), nil
	})

	log.WithFields(logrus.Fields{
		"coordinator": cfg.Coordinator,
		"loadBalance": cfg.LoadBalance,
		"transport":   cfg.Transport,
	}).Debug("extensions declared")
	return ext
}

func backendOf(r *extension.Extensions, backend string) (coordinator.Client, *registry.AddressCache, error) {
	c, err := extension.Get[coordinator.Client](r, extension.Coordinator, backend)
	if err != nil {
		return nil, nil, err
	}
	cache, err := extension.Get[*registry.AddressCache](r, extension.AddressCache, backend)
	if err != nil {
		return nil, nil, err
	}
	return c, cache, nil
}

func transportDeps(r *extension.Extensions, cfg *config.Config) (registry.ServiceDiscovery, codec.CodecType, error) {
	ct, err := codec.ParseCodecType(cfg.Codec)
	if err != nil {
		return nil, 0, err
	}
	d, err := extension.Get[registry.ServiceDiscovery](r, extension.Discovery, cfg.Coordinator)
	if err != nil {
		return nil, 0, err
	}
	return d, ct, nil
}

// Middlewares returns the provider middlewares enabled by cfg, outermost first.
func Middlewares(cfg *config.Config, logger *logrus.Entry) []middleware.Middleware {
	mws := []middleware.Middleware{middleware.Logging(logger), middleware.Recover(logger)}
	if cfg.RateLimit > 0 {
		mws = append(mws, middleware.RateLimit(cfg.RateLimit, cfg.RateBurst))
	}
	if cfg.HandlerTimeout > 0 {
		mws = append(mws, middleware.Timeout(cfg.HandlerTimeout.Std()))
	}
	return mws
}

// NewProvider assembles a provider publishing through cfg.Coordinator.
func NewProvider(ext *extension.Extensions, cfg *config.Config, logger *logrus.Entry) (*server.Provider, error) {
	reg, err := extension.Get[registry.ServiceRegistry](ext, extension.Registry, cfg.Coordinator)
	if err != nil {
		return nil, err
	}
	return server.NewProvider(server.ProviderConfig{
		Registry:      reg,
		AdvertiseAddr: cfg.AdvertiseAddr,
		Transport:     cfg.Transport,
		Middlewares:   Middlewares(cfg, logger),
		Logger:        logger,
	})
}

// NewClient assembles a consumer using the transport named by cfg.Transport.
func NewClient(ext *extension.Extensions, cfg *config.Config, logger *logrus.Entry) (*client.Client, error) {
	rt, err := extension.Get[transport.RequestTransport](ext, extension.Transport, cfg.Transport)
	if err != nil {
		return nil, errors.Wrap(err, "resolve transport")
	}
	opts := []client.Option{client.WithLogger(logger)}
	if cfg.CallRetries > 0 {
		delay := cfg.CallRetryDelay.Std()
		if delay <= 0 {
			delay = 100 * time.Millisecond
		}
		opts = append(opts, client.WithRetry(cfg.CallRetries, delay))
	}
	return client.NewClient(rt, opts...), nil
}
