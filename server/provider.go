package server

import (
	"context"
	"time"

	"guide-rpc/middleware"
	"guide-rpc/provider"
	"guide-rpc/registry"
	"guide-rpc/rpclog"
	"guide-rpc/rpcerr"
	"guide-rpc/transport"

	"github.com/sirupsen/logrus"
)

// ProviderConfig wires a Provider.
type ProviderConfig struct {
	// Registry publishes services. Nil serves without publishing.
	Registry registry.ServiceRegistry
	// AdvertiseAddr is the host:port consumers dial, e.g. "127.0.0.1:9998". It differs from the
	// listen address because ":9998" is not routable.
	AdvertiseAddr string
	// Transport is transport.NameSocket (default) or transport.NameGorpc.
	Transport string
	// Middlewares wrap the request handler, outermost first.
	Middlewares []middleware.Middleware
	Logger      *logrus.Entry
}

// Provider exposes services: it owns the provider table, publishes services to the registry
// and runs the server transport.
type Provider struct {
	table     *provider.Table
	registry  registry.ServiceRegistry
	advertise string
	transport ServerTransport
	log       *logrus.Entry
}

// NewProvider creates a provider. The server transport is created but not started.
func NewProvider(cfg ProviderConfig) (*Provider, error) {
	log := rpclog.Or(cfg.Logger, "provider")
	table := provider.NewTable()
	handler := middleware.Chain(cfg.Middlewares...)(provider.NewHandler(table, cfg.Logger).Serve)

	var st ServerTransport
	switch cfg.Transport {
	case "", transport.NameSocket:
		st = NewServer(handler, cfg.Logger)
	case transport.NameGorpc:
		st = NewGorpcServer(handler, cfg.Logger)
	default:
		return nil, rpcerr.New(rpcerr.ConfigurationError, "unknown transport %q", cfg.Transport)
	}

	if cfg.Registry != nil {
		if _, err := registry.ParseAddress(cfg.AdvertiseAddr); err != nil {
			return nil, err
		}
	}
	return &Provider{
		table:     table,
		registry:  cfg.Registry,
		advertise: cfg.AdvertiseAddr,
		transport: st,
		log:       log.WithField("address", cfg.AdvertiseAddr),
	}, nil
}

// Table returns the provider table.
func (p *Provider) Table() *provider.Table {
	return p.table
}

// Transport returns the server transport.
func (p *Provider) Transport() ServerTransport {
	return p.transport
}

// Publish adds the service to the table and publishes it at the advertise address.
// An unusable instance is an error. A registry failure is only logged: the service stays
// servable locally.
func (p *Provider) Publish(ctx context.Context, cfg provider.ServiceConfig) error {
	serviceKey := cfg.ServiceKey()
	if err := p.table.AddService(serviceKey, cfg.Service); err != nil {
		return err
	}
	if p.registry == nil {
		return nil
	}
	if err := p.registry.Publish(ctx, serviceKey, p.advertise); err != nil {
		p.log.WithError(err).WithField("service", serviceKey).Error("publishing service failed, serving locally only")
		return nil
	}
	p.log.WithField("service", serviceKey).Info("service published")
	return nil
}

// Start serves on listenAddr.
func (p *Provider) Start(listenAddr string) error {
	return p.transport.Start(listenAddr)
}

// Shutdown unpublishes every service of this provider first, so consumers stop routing here,
// then stops the transport and waits up to timeout for in-flight requests.
// Unpublish failures are logged, never returned.
func (p *Provider) Shutdown(ctx context.Context, timeout time.Duration) error {
	if p.registry != nil {
		if err := p.registry.UnpublishAll(ctx, p.advertise); err != nil {
			p.log.WithError(err).Error("unpublishing services failed")
		}
	}
	return p.transport.Stop(timeout)
}
