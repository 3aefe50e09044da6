// Package provider holds the services this process exposes and dispatches requests to them.
//
// A Table maps a rendered service key to its method registry. The registry of an instance
// is built once, when the instance is added; a Handler resolves each request against it.
package provider

import (
	"reflect"
	"sort"
	"sync"

	"guide-rpc/message"
	"guide-rpc/rpcerr"

	"github.com/pkg/errors"
)

// ServiceConfig describes one service instance to expose.
//
// Interface defaults to the name of the instance's type, so
// ServiceConfig{Service: &HelloServiceImpl{}} publishes "HelloServiceImpl::version::group".
type ServiceConfig struct {
	Service   any
	Interface string
	Version   string
	Group     string
}

// Key returns the service key of the config.
func (c ServiceConfig) Key() message.ServiceKey {
	name := c.Interface
	if name == "" && c.Service != nil {
		name = reflect.Indirect(reflect.ValueOf(c.Service)).Type().Name()
	}
	return message.ServiceKey{Interface: name, Version: c.Version, Group: c.Group}
}

// ServiceKey returns the rendered service key.
func (c ServiceConfig) ServiceKey() string {
	return c.Key().String()
}

// Table is the local service provider table. It is safe for concurrent use.
type Table struct {
	mu       sync.RWMutex
	services map[string]*service
}

// NewTable creates an empty table.
func NewTable() *Table {
	return &Table{services: make(map[string]*service)}
}

// AddService registers instance under serviceKey. Adding a key that is already present is a
// no-op, whatever the instance.
func (t *Table) AddService(serviceKey string, instance any) error {
	if serviceKey == "" {
		return errors.New("provider: empty service key")
	}
	t.mu.RLock()
	_, ok := t.services[serviceKey]
	t.mu.RUnlock()
	if ok {
		return nil
	}

	svc, err := newService(instance)
	if err != nil {
		return err
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.services[serviceKey]; !ok {
		t.services[serviceKey] = svc
	}
	return nil
}

// GetService returns the instance registered under serviceKey.
func (t *Table) GetService(serviceKey string) (any, error) {
	svc, err := t.service(serviceKey)
	if err != nil {
		return nil, err
	}
	return svc.rcvr.Interface(), nil
}

func (t *Table) service(serviceKey string) (*service, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	svc, ok := t.services[serviceKey]
	if !ok {
		return nil, rpcerr.New(rpcerr.ServiceNotFound, "service %s not found", serviceKey)
	}
	return svc, nil
}

// Methods returns the callable method names of the service registered under serviceKey.
func (t *Table) Methods(serviceKey string) ([]string, error) {
	svc, err := t.service(serviceKey)
	if err != nil {
		return nil, err
	}
	return svc.methodNames(), nil
}

// Keys returns every registered service key in sorted order.
func (t *Table) Keys() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	keys := make([]string, 0, len(t.services))
	for k := range t.services {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
