// Package registry publishes providers to the coordination service and resolves service keys
// back to provider addresses.
//
// Tree layout:
//
//	{root}/{serviceKey}/{host}:{port}
//
// The node value is never used: the existence of a child under {root}/{serviceKey} is the
// registration of one provider at that address.
package registry

import (
	"context"
	"strconv"
	"strings"

	"guide-rpc/message"
	"guide-rpc/rpcerr"
)

// DefaultRoot is the parent of every service node.
const DefaultRoot = "/my-rpc"

// ServiceRegistry publishes the services of this process.
type ServiceRegistry interface {
	// Publish creates {root}/{serviceKey}/{address}. Publishing the same pair twice from one
	// process is a no-op.
	Publish(ctx context.Context, serviceKey, address string) error
	// UnpublishAll removes every path this process published for address. Each deletion is
	// attempted even if others fail.
	UnpublishAll(ctx context.Context, address string) error
}

// ServiceDiscovery resolves a request to one provider address.
type ServiceDiscovery interface {
	Lookup(ctx context.Context, req *message.RpcRequest) (Address, error)
}

// Address is a provider's network address.
type Address struct {
	Host string
	Port int
}

func (a Address) String() string {
	return a.Host + ":" + strconv.Itoa(a.Port)
}

// ParseAddress parses "host:port". The string must contain exactly one colon and a port in 1..65535.
func ParseAddress(s string) (Address, error) {
	parts := strings.Split(s, ":")
	if len(parts) != 2 || parts[0] == "" {
		return Address{}, rpcerr.New(rpcerr.MalformedAddress, "address %q is not host:port", s)
	}
	port, err := strconv.Atoi(parts[1])
	if err != nil || port <= 0 || port > 65535 {
		return Address{}, rpcerr.New(rpcerr.MalformedAddress, "address %q has an invalid port", s)
	}
	return Address{Host: parts[0], Port: port}, nil
}
