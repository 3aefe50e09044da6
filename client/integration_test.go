package client

import (
	"context"
	"net"
	"testing"
	"time"

	"guide-rpc/coordinator"
	"guide-rpc/example/hello"
	"guide-rpc/loadbalance"
	"guide-rpc/message"
	"guide-rpc/middleware"
	"guide-rpc/registry"
	"guide-rpc/rpcerr"
	"guide-rpc/server"
	"guide-rpc/transport"
)

var helloKey = message.ServiceKey{Interface: hello.Interface, Version: hello.Version, Group: hello.Group}

// startProviders publishes the hello service on every address through store.
func startProviders(t testing.TB, store coordinator.Client, addrs ...string) []*server.Provider {
	t.Helper()
	reg := registry.NewCoordRegistry(store, "", nil, nil)
	var providers []*server.Provider
	for _, addr := range addrs {
		p, err := server.NewProvider(server.ProviderConfig{
			Registry:      reg,
			AdvertiseAddr: addr,
			Middlewares:   []middleware.Middleware{middleware.Logging(nil), middleware.Recover(nil)},
		})
		if err != nil {
			t.Fatal(err)
		}
		if err := p.Publish(context.Background(), hello.ServiceConfig()); err != nil {
			t.Fatal(err)
		}
		if err := p.Start(addr); err != nil {
			t.Fatal(err)
		}
		providers = append(providers, p)
	}
	t.Cleanup(func() {
		for _, p := range providers {
			p.Shutdown(context.Background(), 3*time.Second)
		}
	})
	return providers
}

func newSocketClient(t testing.TB, store coordinator.Client, lb loadbalance.LoadBalancer) *Client {
	d := registry.NewCoordDiscovery(store, "", nil, lb, nil)
	t.Cleanup(func() { d.Close() })
	return NewClient(transport.NewSocketClient(d))
}

// Client -> Discovery -> LB -> Transport -> Protocol -> Codec -> Middleware -> Handler
func TestFullIntegration(t *testing.T) {
	store := coordinator.NewMemory()
	startProviders(t, store, "127.0.0.1:19090")
	cli := newSocketClient(t, store, &loadbalance.RoundRobin{})
	stub := cli.Service(helloKey)

	var greeting string
	if err := stub.Call(context.Background(), "hello", &greeting, &hello.Hello{Message: "hi", Description: "integration"}); err != nil {
		t.Fatal(err)
	}
	if greeting != "Hello description is integration" {
		t.Fatalf("unexpected greeting %q", greeting)
	}

	var shout string
	if err := stub.Call(context.Background(), "shout", &shout, "go", 2); err != nil {
		t.Fatal(err)
	}
	if shout != "GOGO" {
		t.Fatalf("expect GOGO, got %q", shout)
	}

	err := stub.Call(context.Background(), "whisper", nil, "go")
	if !rpcerr.Is(err, rpcerr.DispatchFailure) {
		t.Fatalf("expect DispatchFailure, got %v", err)
	}

	other := helloKey
	other.Version = "version2"
	err = cli.Service(other).Call(context.Background(), "hello", nil, &hello.Hello{})
	if !rpcerr.Is(err, rpcerr.ServiceNotFound) {
		t.Fatalf("expect ServiceNotFound, got %v", err)
	}
}

// several providers behind round robin, every request must succeed
func TestMultiServer(t *testing.T) {
	store := coordinator.NewMemory()
	startProviders(t, store, "127.0.0.1:19091", "127.0.0.1:19092")
	stub := newSocketClient(t, store, &loadbalance.RoundRobin{}).Service(helloKey)

	for i := 1; i <= 10; i++ {
		var shout string
		if err := stub.Call(context.Background(), "shout", &shout, "a", i); err != nil {
			t.Fatalf("request %d failed: %v", i, err)
		}
		if len(shout) != i {
			t.Fatalf("request %d: unexpected %q", i, shout)
		}
	}
}

func TestFullIntegrationWithEtcd(t *testing.T) {
	requireListener(t, "127.0.0.1:2379")
	store := coordinator.NewEtcd(coordinator.EtcdConfig{Endpoints: []string{"127.0.0.1:2379"}})
	defer store.Close()

	startProviders(t, store, "127.0.0.1:19093")
	stub := newSocketClient(t, store, &loadbalance.RoundRobin{}).Service(helloKey)

	var greeting string
	if err := stub.Call(context.Background(), "hello", &greeting, &hello.Hello{Description: "etcd"}); err != nil {
		t.Fatal(err)
	}
	if greeting != "Hello description is etcd" {
		t.Fatalf("unexpected greeting %q", greeting)
	}
}

func TestFullIntegrationWithZooKeeper(t *testing.T) {
	requireListener(t, "127.0.0.1:2181")
	store := coordinator.NewZooKeeper(coordinator.ZooKeeperConfig{Servers: []string{"127.0.0.1:2181"}})
	defer store.Close()

	startProviders(t, store, "127.0.0.1:19094")
	stub := newSocketClient(t, store, &loadbalance.RoundRobin{}).Service(helloKey)

	var greeting string
	if err := stub.Call(context.Background(), "hello", &greeting, &hello.Hello{Description: "zookeeper"}); err != nil {
		t.Fatal(err)
	}
	if greeting != "Hello description is zookeeper" {
		t.Fatalf("unexpected greeting %q", greeting)
	}
}

func requireListener(t *testing.T, addr string) {
	t.Helper()
	conn, err := net.DialTimeout("tcp", addr, 200*time.Millisecond)
	if err != nil {
		t.Skipf("no server on %s: %v", addr, err)
	}
	conn.Close()
}
