package transport

import (
	"sync"
	"time"

	"github.com/valyala/gorpc"
)

// clientPool keeps one started gorpc client per provider address. Clients are created lazily
// on first use and stopped together.
type clientPool struct {
	mu      sync.RWMutex
	clients map[string]*gorpc.Client
	timeout time.Duration
	closed  bool
}

func newClientPool(timeout time.Duration) *clientPool {
	return &clientPool{
		clients: make(map[string]*gorpc.Client),
		timeout: timeout,
	}
}

// get returns the client for addr, starting it if needed. It returns nil after close.
func (p *clientPool) get(addr string) *gorpc.Client {
	p.mu.RLock()
	client, ok := p.clients[addr]
	p.mu.RUnlock()
	if ok {
		return client
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	if client, ok = p.clients[addr]; !ok {
		client = &gorpc.Client{Addr: addr, RequestTimeout: p.timeout}
		client.Start()
		p.clients[addr] = client
	}
	return client
}

// len reports how many clients are running.
func (p *clientPool) len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.clients)
}

func (p *clientPool) close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	for addr, client := range p.clients {
		client.Stop()
		delete(p.clients, addr)
	}
}
