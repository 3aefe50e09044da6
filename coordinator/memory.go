package coordinator

import (
	"context"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
)

// Op names a Memory operation for fault injection.
type Op string

const (
	OpCreate   Op = "create"
	OpChildren Op = "children"
	OpDelete   Op = "delete"
)

// Memory is an in-process coordination tree. Listeners are notified synchronously
// by the goroutine that mutated the tree, after the tree lock is released.
type Memory struct {
	mu        sync.RWMutex
	nodes     map[string]struct{}
	listeners map[string][]ChildrenListener
	faults    map[Op]map[string]error
	closed    bool

	childReads atomic.Int64
}

// NewMemory returns an empty tree containing only the root.
func NewMemory() *Memory {
	return &Memory{
		nodes:     map[string]struct{}{"/": {}},
		listeners: make(map[string][]ChildrenListener),
		faults:    make(map[Op]map[string]error),
	}
}

// InjectError makes op on path fail with err until cleared with a nil err.
func (m *Memory) InjectError(op Op, path string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	path = cleanPath(path)
	if err == nil {
		delete(m.faults[op], path)
		return
	}
	if m.faults[op] == nil {
		m.faults[op] = make(map[string]error)
	}
	m.faults[op][path] = err
}

// ChildReads returns how many Children calls reached the tree.
func (m *Memory) ChildReads() int64 {
	return m.childReads.Load()
}

// Paths returns every node path in sorted order.
func (m *Memory) Paths() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	paths := make([]string, 0, len(m.nodes))
	for p := range m.nodes {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

func (m *Memory) fault(op Op, path string) error {
	return m.faults[op][path]
}

func (m *Memory) CreatePersistent(ctx context.Context, path string) error {
	path = cleanPath(path)
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	if err := m.fault(OpCreate, path); err != nil {
		m.mu.Unlock()
		return err
	}
	var changed []string
	for _, p := range lineage(path) {
		if _, ok := m.nodes[p]; !ok {
			m.nodes[p] = struct{}{}
			changed = append(changed, parentOf(p))
		}
	}
	m.mu.Unlock()

	for _, parent := range changed {
		m.notify(parent)
	}
	return nil
}

func (m *Memory) Exists(ctx context.Context, path string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return false, ErrClosed
	}
	_, ok := m.nodes[cleanPath(path)]
	return ok, nil
}

func (m *Memory) Children(ctx context.Context, path string) ([]string, error) {
	path = cleanPath(path)
	m.childReads.Add(1)
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, ErrClosed
	}
	if err := m.fault(OpChildren, path); err != nil {
		return nil, err
	}
	return m.childrenLocked(path), nil
}

func (m *Memory) childrenLocked(path string) []string {
	prefix := path + "/"
	if path == "/" {
		prefix = "/"
	}
	children := []string{}
	for p := range m.nodes {
		if p == "/" || !strings.HasPrefix(p, prefix) {
			continue
		}
		rest := p[len(prefix):]
		if rest != "" && !strings.Contains(rest, "/") {
			children = append(children, rest)
		}
	}
	sort.Strings(children)
	return children
}

func (m *Memory) Delete(ctx context.Context, path string) error {
	path = cleanPath(path)
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	if err := m.fault(OpDelete, path); err != nil {
		m.mu.Unlock()
		return err
	}
	if _, ok := m.nodes[path]; !ok {
		m.mu.Unlock()
		return ErrNoNode
	}
	delete(m.nodes, path)
	m.mu.Unlock()

	m.notify(parentOf(path))
	return nil
}

func (m *Memory) WatchChildren(ctx context.Context, path string, listener ChildrenListener) error {
	path = cleanPath(path)
	bound := func(p string, children []string) {
		if ctx.Err() == nil {
			listener(p, children)
		}
	}
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	m.listeners[path] = append(m.listeners[path], bound)
	children := m.childrenLocked(path)
	m.mu.Unlock()

	bound(path, children)
	return nil
}

// WatchCount returns how many listeners are installed on path.
func (m *Memory) WatchCount(path string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.listeners[cleanPath(path)])
}

func (m *Memory) notify(path string) {
	m.mu.RLock()
	listeners := append([]ChildrenListener(nil), m.listeners[path]...)
	children := m.childrenLocked(path)
	m.mu.RUnlock()

	for _, l := range listeners {
		l(path, children)
	}
}

func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	m.listeners = make(map[string][]ChildrenListener)
	return nil
}

// lineage returns every ancestor of path (excluding the root) followed by path itself.
func lineage(path string) []string {
	var out []string
	parts := strings.Split(strings.Trim(path, "/"), "/")
	cur := ""
	for _, p := range parts {
		if p == "" {
			continue
		}
		cur += "/" + p
		out = append(out, cur)
	}
	return out
}

func parentOf(path string) string {
	i := strings.LastIndex(path, "/")
	if i <= 0 {
		return "/"
	}
	return path[:i]
}
