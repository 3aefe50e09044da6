// Package coordinator adapts a tree-structured, watch-capable coordination service.
//
// The framework only needs four primitives: create a persistent node (with parents),
// list children, delete a node, and watch the child set of a node. Node values are never read;
// the existence of a path is the only signal.
//
// Three backends implement Client:
//   - ZooKeeper: github.com/go-zookeeper/zk
//   - Etcd:      etcd v3, with the tree emulated by key prefixes
//   - Memory:    an in-process tree used by tests and single-process deployments
package coordinator

import (
	"context"
	"strings"
	"time"

	"github.com/pkg/errors"
)

var (
	// ErrNoNode is returned when a path does not exist.
	ErrNoNode = errors.New("coordinator: node does not exist")
	// ErrClosed is returned by operations on a closed client.
	ErrClosed = errors.New("coordinator: client closed")
)

// ChildrenListener receives the full, current child set of a watched path.
// It runs on a goroutine owned by the Client.
type ChildrenListener func(path string, children []string)

// Client is the Coordination Client Adapter.
type Client interface {
	// CreatePersistent creates path and any missing parents. It succeeds if path already exists.
	CreatePersistent(ctx context.Context, path string) error
	// Exists reports whether path exists.
	Exists(ctx context.Context, path string) (bool, error)
	// Children lists the direct children of path. A missing path has no children.
	Children(ctx context.Context, path string) ([]string, error)
	// Delete removes path. Deleting a missing path returns ErrNoNode.
	Delete(ctx context.Context, path string) error
	// WatchChildren calls listener once with the current children after the watch is armed,
	// then every time the child set of path changes, until ctx is done or the client is closed.
	// Each call installs one more watch; deduplication is the caller's job.
	WatchChildren(ctx context.Context, path string, listener ChildrenListener) error
	// Close releases the connection and stops all watches.
	Close() error
}

// RetryPolicy retries operations that failed because the connection was lost.
// The delay doubles after every attempt, starting at BaseDelay.
type RetryPolicy struct {
	BaseDelay  time.Duration
	MaxRetries int
}

// DefaultRetryPolicy retries three times starting at one second.
var DefaultRetryPolicy = RetryPolicy{BaseDelay: time.Second, MaxRetries: 3}

// Do runs op, retrying while retryable(err) holds.
func (p RetryPolicy) Do(ctx context.Context, retryable func(error) bool, op func() error) error {
	err := op()
	for i := 0; i < p.MaxRetries && err != nil && retryable(err); i++ {
		select {
		case <-ctx.Done():
			return errors.Wrap(ctx.Err(), err.Error())
		case <-time.After(p.BaseDelay * time.Duration(1<<i)):
		}
		err = op()
	}
	return err
}

// Join builds a slash separated path.
func Join(parts ...string) string {
	var b strings.Builder
	for _, p := range parts {
		p = strings.Trim(p, "/")
		if p == "" {
			continue
		}
		b.WriteByte('/')
		b.WriteString(p)
	}
	if b.Len() == 0 {
		return "/"
	}
	return b.String()
}

func cleanPath(path string) string {
	return Join(path)
}
