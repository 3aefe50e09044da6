package coordinator

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"guide-rpc/rpclog"
	"guide-rpc/rpcerr"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	clientv3 "go.etcd.io/etcd/client/v3"
)

// EtcdConfig configures an etcd client.
type EtcdConfig struct {
	Endpoints      []string
	ConnectTimeout time.Duration // bound on the first round trip
	OpTimeout      time.Duration // per attempt
	Retry          RetryPolicy
	Logger         *logrus.Entry
}

// Etcd is a Client over etcd v3.
//
// etcd is a flat key space, so the tree is emulated: a node is a key, and the children of
// path are the first segments of every key below "path/". Parents are implicit.
type Etcd struct {
	cfg EtcdConfig
	log *logrus.Entry

	mu     sync.Mutex
	client *clientv3.Client // thread-safe, shared by all operations
	closed bool
	done   chan struct{}
}

// NewEtcd returns an unconnected client.
func NewEtcd(cfg EtcdConfig) *Etcd {
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = 30 * time.Second
	}
	if cfg.OpTimeout <= 0 {
		cfg.OpTimeout = 5 * time.Second
	}
	return &Etcd{
		cfg:  cfg,
		log:  rpclog.Or(cfg.Logger, "etcd"),
		done: make(chan struct{}),
	}
}

func (e *Etcd) connection() (*clientv3.Client, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil, ErrClosed
	}
	if e.client != nil {
		return e.client, nil
	}

	c, err := clientv3.New(clientv3.Config{
		Endpoints:   e.cfg.Endpoints,
		DialTimeout: e.cfg.ConnectTimeout,
	})
	if err != nil {
		return nil, rpcerr.Wrap(rpcerr.ConnectionFailure, err, "connect etcd %v", e.cfg.Endpoints)
	}

	// clientv3.New does not wait for the cluster; one bounded read does.
	ctx, cancel := context.WithTimeout(context.Background(), e.cfg.ConnectTimeout)
	defer cancel()
	if _, err := c.Get(ctx, "/", clientv3.WithCountOnly()); err != nil {
		c.Close()
		return nil, rpcerr.Wrap(rpcerr.CoordinationTimeout, err, "no etcd response from %v within %s", e.cfg.Endpoints, e.cfg.ConnectTimeout)
	}
	e.log.WithField("endpoints", e.cfg.Endpoints).Info("connected to etcd")
	e.client = c
	return c, nil
}

func (e *Etcd) do(ctx context.Context, op func(ctx context.Context, c *clientv3.Client) error) error {
	c, err := e.connection()
	if err != nil {
		return err
	}
	retryable := func(err error) bool {
		return errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil
	}
	return e.cfg.Retry.Do(ctx, retryable, func() error {
		opCtx, cancel := context.WithTimeout(ctx, e.cfg.OpTimeout)
		defer cancel()
		return op(opCtx, c)
	})
}

func (e *Etcd) CreatePersistent(ctx context.Context, path string) error {
	key := cleanPath(path)
	return e.do(ctx, func(ctx context.Context, c *clientv3.Client) error {
		_, err := c.Txn(ctx).
			If(clientv3.Compare(clientv3.CreateRevision(key), "=", 0)).
			Then(clientv3.OpPut(key, "")).
			Commit()
		return err
	})
}

func (e *Etcd) Exists(ctx context.Context, path string) (bool, error) {
	var exists bool
	err := e.do(ctx, func(ctx context.Context, c *clientv3.Client) error {
		resp, err := c.Get(ctx, cleanPath(path), clientv3.WithCountOnly())
		if err != nil {
			return err
		}
		exists = resp.Count > 0
		return nil
	})
	return exists, err
}

func (e *Etcd) Children(ctx context.Context, path string) ([]string, error) {
	var children []string
	err := e.do(ctx, func(ctx context.Context, c *clientv3.Client) error {
		var err error
		children, err = e.list(ctx, c, cleanPath(path))
		return err
	})
	return children, err
}

func (e *Etcd) list(ctx context.Context, c *clientv3.Client, path string) ([]string, error) {
	prefix := childPrefix(path)
	resp, err := c.Get(ctx, prefix, clientv3.WithPrefix(), clientv3.WithKeysOnly())
	if err != nil {
		return nil, err
	}
	seen := make(map[string]struct{})
	children := []string{}
	for _, kv := range resp.Kvs {
		rest := strings.TrimPrefix(string(kv.Key), prefix)
		child, _, _ := strings.Cut(rest, "/")
		if child == "" {
			continue
		}
		if _, ok := seen[child]; !ok {
			seen[child] = struct{}{}
			children = append(children, child)
		}
	}
	sort.Strings(children)
	return children, nil
}

func (e *Etcd) Delete(ctx context.Context, path string) error {
	return e.do(ctx, func(ctx context.Context, c *clientv3.Client) error {
		resp, err := c.Delete(ctx, cleanPath(path))
		if err != nil {
			return err
		}
		if resp.Deleted == 0 {
			return ErrNoNode
		}
		return nil
	})
}

// WatchChildren watches every key below path and re-lists the children on each change,
// which is simpler than folding individual watch events into the previous list.
func (e *Etcd) WatchChildren(ctx context.Context, path string, listener ChildrenListener) error {
	c, err := e.connection()
	if err != nil {
		return err
	}
	path = cleanPath(path)
	log := e.log.WithField("path", path)

	watchCtx, cancel := context.WithCancel(clientv3.WithRequireLeader(ctx))
	watchChan := c.Watch(watchCtx, childPrefix(path), clientv3.WithPrefix())
	relist := func() {
		listCtx, listCancel := context.WithTimeout(watchCtx, e.cfg.OpTimeout)
		defer listCancel()
		children, err := e.list(listCtx, c, path)
		if err != nil {
			log.WithError(err).Warn("re-listing children failed")
			return
		}
		listener(path, children)
	}
	go func() {
		defer cancel()
		relist()
		for {
			select {
			case resp, ok := <-watchChan:
				if !ok {
					return
				}
				if err := resp.Err(); err != nil {
					log.WithError(err).Warn("etcd watch error")
					continue
				}
				relist()
			case <-e.done:
				return
			}
		}
	}()
	return nil
}

func (e *Etcd) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil
	}
	e.closed = true
	close(e.done)
	if e.client != nil {
		return e.client.Close()
	}
	return nil
}

func childPrefix(path string) string {
	if path == "/" {
		return "/"
	}
	return path + "/"
}
