package coordinator

import (
	"context"
	"sync"
	"time"

	"guide-rpc/rpclog"
	"guide-rpc/rpcerr"

	"github.com/go-zookeeper/zk"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

const persistentFlag int32 = 0

// ZooKeeperConfig configures a ZooKeeper client.
type ZooKeeperConfig struct {
	Servers        []string
	SessionTimeout time.Duration
	ConnectTimeout time.Duration // bound on waiting for the first session
	Retry          RetryPolicy
	Logger         *logrus.Entry
}

// ZooKeeper is a Client backed by github.com/go-zookeeper/zk.
//
// The connection is created lazily on first use and then shared by every operation;
// the zk library reconnects on its own, so a live *zk.Conn is never replaced.
type ZooKeeper struct {
	cfg ZooKeeperConfig
	log *logrus.Entry

	mu     sync.Mutex
	conn   *zk.Conn
	closed bool
	done   chan struct{}
}

// NewZooKeeper returns an unconnected client.
func NewZooKeeper(cfg ZooKeeperConfig) *ZooKeeper {
	if cfg.SessionTimeout <= 0 {
		cfg.SessionTimeout = 10 * time.Second
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = 30 * time.Second
	}
	return &ZooKeeper{
		cfg:  cfg,
		log:  rpclog.Or(cfg.Logger, "zookeeper"),
		done: make(chan struct{}),
	}
}

// connection returns the shared connection, connecting on first use.
// Connecting blocks until a session is established or ConnectTimeout elapses.
func (z *ZooKeeper) connection() (*zk.Conn, error) {
	z.mu.Lock()
	defer z.mu.Unlock()
	if z.closed {
		return nil, ErrClosed
	}
	if z.conn != nil {
		return z.conn, nil
	}

	conn, events, err := zk.Connect(z.cfg.Servers, z.cfg.SessionTimeout, zk.WithLogger(z.log))
	if err != nil {
		return nil, rpcerr.Wrap(rpcerr.ConnectionFailure, err, "connect zookeeper %v", z.cfg.Servers)
	}
	session := make(chan struct{})
	go z.trackSession(events, session)

	select {
	case <-session:
	case <-time.After(z.cfg.ConnectTimeout):
		conn.Close()
		return nil, rpcerr.New(rpcerr.CoordinationTimeout, "no zookeeper session with %v within %s", z.cfg.Servers, z.cfg.ConnectTimeout)
	}
	z.log.WithField("servers", z.cfg.Servers).Info("connected to zookeeper")
	z.conn = conn
	return conn, nil
}

func (z *ZooKeeper) trackSession(events <-chan zk.Event, session chan struct{}) {
	var once sync.Once
	for ev := range events {
		if ev.Type != zk.EventSession {
			continue
		}
		if ev.State == zk.StateHasSession {
			once.Do(func() { close(session) })
		}
		z.log.WithField("state", ev.State.String()).Debug("zookeeper session event")
	}
}

func retryableZK(err error) bool {
	return errors.Is(err, zk.ErrConnectionClosed) || errors.Is(err, zk.ErrNoServer) || errors.Is(err, zk.ErrSessionMoved)
}

func (z *ZooKeeper) do(ctx context.Context, op func(conn *zk.Conn) error) error {
	conn, err := z.connection()
	if err != nil {
		return err
	}
	return z.cfg.Retry.Do(ctx, retryableZK, func() error { return op(conn) })
}

func (z *ZooKeeper) CreatePersistent(ctx context.Context, path string) error {
	path = cleanPath(path)
	return z.do(ctx, func(conn *zk.Conn) error {
		for _, p := range lineage(path) {
			_, err := conn.Create(p, nil, persistentFlag, zk.WorldACL(zk.PermAll))
			if err != nil && !errors.Is(err, zk.ErrNodeExists) {
				return errors.Wrapf(err, "create %s", p)
			}
		}
		return nil
	})
}

func (z *ZooKeeper) Exists(ctx context.Context, path string) (bool, error) {
	var exists bool
	err := z.do(ctx, func(conn *zk.Conn) error {
		var err error
		exists, _, err = conn.Exists(cleanPath(path))
		return err
	})
	return exists, err
}

func (z *ZooKeeper) Children(ctx context.Context, path string) ([]string, error) {
	var children []string
	err := z.do(ctx, func(conn *zk.Conn) error {
		var err error
		children, _, err = conn.Children(cleanPath(path))
		if errors.Is(err, zk.ErrNoNode) {
			children, err = []string{}, nil
		}
		return err
	})
	return children, err
}

func (z *ZooKeeper) Delete(ctx context.Context, path string) error {
	return z.do(ctx, func(conn *zk.Conn) error {
		err := conn.Delete(cleanPath(path), -1)
		if errors.Is(err, zk.ErrNoNode) {
			return ErrNoNode
		}
		return err
	})
}

// WatchChildren re-arms the one-shot zookeeper watch after every event and hands the
// fresh child list to listener. A missing path is watched for creation.
// ctx bounds the lifetime of the watch.
func (z *ZooKeeper) WatchChildren(ctx context.Context, path string, listener ChildrenListener) error {
	conn, err := z.connection()
	if err != nil {
		return err
	}
	path = cleanPath(path)
	log := z.log.WithField("path", path)

	go func() {
		for {
			children, ch, err := childrenW(conn, path)
			if err != nil {
				log.WithError(err).Warn("re-arming children watch failed")
				select {
				case <-time.After(z.cfg.Retry.BaseDelay + 100*time.Millisecond):
					continue
				case <-ctx.Done():
					return
				case <-z.done:
					return
				}
			}
			listener(path, children)

			select {
			case ev := <-ch:
				if ev.Type == zk.EventNotWatching {
					log.Debug("zookeeper dropped the watch")
				}
			case <-ctx.Done():
				return
			case <-z.done:
				return
			}
		}
	}()
	return nil
}

func childrenW(conn *zk.Conn, path string) ([]string, <-chan zk.Event, error) {
	children, _, ch, err := conn.ChildrenW(path)
	if errors.Is(err, zk.ErrNoNode) {
		var exists bool
		exists, _, ch, err = conn.ExistsW(path)
		if err == nil && exists {
			// created in between; read it properly on the next round
			children, _, ch, err = conn.ChildrenW(path)
		} else {
			children = []string{}
		}
	}
	return children, ch, err
}

func (z *ZooKeeper) Close() error {
	z.mu.Lock()
	defer z.mu.Unlock()
	if z.closed {
		return nil
	}
	z.closed = true
	close(z.done)
	if z.conn != nil {
		z.conn.Close()
	}
	return nil
}
