// Package config loads the JSON configuration shared by providers and consumers.
//
// Every field has a default, so an absent file or an absent key means "use the default".
// Durations are written as Go duration strings ("30s", "1m30s").
package config

import (
	"bytes"
	"encoding/json"
	"os"
	"time"

	"guide-rpc/codec"
	"guide-rpc/rpcerr"

	"github.com/natefinch/atomic"
	"github.com/pkg/errors"
)

// Coordination backends.
const (
	CoordinatorZooKeeper = "zookeeper"
	CoordinatorEtcd      = "etcd"
	CoordinatorMemory    = "memory"
)

// Config is the process configuration.
type Config struct {
	Coordinator      string   `json:"coordinator"`
	ZooKeeperAddress string   `json:"zookeeperAddress"`
	EtcdEndpoints    []string `json:"etcdEndpoints"`
	RootPath         string   `json:"rootPath"`
	ConnectTimeout   Duration `json:"connectTimeout"`
	SessionTimeout   Duration `json:"sessionTimeout"`
	RetryBaseDelay   Duration `json:"retryBaseDelay"`
	MaxRetries       int      `json:"maxRetries"`

	LoadBalance   string `json:"loadBalance"`
	RingCacheSize int    `json:"ringCacheSize"`

	Transport     string   `json:"transport"`
	Codec         string   `json:"codec"`
	ListenAddr    string   `json:"listenAddr"`
	AdvertiseAddr string   `json:"advertiseAddr"`
	DialTimeout   Duration `json:"dialTimeout"`
	CacheTTL      Duration `json:"cacheTTL"`

	// provider side, zero disables
	RateLimit      float64  `json:"rateLimit"`
	RateBurst      int      `json:"rateBurst"`
	HandlerTimeout Duration `json:"handlerTimeout"`

	// consumer side, zero disables
	CallRetries    int      `json:"callRetries"`
	CallRetryDelay Duration `json:"callRetryDelay"`

	LogLevel string `json:"logLevel"`
}

// Default returns the default configuration: ZooKeeper on 127.0.0.1:2181 under /my-rpc,
// consistent hashing and the socket transport on :9998.
func Default() *Config {
	return &Config{
		Coordinator:      CoordinatorZooKeeper,
		ZooKeeperAddress: "127.0.0.1:2181",
		EtcdEndpoints:    []string{"127.0.0.1:2379"},
		RootPath:         "/my-rpc",
		ConnectTimeout:   Duration(30 * time.Second),
		SessionTimeout:   Duration(10 * time.Second),
		RetryBaseDelay:   Duration(time.Second),
		MaxRetries:       3,
		LoadBalance:      "consistenthash",
		RingCacheSize:    256,
		Transport:        "socket",
		Codec:            "json",
		ListenAddr:       ":9998",
		AdvertiseAddr:    "127.0.0.1:9998",
		DialTimeout:      Duration(5 * time.Second),
		LogLevel:         "info",
	}
}

// Load reads path over the defaults. A missing file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "read config %s", path)
	}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, rpcerr.Wrap(rpcerr.ConfigurationError, err, "parse config %s", path)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// WriteDefault writes the default configuration to path, replacing it atomically.
func WriteDefault(path string) error {
	return Default().Write(path)
}

// Write stores c as indented JSON at path, replacing it atomically.
func (c *Config) Write(path string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return errors.Wrap(err, "encode config")
	}
	data = append(data, '\n')
	if err := atomic.WriteFile(path, bytes.NewReader(data)); err != nil {
		return errors.Wrapf(err, "write config %s", path)
	}
	return nil
}

// Validate rejects unknown backend, strategy, transport and codec names.
func (c *Config) Validate() error {
	switch c.Coordinator {
	case CoordinatorZooKeeper, CoordinatorEtcd, CoordinatorMemory:
	default:
		return rpcerr.New(rpcerr.ConfigurationError, "unknown coordinator %q", c.Coordinator)
	}
	switch c.LoadBalance {
	case "random", "consistenthash", "roundrobin":
	default:
		return rpcerr.New(rpcerr.ConfigurationError, "unknown load balance %q", c.LoadBalance)
	}
	switch c.Transport {
	case "socket", "gorpc":
	default:
		return rpcerr.New(rpcerr.ConfigurationError, "unknown transport %q", c.Transport)
	}
	if _, err := codec.ParseCodecType(c.Codec); err != nil {
		return err
	}
	if c.MaxRetries < 0 || c.CallRetries < 0 {
		return rpcerr.New(rpcerr.ConfigurationError, "negative retry count")
	}
	if c.RateLimit > 0 && c.RateBurst <= 0 {
		return rpcerr.New(rpcerr.ConfigurationError, "rateBurst must be positive when rateLimit is set")
	}
	return nil
}
