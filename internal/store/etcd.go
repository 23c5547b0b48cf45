package store

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	clientv3 "go.etcd.io/etcd/client/v3"

	"registry-federation/internal/metrics"
)

// DefaultEtcdPrefix namespaces cache keys inside etcd.
const DefaultEtcdPrefix = "/federation/cache/"

// etcdKV is the subset of clientv3.KV the cache needs.
type etcdKV interface {
	Get(ctx context.Context, key string, opts ...clientv3.OpOption) (*clientv3.GetResponse, error)
	Put(ctx context.Context, key, val string, opts ...clientv3.OpOption) (*clientv3.PutResponse, error)
	Delete(ctx context.Context, key string, opts ...clientv3.OpOption) (*clientv3.DeleteResponse, error)
}

type leaseGranter interface {
	Grant(ctx context.Context, ttl int64) (*clientv3.LeaseGrantResponse, error)
}

// Etcd is a Cache shared between processes. Expiry is delegated to etcd
// leases, so an entry disappears on its own once its ttl has elapsed.
type Etcd struct {
	kv      etcdKV
	lease   leaseGranter
	prefix  string
	metrics *metrics.Registry
}

// DialEtcd connects to an etcd cluster.
func DialEtcd(endpoints []string, dialTimeout time.Duration) (*clientv3.Client, error) {
	cli, err := clientv3.New(clientv3.Config{
		Endpoints:   endpoints,
		DialTimeout: dialTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("connecting to etcd %v: %w", endpoints, err)
	}
	return cli, nil
}

// NewEtcd wraps an etcd client. An empty prefix selects DefaultEtcdPrefix.
func NewEtcd(cli *clientv3.Client, prefix string, reg *metrics.Registry) *Etcd {
	return newEtcd(cli.KV, cli.Lease, prefix, reg)
}

func newEtcd(kv etcdKV, lease leaseGranter, prefix string, reg *metrics.Registry) *Etcd {
	if prefix == "" {
		prefix = DefaultEtcdPrefix
	}
	if !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	return &Etcd{kv: kv, lease: lease, prefix: prefix, metrics: reg}
}

func (e *Etcd) key(k string) string { return e.prefix + k }

// Get retrieves a value from etcd.
func (e *Etcd) Get(ctx context.Context, key string) ([]byte, bool, error) {
	e.metrics.Inc(metrics.CacheGetsTotal)

	resp, err := e.kv.Get(ctx, e.key(key))
	if err != nil {
		return nil, false, fmt.Errorf("etcd get %q: %w", key, err)
	}
	if len(resp.Kvs) == 0 {
		e.metrics.Inc(metrics.CacheMissesTotal)
		return nil, false, nil
	}

	e.metrics.Inc(metrics.CacheHitsTotal)
	return append([]byte(nil), resp.Kvs[0].Value...), true, nil
}

// Set stores value, attaching a lease when ttl > 0.
func (e *Etcd) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	e.metrics.Inc(metrics.CacheSetsTotal)

	var opts []clientv3.OpOption
	if ttl > 0 {
		lease, err := e.lease.Grant(ctx, leaseSeconds(ttl))
		if err != nil {
			return fmt.Errorf("etcd grant lease for %q: %w", key, err)
		}
		opts = append(opts, clientv3.WithLease(lease.ID))
	}

	if _, err := e.kv.Put(ctx, e.key(key), string(value), opts...); err != nil {
		return fmt.Errorf("etcd put %q: %w", key, err)
	}
	return nil
}

// Delete removes key from etcd.
func (e *Etcd) Delete(ctx context.Context, key string) error {
	e.metrics.Inc(metrics.CacheDeletesTotal)

	if _, err := e.kv.Delete(ctx, e.key(key)); err != nil {
		return fmt.Errorf("etcd delete %q: %w", key, err)
	}
	return nil
}

// leaseSeconds rounds ttl up to whole seconds; etcd leases are at least 1s.
func leaseSeconds(ttl time.Duration) int64 {
	secs := int64(math.Ceil(ttl.Seconds()))
	if secs < 1 {
		secs = 1
	}
	return secs
}
