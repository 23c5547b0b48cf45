package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricKey is a strongly typed metric identifier.
type MetricKey string

const namespace = "federation"

// Metric keys (centralized)
const (
	// Cache
	CacheKeys         MetricKey = "cache_keys"
	CacheSetsTotal    MetricKey = "cache_sets_total"
	CacheGetsTotal    MetricKey = "cache_gets_total"
	CacheHitsTotal    MetricKey = "cache_hits_total"
	CacheMissesTotal  MetricKey = "cache_misses_total"
	CacheDeletesTotal MetricKey = "cache_deletes_total"
	CacheExpiredTotal MetricKey = "cache_expired_total"
	CacheErrorsTotal  MetricKey = "cache_errors_total"

	// Remote fetches
	FetchAttemptsTotal  MetricKey = "fetch_attempts_total"
	FetchSuccessTotal   MetricKey = "fetch_success_total"
	FetchFailuresTotal  MetricKey = "fetch_failures_total"
	FetchMalformedTotal MetricKey = "fetch_malformed_total"
	FetchRetriesTotal   MetricKey = "fetch_retries_total"

	// Synchronization
	SyncRunsTotal           MetricKey = "sync_runs_total"
	RecordsMergedTotal      MetricKey = "records_merged_total"
	DuplicatesDroppedTotal  MetricKey = "duplicates_dropped_total"
	FilterRepublishTotal    MetricKey = "filter_republish_total"
	CacheInvalidationsTotal MetricKey = "cache_invalidations_total"
	BaselineErrorsTotal     MetricKey = "baseline_errors_total"

	// TTL
	TTLCleanupRunsTotal MetricKey = "ttl_cleanup_runs_total"
	TTLKeysRemovedTotal MetricKey = "ttl_keys_removed_total"

	// Peers
	PeersHealthy      MetricKey = "peers_healthy"
	PeersUnhealthy    MetricKey = "peers_unhealthy"
	PeerFailuresTotal MetricKey = "peer_failures_total"

	// HTTP
	HTTPRequestsTotal MetricKey = "http_requests_total"
)

// gauges may move down; everything else is a monotonic counter.
var gauges = map[MetricKey]bool{
	CacheKeys:      true,
	PeersHealthy:   true,
	PeersUnhealthy: true,
}

type metric interface {
	prometheus.Metric
	prometheus.Collector
	Add(float64)
}

// Registry stores all metrics on a private Prometheus registry.
type Registry struct {
	mu      sync.RWMutex
	metrics map[MetricKey]metric
	prom    *prometheus.Registry

	requestDuration *prometheus.HistogramVec
}

// NewRegistry creates a metrics registry.
func NewRegistry() *Registry {
	r := &Registry{
		metrics: make(map[MetricKey]metric),
		prom:    prometheus.NewRegistry(),
		requestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "Latency of HTTP requests.",
				// 1ms .. ~4s
				Buckets: prometheus.ExponentialBuckets(0.001, 2, 13),
			},
			[]string{"op", "status"},
		),
	}
	r.prom.MustRegister(r.requestDuration)
	return r
}

// Inc increments a metric by 1.
func (r *Registry) Inc(key MetricKey) {
	r.Add(key, 1)
}

// Add increments a metric by delta. Negative deltas on counters are dropped.
func (r *Registry) Add(key MetricKey, delta int64) {
	r.mu.RLock()
	m, ok := r.metrics[key]
	r.mu.RUnlock()

	if !ok {
		m = r.create(key)
	}
	if delta < 0 && !gauges[key] {
		return
	}
	m.Add(float64(delta))
}

// create is the slow path: metric not yet initialized.
func (r *Registry) create(key MetricKey) metric {
	r.mu.Lock()
	defer r.mu.Unlock()

	// Double-check after acquiring write lock
	if m, ok := r.metrics[key]; ok {
		return m
	}

	var m metric
	if gauges[key] {
		m = prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      string(key),
			Help:      string(key),
		})
	} else {
		m = prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      string(key),
			Help:      string(key),
		})
	}
	// Invalid Prometheus names are still tracked for Snapshot.
	_ = r.prom.Register(m)
	r.metrics[key] = m
	return m
}

// ObserveRequest records the latency of one HTTP request.
func (r *Registry) ObserveRequest(op, status string, d time.Duration) {
	r.requestDuration.WithLabelValues(op, status).Observe(d.Seconds())
}

// Handler exposes the registry in the Prometheus text format.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.prom, promhttp.HandlerOpts{})
}
