// Package federation merges peer registries into the local addition set.
package federation

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"registry-federation/internal/addition"
	"registry-federation/internal/metrics"
	"registry-federation/internal/peers"
	"registry-federation/internal/store"
)

// PeerSource supplies the configured peers.
type PeerSource interface {
	Peers() []peers.Peer
	Lookup(id string) (peers.Peer, bool)
}

// Fetcher retrieves one peer's records. On failure it returns an empty list
// and a non-nil error.
type Fetcher interface {
	Fetch(ctx context.Context, uri string) ([]addition.Record, error)
}

// Baseline supplies the locally persisted addition set.
type Baseline interface {
	Load(ctx context.Context) ([]addition.Record, error)
}

// healthTracker is implemented by peer sources that track fetch outcomes.
type healthTracker interface {
	MarkFailure(id string)
	MarkSuccess(id string)
}

// Engine runs synchronization passes. It holds no state of its own between
// calls; everything lives in the injected collaborators.
type Engine struct {
	cache    store.Cache
	fetcher  Fetcher
	peers    PeerSource
	baseline Baseline
	logger   *zap.Logger
	metrics  *metrics.Registry
	peerTTL  time.Duration
}

type Option func(*Engine)

// WithPeerTTL overrides DefaultPeerTTL.
func WithPeerTTL(d time.Duration) Option {
	return func(e *Engine) { e.peerTTL = d }
}

func NewEngine(
	cache store.Cache,
	fetcher Fetcher,
	peerSource PeerSource,
	base Baseline,
	logger *zap.Logger,
	reg *metrics.Registry,
	opts ...Option,
) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	if reg == nil {
		reg = metrics.NewRegistry()
	}
	e := &Engine{
		cache:    cache,
		fetcher:  fetcher,
		peers:    peerSource,
		baseline: base,
		logger:   logger,
		metrics:  reg,
		peerTTL:  DefaultPeerTTL,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Run synchronizes with every configured peer and returns the baseline merged
// with all peer records, deduplicated. It never fails: unreachable peers and
// cache errors degrade to "no data".
func (e *Engine) Run(ctx context.Context) []addition.Record {
	_, merged := e.sync(ctx)
	return merged
}

// LoadAdditions refreshes, keeps the records whose type contains typ, and
// republishes the result under TypeKey(typ) with no expiry.
func (e *Engine) LoadAdditions(ctx context.Context, typ string) []addition.Record {
	local, merged := e.sync(ctx)

	out := addition.Dedup(
		addition.FilterByType(local, typ),
		addition.FilterByType(merged, typ),
	)

	key := TypeKey(typ)
	if b, err := addition.Encode(out); err != nil {
		e.logger.Warn("encoding filtered additions", zap.String("type", typ), zap.Error(err))
	} else if err := e.cache.Set(ctx, key, b, 0); err != nil {
		e.metrics.Inc(metrics.CacheErrorsTotal)
		e.logger.Warn("cache set failed", zap.String("key", key), zap.Error(err))
	}
	e.metrics.Inc(metrics.FilterRepublishTotal)

	return out
}

// OnPeerDeleted invalidates every cache entry that may hold data from the
// peer with the given ID. Unknown IDs are ignored. It must be called while
// the peer is still resolvable, before it is removed from the registry.
func (e *Engine) OnPeerDeleted(ctx context.Context, id string) {
	p, ok := e.peers.Lookup(id)
	if !ok {
		return
	}

	for _, key := range []string{p.URI, PluginKey, ThemeKey} {
		if err := e.cache.Delete(ctx, key); err != nil {
			e.metrics.Inc(metrics.CacheErrorsTotal)
			e.logger.Warn("cache invalidation failed", zap.String("key", key), zap.Error(err))
			continue
		}
		e.metrics.Inc(metrics.CacheInvalidationsTotal)
	}
	e.logger.Info("peer caches invalidated", zap.String("peer", p.URI), zap.String("peer_id", id))
}

// sync returns the baseline it started from and the merged set.
func (e *Engine) sync(ctx context.Context) ([]addition.Record, []addition.Record) {
	logger := e.logger.With(zap.String("run_id", uuid.NewString()))
	e.metrics.Inc(metrics.SyncRunsTotal)

	local := e.loadBaseline(ctx, logger)

	configured := e.peers.Peers()
	results := make([][]addition.Record, len(configured))

	// Results are indexed by peer position so the merge order never depends
	// on which fetch finishes first.
	var wg sync.WaitGroup
	for i, p := range configured {
		wg.Add(1)
		go func(i int, p peers.Peer) {
			defer wg.Done()
			results[i] = e.peerRecords(ctx, logger, p)
		}(i, p)
	}
	wg.Wait()

	var collected []addition.Record
	for _, r := range results {
		collected = append(collected, r...)
	}

	merged := addition.Dedup(local, collected)

	e.metrics.Add(metrics.RecordsMergedTotal, int64(len(merged)))
	e.metrics.Add(metrics.DuplicatesDroppedTotal, int64(len(local)+len(collected)-len(merged)))
	logger.Info("sync complete",
		zap.Int("peers", len(configured)),
		zap.Int("baseline", len(local)),
		zap.Int("peer_records", len(collected)),
		zap.Int("merged", len(merged)),
	)
	return local, merged
}

func (e *Engine) loadBaseline(ctx context.Context, logger *zap.Logger) []addition.Record {
	if e.baseline == nil {
		return []addition.Record{}
	}
	records, err := e.baseline.Load(ctx)
	if err != nil {
		e.metrics.Inc(metrics.BaselineErrorsTotal)
		logger.Warn("baseline load failed", zap.Error(err))
		return []addition.Record{}
	}
	return records
}

// peerRecords serves a peer from cache when fresh, otherwise fetches and
// caches the result for peerTTL. Empty results are cached too.
func (e *Engine) peerRecords(ctx context.Context, logger *zap.Logger, p peers.Peer) []addition.Record {
	if records, ok := e.cached(ctx, logger, p.URI); ok {
		return records
	}

	records, err := e.fetcher.Fetch(ctx, p.URI)
	if err != nil && ctx.Err() != nil {
		// Caller cancelled: neither cache the empty result nor blame the peer.
		logger.Debug("peer fetch abandoned", zap.String("peer", p.URI), zap.Error(ctx.Err()))
		return []addition.Record{}
	}
	if tracker, ok := e.peers.(healthTracker); ok {
		if err != nil {
			tracker.MarkFailure(p.ID)
		} else {
			tracker.MarkSuccess(p.ID)
		}
	}
	if err != nil {
		logger.Warn("peer degraded to empty", zap.String("peer", p.URI), zap.Error(err))
		records = []addition.Record{}
	}

	withIDs := make([]addition.Record, 0, len(records))
	for _, r := range records {
		withIDs = append(withIDs, r.WithID())
	}
	records = withIDs

	b, err := addition.Encode(records)
	if err != nil {
		logger.Warn("encoding peer records", zap.String("peer", p.URI), zap.Error(err))
		return records
	}
	if err := e.cache.Set(ctx, p.URI, b, e.peerTTL); err != nil {
		e.metrics.Inc(metrics.CacheErrorsTotal)
		logger.Warn("cache set failed", zap.String("key", p.URI), zap.Error(err))
	}
	return records
}

// cached reads a peer entry. Cache errors are counted here rather than in the
// backends so every Cache implementation reports them once. Backend errors and undecodable values count as
// a miss.
func (e *Engine) cached(ctx context.Context, logger *zap.Logger, key string) ([]addition.Record, bool) {
	b, ok, err := e.cache.Get(ctx, key)
	if err != nil {
		e.metrics.Inc(metrics.CacheErrorsTotal)
		logger.Warn("cache get failed", zap.String("key", key), zap.Error(err))
		return nil, false
	}
	if !ok {
		return nil, false
	}
	records, err := addition.Decode(b)
	if err != nil {
		logger.Warn("discarding undecodable cache entry", zap.String("key", key), zap.Error(err))
		return nil, false
	}
	return records, true
}
