package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"registry-federation/internal/addition"
	"registry-federation/internal/health"
	"registry-federation/internal/logs"
	"registry-federation/internal/metrics"
	"registry-federation/internal/peers"
	"registry-federation/internal/store"
)

const defaultLogLimit = 50

// Engine is the federation engine surface the API drives.
type Engine interface {
	Run(ctx context.Context) []addition.Record
	LoadAdditions(ctx context.Context, typ string) []addition.Record
	OnPeerDeleted(ctx context.Context, id string)
}

// BaselineStore is read for the peer protocol and written by persisted syncs.
type BaselineStore interface {
	Load(ctx context.Context) ([]addition.Record, error)
	Save(ctx context.Context, records []addition.Record) error
}

// Handler holds dependencies for HTTP handlers.
type Handler struct {
	engine   Engine
	peers    *peers.Registry
	baseline BaselineStore
	cache    *store.Memory
	metrics  *metrics.Registry
	logs     *logs.Buffer
	analyzer *health.Analyzer
	logger   *zap.Logger
}

type Option func(*Handler)

// WithCacheView exposes an in-memory cache on /admin/cache.
func WithCacheView(m *store.Memory) Option {
	return func(h *Handler) { h.cache = m }
}

// NewHandler creates a new API handler.
func NewHandler(
	engine Engine,
	registry *peers.Registry,
	base BaselineStore,
	reg *metrics.Registry,
	buf *logs.Buffer,
	logger *zap.Logger,
	opts ...Option,
) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	h := &Handler{
		engine:   engine,
		peers:    registry,
		baseline: base,
		metrics:  reg,
		logs:     buf,
		analyzer: health.NewAnalyzer(reg, buf),
		logger:   logger,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeRecords(w http.ResponseWriter, records []addition.Record) {
	b, err := addition.Encode(records)
	if err != nil {
		http.Error(w, "encoding additions", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(b)
}

/* ---------------- GET /additions/{type} ---------------- */

func (h *Handler) GetAdditions(w http.ResponseWriter, r *http.Request) {
	writeRecords(w, h.engine.LoadAdditions(r.Context(), r.PathValue("type")))
}

/* ---------------- POST /sync ---------------- */

type syncResponse struct {
	Count     int               `json:"count"`
	Persisted bool              `json:"persisted"`
	Records   []addition.Record `json:"records"`
}

func (h *Handler) Sync(w http.ResponseWriter, r *http.Request) {
	merged := h.engine.Run(r.Context())

	resp := syncResponse{Count: len(merged), Records: merged}
	if r.URL.Query().Get("persist") == "true" {
		if err := h.baseline.Save(r.Context(), merged); err != nil {
			h.logger.Error("persisting baseline", zap.Error(err))
			http.Error(w, "persisting baseline failed", http.StatusInternalServerError)
			return
		}
		resp.Persisted = true
	}
	writeJSON(w, http.StatusOK, resp)
}

/* ---------------- POST /wp-json/git-updater/v1/get-additions-data/ ---------------- */

// PeerAdditions answers other instances with this instance's baseline.
func (h *Handler) PeerAdditions(w http.ResponseWriter, r *http.Request) {
	records, err := h.baseline.Load(r.Context())
	if err != nil {
		h.logger.Warn("baseline load failed", zap.Error(err))
		http.Error(w, "additions unavailable", http.StatusServiceUnavailable)
		return
	}
	writeRecords(w, records)
}

/* ---------------- /admin/peers ---------------- */

// GET /admin/peers
func (h *Handler) GetPeers(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.peers.Snapshot())
}

type addPeerRequest struct {
	URI  string `json:"uri"`
	Type string `json:"type"`
}

// POST /admin/peers
func (h *Handler) AddPeer(w http.ResponseWriter, r *http.Request) {
	var req addPeerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}

	p, err := h.peers.Add(req.URI, peers.Relationship(req.Type))
	switch {
	case errors.Is(err, peers.ErrDuplicatePeer):
		http.Error(w, err.Error(), http.StatusConflict)
		return
	case err != nil:
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	h.logger.Info("peer added", zap.String("peer", p.URI), zap.String("type", string(p.Type)))
	writeJSON(w, http.StatusCreated, p)
}

// DELETE /admin/peers/{id}
func (h *Handler) RemovePeer(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, ok := h.peers.Lookup(id); !ok {
		http.Error(w, "peer not found", http.StatusNotFound)
		return
	}

	// Invalidate while the peer is still resolvable.
	h.engine.OnPeerDeleted(r.Context(), id)
	if _, err := h.peers.Remove(id); err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

/* ---------------- GET /admin/cache ---------------- */

type cacheEntry struct {
	Size      int        `json:"size"`
	StoredAt  time.Time  `json:"stored_at"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

func (h *Handler) ListCache(w http.ResponseWriter, r *http.Request) {
	if h.cache == nil {
		http.Error(w, "cache backend does not support listing", http.StatusNotImplemented)
		return
	}

	resp := make(map[string]cacheEntry)
	for k, e := range h.cache.List() {
		ce := cacheEntry{Size: len(e.Value), StoredAt: e.StoredAt}
		if !e.ExpiresAt.IsZero() {
			exp := e.ExpiresAt
			ce.ExpiresAt = &exp
		}
		resp[k] = ce
	}
	writeJSON(w, http.StatusOK, resp)
}

/* ---------------- GET /admin/logs ---------------- */

func (h *Handler) GetLogs(w http.ResponseWriter, r *http.Request) {
	n := defaultLogLimit
	if raw := r.URL.Query().Get("n"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			http.Error(w, "n must be a non-negative integer", http.StatusBadRequest)
			return
		}
		n = parsed
	}

	entries := []logs.Entry{}
	if h.logs != nil {
		entries = h.logs.GetLast(n)
	}
	writeJSON(w, http.StatusOK, entries)
}

/* ---------------- GET /health ---------------- */

func (h *Handler) GetHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.analyzer.Analyze())
}
