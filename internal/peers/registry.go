package peers

import (
	"fmt"
	"sync"

	"registry-federation/internal/metrics"
)

// PeerState represents the health state of a peer.
type PeerState int

const (
	Healthy PeerState = iota
	Unhealthy
)

func (s PeerState) String() string {
	if s == Unhealthy {
		return "unhealthy"
	}
	return "healthy"
}

// peerHealth tracks the fetch outcome history for a single peer
type peerHealth struct {
	State        PeerState
	FailureCount int
	SuccessCount int
}

// PeerStatus is a read-only view of a peer and its health.
type PeerStatus struct {
	Peer
	State        string `json:"state"`
	FailureCount int    `json:"failure_count"`
}

// Registry holds the configured peers in configuration order and tracks
// their health from fetch outcomes.
type Registry struct {
	mu      sync.RWMutex
	order   []string
	peers   map[string]Peer
	health  map[string]*peerHealth
	config  PeerConfig
	metrics *metrics.Registry
}

// NewRegistry creates an empty Registry.
func NewRegistry(cfg PeerConfig, reg *metrics.Registry) *Registry {
	return &Registry{
		peers:   make(map[string]Peer),
		health:  make(map[string]*peerHealth),
		config:  cfg,
		metrics: reg,
	}
}

// Add normalizes uri, derives the peer ID and registers the peer.
// An ID that is already registered is rejected with ErrDuplicatePeer.
func (r *Registry) Add(uri string, rel Relationship) (Peer, error) {
	p, err := New(uri, rel)
	if err != nil {
		return Peer{}, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.peers[p.ID]; exists {
		return Peer{}, fmt.Errorf("%w: %s", ErrDuplicatePeer, p.URI)
	}
	r.order = append(r.order, p.ID)
	r.peers[p.ID] = p
	r.health[p.ID] = &peerHealth{State: Healthy}
	r.metrics.Inc(metrics.PeersHealthy)
	return p, nil
}

// Remove drops the peer with the given ID and returns it.
func (r *Registry) Remove(id string) (Peer, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.peers[id]
	if !ok {
		return Peer{}, fmt.Errorf("%w: %s", ErrPeerNotFound, id)
	}

	if r.health[id].State == Healthy {
		r.metrics.Add(metrics.PeersHealthy, -1)
	} else {
		r.metrics.Add(metrics.PeersUnhealthy, -1)
	}
	delete(r.peers, id)
	delete(r.health, id)
	for i, pid := range r.order {
		if pid == id {
			r.order = append(r.order[:i:i], r.order[i+1:]...)
			break
		}
	}
	return p, nil
}

// Lookup finds a peer by ID.
func (r *Registry) Lookup(id string) (Peer, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.peers[id]
	return p, ok
}

// Peers returns every peer in configuration order.
func (r *Registry) Peers() []Peer {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Peer, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.peers[id])
	}
	return out
}

// MarkFailure records a failed fetch from a peer
func (r *Registry) MarkFailure(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	h, ok := r.health[id]
	if !ok {
		return
	}
	r.metrics.Inc(metrics.PeerFailuresTotal)
	h.FailureCount++
	h.SuccessCount = 0
	if h.State == Healthy && h.FailureCount >= r.config.Health.FailureThreshold {
		h.State = Unhealthy
		r.metrics.Add(metrics.PeersHealthy, -1)
		r.metrics.Inc(metrics.PeersUnhealthy)
	}
}

// MarkSuccess records a successful fetch from a peer
func (r *Registry) MarkSuccess(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	h, ok := r.health[id]
	if !ok {
		return
	}
	h.SuccessCount++
	h.FailureCount = 0
	if h.State == Unhealthy && h.SuccessCount >= r.config.Health.SuccessThreshold {
		h.State = Healthy
		r.metrics.Add(metrics.PeersUnhealthy, -1)
		r.metrics.Inc(metrics.PeersHealthy)
	}
}

func (r *Registry) IsHealthy(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	h, ok := r.health[id]
	return ok && h.State == Healthy
}

// Snapshot returns every peer with its health, in configuration order.
func (r *Registry) Snapshot() []PeerStatus {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]PeerStatus, 0, len(r.order))
	for _, id := range r.order {
		h := r.health[id]
		out = append(out, PeerStatus{
			Peer:         r.peers[id],
			State:        h.State.String(),
			FailureCount: h.FailureCount,
		})
	}
	return out
}
