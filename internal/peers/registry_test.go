package peers

import (
	"testing"

	"registry-federation/internal/metrics"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustAdd(t *testing.T, r *Registry, uri string, rel Relationship) Peer {
	t.Helper()
	p, err := r.Add(uri, rel)
	require.NoError(t, err)
	return p
}

func TestRegistryAddAndLookup(t *testing.T) {
	reg := metrics.NewRegistry()
	r := NewRegistry(DefaultPeerConfig(), reg)

	p := mustAdd(t, r, "https://a.example/", Federated)

	got, ok := r.Lookup(p.ID)
	assert.True(t, ok)
	assert.Equal(t, "https://a.example", got.URI)
	assert.True(t, r.IsHealthy(p.ID))
	assert.False(t, r.IsHealthy("unknown"))

	assert.Equal(t, int64(1), reg.Snapshot()[string(metrics.PeersHealthy)])
}

func TestRegistryRejectsDuplicatesAndBadInput(t *testing.T) {
	r := NewRegistry(DefaultPeerConfig(), metrics.NewRegistry())
	mustAdd(t, r, "https://a.example", Federated)

	_, err := r.Add("https://a.example/", Defederated)
	assert.ErrorIs(t, err, ErrDuplicatePeer)

	_, err = r.Add("", Federated)
	assert.ErrorIs(t, err, ErrInvalidURI)

	_, err = r.Add("https://b.example", "Allied")
	assert.ErrorIs(t, err, ErrInvalidRelationship)

	assert.Len(t, r.Peers(), 1)
}

func TestRegistryPeersKeepConfigurationOrder(t *testing.T) {
	r := NewRegistry(DefaultPeerConfig(), metrics.NewRegistry())
	a := mustAdd(t, r, "https://a.example", Federated)
	b := mustAdd(t, r, "https://b.example", Defederated)
	c := mustAdd(t, r, "https://c.example", Federated)

	assert.Equal(t, []Peer{a, b, c}, r.Peers())

	_, err := r.Remove(b.ID)
	require.NoError(t, err)
	assert.Equal(t, []Peer{a, c}, r.Peers())
}

func TestRegistryRemove(t *testing.T) {
	reg := metrics.NewRegistry()
	r := NewRegistry(DefaultPeerConfig(), reg)
	p := mustAdd(t, r, "https://a.example", Federated)

	removed, err := r.Remove(p.ID)
	require.NoError(t, err)
	assert.Equal(t, p, removed)

	_, ok := r.Lookup(p.ID)
	assert.False(t, ok)

	_, err = r.Remove(p.ID)
	assert.ErrorIs(t, err, ErrPeerNotFound)

	assert.Equal(t, int64(0), reg.Snapshot()[string(metrics.PeersHealthy)])
}

func TestRegistryMarkFailureTransitionsToUnhealthy(t *testing.T) {
	cfg := DefaultPeerConfig()
	cfg.Health.FailureThreshold = 2

	reg := metrics.NewRegistry()
	r := NewRegistry(cfg, reg)
	p := mustAdd(t, r, "https://a.example", Federated)

	r.MarkFailure(p.ID)
	assert.True(t, r.IsHealthy(p.ID))

	r.MarkFailure(p.ID)
	assert.False(t, r.IsHealthy(p.ID))

	r.MarkFailure(p.ID)

	snap := reg.Snapshot()
	assert.Equal(t, int64(3), snap[string(metrics.PeerFailuresTotal)])
	assert.Equal(t, int64(1), snap[string(metrics.PeersUnhealthy)])
	assert.Equal(t, int64(0), snap[string(metrics.PeersHealthy)])
}

func TestRegistryMarkSuccessRecoversPeer(t *testing.T) {
	cfg := DefaultPeerConfig()
	cfg.Health.FailureThreshold = 1
	cfg.Health.SuccessThreshold = 2

	reg := metrics.NewRegistry()
	r := NewRegistry(cfg, reg)
	p := mustAdd(t, r, "https://a.example", Federated)

	r.MarkFailure(p.ID)
	assert.False(t, r.IsHealthy(p.ID))

	r.MarkSuccess(p.ID)
	assert.False(t, r.IsHealthy(p.ID))

	r.MarkSuccess(p.ID)
	assert.True(t, r.IsHealthy(p.ID))

	snap := reg.Snapshot()
	assert.Equal(t, int64(1), snap[string(metrics.PeersHealthy)])
	assert.Equal(t, int64(0), snap[string(metrics.PeersUnhealthy)])
}

func TestRegistryCountersResetCorrectly(t *testing.T) {
	r := NewRegistry(DefaultPeerConfig(), metrics.NewRegistry())
	p := mustAdd(t, r, "https://a.example", Federated)

	r.MarkSuccess(p.ID)
	r.MarkFailure(p.ID)

	h := r.health[p.ID]
	assert.Equal(t, 0, h.SuccessCount)
	assert.Equal(t, 1, h.FailureCount)
}

func TestRegistryUnknownPeerNoPanic(t *testing.T) {
	r := NewRegistry(DefaultPeerConfig(), metrics.NewRegistry())

	assert.NotPanics(t, func() {
		r.MarkFailure("unknown-peer")
		r.MarkSuccess("unknown-peer")
	})
}

func TestRegistrySnapshot(t *testing.T) {
	cfg := DefaultPeerConfig()
	cfg.Health.FailureThreshold = 1
	r := NewRegistry(cfg, metrics.NewRegistry())

	a := mustAdd(t, r, "https://a.example", Federated)
	mustAdd(t, r, "https://b.example", Defederated)
	r.MarkFailure(a.ID)

	snap := r.Snapshot()
	require.Len(t, snap, 2)
	assert.Equal(t, "unhealthy", snap[0].State)
	assert.Equal(t, 1, snap[0].FailureCount)
	assert.Equal(t, "healthy", snap[1].State)
	assert.Equal(t, Defederated, snap[1].Type)
}
