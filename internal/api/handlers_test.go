package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"registry-federation/internal/addition"
	"registry-federation/internal/baseline"
	"registry-federation/internal/federation"
	"registry-federation/internal/fetch"
	"registry-federation/internal/health"
	"registry-federation/internal/logs"
	"registry-federation/internal/metrics"
	"registry-federation/internal/peers"
	"registry-federation/internal/store"
)

// staticFetcher answers every peer with the records registered for its URI.
type staticFetcher map[string][]addition.Record

func (f staticFetcher) Fetch(_ context.Context, uri string) ([]addition.Record, error) {
	if recs, ok := f[uri]; ok {
		return recs, nil
	}
	return []addition.Record{}, fetch.ErrUnexpectedStatus
}

type testEnv struct {
	server   *httptest.Server
	registry *peers.Registry
	cache    *store.Memory
	baseline *baseline.Memory
	logger   *zap.Logger
}

func setUpTestServer(t *testing.T, local []addition.Record, fetcher staticFetcher) *testEnv {
	t.Helper()
	reg := metrics.NewRegistry()
	buf := logs.NewBuffer(50)
	logger := zap.New(buf.Core(zapcore.DebugLevel))

	cache := store.NewMemory(reg)
	registry := peers.NewRegistry(peers.DefaultPeerConfig(), reg)
	base := baseline.NewMemory(local...)
	engine := federation.NewEngine(cache, fetcher, registry, base, logger, reg)

	h := NewHandler(engine, registry, base, reg, buf, logger, WithCacheView(cache))
	server := httptest.NewServer(RegisterRoutes(http.NewServeMux(), h))
	t.Cleanup(server.Close)

	return &testEnv{server: server, registry: registry, cache: cache, baseline: base, logger: logger}
}

func decodeRecords(t *testing.T, resp *http.Response) []addition.Record {
	t.Helper()
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	records, err := addition.Decode(body)
	require.NoError(t, err)
	return records
}

func rec(typ, uri, id string) addition.Record {
	return addition.Record{"type": typ, "uri": uri, "ID": id}
}

/* ---------------- GET /additions/{type} ---------------- */

func TestGetAdditions(t *testing.T) {
	env := setUpTestServer(t,
		[]addition.Record{rec("theme", "https://t", "1")},
		staticFetcher{"https://a.example": {rec("plugin", "https://x", "h1"), rec("plugin-federated", "https://y", "h2")}},
	)
	_, err := env.registry.Add("https://a.example", peers.Federated)
	require.NoError(t, err)

	resp, err := http.Get(env.server.URL + "/additions/plugin")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))

	got := decodeRecords(t, resp)
	assert.Equal(t, []addition.Record{rec("plugin", "https://x", "h1"), rec("plugin-federated", "https://y", "h2")}, got)

	_, ok, err := env.cache.Get(context.Background(), federation.PluginKey)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestGetAdditionsEmptyIsArray(t *testing.T) {
	env := setUpTestServer(t, nil, staticFetcher{})

	resp, err := http.Get(env.server.URL + "/additions/theme")
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, "[]", string(body))
}

/* ---------------- POST /sync ---------------- */

func TestSync(t *testing.T) {
	env := setUpTestServer(t, nil, staticFetcher{"https://a.example": {rec("plugin", "https://x", "h1")}})
	_, err := env.registry.Add("https://a.example", peers.Federated)
	require.NoError(t, err)

	t.Run("WithoutPersist", func(t *testing.T) {
		resp, err := http.Post(env.server.URL+"/sync", "application/json", nil)
		require.NoError(t, err)
		defer resp.Body.Close()

		var body syncResponse
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
		assert.Equal(t, 1, body.Count)
		assert.False(t, body.Persisted)

		stored, err := env.baseline.Load(context.Background())
		require.NoError(t, err)
		assert.Empty(t, stored)
	})

	t.Run("WithPersist", func(t *testing.T) {
		resp, err := http.Post(env.server.URL+"/sync?persist=true", "application/json", nil)
		require.NoError(t, err)
		defer resp.Body.Close()

		var body syncResponse
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
		assert.True(t, body.Persisted)

		stored, err := env.baseline.Load(context.Background())
		require.NoError(t, err)
		assert.Equal(t, []addition.Record{rec("plugin", "https://x", "h1")}, stored)
	})

	t.Run("WrongMethod", func(t *testing.T) {
		resp, err := http.Get(env.server.URL + "/sync")
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
	})
}

/* ---------------- peer protocol ---------------- */

func TestPeerAdditionsServesBaseline(t *testing.T) {
	local := []addition.Record{rec("plugin", "https://x", "h1")}
	env := setUpTestServer(t, local, staticFetcher{})

	resp, err := http.Post(fetch.Endpoint(env.server.URL), "", nil)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, local, decodeRecords(t, resp))
}

func TestTwoInstancesFederate(t *testing.T) {
	upstream := setUpTestServer(t, []addition.Record{rec("theme", "https://up", "u1")}, staticFetcher{})

	reg := metrics.NewRegistry()
	registry := peers.NewRegistry(peers.DefaultPeerConfig(), reg)
	_, err := registry.Add(upstream.server.URL, peers.Federated)
	require.NoError(t, err)

	engine := federation.NewEngine(
		store.NewMemory(reg),
		fetch.New(peers.DefaultPeerConfig(), nil, reg),
		registry,
		baseline.NewMemory(),
		nil,
		reg,
	)

	assert.Equal(t, []addition.Record{rec("theme", "https://up", "u1")}, engine.LoadAdditions(context.Background(), "theme"))
}

/* ---------------- /admin/peers ---------------- */

func TestAdminPeers(t *testing.T) {
	env := setUpTestServer(t, nil, staticFetcher{"https://a.example": {rec("plugin", "https://x", "h1")}})
	client := &http.Client{}

	var added peers.Peer

	t.Run("Add", func(t *testing.T) {
		body := []byte(`{"uri":"https://a.example/","type":"Federated"}`)
		resp, err := http.Post(env.server.URL+"/admin/peers", "application/json", bytes.NewReader(body))
		require.NoError(t, err)
		defer resp.Body.Close()

		assert.Equal(t, http.StatusCreated, resp.StatusCode)
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&added))
		assert.Equal(t, "https://a.example", added.URI)
		assert.Equal(t, addition.HashURI("https://a.example"), added.ID)
	})

	t.Run("Duplicate", func(t *testing.T) {
		body := []byte(`{"uri":"https://a.example","type":"Defederated"}`)
		resp, err := http.Post(env.server.URL+"/admin/peers", "application/json", bytes.NewReader(body))
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusConflict, resp.StatusCode)
	})

	t.Run("InvalidRelationship", func(t *testing.T) {
		body := []byte(`{"uri":"https://b.example","type":"Friends"}`)
		resp, err := http.Post(env.server.URL+"/admin/peers", "application/json", bytes.NewReader(body))
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("InvalidJSON", func(t *testing.T) {
		resp, err := http.Post(env.server.URL+"/admin/peers", "application/json", strings.NewReader(`{bad`))
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("List", func(t *testing.T) {
		resp, err := http.Get(env.server.URL + "/admin/peers")
		require.NoError(t, err)
		defer resp.Body.Close()

		var got []peers.PeerStatus
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
		require.Len(t, got, 1)
		assert.Equal(t, "healthy", got[0].State)
	})

	t.Run("RemoveInvalidatesCaches", func(t *testing.T) {
		resp, err := http.Get(env.server.URL + "/additions/plugin")
		require.NoError(t, err)
		resp.Body.Close()

		ctx := context.Background()
		_, ok, _ := env.cache.Get(ctx, added.URI)
		require.True(t, ok)

		req, _ := http.NewRequest(http.MethodDelete, env.server.URL+"/admin/peers/"+added.ID, nil)
		resp, err = client.Do(req)
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusNoContent, resp.StatusCode)

		for _, key := range []string{added.URI, federation.PluginKey, federation.ThemeKey} {
			_, ok, _ := env.cache.Get(ctx, key)
			assert.False(t, ok, key)
		}
		assert.Empty(t, env.registry.Peers())
	})

	t.Run("RemoveUnknown", func(t *testing.T) {
		req, _ := http.NewRequest(http.MethodDelete, env.server.URL+"/admin/peers/nope", nil)
		resp, err := client.Do(req)
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})
}

/* ---------------- GET /admin/cache ---------------- */

func TestListCache(t *testing.T) {
	env := setUpTestServer(t, nil, staticFetcher{})
	ctx := context.Background()
	require.NoError(t, env.cache.Set(ctx, "registry_add_plugin", []byte(`[]`), 0))

	resp, err := http.Get(env.server.URL + "/admin/cache")
	require.NoError(t, err)
	defer resp.Body.Close()

	var got map[string]cacheEntry
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
	require.Contains(t, got, "registry_add_plugin")
	assert.Equal(t, 2, got["registry_add_plugin"].Size)
	assert.Nil(t, got["registry_add_plugin"].ExpiresAt)
}

func TestListCacheWithoutMemoryBackend(t *testing.T) {
	reg := metrics.NewRegistry()
	h := NewHandler(nil, peers.NewRegistry(peers.DefaultPeerConfig(), reg), baseline.NewMemory(), reg, nil, nil)

	rr := httptest.NewRecorder()
	h.ListCache(rr, httptest.NewRequest(http.MethodGet, "/admin/cache", nil))
	assert.Equal(t, http.StatusNotImplemented, rr.Code)
}

/* ---------------- GET /admin/logs ---------------- */

func TestGetLogs(t *testing.T) {
	env := setUpTestServer(t, nil, staticFetcher{})
	env.logger.Info("first")
	env.logger.Info("second")

	resp, err := http.Get(env.server.URL + "/admin/logs?n=1")
	require.NoError(t, err)
	defer resp.Body.Close()

	var got []logs.Entry
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
	require.Len(t, got, 1)
	assert.Equal(t, "second", got[0].Message)

	resp, err = http.Get(env.server.URL + "/admin/logs?n=abc")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

/* ---------------- Observability ---------------- */

func TestHealthAndMetrics(t *testing.T) {
	env := setUpTestServer(t, nil, staticFetcher{})

	resp, err := http.Get(env.server.URL + "/health")
	require.NoError(t, err)
	var report health.Report
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&report))
	resp.Body.Close()
	assert.Equal(t, health.StatusOK, report.OverallStatus)

	resp, err = http.Get(env.server.URL + "/admin/peers")
	require.NoError(t, err)
	resp.Body.Close()

	resp, err = http.Get(env.server.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "federation_http_requests_total")
	assert.Contains(t, string(body), `federation_http_request_duration_seconds_count{op="peers_list",status="200"}`)
}
