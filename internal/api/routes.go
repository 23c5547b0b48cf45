package api

import (
	"net/http"

	"registry-federation/internal/fetch"
)

func RegisterRoutes(mux *http.ServeMux, h *Handler) http.Handler {
	handle := func(pattern, op string, fn http.HandlerFunc) {
		mux.Handle(pattern, Instrument(op, h.metrics, fn))
	}

	// Consumer APIs
	handle("GET /additions/{type}", "additions", h.GetAdditions)
	handle("POST /sync", "sync", h.Sync)

	// Peer protocol
	handle("POST /"+fetch.EndpointPath, "peer_additions", h.PeerAdditions)

	// Admin APIs
	handle("GET /admin/peers", "peers_list", h.GetPeers)
	handle("POST /admin/peers", "peers_add", h.AddPeer)
	handle("DELETE /admin/peers/{id}", "peers_remove", h.RemovePeer)
	handle("GET /admin/cache", "cache_list", h.ListCache)
	handle("GET /admin/logs", "logs", h.GetLogs)

	// Observability APIs
	mux.Handle("GET /metrics", h.metrics.Handler())
	mux.HandleFunc("GET /health", h.GetHealth)

	// Middlewares
	return Chain(
		mux,
		RecoveryMiddleware(h.logger),
		LoggingMiddleware(h.logger),
	)
}
