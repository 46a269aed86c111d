package gateway

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gobwas/ws"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/shubham-shewale/price-widget/cmd/refresher/internal/hub"
	"github.com/shubham-shewale/price-widget/cmd/refresher/internal/protocol"
)

// NewRouter exposes the surface websocket, the explicit refresh hook, health and metrics.
func NewRouter(h *hub.Hub, requester hub.Requester, gatherer prometheus.Gatherer, logger *zap.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/ws", func(w http.ResponseWriter, req *http.Request) {
		conn, _, _, err := ws.UpgradeHTTP(req, w)
		if err != nil {
			logger.Debug("Upgrade failed", zap.Error(err))
			return
		}
		NewClient(conn, h, logger).Start()
	})

	r.Post("/refresh", func(w http.ResponseWriter, req *http.Request) {
		var body protocol.RequestPayload
		if err := json.NewDecoder(io.LimitReader(req.Body, maxMessageSize)).Decode(&body); err != nil && !errors.Is(err, io.EOF) {
			http.Error(w, "invalid JSON body", http.StatusBadRequest)
			return
		}
		if !requester.Request(body.Instances...) {
			http.Error(w, "refresh queue full", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusAccepted)
	})

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]int{"instances": len(h.Instances())})
	})

	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	return r
}
