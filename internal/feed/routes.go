package feed

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/danielpatrickdp/liveweb-controlplane/internal/controlplane"
	"github.com/danielpatrickdp/liveweb-controlplane/internal/metrics"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

const statusTimeout = 2 * time.Second

// Routes mounts the feed socket, Prometheus metrics and a JSON status page.
func (h *Hub) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	r.Get("/feed", h.ServeWS)
	r.Handle("/metrics", metrics.Handler())
	r.Get("/status", h.serveStatus)
	return r
}

func (h *Hub) serveStatus(w http.ResponseWriter, r *http.Request) {
	if h.runner == nil {
		http.Error(w, "feed not attached", http.StatusServiceUnavailable)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), statusTimeout)
	defer cancel()
	var st controlplane.Status
	if err := h.runner.Call(ctx, func(s *controlplane.Scheduler) { st = s.Status(h.now()) }); err != nil {
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(st); err != nil {
		h.logger.Warn().Err(err).Msg("write status")
	}
}
