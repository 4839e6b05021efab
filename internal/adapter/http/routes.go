package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// MountRoutes registers all API routes on the given chi router.
func MountRoutes(r chi.Router, h *Handlers, wsHandler http.HandlerFunc) {
	r.Get("/healthz", h.Health)
	r.Get("/ws", wsHandler)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/", func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"version":"0.1.0"}`))
		})

		r.Post("/analysis", h.StartAnalysis)
		r.Get("/analysis", h.ListAnalyses)
		r.Get("/analysis/{id}", h.GetAnalysis)
		r.Post("/analysis/{id}/cancel", h.CancelAnalysis)
	})
}
