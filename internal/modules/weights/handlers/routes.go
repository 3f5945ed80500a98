package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers all weight routes
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/weights", func(r chi.Router) {
		r.Get("/latest", h.HandleGetLatest)
		r.Get("/trades", h.HandleGetTrades)
		r.Get("/runs", h.HandleListRuns)
		r.Get("/runs/{id}", func(w http.ResponseWriter, r *http.Request) {
			h.HandleGetRun(w, r, chi.URLParam(r, "id"))
		})
		r.Post("/run", h.HandleStartRun)
	})
}
