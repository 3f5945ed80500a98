package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers all historical data routes
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/historical", func(r chi.Router) {
		r.Get("/symbols", h.HandleGetSymbols)
		r.Get("/candles/{symbol}", func(w http.ResponseWriter, r *http.Request) {
			h.HandleGetCandles(w, r, chi.URLParam(r, "symbol"))
		})
	})
}
