// Package handlers provides HTTP handlers for historical data operations.
package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/aristath/ftql/internal/modules/historical"
	"github.com/rs/zerolog"
)

// Handler handles historical data HTTP requests
type Handler struct {
	repo      *historical.HistoryRepository
	timeframe string
	log       zerolog.Logger
}

// NewHandler creates a new historical data handler. timeframe is the default
// used when a request does not name one.
func NewHandler(repo *historical.HistoryRepository, timeframe string, log zerolog.Logger) *Handler {
	return &Handler{
		repo:      repo,
		timeframe: timeframe,
		log:       log.With().Str("handler", "historical").Logger(),
	}
}

// HandleGetCandles handles GET /api/historical/candles/{symbol}
func (h *Handler) HandleGetCandles(w http.ResponseWriter, r *http.Request, symbol string) {
	symbol = strings.ToUpper(symbol)
	limit := 100
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if parsedLimit, err := strconv.Atoi(limitStr); err == nil && parsedLimit > 0 {
			limit = parsedLimit
		}
	}
	timeframe := h.timeframeParam(r)

	series, err := h.repo.GetSeries(symbol, timeframe, limit)
	if err != nil {
		h.log.Error().Err(err).Str("symbol", symbol).Msg("Failed to get candles")
		http.Error(w, "Failed to get candles", http.StatusInternalServerError)
		return
	}
	if len(series.Candles) == 0 {
		http.Error(w, "No candles stored for "+symbol, http.StatusNotFound)
		return
	}

	response := map[string]interface{}{
		"data": map[string]interface{}{
			"symbol":    series.Symbol,
			"pair":      series.Pair,
			"timeframe": timeframe,
			"candles":   series.Candles,
			"count":     len(series.Candles),
		},
		"metadata": map[string]interface{}{
			"timestamp": time.Now().Format(time.RFC3339),
		},
	}

	h.writeJSON(w, http.StatusOK, response)
}

// HandleGetSymbols handles GET /api/historical/symbols
func (h *Handler) HandleGetSymbols(w http.ResponseWriter, r *http.Request) {
	timeframe := h.timeframeParam(r)

	symbols, err := h.repo.Symbols(timeframe)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list symbols")
		http.Error(w, "Failed to list symbols", http.StatusInternalServerError)
		return
	}

	response := map[string]interface{}{
		"data": map[string]interface{}{
			"timeframe": timeframe,
			"symbols":   symbols,
			"count":     len(symbols),
		},
		"metadata": map[string]interface{}{
			"timestamp": time.Now().Format(time.RFC3339),
		},
	}

	h.writeJSON(w, http.StatusOK, response)
}

func (h *Handler) timeframeParam(r *http.Request) string {
	if tf := r.URL.Query().Get("timeframe"); tf != "" {
		return tf
	}
	return h.timeframe
}

// writeJSON writes a JSON response
func (h *Handler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}
