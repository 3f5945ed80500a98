// Package handlers provides HTTP handlers for weight runs.
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/aristath/ftql/internal/modules/weights"
	"github.com/rs/zerolog"
)

// RunStarter starts weight runs in the background.
type RunStarter interface {
	Start(trigger string, done func(*weights.Run, error)) error
}

// Handler handles weight run HTTP requests
type Handler struct {
	repo    *weights.RunRepository
	starter RunStarter
	log     zerolog.Logger
}

// NewHandler creates a new weights handler
func NewHandler(repo *weights.RunRepository, starter RunStarter, log zerolog.Logger) *Handler {
	return &Handler{
		repo:    repo,
		starter: starter,
		log:     log.With().Str("handler", "weights").Logger(),
	}
}

// HandleGetLatest handles GET /api/weights/latest
func (h *Handler) HandleGetLatest(w http.ResponseWriter, r *http.Request) {
	run, ok := h.latestRun(w)
	if !ok {
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"data": map[string]interface{}{
			"run_id":  run.ID,
			"time":    run.LatestTime().Format(time.RFC3339),
			"weights": run.Latest(),
		},
		"metadata": metadata(),
	})
}

// HandleListRuns handles GET /api/weights/runs
func (h *Handler) HandleListRuns(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if parsedLimit, err := strconv.Atoi(limitStr); err == nil && parsedLimit > 0 {
			limit = parsedLimit
		}
	}

	runs, err := h.repo.List(limit)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list runs")
		http.Error(w, "Failed to list runs", http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"data": map[string]interface{}{
			"runs":  runs,
			"count": len(runs),
		},
		"metadata": metadata(),
	})
}

// HandleGetRun handles GET /api/weights/runs/{id}
func (h *Handler) HandleGetRun(w http.ResponseWriter, r *http.Request, id string) {
	run, err := h.repo.Get(id)
	if errors.Is(err, weights.ErrRunNotFound) {
		http.Error(w, "Run not found", http.StatusNotFound)
		return
	}
	if err != nil {
		h.log.Error().Err(err).Str("run_id", id).Msg("Failed to get run")
		http.Error(w, "Failed to get run", http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"data":     run,
		"metadata": metadata(),
	})
}

// HandleGetTrades handles GET /api/weights/trades
func (h *Handler) HandleGetTrades(w http.ResponseWriter, r *http.Request) {
	run, ok := h.latestRun(w)
	if !ok {
		return
	}
	if run.Trades == nil {
		http.Error(w, "Latest run has fewer than two weight rows", http.StatusNotFound)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"data": map[string]interface{}{
			"run_id": run.ID,
			"buy":    run.Trades.Buy,
			"sell":   run.Trades.Sell,
		},
		"metadata": metadata(),
	})
}

// HandleStartRun handles POST /api/weights/run
func (h *Handler) HandleStartRun(w http.ResponseWriter, r *http.Request) {
	err := h.starter.Start(weights.TriggerAPI, func(run *weights.Run, err error) {
		if err != nil {
			h.log.Error().Err(err).Msg("Requested weight run failed")
			return
		}
		h.log.Info().Str("run_id", run.ID).Msg("Requested weight run completed")
	})
	if errors.Is(err, weights.ErrRunInProgress) {
		http.Error(w, err.Error(), http.StatusConflict)
		return
	}
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to start weight run")
		http.Error(w, "Failed to start weight run", http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, http.StatusAccepted, map[string]interface{}{
		"data": map[string]interface{}{
			"status":  "started",
			"message": "Weight run started; listen on /api/events/ws for the outcome",
		},
		"metadata": metadata(),
	})
}

func (h *Handler) latestRun(w http.ResponseWriter) (*weights.Run, bool) {
	run, err := h.repo.Latest()
	if errors.Is(err, weights.ErrRunNotFound) {
		http.Error(w, "No weight runs yet", http.StatusNotFound)
		return nil, false
	}
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to get latest run")
		http.Error(w, "Failed to get latest run", http.StatusInternalServerError)
		return nil, false
	}
	return run, true
}

func metadata() map[string]interface{} {
	return map[string]interface{}{
		"timestamp": time.Now().Format(time.RFC3339),
	}
}

// writeJSON writes a JSON response
func (h *Handler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}
