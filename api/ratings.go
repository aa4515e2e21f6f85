package api

import (
	"encoding/json"
	"net/http"

	"github.com/shiftline/marketplace/internal/ratings"
	"github.com/shiftline/marketplace/pkg/models"
)

type RatingsHandler struct {
	gate *ratings.Gate
}

func NewRatingsHandler(gate *ratings.Gate) *RatingsHandler {
	return &RatingsHandler{gate: gate}
}

// Pending returns the caller's unresolved obligations in queue order. The
// client must walk them front to back; skipping is not offered.
func (h *RatingsHandler) Pending(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(r)
	if !ok {
		http.Error(w, "Missing identity", http.StatusUnauthorized)
		return
	}

	obs, err := h.gate.PendingObligations(r.Context(), actor.ID)
	if err != nil {
		writeErr(w, err)
		return
	}
	if obs == nil {
		obs = []models.Obligation{}
	}

	writeJSON(w, map[string]any{
		"blocks_usage": len(obs) > 0,
		"items":        obs,
	}, http.StatusOK)
}

type submitRatingRequest struct {
	JobID  int64  `json:"job_id"`
	Score  int    `json:"score"`
	Review string `json:"review"`
}

func (h *RatingsHandler) Submit(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(r)
	if !ok {
		http.Error(w, "Missing identity", http.StatusUnauthorized)
		return
	}

	var req submitRatingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request", http.StatusBadRequest)
		return
	}
	if req.JobID <= 0 {
		http.Error(w, "job_id is required", http.StatusBadRequest)
		return
	}

	rating, err := h.gate.Submit(r.Context(), actor, req.JobID, req.Score, req.Review)
	if err != nil {
		writeErr(w, err)
		return
	}

	// The caller advances to the next obligation, or unblocks when the
	// queue drained.
	remaining, err := h.gate.PendingObligations(r.Context(), actor.ID)
	if err != nil {
		writeErr(w, err)
		return
	}
	if remaining == nil {
		remaining = []models.Obligation{}
	}

	writeJSON(w, map[string]any{
		"rating":       rating,
		"blocks_usage": len(remaining) > 0,
		"remaining":    remaining,
	}, http.StatusCreated)
}
