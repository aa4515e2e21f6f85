package api

import (
	"net/http"
	"strconv"

	"github.com/shiftline/marketplace/internal/lifecycle"
	"github.com/shiftline/marketplace/pkg/models"
	"github.com/shiftline/marketplace/pkg/repository"
)

type ApplicationsHandler struct {
	appRepo repository.ApplicationRepo
	engine  *lifecycle.Engine
}

func NewApplicationsHandler(ar repository.ApplicationRepo, engine *lifecycle.Engine) *ApplicationsHandler {
	return &ApplicationsHandler{appRepo: ar, engine: engine}
}

// ListMine returns the caller's applications, newest first.
func (h *ApplicationsHandler) ListMine(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(r)
	if !ok {
		http.Error(w, "Missing identity", http.StatusUnauthorized)
		return
	}

	q := r.URL.Query()
	limit := 50
	if l := q.Get("limit"); l != "" {
		if v, err := strconv.Atoi(l); err == nil && v > 0 && v <= 500 {
			limit = v
		}
	}
	offset := 0
	if o := q.Get("offset"); o != "" {
		if v, err := strconv.Atoi(o); err == nil && v >= 0 {
			offset = v
		}
	}

	apps, err := h.appRepo.ListByApplicant(r.Context(), actor.ID, limit, offset)
	if err != nil {
		writeErr(w, err)
		return
	}
	if apps == nil {
		apps = []models.Application{}
	}
	writeJSON(w, map[string]any{"limit": limit, "offset": offset, "items": apps}, http.StatusOK)
}

func (h *ApplicationsHandler) Withdraw(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(r)
	if !ok {
		http.Error(w, "Missing identity", http.StatusUnauthorized)
		return
	}
	appID, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	if err := h.engine.Withdraw(r.Context(), actor, appID); err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, map[string]string{"status": "ok"}, http.StatusOK)
}
