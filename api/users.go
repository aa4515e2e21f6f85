package api

import (
	"encoding/json"
	"net/http"

	"github.com/shiftline/marketplace/internal/mediator"
	"github.com/shiftline/marketplace/pkg/engage"
	"github.com/shiftline/marketplace/pkg/models"
	"github.com/shiftline/marketplace/pkg/repository"
)

type UsersHandler struct {
	userRepo  repository.UserRepo
	blockRepo repository.BlockRepo
	med       *mediator.Mediator
}

func NewUsersHandler(ur repository.UserRepo, br repository.BlockRepo, med *mediator.Mediator) *UsersHandler {
	return &UsersHandler{userRepo: ur, blockRepo: br, med: med}
}

// Block adds the target to the caller's block list and records it in their
// pair conversation. Messaging is refused in both directions afterwards.
func (h *UsersHandler) Block(w http.ResponseWriter, r *http.Request) {
	actor, target, ok := h.loadTarget(w, r)
	if !ok {
		return
	}

	if err := h.blockRepo.CreateBlock(r.Context(), actor.ID, target.ID); err != nil {
		writeErr(w, err)
		return
	}

	caller, err := h.userRepo.GetUser(r.Context(), actor.ID)
	if err == nil && caller != nil {
		if conv, err := h.med.EnsureConversation(r.Context(), actor.ID, target.ID, 0); err == nil {
			if err := h.med.PostSystemMessage(r.Context(), conv, mediator.TplUserBlocked, map[string]string{"Name": caller.Name}); err != nil {
				logger.Warn("post block message", "err", err)
			}
		}
	}

	writeJSON(w, map[string]string{"status": "ok"}, http.StatusOK)
}

func (h *UsersHandler) Unblock(w http.ResponseWriter, r *http.Request) {
	actor, target, ok := h.loadTarget(w, r)
	if !ok {
		return
	}

	if err := h.blockRepo.DeleteBlock(r.Context(), actor.ID, target.ID); err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, map[string]string{"status": "ok"}, http.StatusOK)
}

type reportRequest struct {
	Reason string `json:"reason"`
}

func (h *UsersHandler) Report(w http.ResponseWriter, r *http.Request) {
	actor, target, ok := h.loadTarget(w, r)
	if !ok {
		return
	}

	var req reportRequest
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&req)
	}

	rep := &models.Report{ReporterID: actor.ID, ReportedID: target.ID, Reason: req.Reason}
	if _, err := h.blockRepo.CreateReport(r.Context(), rep); err != nil {
		writeErr(w, err)
		return
	}

	if conv, err := h.med.EnsureConversation(r.Context(), actor.ID, target.ID, 0); err == nil {
		if err := h.med.PostSystemMessage(r.Context(), conv, mediator.TplUserReported, map[string]string{"Name": target.Name}); err != nil {
			logger.Warn("post report message", "err", err)
		}
	}

	writeJSON(w, map[string]string{"status": "ok"}, http.StatusOK)
}

func (h *UsersHandler) loadTarget(w http.ResponseWriter, r *http.Request) (actor engage.Actor, target *models.User, ok bool) {
	a, authed := actorFrom(r)
	if !authed {
		http.Error(w, "Missing identity", http.StatusUnauthorized)
		return a, nil, false
	}
	targetID, okID := pathID(w, r, "id")
	if !okID {
		return a, nil, false
	}
	if targetID == a.ID {
		http.Error(w, "cannot target self", http.StatusBadRequest)
		return a, nil, false
	}

	u, err := h.userRepo.GetUser(r.Context(), targetID)
	if err != nil {
		writeErr(w, err)
		return a, nil, false
	}
	if u == nil {
		http.Error(w, "user not found", http.StatusNotFound)
		return a, nil, false
	}
	return a, u, true
}
