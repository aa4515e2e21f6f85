package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/shiftline/marketplace/internal/mediator"
	"github.com/shiftline/marketplace/pkg/engage"
	"github.com/shiftline/marketplace/pkg/models"
	"github.com/shiftline/marketplace/pkg/repository"
)

type ConversationsHandler struct {
	convRepo repository.ConversationRepo
	msgRepo  repository.MessageRepo
	med      *mediator.Mediator
}

func NewConversationsHandler(cr repository.ConversationRepo, mr repository.MessageRepo, med *mediator.Mediator) *ConversationsHandler {
	return &ConversationsHandler{convRepo: cr, msgRepo: mr, med: med}
}

func (h *ConversationsHandler) List(w http.ResponseWriter, r *http.Request) {
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

	convs, err := h.convRepo.ListByParticipant(r.Context(), actor.ID, limit, offset)
	if err != nil {
		writeErr(w, err)
		return
	}
	if convs == nil {
		convs = []models.Conversation{}
	}
	writeJSON(w, map[string]any{"limit": limit, "offset": offset, "items": convs}, http.StatusOK)
}

// ListMessages returns messages oldest first and marks the counterpart's
// messages read for the caller.
func (h *ConversationsHandler) ListMessages(w http.ResponseWriter, r *http.Request) {
	actor, conv, ok := h.loadConversation(w, r)
	if !ok {
		return
	}

	q := r.URL.Query()
	limit := 100
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

	msgs, err := h.msgRepo.ListByConversation(r.Context(), conv.ID, limit, offset)
	if err != nil {
		writeErr(w, err)
		return
	}
	if msgs == nil {
		msgs = []models.Message{}
	}

	if err := h.msgRepo.MarkRead(r.Context(), conv.ID, actor.ID); err != nil {
		logger.Warn("mark read", "conversation_id", conv.ID, "err", err)
	}

	writeJSON(w, map[string]any{"limit": limit, "offset": offset, "items": msgs}, http.StatusOK)
}

type postMessageRequest struct {
	Content string `json:"content"`
}

func (h *ConversationsHandler) PostMessage(w http.ResponseWriter, r *http.Request) {
	actor, conv, ok := h.loadConversation(w, r)
	if !ok {
		return
	}

	var req postMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request", http.StatusBadRequest)
		return
	}

	msg, err := h.med.PostUserMessage(r.Context(), conv, actor.ID, req.Content)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, msg, http.StatusCreated)
}

func (h *ConversationsHandler) loadConversation(w http.ResponseWriter, r *http.Request) (engage.Actor, *models.Conversation, bool) {
	actor, ok := actorFrom(r)
	if !ok {
		http.Error(w, "Missing identity", http.StatusUnauthorized)
		return actor, nil, false
	}
	convID, ok := pathID(w, r, "id")
	if !ok {
		return actor, nil, false
	}

	conv, err := h.convRepo.GetConversation(r.Context(), convID)
	if err != nil {
		writeErr(w, err)
		return actor, nil, false
	}
	if conv == nil {
		http.Error(w, "conversation not found", http.StatusNotFound)
		return actor, nil, false
	}
	if !conv.HasParticipant(actor.ID) {
		http.Error(w, "not a participant", http.StatusForbidden)
		return actor, nil, false
	}
	return actor, conv, true
}
