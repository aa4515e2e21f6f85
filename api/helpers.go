package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"log/slog"

	"github.com/shiftline/marketplace/pkg/engage"
)

func writeJSON(w http.ResponseWriter, v any, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error("encode response", slog.Any("err", err))
	}
}

// writeErr maps the shared error taxonomy onto HTTP statuses. Guard
// failures surface as-is for user-facing correction; only Unavailable is
// worth a retry by the client.
func writeErr(w http.ResponseWriter, err error) {
	var ve *engage.ValidationError
	switch {
	case errors.As(err, &ve):
		writeJSON(w, map[string]string{"error": ve.Error(), "field": ve.Field}, http.StatusUnprocessableEntity)
	case errors.Is(err, engage.ErrNotFound):
		writeJSON(w, map[string]string{"error": err.Error()}, http.StatusNotFound)
	case errors.Is(err, engage.ErrUnauthorized):
		writeJSON(w, map[string]string{"error": err.Error()}, http.StatusForbidden)
	case errors.Is(err, engage.ErrInvalidState):
		writeJSON(w, map[string]string{"error": err.Error()}, http.StatusConflict)
	case errors.Is(err, engage.ErrUnavailable):
		writeJSON(w, map[string]string{"error": "temporarily unavailable, retry later"}, http.StatusServiceUnavailable)
	default:
		logger.Error("internal error", slog.Any("err", err))
		writeJSON(w, map[string]string{"error": "internal error"}, http.StatusInternalServerError)
	}
}
