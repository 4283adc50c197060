// Package handlers is the HTTP boundary: it decodes requests, calls the
// lifecycle, capture, and search services, and maps their errors to status
// codes. No session logic lives here.
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"voicevault/internal/capture"
	"voicevault/internal/contextutil"
	"voicevault/internal/lifecycle"
	"voicevault/internal/store"
)

// ErrorResponse represents an error response.
type ErrorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, ErrorResponse{Error: message})
}

// writeServiceError maps domain errors onto status codes. Corruption is
// deliberately kept distinct from not-found: a 404 invites retrying with
// another id, a corrupted session needs an operator.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	logger := contextutil.LoggerFromContext(r.Context())

	switch {
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, "session not found")
	case errors.Is(err, store.ErrCorrupted):
		logger.ErrorContext(r.Context(), "corrupted session metadata", "error", err)
		writeError(w, http.StatusInternalServerError, "session metadata corrupted; audio files are intact on disk")
	case errors.Is(err, lifecycle.ErrStateConflict), errors.Is(err, capture.ErrStateConflict):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, lifecycle.ErrActiveSessionExists):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, lifecycle.ErrNoSegments):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		logger.ErrorContext(r.Context(), "request failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}
