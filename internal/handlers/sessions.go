package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"voicevault/internal/contextutil"
	"voicevault/internal/lifecycle"
	"voicevault/internal/store"
)

// SessionHandler serves session lifecycle endpoints.
type SessionHandler struct {
	manager *lifecycle.Manager
}

// NewSessionHandler creates a new SessionHandler.
func NewSessionHandler(manager *lifecycle.Manager) *SessionHandler {
	return &SessionHandler{manager: manager}
}

// CreateRequest is the payload for opening a new session.
type CreateRequest struct {
	OwnerID string `json:"owner_id"`
	Name    string `json:"name,omitempty"`
}

// RecoverRequest selects the recovery action for an interrupted session.
type RecoverRequest struct {
	Action string `json:"action"`
}

// Create opens a new COLLECTING session.
func (h *SessionHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.OwnerID == "" {
		writeError(w, http.StatusBadRequest, "owner_id is required")
		return
	}

	sess, err := h.manager.Create(r.Context(), req.OwnerID, req.Name)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, sess)
}

// List returns every session. Corrupted sessions are omitted but logged; the
// healthy ones still list.
func (h *SessionHandler) List(w http.ResponseWriter, r *http.Request) {
	logger := contextutil.LoggerFromContext(r.Context())

	sessions, err := h.manager.List(r.Context())
	if err != nil && len(sessions) == 0 {
		writeServiceError(w, r, err)
		return
	}
	if err != nil {
		logger.WarnContext(r.Context(), "listing past unreadable sessions", "error", err)
	}
	if sessions == nil {
		sessions = []*store.Session{}
	}
	writeJSON(w, http.StatusOK, sessions)
}

// Get returns one session.
func (h *SessionHandler) Get(w http.ResponseWriter, r *http.Request) {
	sess, err := h.manager.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

// Finalize closes collection and hands the session to the queue.
func (h *SessionHandler) Finalize(w http.ResponseWriter, r *http.Request) {
	sess, err := h.manager.Finalize(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

// Reopen returns a READY session to COLLECTING.
func (h *SessionHandler) Reopen(w http.ResponseWriter, r *http.Request) {
	sess, err := h.manager.Reopen(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

// Recover applies a RESUME / FINALIZE / DISCARD decision to an interrupted
// session.
func (h *SessionHandler) Recover(w http.ResponseWriter, r *http.Request) {
	var req RecoverRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	action, err := lifecycle.ParseAction(req.Action)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	sess, err := h.manager.Recover(r.Context(), chi.URLParam(r, "id"), action)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

// Interrupted lists COLLECTING sessions that look abandoned.
func (h *SessionHandler) Interrupted(w http.ResponseWriter, r *http.Request) {
	found, err := h.manager.DetectInterrupted(r.Context())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if found == nil {
		found = []lifecycle.InterruptedSession{}
	}
	writeJSON(w, http.StatusOK, found)
}
