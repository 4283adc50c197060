package handlers

import (
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"voicevault/internal/capture"
)

// maxAudioBytes bounds a single uploaded chunk.
const maxAudioBytes = 64 << 20

// AudioHandler serves audio capture and integrity endpoints.
type AudioHandler struct {
	capture *capture.Service
}

// NewAudioHandler creates a new AudioHandler.
func NewAudioHandler(svc *capture.Service) *AudioHandler {
	return &AudioHandler{capture: svc}
}

// Add accepts one raw audio chunk for a COLLECTING session. The optional
// X-Source-Ref header carries the remote file id for later re-fetch.
func (h *AudioHandler) Add(w http.ResponseWriter, r *http.Request) {
	data, err := io.ReadAll(io.LimitReader(r.Body, maxAudioBytes+1))
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read audio body")
		return
	}
	if len(data) == 0 {
		writeError(w, http.StatusBadRequest, "empty audio payload")
		return
	}
	if len(data) > maxAudioBytes {
		writeError(w, http.StatusRequestEntityTooLarge, "audio payload too large")
		return
	}

	seg, err := h.capture.AddSegment(r.Context(), chi.URLParam(r, "id"), data, time.Now().UTC(), r.Header.Get("X-Source-Ref"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, seg)
}

// Integrity re-verifies every segment checksum of a session.
func (h *AudioHandler) Integrity(w http.ResponseWriter, r *http.Request) {
	report, err := h.capture.VerifyIntegrity(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// Orphans reports audio files on disk that no session metadata references.
func (h *AudioHandler) Orphans(w http.ResponseWriter, r *http.Request) {
	orphans, err := h.capture.RecoverOrphans(r.Context())
	if err != nil && len(orphans) == 0 {
		writeServiceError(w, r, err)
		return
	}
	if orphans == nil {
		orphans = []capture.Orphan{}
	}
	writeJSON(w, http.StatusOK, orphans)
}
