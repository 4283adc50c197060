package handlers

import (
	"context"
	"net/http"
	"time"

	"voicevault/internal/contextutil"
)

// PendingCounter reports how many segments await transcription.
type PendingCounter interface {
	Pending(ctx context.Context) (int, error)
}

// HealthHandler reports liveness plus a cheap view of queue depth.
type HealthHandler struct {
	queue PendingCounter
}

// NewHealthHandler creates a new HealthHandler.
func NewHealthHandler(queue PendingCounter) *HealthHandler {
	return &HealthHandler{queue: queue}
}

// HealthResponse is the health check payload.
type HealthResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
	Pending   int    `json:"pending_segments"`
}

func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := contextutil.LoggerFromContext(ctx)

	resp := HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
	if h.queue != nil {
		pending, err := h.queue.Pending(ctx)
		if err != nil {
			logger.WarnContext(ctx, "pending count unavailable", "error", err)
			resp.Status = "degraded"
		}
		resp.Pending = pending
	}

	status := http.StatusOK
	if resp.Status != "healthy" {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, resp)
}
