package handlers

import (
	"net/http"
	"strconv"

	"voicevault/internal/search"
	"voicevault/internal/store"
)

// SearchHandler serves session lookups.
type SearchHandler struct {
	engine *search.Engine
}

// NewSearchHandler creates a new SearchHandler.
func NewSearchHandler(engine *search.Engine) *SearchHandler {
	return &SearchHandler{engine: engine}
}

// Search resolves a query to sessions. It always answers 200: misses come
// back as NOT_FOUND responses with suggestions, never as HTTP errors.
func (h *SearchHandler) Search(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	filters := search.Filters{
		OwnerID: q.Get("owner_id"),
	}
	if limit := q.Get("limit"); limit != "" {
		n, err := strconv.Atoi(limit)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		filters.Limit = n
	}
	if state := q.Get("state"); state != "" {
		filters.States = []store.SessionState{store.SessionState(state)}
	}

	resp := h.engine.Search(r.Context(), q.Get("q"), filters)
	writeJSON(w, http.StatusOK, resp)
}
