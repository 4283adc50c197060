package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"voicevault/internal/capture"
	"voicevault/internal/handlers"
	"voicevault/internal/lifecycle"
	"voicevault/internal/search"
)

// Deps holds dependencies for the HTTP router.
type Deps struct {
	Manager *lifecycle.Manager
	Capture *capture.Service
	Search  *search.Engine
	Queue   handlers.PendingCounter
}

// NewRouter creates the HTTP router with the provided dependencies.
func NewRouter(deps *Deps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Recoverer)
	r.Use(LoggerMiddleware)
	r.Use(CORS)

	sessions := handlers.NewSessionHandler(deps.Manager)
	audio := handlers.NewAudioHandler(deps.Capture)
	searchHandler := handlers.NewSearchHandler(deps.Search)

	r.Route("/api", func(r chi.Router) {
		r.Post("/sessions", sessions.Create)
		r.Get("/sessions", sessions.List)
		r.Get("/sessions/interrupted", sessions.Interrupted)
		r.Get("/sessions/{id}", sessions.Get)
		r.Post("/sessions/{id}/audio", audio.Add)
		r.Post("/sessions/{id}/finalize", sessions.Finalize)
		r.Post("/sessions/{id}/reopen", sessions.Reopen)
		r.Post("/sessions/{id}/recover", sessions.Recover)
		r.Get("/sessions/{id}/integrity", audio.Integrity)
		r.Get("/orphans", audio.Orphans)
		r.Get("/search", searchHandler.Search)
	})

	r.Method(http.MethodGet, "/healthz", handlers.NewHealthHandler(deps.Queue))

	return r
}
