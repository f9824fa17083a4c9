package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// buildRouter creates the chi router with all middleware and routes.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(s.withRecovery)
	r.Use(s.withRequestID)
	r.Use(s.withAccessLog)

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeNotFound(w, "no such route")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, ErrCodeBadRequest, "method not allowed")
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/subscriptions", s.handleListSubscriptions)
		r.Post("/publish", s.handlePublish)
		r.Get("/events", s.handleListEvents)
		r.Get("/ws", s.handleWebSocket)
	})

	return r
}
