// Package api implements the Commonplace REST API using chi.
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/starford/commonplace/internal/noteservice"
)

// NewRouter creates a chi router with all API routes mounted.
// sseHandler, if non-nil, is mounted at GET /events.
func NewRouter(svc *noteservice.Service, sseHandler http.Handler) chi.Router {
	h := NewHandler(svc)

	r := chi.NewRouter()

	// Notes CRUD, addressed by vault path.
	r.Get("/notes", h.ListNotes)
	r.Post("/notes", h.CreateNote)
	r.Get("/notes/*", h.GetNote)
	r.Put("/notes/*", h.UpdateNote)
	r.Delete("/notes/*", h.DeleteNote)

	// Stable-ID lookups.
	r.Get("/note/{id}", h.GetNoteByID)
	r.Get("/note/{id}/backlinks", h.Backlinks)

	// Search.
	r.Get("/search", h.Search)

	// Link graph.
	r.Get("/graph", h.Graph)
	r.Get("/graph/neighbors", h.Neighbors)

	// Module schemas and their views.
	r.Get("/modules", h.Modules)
	r.Get("/views/{module}/{view}", h.EvaluateView)

	// SSE endpoint.
	if sseHandler != nil {
		r.Get("/events", sseHandler.ServeHTTP)
	}

	return r
}
