package api

import (
	"github.com/starford/commonplace/internal/index"
	"github.com/starford/commonplace/internal/models"
	"github.com/starford/commonplace/internal/noteservice"
	"github.com/starford/commonplace/internal/query"
)

// CreateNoteRequest is the request body for creating a note.
type CreateNoteRequest struct {
	Path    string `json:"path" example:"tasks/ship-release.md" validate:"required"`
	Content string `json:"content" example:"---\nmodule: tasks\n---\nShip it" validate:"required"`
}

// UpdateNoteRequest is the request body for updating a note.
type UpdateNoteRequest struct {
	Content string `json:"content" example:"---\nmodule: tasks\n---\nShipped" validate:"required"`
}

// NoteDetail is the full note response type (aliased from the domain layer).
type NoteDetail = noteservice.NoteDetail

// NoteListResponse wraps paginated note listings.
type NoteListResponse struct {
	Notes []index.NoteSummary `json:"notes" validate:"required"`
	Total int                 `json:"total" example:"42" validate:"required"`
}

// SearchResponse wraps full-text search results.
type SearchResponse struct {
	Results []index.SearchResult `json:"results" validate:"required"`
}

// GraphResponse wraps the link graph: every indexed note plus every edge,
// unresolved edges included (their target is empty).
type GraphResponse struct {
	Nodes []index.NoteSummary `json:"nodes" validate:"required"`
	Links []models.Link       `json:"links" validate:"required"`
}

// NeighborsResponse wraps the edges touching one note.
type NeighborsResponse struct {
	ID    string        `json:"id" validate:"required"`
	Links []models.Link `json:"links" validate:"required"`
}

// BacklinksResponse wraps the notes linking to one note.
type BacklinksResponse struct {
	ID        string              `json:"id" validate:"required"`
	Backlinks []index.NoteSummary `json:"backlinks" validate:"required"`
}

// ModulesResponse wraps the registered module schemas.
type ModulesResponse struct {
	Modules []models.Module `json:"modules" validate:"required"`
}

// ViewResult is an evaluated view (aliased from the query engine).
type ViewResult = query.Result
