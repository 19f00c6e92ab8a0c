package index

import (
	"context"
	"time"

	"github.com/starford/commonplace/internal/models"
)

// Direction selects which link edges Neighbors returns.
type Direction int

const (
	Outgoing Direction = iota
	Incoming
	BothDirections
)

// NoteSummary is a lightweight note representation for listings and graph
// nodes.
type NoteSummary struct {
	ID       string    `json:"id"`
	Module   string    `json:"module"`
	Path     string    `json:"path"`
	Title    string    `json:"title"`
	Modified time.Time `json:"modified"`
}

// SearchResult represents one full-text search hit.
type SearchResult struct {
	ID      string `json:"id"`
	Path    string `json:"path"`
	Title   string `json:"title"`
	Snippet string `json:"snippet"`
}

// ListOptions narrows and pages ListNotes.
type ListOptions struct {
	Module string
	Tag    string
	Limit  int
	Offset int
	Sort   string // title, path or modified (default)
}

// NoteIndex defines the interface for note indexing operations.
// Consumers should depend on this interface rather than the concrete *DB
// type to facilitate testing with mocks.
type NoteIndex interface {
	Commit(ctx context.Context, note models.Note, outgoing []models.Link) error
	Remove(ctx context.Context, noteID string) error
	GetByID(ctx context.Context, id string) (*models.Note, error)
	GetByPath(ctx context.Context, path string) (*models.Note, error)
	PathID(ctx context.Context, path string) (string, error)
	ChecksumByPath(ctx context.Context, path string) (string, error)
	IDByChecksum(ctx context.Context, checksum string) (string, error)
	AllChecksums(ctx context.Context) (map[string]string, error)
	Scan(ctx context.Context, module string, fn func(models.Note) error) error
	TextSearch(ctx context.Context, query, module string, limit int) ([]SearchResult, error)
	Neighbors(ctx context.Context, id string, dir Direction) ([]models.Link, error)
	Backlinks(ctx context.Context, id string) ([]NoteSummary, error)
	Graph(ctx context.Context) ([]NoteSummary, []models.Link, error)
	ListNotes(ctx context.Context, opts ListOptions) ([]NoteSummary, int, error)
	Close() error
}

// Verify *DB satisfies NoteIndex at compile time.
var _ NoteIndex = (*DB)(nil)
