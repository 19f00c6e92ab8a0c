// Package noteservice exposes vault CRUD on top of the parser, the index,
// and the schema registry. Writes go through here when a caller (HTTP,
// MCP) edits a note directly; watcher-driven changes take the coordinator
// path instead and converge on the same index state.
package noteservice

import (
	"context"
	"errors"
	"io/fs"
	"sync"
	"time"

	"github.com/starford/commonplace/internal/apperr"
	"github.com/starford/commonplace/internal/checksum"
	"github.com/starford/commonplace/internal/index"
	"github.com/starford/commonplace/internal/links"
	"github.com/starford/commonplace/internal/models"
	"github.com/starford/commonplace/internal/noteid"
	"github.com/starford/commonplace/internal/parser"
	"github.com/starford/commonplace/internal/query"
	"github.com/starford/commonplace/internal/schema"
	"github.com/starford/commonplace/internal/storage"
)

// NoteDetail is the full representation of a note: the indexed record plus
// the raw file content for editing.
type NoteDetail struct {
	ID         string              `json:"id"`
	Module     string              `json:"module"`
	Path       string              `json:"path"`
	Title      string              `json:"title"`
	Content    string              `json:"content"`
	Checksum   string              `json:"checksum"`
	Tags       []string            `json:"tags"`
	Properties []models.Property   `json:"properties,omitempty"`
	Extra      map[string]any      `json:"extra,omitempty"`
	Links      []models.Link       `json:"links"`
	Backlinks  []index.NoteSummary `json:"backlinks"`
	Created    time.Time           `json:"created"`
	Modified   time.Time           `json:"modified"`
}

// Service coordinates storage, parsing, and index operations.
type Service struct {
	files storage.Provider
	idx   index.NoteIndex
	parse *parser.Parser
	reg   *schema.Registry
	eng   *query.Engine

	// wmu serializes the mutating calls so their exists / If-Match checks
	// stay valid through the write that follows.
	wmu sync.Mutex
}

// NewService creates a new note service.
func NewService(files storage.Provider, idx index.NoteIndex, parse *parser.Parser, reg *schema.Registry, eng *query.Engine) *Service {
	return &Service{files: files, idx: idx, parse: parse, reg: reg, eng: eng}
}

// GetNote reads the note at path, parses it, and enriches it with the
// link state held by the index.
func (s *Service) GetNote(ctx context.Context, path string) (*NoteDetail, error) {
	data, err := s.files.Read(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, apperr.ErrNotFound
		}
		return nil, err
	}
	note, err := s.parse.Parse(data, path)
	if err != nil {
		return nil, err
	}
	if note.ID == "" {
		// File predates ID stamping; the index may know it anyway.
		if id, idErr := s.idx.PathID(ctx, path); idErr == nil {
			note.ID = id
		}
	}
	return s.buildDetail(ctx, note, data)
}

// GetNoteByID loads a note through the index.
func (s *Service) GetNoteByID(ctx context.Context, id string) (*NoteDetail, error) {
	note, err := s.idx.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	data, err := s.files.Read(note.Path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, apperr.ErrNotFound
		}
		return nil, err
	}
	return s.buildDetail(ctx, *note, data)
}

// CreateNote writes a new note and indexes it. Notes without an id in
// their front-matter get one stamped before the file hits disk, so the
// identity survives later renames.
func (s *Service) CreateNote(ctx context.Context, path string, content []byte) (*NoteDetail, error) {
	s.wmu.Lock()
	defer s.wmu.Unlock()

	if _, err := s.files.Read(path); err == nil {
		return nil, apperr.ErrAlreadyExists
	}

	note, err := s.parse.Parse(content, path)
	if err != nil {
		return nil, err
	}
	if note.ID == "" {
		id, idErr := noteid.New(note.Module)
		if idErr != nil {
			return nil, idErr
		}
		note.ID = id
		content, err = parser.Serialize(note)
		if err != nil {
			return nil, err
		}
	}
	note.Checksum = checksum.Sum(content)

	if err := s.files.Write(path, content); err != nil {
		return nil, err
	}
	if err := s.commit(ctx, note); err != nil {
		return nil, err
	}
	return s.buildDetail(ctx, note, content)
}

// UpdateNote writes updated content with optimistic concurrency: when
// ifMatch is set it must equal the checksum of the current file. The
// note keeps its indexed identity even if the new content omits the id.
func (s *Service) UpdateNote(ctx context.Context, path string, content []byte, ifMatch string) (*NoteDetail, error) {
	s.wmu.Lock()
	defer s.wmu.Unlock()

	existing, err := s.files.Read(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, apperr.ErrNotFound
		}
		return nil, err
	}
	if ifMatch != "" && ifMatch != checksum.Sum(existing) {
		return nil, apperr.ErrConflict
	}

	note, err := s.parse.Parse(content, path)
	if err != nil {
		return nil, err
	}
	if note.ID == "" {
		id, idErr := s.idx.PathID(ctx, path)
		if idErr != nil {
			return nil, idErr
		}
		if id == "" {
			if id, idErr = noteid.New(note.Module); idErr != nil {
				return nil, idErr
			}
		}
		note.ID = id
		content, err = parser.Serialize(note)
		if err != nil {
			return nil, err
		}
	}
	note.Checksum = checksum.Sum(content)

	if err := s.files.Write(path, content); err != nil {
		return nil, err
	}
	if err := s.commit(ctx, note); err != nil {
		return nil, err
	}
	return s.buildDetail(ctx, note, content)
}

// DeleteNote removes a note from storage and from the index. Inbound
// links to it flip to unresolved rather than disappearing.
func (s *Service) DeleteNote(ctx context.Context, path string) error {
	s.wmu.Lock()
	defer s.wmu.Unlock()

	id, err := s.idx.PathID(ctx, path)
	if err != nil {
		return err
	}
	if err := s.files.Delete(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return apperr.ErrNotFound
		}
		return err
	}
	if id == "" {
		return nil
	}
	return s.idx.Remove(ctx, id)
}

// ListNotes returns paginated note summaries.
func (s *Service) ListNotes(ctx context.Context, opts index.ListOptions) ([]index.NoteSummary, int, error) {
	return s.idx.ListNotes(ctx, opts)
}

// Search delegates full-text search to the index.
func (s *Service) Search(ctx context.Context, q, module string, limit int) ([]index.SearchResult, error) {
	return s.idx.TextSearch(ctx, q, module, limit)
}

// Backlinks returns summaries of the notes linking to id.
func (s *Service) Backlinks(ctx context.Context, id string) ([]index.NoteSummary, error) {
	return s.idx.Backlinks(ctx, id)
}

// Neighbors returns the link edges of a note in the given direction.
func (s *Service) Neighbors(ctx context.Context, id string, dir index.Direction) ([]models.Link, error) {
	return s.idx.Neighbors(ctx, id, dir)
}

// Graph returns every node and edge for graph rendering.
func (s *Service) Graph(ctx context.Context) ([]index.NoteSummary, []models.Link, error) {
	return s.idx.Graph(ctx)
}

// Modules lists the registered module schemas.
func (s *Service) Modules() []models.Module {
	return s.reg.Modules()
}

// EvaluateView runs a module-declared view.
func (s *Service) EvaluateView(ctx context.Context, module, view string) (query.Result, error) {
	return s.eng.Evaluate(ctx, module, view)
}

// commit extracts links from note and applies the atomic index update.
func (s *Service) commit(ctx context.Context, note models.Note) error {
	outgoing, err := links.Extract(note)
	if err != nil {
		return err
	}
	return s.idx.Commit(ctx, note, outgoing)
}

// buildDetail assembles the response without re-reading the file.
func (s *Service) buildDetail(ctx context.Context, note models.Note, data []byte) (*NoteDetail, error) {
	detail := &NoteDetail{
		ID:         note.ID,
		Module:     note.Module,
		Path:       note.Path,
		Title:      note.Title,
		Content:    string(data),
		Checksum:   checksum.Sum(data),
		Tags:       nonNilSlice(note.Tags),
		Properties: note.Properties,
		Extra:      note.Extra,
		Links:      []models.Link{},
		Backlinks:  []index.NoteSummary{},
		Created:    note.Created,
		Modified:   note.Modified,
	}
	if note.ID == "" {
		return detail, nil
	}
	outgoing, err := s.idx.Neighbors(ctx, note.ID, index.Outgoing)
	if err != nil {
		return nil, err
	}
	backlinks, err := s.idx.Backlinks(ctx, note.ID)
	if err != nil {
		return nil, err
	}
	detail.Links = nonNilSlice(outgoing)
	detail.Backlinks = nonNilSlice(backlinks)
	return detail, nil
}

func nonNilSlice[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
