package index

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/starford/commonplace/internal/apperr"
	"github.com/starford/commonplace/internal/models"
)

const noteColumns = `id, module, path, title, body, checksum, properties, extra, created, modified`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanNote(r rowScanner) (*models.Note, error) {
	var n models.Note
	var props, extra string
	var created, modified sql.NullTime
	err := r.Scan(&n.ID, &n.Module, &n.Path, &n.Title, &n.Body, &n.Checksum,
		&props, &extra, &created, &modified)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(props), &n.Properties); err != nil {
		return nil, fmt.Errorf("decode properties: %w", err)
	}
	if err := json.Unmarshal([]byte(extra), &n.Extra); err != nil {
		return nil, fmt.Errorf("decode extra: %w", err)
	}
	if len(n.Extra) == 0 {
		n.Extra = nil
	}
	if created.Valid {
		n.Created = created.Time
	}
	if modified.Valid {
		n.Modified = modified.Time
	}
	return &n, nil
}

// GetByID returns one full note record, tags included.
func (db *DB) GetByID(ctx context.Context, id string) (*models.Note, error) {
	row := db.conn.QueryRowContext(ctx, `SELECT `+noteColumns+` FROM notes WHERE id = ?`, id)
	n, err := scanNote(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("index: note %s: %w", id, apperr.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("index: get note: %w", err)
	}
	if err := db.loadTags(ctx, n); err != nil {
		return nil, err
	}
	return n, nil
}

// GetByPath returns the full note record indexed at path.
func (db *DB) GetByPath(ctx context.Context, path string) (*models.Note, error) {
	row := db.conn.QueryRowContext(ctx, `SELECT `+noteColumns+` FROM notes WHERE path = ?`, path)
	n, err := scanNote(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("index: note at %s: %w", path, apperr.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("index: get note: %w", err)
	}
	if err := db.loadTags(ctx, n); err != nil {
		return nil, err
	}
	return n, nil
}

// loadTags attaches a note's tags in first-seen order.
func (db *DB) loadTags(ctx context.Context, n *models.Note) error {
	rows, err := db.conn.QueryContext(ctx, `SELECT tag FROM tags WHERE note_id = ? ORDER BY rowid`, n.ID)
	if err != nil {
		return fmt.Errorf("index: load tags: %w", err)
	}
	defer rows.Close()
	var tags []string
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return err
		}
		tags = append(tags, t)
	}
	n.Tags = tags
	return rows.Err()
}

// Scan streams every note of a module to fn in stable path order. Scanned
// notes omit body and tags; filtering and sorting work on properties and
// the built-in fields.
func (db *DB) Scan(ctx context.Context, module string, fn func(models.Note) error) error {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT id, module, path, title, '', checksum, properties, extra, created, modified
		FROM notes WHERE module = ? ORDER BY path
	`, module)
	if err != nil {
		return fmt.Errorf("index: scan: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		n, err := scanNote(rows)
		if err != nil {
			return fmt.Errorf("index: scan: %w", err)
		}
		if err := fn(*n); err != nil {
			return err
		}
	}
	return rows.Err()
}

// Neighbors returns the link edges touching a note. Outgoing edges come
// back in declaration order.
func (db *DB) Neighbors(ctx context.Context, id string, dir Direction) ([]models.Link, error) {
	const cols = `SELECT source_id, target_ref, target_id, link_type, position FROM links `
	var query string
	args := []any{id}
	switch dir {
	case Outgoing:
		query = cols + `WHERE source_id = ? ORDER BY position`
	case Incoming:
		query = cols + `WHERE target_id = ? ORDER BY source_id, position`
	default:
		query = cols + `WHERE source_id = ? OR target_id = ? ORDER BY source_id, position`
		args = append(args, id)
	}
	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("index: neighbors: %w", err)
	}
	defer rows.Close()
	return scanLinks(rows)
}

func scanLinks(rows *sql.Rows) ([]models.Link, error) {
	var out []models.Link
	for rows.Next() {
		var l models.Link
		var target sql.NullString
		if err := rows.Scan(&l.SourceID, &l.TargetRef, &target, &l.Type, &l.Position); err != nil {
			return nil, err
		}
		if target.Valid {
			l.TargetID = target.String
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

// Backlinks returns the notes whose links resolve to the given note.
func (db *DB) Backlinks(ctx context.Context, id string) ([]NoteSummary, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT DISTINCT n.id, n.module, n.path, n.title, n.modified
		FROM links l JOIN notes n ON n.id = l.source_id
		WHERE l.target_id = ?
		ORDER BY n.path
	`, id)
	if err != nil {
		return nil, fmt.Errorf("index: backlinks: %w", err)
	}
	defer rows.Close()
	return scanSummaries(rows)
}

// Graph returns every note as a node and every link as an edge, unresolved
// edges included.
func (db *DB) Graph(ctx context.Context) ([]NoteSummary, []models.Link, error) {
	nodeRows, err := db.conn.QueryContext(ctx, `
		SELECT id, module, path, title, modified FROM notes ORDER BY path
	`)
	if err != nil {
		return nil, nil, fmt.Errorf("index: graph nodes: %w", err)
	}
	defer nodeRows.Close()
	nodes, err := scanSummaries(nodeRows)
	if err != nil {
		return nil, nil, err
	}

	linkRows, err := db.conn.QueryContext(ctx, `
		SELECT source_id, target_ref, target_id, link_type, position
		FROM links ORDER BY source_id, position
	`)
	if err != nil {
		return nil, nil, fmt.Errorf("index: graph links: %w", err)
	}
	defer linkRows.Close()
	edges, err := scanLinks(linkRows)
	if err != nil {
		return nil, nil, err
	}
	return nodes, edges, nil
}

func scanSummaries(rows *sql.Rows) ([]NoteSummary, error) {
	var out []NoteSummary
	for rows.Next() {
		var s NoteSummary
		var modified sql.NullTime
		if err := rows.Scan(&s.ID, &s.Module, &s.Path, &s.Title, &modified); err != nil {
			return nil, err
		}
		if modified.Valid {
			s.Modified = modified.Time
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// ListNotes pages through note summaries, optionally narrowed by module or
// tag.
func (db *DB) ListNotes(ctx context.Context, opts ListOptions) ([]NoteSummary, int, error) {
	var conds []string
	var args []any
	if opts.Module != "" {
		conds = append(conds, `module = ?`)
		args = append(args, opts.Module)
	}
	if opts.Tag != "" {
		conds = append(conds, `id IN (SELECT note_id FROM tags WHERE tag = ?)`)
		args = append(args, strings.ToLower(opts.Tag))
	}
	where := ""
	if len(conds) > 0 {
		where = ` WHERE ` + strings.Join(conds, ` AND `)
	}

	var total int
	if err := db.conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM notes`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("index: count notes: %w", err)
	}

	order := ` ORDER BY modified DESC, path`
	switch opts.Sort {
	case "title":
		order = ` ORDER BY title, path`
	case "path":
		order = ` ORDER BY path`
	}
	limit := opts.Limit
	if limit <= 0 {
		limit = 100
	}
	args = append(args, limit, opts.Offset)

	rows, err := db.conn.QueryContext(ctx, `
		SELECT id, module, path, title, modified FROM notes`+where+order+` LIMIT ? OFFSET ?`, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("index: list notes: %w", err)
	}
	defer rows.Close()
	out, err := scanSummaries(rows)
	if err != nil {
		return nil, 0, err
	}
	return out, total, nil
}
