//go:build !sqlite_fts5

package index

import (
	"context"
	"database/sql"
	"fmt"
)

func initFTS(_ *sql.DB) error {
	// FTS5 not available; full-text search uses LIKE fallback on the notes.body column.
	return nil
}

func ftsUpsert(_ context.Context, _ *sql.Tx, _, _, _ string, _ []string) error {
	// Body is already stored in the notes table; nothing extra to do.
	return nil
}

func ftsDelete(_ context.Context, _ *sql.Tx, _ string) error { return nil }

// TextSearch performs a LIKE-based search (fallback when FTS5 is not
// compiled in), optionally narrowed to one module.
func (db *DB) TextSearch(ctx context.Context, query, module string, limit int) ([]SearchResult, error) {
	if limit <= 0 {
		limit = 20
	}
	like := "%" + query + "%"
	q := `
		SELECT id, path, title, substr(body, 1, 200)
		FROM notes
		WHERE (title LIKE ? OR body LIKE ? OR id IN (SELECT note_id FROM tags WHERE tag LIKE ?))`
	args := []any{like, like, like}
	if module != "" {
		q += ` AND module = ?`
		args = append(args, module)
	}
	q += ` ORDER BY path LIMIT ?`
	args = append(args, limit)

	rows, err := db.conn.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("index: search: %w", err)
	}
	defer rows.Close()

	var out []SearchResult
	for rows.Next() {
		var r SearchResult
		if err := rows.Scan(&r.ID, &r.Path, &r.Title, &r.Snippet); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
