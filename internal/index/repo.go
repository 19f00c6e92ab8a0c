package index

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/starford/commonplace/internal/apperr"
	"github.com/starford/commonplace/internal/models"
)

// Commit inserts or replaces one note together with its tags, outgoing
// links, and text index entry, in a single transaction. Link targets are
// resolved against the current note set; references without a match stay
// unresolved, and unresolved references elsewhere that now match a note are
// filled in before the transaction commits.
func (db *DB) Commit(ctx context.Context, note models.Note, outgoing []models.Link) error {
	propsJSON, err := json.Marshal(note.Properties)
	if err != nil {
		return &apperr.StoreIOError{Op: "commit", Err: err}
	}
	extra := note.Extra
	if extra == nil {
		extra = map[string]any{}
	}
	extraJSON, err := json.Marshal(extra)
	if err != nil {
		return &apperr.StoreIOError{Op: "commit", Err: err}
	}

	db.mu.Lock()
	defer db.mu.Unlock()

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return &apperr.StoreIOError{Op: "commit", Err: err}
	}
	defer tx.Rollback() //nolint:errcheck // best-effort on failure path

	// A different note occupying this path is stale: the file changed
	// identity. Drop it; its inbound links become unresolved.
	var stale string
	err = tx.QueryRowContext(ctx, `SELECT id FROM notes WHERE path = ? AND id <> ?`, note.Path, note.ID).Scan(&stale)
	switch {
	case err == nil:
		if err := deleteNoteTx(ctx, tx, stale); err != nil {
			return &apperr.StoreIOError{Op: "commit", Err: err}
		}
	case !errors.Is(err, sql.ErrNoRows):
		return &apperr.StoreIOError{Op: "commit", Err: err}
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO notes (id, module, path, title, body, checksum, properties, extra, created, modified, indexed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(id) DO UPDATE SET
			module     = excluded.module,
			path       = excluded.path,
			title      = excluded.title,
			body       = excluded.body,
			checksum   = excluded.checksum,
			properties = excluded.properties,
			extra      = excluded.extra,
			created    = excluded.created,
			modified   = excluded.modified,
			indexed_at = CURRENT_TIMESTAMP
	`, note.ID, note.Module, note.Path, note.Title, note.Body, note.Checksum,
		string(propsJSON), string(extraJSON), nullTime(note.Created), nullTime(note.Modified))
	if err != nil {
		return &apperr.StoreIOError{Op: "commit", Err: err}
	}

	// Replace tags.
	if _, err := tx.ExecContext(ctx, `DELETE FROM tags WHERE note_id = ?`, note.ID); err != nil {
		return &apperr.StoreIOError{Op: "commit", Err: err}
	}
	for _, tag := range note.Tags {
		if _, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO tags (note_id, tag) VALUES (?, ?)`, note.ID, tag); err != nil {
			return &apperr.StoreIOError{Op: "commit", Err: err}
		}
	}

	// Replace outgoing links, resolving each target against the notes known
	// right now. The committed note itself counts, so self-references work.
	if _, err := tx.ExecContext(ctx, `DELETE FROM links WHERE source_id = ?`, note.ID); err != nil {
		return &apperr.StoreIOError{Op: "commit", Err: err}
	}
	for _, l := range outgoing {
		target, err := resolveRef(ctx, tx, l.TargetRef)
		if err != nil {
			return &apperr.StoreIOError{Op: "commit", Err: err}
		}
		typ := l.Type
		if typ == "" {
			typ = models.LinkTypeReference
		}
		_, err = tx.ExecContext(ctx, `
			INSERT OR IGNORE INTO links (source_id, target_ref, target_id, link_type, position)
			VALUES (?, ?, ?, ?, ?)
		`, note.ID, l.TargetRef, target, typ, l.Position)
		if err != nil {
			return &apperr.StoreIOError{Op: "commit", Err: err}
		}
	}

	if err := ftsUpsert(ctx, tx, note.ID, note.Title, note.Body, note.Tags); err != nil {
		return &apperr.StoreIOError{Op: "commit", Err: err}
	}

	if err := resolvePending(ctx, tx); err != nil {
		return &apperr.StoreIOError{Op: "commit", Err: err}
	}

	if err := tx.Commit(); err != nil {
		return &apperr.StoreIOError{Op: "commit", Err: err}
	}
	return nil
}

// Remove deletes a note and its outgoing links. Inbound links survive with
// their target cleared, so re-creating the note later restores them without
// touching the linking notes.
func (db *DB) Remove(ctx context.Context, noteID string) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return &apperr.StoreIOError{Op: "remove", Err: err}
	}
	defer tx.Rollback() //nolint:errcheck

	if err := deleteNoteTx(ctx, tx, noteID); err != nil {
		return &apperr.StoreIOError{Op: "remove", Err: err}
	}
	if err := resolvePending(ctx, tx); err != nil {
		return &apperr.StoreIOError{Op: "remove", Err: err}
	}
	if err := tx.Commit(); err != nil {
		return &apperr.StoreIOError{Op: "remove", Err: err}
	}
	return nil
}

// deleteNoteTx removes one note row; tags and outgoing links cascade, the
// text index entry goes explicitly, inbound links keep their rows with the
// target cleared.
func deleteNoteTx(ctx context.Context, tx *sql.Tx, noteID string) error {
	if _, err := tx.ExecContext(ctx, `UPDATE links SET target_id = NULL WHERE target_id = ?`, noteID); err != nil {
		return err
	}
	if err := ftsDelete(ctx, tx, noteID); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM notes WHERE id = ?`, noteID); err != nil {
		return err
	}
	return nil
}

// resolveRef finds the note a reference points at: exact ID first, then a
// unique case-insensitive title match, then a unique path or path stem.
// Ambiguous references stay unresolved; the engine never guesses.
func resolveRef(ctx context.Context, tx *sql.Tx, ref string) (sql.NullString, error) {
	var id string
	err := tx.QueryRowContext(ctx, `SELECT id FROM notes WHERE id = ?`, ref).Scan(&id)
	switch {
	case err == nil:
		return sql.NullString{String: id, Valid: true}, nil
	case !errors.Is(err, sql.ErrNoRows):
		return sql.NullString{}, err
	}

	if id, ok, err := uniqueMatch(ctx, tx, `SELECT id FROM notes WHERE lower(title) = lower(?) LIMIT 2`, ref); err != nil {
		return sql.NullString{}, err
	} else if ok {
		return sql.NullString{String: id, Valid: true}, nil
	}

	if id, ok, err := uniqueMatch(ctx, tx, `
		SELECT id FROM notes WHERE path = ? OR path = ? || '.md' OR path LIKE '%/' || ? || '.md' LIMIT 2
	`, ref, ref, ref); err != nil {
		return sql.NullString{}, err
	} else if ok {
		return sql.NullString{String: id, Valid: true}, nil
	}

	return sql.NullString{}, nil
}

// uniqueMatch runs a candidate query and returns its single hit, or nothing
// when there are zero or several.
func uniqueMatch(ctx context.Context, tx *sql.Tx, query string, args ...any) (string, bool, error) {
	rows, err := tx.QueryContext(ctx, query, args...)
	if err != nil {
		return "", false, err
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return "", false, err
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return "", false, err
	}
	if len(ids) == 1 {
		return ids[0], true, nil
	}
	return "", false, nil
}

// resolvePending re-resolves every unresolved reference against the current
// note set. Runs at the tail of each write so a target that just appeared
// (or just became unambiguous) picks up its inbound links.
func resolvePending(ctx context.Context, tx *sql.Tx) error {
	rows, err := tx.QueryContext(ctx, `SELECT DISTINCT target_ref FROM links WHERE target_id IS NULL`)
	if err != nil {
		return err
	}
	var refs []string
	for rows.Next() {
		var ref string
		if err := rows.Scan(&ref); err != nil {
			rows.Close()
			return err
		}
		refs = append(refs, ref)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	for _, ref := range refs {
		target, err := resolveRef(ctx, tx, ref)
		if err != nil {
			return err
		}
		if !target.Valid {
			continue
		}
		if _, err := tx.ExecContext(ctx, `UPDATE links SET target_id = ? WHERE target_ref = ? AND target_id IS NULL`, target.String, ref); err != nil {
			return err
		}
	}
	return nil
}

// PathID returns the ID of the note indexed at path, or empty when the
// path was never indexed.
func (db *DB) PathID(ctx context.Context, path string) (string, error) {
	var id string
	err := db.conn.QueryRowContext(ctx, `SELECT id FROM notes WHERE path = ?`, path).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("index: path id: %w", err)
	}
	return id, nil
}

// ChecksumByPath returns the stored checksum for a path, or empty string
// when not indexed.
func (db *DB) ChecksumByPath(ctx context.Context, path string) (string, error) {
	var cs string
	err := db.conn.QueryRowContext(ctx, `SELECT checksum FROM notes WHERE path = ?`, path).Scan(&cs)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("index: checksum: %w", err)
	}
	return cs, nil
}

// AllChecksums returns path → checksum for every indexed note.
func (db *DB) AllChecksums(ctx context.Context) (map[string]string, error) {
	rows, err := db.conn.QueryContext(ctx, `SELECT path, checksum FROM notes`)
	if err != nil {
		return nil, fmt.Errorf("index: all checksums: %w", err)
	}
	defer rows.Close()
	out := make(map[string]string)
	for rows.Next() {
		var p, cs string
		if err := rows.Scan(&p, &cs); err != nil {
			return nil, err
		}
		out[p] = cs
	}
	return out, rows.Err()
}

// IDByChecksum returns the ID of the single note with the given checksum,
// or empty when none or several match. Lets a renamed file that carries no
// id: key keep its identity.
func (db *DB) IDByChecksum(ctx context.Context, checksum string) (string, error) {
	rows, err := db.conn.QueryContext(ctx, `SELECT id FROM notes WHERE checksum = ? LIMIT 2`, checksum)
	if err != nil {
		return "", fmt.Errorf("index: id by checksum: %w", err)
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return "", err
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return "", err
	}
	if len(ids) == 1 {
		return ids[0], nil
	}
	return "", nil
}

func nullTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.UTC()
}
