// Package index provides the SQLite-backed note index: notes with typed
// properties, tags, the link graph, and full-text search (FTS5 when
// compiled in, LIKE fallback otherwise).
//
// The store follows a single-writer discipline: Commit and Remove are
// serialized internally, and each applies its note, tag, link, and text
// index changes in one transaction. Readers run concurrently against the
// latest committed snapshot and never observe a half-applied commit.
package index

import (
	"database/sql"
	"fmt"
	"sync"

	_ "github.com/mattn/go-sqlite3"
)

const coreSchemaSQL = `
CREATE TABLE IF NOT EXISTS notes (
	id         TEXT PRIMARY KEY,
	module     TEXT NOT NULL DEFAULT 'note',
	path       TEXT NOT NULL UNIQUE,
	title      TEXT NOT NULL DEFAULT '',
	body       TEXT NOT NULL DEFAULT '',
	checksum   TEXT NOT NULL DEFAULT '',
	properties TEXT NOT NULL DEFAULT '[]',
	extra      TEXT NOT NULL DEFAULT '{}',
	created    DATETIME,
	modified   DATETIME,
	indexed_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_notes_module   ON notes(module);
CREATE INDEX IF NOT EXISTS idx_notes_modified ON notes(modified);

CREATE TABLE IF NOT EXISTS tags (
	note_id TEXT NOT NULL REFERENCES notes(id) ON DELETE CASCADE,
	tag     TEXT NOT NULL,
	PRIMARY KEY (note_id, tag)
);

CREATE INDEX IF NOT EXISTS idx_tags_tag ON tags(tag);

CREATE TABLE IF NOT EXISTS links (
	source_id  TEXT NOT NULL REFERENCES notes(id) ON DELETE CASCADE,
	target_ref TEXT NOT NULL,
	target_id  TEXT,
	link_type  TEXT NOT NULL DEFAULT 'reference',
	position   INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (source_id, target_ref, link_type)
);

CREATE INDEX IF NOT EXISTS idx_links_target ON links(target_id);
CREATE INDEX IF NOT EXISTS idx_links_ref    ON links(target_ref);
`

// DB wraps a sql.DB with index-specific operations.
type DB struct {
	conn *sql.DB
	mu   sync.Mutex // serializes Commit/Remove
}

// Open opens (or creates) the SQLite database and applies the schema.
func Open(dsn string) (*DB, error) {
	conn, err := sql.Open("sqlite3", dsn+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("index: open db: %w", err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("index: ping: %w", err)
	}
	if _, err := conn.Exec(coreSchemaSQL); err != nil {
		conn.Close()
		return nil, fmt.Errorf("index: apply core schema: %w", err)
	}
	if err := initFTS(conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("index: apply fts schema: %w", err)
	}
	return &DB{conn: conn}, nil
}

// Close closes the underlying database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}
