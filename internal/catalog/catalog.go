// Package catalog keeps a searchable SQLite record of resolved modules and of
// the collections they appeared in. FTS5 search is used when built with the
// sqlite_fts5 tag.
package catalog

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

const coreSchemaSQL = `
CREATE TABLE IF NOT EXISTS modules (
	path       TEXT PRIMARY KEY,
	slug       TEXT NOT NULL DEFAULT '',
	title      TEXT NOT NULL DEFAULT '',
	checksum   TEXT NOT NULL DEFAULT '',
	data       TEXT NOT NULL DEFAULT '{}',
	body       TEXT NOT NULL DEFAULT '',
	updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS memberships (
	collection TEXT NOT NULL,
	path       TEXT NOT NULL,
	UNIQUE(collection, path)
);

CREATE INDEX IF NOT EXISTS idx_memberships_path ON memberships(path);
`

// Catalog is what the content service needs from the catalog.
type Catalog interface {
	Upsert(r Row, body string) (bool, error)
	Delete(path string) error
	Clear() error
	Get(path string) (*Row, error)
	RecordCollection(name string, paths []string) error
	CollectionsFor(path string) ([]string, error)
	Search(query string, limit int) ([]SearchResult, error)
	Close() error
}

var _ Catalog = (*DB)(nil)

// DB is the SQLite-backed Catalog.
type DB struct {
	conn *sql.DB
}

// Open opens (or creates) the SQLite database and applies the schema.
func Open(dsn string) (*DB, error) {
	conn, err := sql.Open("sqlite3", dsn+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("catalog: open db: %w", err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("catalog: ping: %w", err)
	}
	if _, err := conn.Exec(coreSchemaSQL); err != nil {
		conn.Close()
		return nil, fmt.Errorf("catalog: apply core schema: %w", err)
	}
	if err := initFTS(conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("catalog: apply fts schema: %w", err)
	}
	return &DB{conn: conn}, nil
}

// Close closes the underlying database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}
