package catalog

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/starford/contentstore/internal/apperr"
	"github.com/starford/contentstore/internal/checksum"
	"github.com/starford/contentstore/internal/models"
)

// Row is one cataloged module.
type Row struct {
	Path      string
	Slug      string
	Title     string
	Checksum  string
	Data      map[string]any
	UpdatedAt time.Time
}

// SearchResult is one search hit.
type SearchResult struct {
	Path    string `json:"path"`
	Title   string `json:"title"`
	Snippet string `json:"snippet"`
}

// RowFromModule builds the row for m. The checksum covers data and body.
func RowFromModule(m *models.Module) (Row, error) {
	data, err := json.Marshal(m.Data)
	if err != nil {
		return Row{}, fmt.Errorf("catalog: encode data of %s: %w", m.Path, err)
	}
	return Row{
		Path:      m.Path,
		Slug:      m.Slug,
		Title:     deriveTitle(m),
		Checksum:  checksum.Parts(data, []byte(m.BodyText())),
		Data:      m.Data,
		UpdatedAt: time.Now().UTC(),
	}, nil
}

// deriveTitle returns the data "title" if present, otherwise the first H1
// heading of the body, otherwise the slug.
func deriveTitle(m *models.Module) string {
	if s, ok := m.Data["title"].(string); ok && s != "" {
		return s
	}
	for _, line := range strings.Split(m.BodyText(), "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "# ") {
			return strings.TrimSpace(trimmed[2:])
		}
	}
	return m.Slug
}

// Upsert inserts or replaces a module. It reports false without writing when
// the stored checksum already matches.
func (db *DB) Upsert(r Row, body string) (bool, error) {
	var current string
	err := db.conn.QueryRow(`SELECT checksum FROM modules WHERE path = ?`, r.Path).Scan(&current)
	if err == nil && current == r.Checksum {
		return false, nil
	}
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return false, fmt.Errorf("catalog: read checksum: %w", err)
	}

	data, err := json.Marshal(r.Data)
	if err != nil {
		return false, fmt.Errorf("catalog: encode data: %w", err)
	}

	tx, err := db.conn.Begin()
	if err != nil {
		return false, fmt.Errorf("catalog: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // best-effort on failure path

	_, err = tx.Exec(`
		INSERT INTO modules (path, slug, title, checksum, data, body, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(path) DO UPDATE SET
			slug       = excluded.slug,
			title      = excluded.title,
			checksum   = excluded.checksum,
			data       = excluded.data,
			body       = excluded.body,
			updated_at = excluded.updated_at
	`, r.Path, r.Slug, r.Title, r.Checksum, string(data), body, r.UpdatedAt)
	if err != nil {
		return false, fmt.Errorf("catalog: upsert module: %w", err)
	}
	if err := ftsUpsert(tx, r.Path, r.Title, body); err != nil {
		return false, err
	}
	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("catalog: commit: %w", err)
	}
	return true, nil
}

// Delete removes a module and its memberships.
func (db *DB) Delete(path string) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("catalog: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if err := ftsDelete(tx, path); err != nil {
		return err
	}
	if _, err := tx.Exec(`DELETE FROM memberships WHERE path = ?`, path); err != nil {
		return fmt.Errorf("catalog: delete memberships: %w", err)
	}
	if _, err := tx.Exec(`DELETE FROM modules WHERE path = ?`, path); err != nil {
		return fmt.Errorf("catalog: delete module: %w", err)
	}
	return tx.Commit()
}

// Clear removes every module and membership.
func (db *DB) Clear() error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("catalog: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if err := ftsClear(tx); err != nil {
		return err
	}
	for _, stmt := range []string{`DELETE FROM memberships`, `DELETE FROM modules`} {
		if _, err := tx.Exec(stmt); err != nil {
			return fmt.Errorf("catalog: clear: %w", err)
		}
	}
	return tx.Commit()
}

// Get returns the stored row for path, or apperr.ErrNotFound.
func (db *DB) Get(path string) (*Row, error) {
	var (
		r    Row
		data string
	)
	err := db.conn.QueryRow(`
		SELECT path, slug, title, checksum, data, updated_at
		FROM modules WHERE path = ?
	`, path).Scan(&r.Path, &r.Slug, &r.Title, &r.Checksum, &data, &r.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("catalog: %s: %w", path, apperr.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("catalog: get module: %w", err)
	}
	if err := json.Unmarshal([]byte(data), &r.Data); err != nil {
		return nil, fmt.Errorf("catalog: decode data: %w", err)
	}
	return &r, nil
}

// RecordCollection replaces the set of paths recorded for a collection.
func (db *DB) RecordCollection(name string, paths []string) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("catalog: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.Exec(`DELETE FROM memberships WHERE collection = ?`, name); err != nil {
		return fmt.Errorf("catalog: reset memberships: %w", err)
	}
	if len(paths) > 0 {
		stmt, err := tx.Prepare(`INSERT OR IGNORE INTO memberships (collection, path) VALUES (?, ?)`)
		if err != nil {
			return fmt.Errorf("catalog: prepare membership insert: %w", err)
		}
		defer stmt.Close()
		for _, p := range paths {
			if _, err := stmt.Exec(name, p); err != nil {
				return fmt.Errorf("catalog: insert membership: %w", err)
			}
		}
	}
	return tx.Commit()
}

// CollectionsFor returns the collections path was last recorded in, sorted.
func (db *DB) CollectionsFor(path string) ([]string, error) {
	rows, err := db.conn.Query(`SELECT collection FROM memberships WHERE path = ? ORDER BY collection`, path)
	if err != nil {
		return nil, fmt.Errorf("catalog: collections for: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var c string
		if err := rows.Scan(&c); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
