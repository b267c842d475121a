// Package testutil provides shared test helpers for content roots and catalogs.
package testutil

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/afero"

	"github.com/starford/contentstore/internal/catalog"
	"github.com/starford/contentstore/internal/storage"
)

// TestCatalog creates a temporary SQLite catalog that is automatically closed.
func TestCatalog(t *testing.T) *catalog.DB {
	t.Helper()
	db, err := catalog.Open(filepath.Join(t.TempDir(), "catalog.db"))
	if err != nil {
		t.Fatalf("catalog.Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// TestContentRoot writes files into a temporary directory and returns it
// with a provider rooted there. Keys are slash-separated relative paths.
func TestContentRoot(t *testing.T, files map[string]string) (string, *storage.FS) {
	t.Helper()
	root := t.TempDir()
	for rel, data := range files {
		WriteFile(t, root, rel, data)
	}
	provider, err := storage.NewFS(root)
	if err != nil {
		t.Fatalf("NewFS: %v", err)
	}
	return root, provider
}

// WriteFile writes data at rel below root, creating parent directories.
func WriteFile(t *testing.T, root, rel, data string) {
	t.Helper()
	p := filepath.Join(root, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(p, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}
}

// MemFS returns an in-memory filesystem holding files at "/"+path.
func MemFS(t *testing.T, files map[string]string) afero.Fs {
	t.Helper()
	fs := afero.NewMemMapFs()
	for p, c := range files {
		if err := afero.WriteFile(fs, "/"+p, []byte(c), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	return fs
}

// QuietLogger discards all output.
func QuietLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}
