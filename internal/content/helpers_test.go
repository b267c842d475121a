package content

import (
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"testing"

	"github.com/spf13/afero"

	"github.com/starford/contentstore/internal/invalidate"
	"github.com/starford/contentstore/internal/storage"
)

// countingFs records how many times each file was opened.
type countingFs struct {
	afero.Fs
	mu    sync.Mutex
	opens map[string]int
}

func (c *countingFs) record(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.opens[strings.TrimPrefix(name, "/")]++
}

func (c *countingFs) Open(name string) (afero.File, error) {
	c.record(name)
	return c.Fs.Open(name)
}

func (c *countingFs) OpenFile(name string, flag int, perm os.FileMode) (afero.File, error) {
	c.record(name)
	return c.Fs.OpenFile(name, flag, perm)
}

func (c *countingFs) reads(path string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.opens[path]
}

func (c *countingFs) write(t *testing.T, path, content string) {
	t.Helper()
	if err := afero.WriteFile(c.Fs, "/"+path, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile %s: %v", path, err)
	}
}

type testEnv struct {
	store *Store
	hub   *invalidate.Hub
	fs    *countingFs
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

func newTestEnv(t *testing.T, files map[string]string, opts ...StoreOption) *testEnv {
	t.Helper()
	fs := &countingFs{Fs: afero.NewMemMapFs(), opens: make(map[string]int)}
	for p, content := range files {
		fs.write(t, p, content)
	}
	hub := invalidate.NewHub()
	opts = append([]StoreOption{WithLogger(quietLogger())}, opts...)
	store := NewStore(storage.New(fs), hub, opts...)
	t.Cleanup(store.Close)
	return &testEnv{store: store, hub: hub, fs: fs}
}
