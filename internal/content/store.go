// Package content resolves content files into modules and memoizes both
// single-file and whole-query results.
//
// A Store owns two caches. The file cache is invalidated precisely, per
// changed path. The query cache is cleared on any change, since telling
// which globs a changed file would match requires expanding them again.
package content

import (
	"context"
	"log/slog"

	"github.com/starford/contentstore/internal/invalidate"
	"github.com/starford/contentstore/internal/models"
	"github.com/starford/contentstore/internal/storage"
)

// StoreOption configures a Store.
type StoreOption func(*storeConfig)

type storeConfig struct {
	logger      *slog.Logger
	concurrency int
}

// WithLogger sets the logger used for degraded resolutions.
func WithLogger(l *slog.Logger) StoreOption {
	return func(c *storeConfig) {
		c.logger = l
	}
}

// WithConcurrency bounds concurrent file resolutions per batch.
func WithConcurrency(n int) StoreOption {
	return func(c *storeConfig) {
		c.concurrency = n
	}
}

// Store wires both resolvers to their caches and to an invalidation hub.
type Store struct {
	Files   *FileCache
	Queries *QueryCache

	file       *FileResolver
	batch      *BatchResolver
	unregister []func()
}

// NewStore creates a store reading from provider. The store's caches are
// registered with hub until Close is called.
func NewStore(provider storage.Provider, hub *invalidate.Hub, opts ...StoreOption) *Store {
	cfg := storeConfig{logger: slog.Default()}
	for _, opt := range opts {
		opt(&cfg)
	}

	files := NewFileCache()
	queries := NewQueryCache()
	file := NewFileResolver(provider, files, cfg.logger)

	s := &Store{
		Files:   files,
		Queries: queries,
		file:    file,
		batch:   NewBatchResolver(file, queries, cfg.logger, cfg.concurrency),
	}
	s.unregister = append(s.unregister,
		hub.Register(func(path string) { files.Invalidate(path) }),
		hub.Register(func(string) { queries.Clear() }),
	)
	return s
}

// ResolveFile resolves a single file. See FileResolver.ResolveFile.
func (s *Store) ResolveFile(ctx context.Context, path string, opts FileOptions) *models.Module {
	return s.file.ResolveFile(ctx, path, opts)
}

// ResolveBatch resolves a query. See BatchResolver.ResolveBatch.
func (s *Store) ResolveBatch(ctx context.Context, q Query) (*models.Collection, error) {
	return s.batch.ResolveBatch(ctx, q)
}

// Close detaches the store's caches from the hub.
func (s *Store) Close() {
	for _, u := range s.unregister {
		u()
	}
	s.unregister = nil
}
