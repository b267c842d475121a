// Package contentservice exposes named collections and ad-hoc queries on top
// of the content store and keeps the catalog in step with invalidations.
package contentservice

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/starford/contentstore/internal/apperr"
	"github.com/starford/contentstore/internal/catalog"
	"github.com/starford/contentstore/internal/content"
	"github.com/starford/contentstore/internal/invalidate"
	"github.com/starford/contentstore/internal/models"
	"github.com/starford/contentstore/internal/pipeline"
)

// ErrCatalogDisabled is returned by Search when no catalog is configured.
var ErrCatalogDisabled = errors.New("catalog disabled")

// CollectionInfo describes a configured collection.
type CollectionInfo struct {
	Name     string            `json:"name"`
	Sources  map[string]string `json:"sources"`
	PageSize int               `json:"pageSize,omitempty"`
}

// Stats reports cache and watcher state.
type Stats struct {
	FileEntries  int `json:"fileEntries"`
	QueryEntries int `json:"queryEntries"`
	Watchers     int `json:"watchers"`
}

type collection struct {
	spec  QuerySpec
	query content.Query
}

// Service coordinates the content store, the pipeline registry and the
// optional catalog.
type Service struct {
	store    *content.Store
	hub      *invalidate.Hub
	registry *pipeline.Registry
	catalog  catalog.Catalog
	logger   *slog.Logger

	collections map[string]collection

	mu       sync.Mutex
	recorded map[string]*models.Collection
}

// Deps groups the collaborators of a Service. Catalog may be nil.
type Deps struct {
	Store    *content.Store
	Hub      *invalidate.Hub
	Registry *pipeline.Registry
	Catalog  catalog.Catalog
	Logger   *slog.Logger
}

// New compiles the named collections and returns the service. Unknown
// component names fail here rather than at query time.
func New(deps Deps, collections map[string]QuerySpec) (*Service, error) {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Registry == nil {
		deps.Registry = pipeline.NewRegistry()
	}
	s := &Service{
		store:       deps.Store,
		hub:         deps.Hub,
		registry:    deps.Registry,
		catalog:     deps.Catalog,
		logger:      deps.Logger,
		collections: make(map[string]collection, len(collections)),
		recorded:    make(map[string]*models.Collection),
	}
	for name, spec := range collections {
		q, err := s.compile(spec)
		if err != nil {
			return nil, fmt.Errorf("collection %q: %w", name, err)
		}
		s.collections[name] = collection{spec: spec, query: q}
	}
	return s, nil
}

// compile turns a spec into a query without pagination.
func (s *Service) compile(spec QuerySpec) (content.Query, error) {
	if err := spec.Validate(); err != nil {
		return content.Query{}, fmt.Errorf("%w: %v", apperr.ErrInvalidInput, err)
	}
	v, err := s.registry.Validator(spec.Validator)
	if err != nil {
		return content.Query{}, err
	}
	ts, err := s.registry.Transformers(spec.Transformers)
	if err != nil {
		return content.Query{}, err
	}
	h, err := s.registry.ListHandler(spec.ListHandlers)
	if err != nil {
		return content.Query{}, err
	}
	return content.Query{
		Sources:      spec.Sources,
		Validator:    v,
		Transformers: ts,
		ListHandler:  h,
		SkipCache:    spec.SkipCache,
		Log:          spec.Log,
	}, nil
}

func paginated(q content.Query, pageSize int, page *int) content.Query {
	if pageSize > 0 {
		q.Paginate = &models.Paginate{CurrentPageNumber: page, EntriesCount: pageSize}
	}
	return q
}

// Collections lists the configured collections sorted by name.
func (s *Service) Collections() []CollectionInfo {
	out := make([]CollectionInfo, 0, len(s.collections))
	for name, c := range s.collections {
		out = append(out, CollectionInfo{Name: name, Sources: c.spec.Sources, PageSize: c.spec.PageSize})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// QueryCollection resolves a named collection. page is ignored when the
// collection is not paginated.
func (s *Service) QueryCollection(ctx context.Context, name string, page *int) (*models.Collection, error) {
	c, ok := s.collections[name]
	if !ok {
		return nil, fmt.Errorf("%s: %w", name, apperr.ErrUnknownCollection)
	}
	if s.catalog != nil {
		s.recordCollection(ctx, name, c.query)
	}
	return s.store.ResolveBatch(ctx, paginated(c.query, c.spec.PageSize, page))
}

// Query resolves an ad-hoc spec.
func (s *Service) Query(ctx context.Context, spec QuerySpec, page *int) (*models.Collection, error) {
	q, err := s.compile(spec)
	if err != nil {
		return nil, err
	}
	coll, err := s.store.ResolveBatch(ctx, paginated(q, spec.PageSize, page))
	if err != nil {
		return nil, err
	}
	if s.catalog != nil {
		s.recordModules(coll.Entries)
	}
	return coll, nil
}

// ReadModule resolves one file. It returns apperr.ErrNotFound when the file
// is missing or empty.
func (s *Service) ReadModule(ctx context.Context, path, validator string, transformers []string) (*models.Module, error) {
	v, err := s.registry.Validator(validator)
	if err != nil {
		return nil, err
	}
	ts, err := s.registry.Transformers(transformers)
	if err != nil {
		return nil, err
	}
	m := s.store.ResolveFile(ctx, path, content.FileOptions{Validator: v, Transformers: ts})
	if m == nil {
		return nil, fmt.Errorf("%s: %w", path, apperr.ErrNotFound)
	}
	if s.catalog != nil {
		s.recordModules([]*models.Module{m})
	}
	return m, nil
}

// Search queries the catalog.
func (s *Service) Search(_ context.Context, query string, limit int) ([]catalog.SearchResult, error) {
	if s.catalog == nil {
		return nil, ErrCatalogDisabled
	}
	return s.catalog.Search(query, limit)
}

// Invalidate drops everything derived from path and returns the collections
// it was last seen in. An empty path invalidates everything and returns all
// collection names.
func (s *Service) Invalidate(path string) []string {
	var affected []string
	if path == "" {
		for _, c := range s.Collections() {
			affected = append(affected, c.Name)
		}
	}

	if s.catalog != nil {
		if path == "" {
			if err := s.catalog.Clear(); err != nil {
				s.logger.Warn("catalog: clear failed", slog.String("error", err.Error()))
			}
		} else {
			cols, err := s.catalog.CollectionsFor(path)
			if err != nil {
				s.logger.Warn("catalog: lookup failed", slog.String("path", path), slog.String("error", err.Error()))
			}
			affected = cols
			if err := s.catalog.Delete(path); err != nil {
				s.logger.Warn("catalog: delete failed", slog.String("path", path), slog.String("error", err.Error()))
			}
		}
	}

	s.mu.Lock()
	clear(s.recorded)
	s.mu.Unlock()

	s.hub.Notify(path)
	return affected
}

// Warm resolves every collection once, filling caches and the catalog.
func (s *Service) Warm(ctx context.Context) {
	for _, c := range s.Collections() {
		if ctx.Err() != nil {
			return
		}
		coll, err := s.QueryCollection(ctx, c.Name, nil)
		if err != nil {
			s.logger.Warn("warm: collection failed", slog.String("collection", c.Name), slog.String("error", err.Error()))
			continue
		}
		s.logger.Debug("warm: collection resolved",
			slog.String("collection", c.Name),
			slog.Int("total_entries", coll.TotalEntries))
	}
}

// Stats reports cache sizes and registered watchers.
func (s *Service) Stats() Stats {
	return Stats{
		FileEntries:  s.store.Files.Len(),
		QueryEntries: s.store.Queries.Len(),
		Watchers:     s.hub.Len(),
	}
}

// recordCollection stores the full, unpaginated collection in the catalog.
// The same cached collection is recorded only once.
func (s *Service) recordCollection(ctx context.Context, name string, q content.Query) {
	full, err := s.store.ResolveBatch(ctx, q)
	if err != nil {
		return
	}

	s.mu.Lock()
	if s.recorded[name] == full {
		s.mu.Unlock()
		return
	}
	s.recorded[name] = full
	s.mu.Unlock()

	s.recordModules(full.Entries)
	paths := make([]string, len(full.Entries))
	for i, m := range full.Entries {
		paths[i] = m.Path
	}
	if err := s.catalog.RecordCollection(name, paths); err != nil {
		s.logger.Warn("catalog: record collection failed", slog.String("collection", name), slog.String("error", err.Error()))
	}
}

func (s *Service) recordModules(ms []*models.Module) {
	for _, m := range ms {
		row, err := catalog.RowFromModule(m)
		if err != nil {
			s.logger.Warn("catalog: encode failed", slog.String("path", m.Path), slog.String("error", err.Error()))
			continue
		}
		if _, err := s.catalog.Upsert(row, m.BodyText()); err != nil {
			s.logger.Warn("catalog: upsert failed", slog.String("path", m.Path), slog.String("error", err.Error()))
		}
	}
}
