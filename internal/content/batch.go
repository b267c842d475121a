package content

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"golang.org/x/sync/errgroup"

	"github.com/starford/contentstore/internal/hashkey"
	"github.com/starford/contentstore/internal/models"
)

// DefaultConcurrency bounds concurrent file resolutions per batch.
const DefaultConcurrency = 32

// ErrInvalidQuery is returned for malformed queries.
var ErrInvalidQuery = errors.New("content: invalid query")

// Query describes a batch of content to resolve.
type Query struct {
	// Sources maps a source name to a root-relative glob pattern.
	Sources      map[string]string
	Validator    Validator
	Transformers []Transformer
	ListHandler  ListHandler
	Paginate     *models.Paginate
	// SkipCache bypasses the query cache lookup, SkipFileCache the file
	// cache lookup. Results are cached either way.
	SkipCache     bool
	SkipFileCache bool
	Log           bool
}

// Validate reports malformed queries.
func (q Query) Validate() error {
	return validation.ValidateStruct(&q,
		validation.Field(&q.Sources, validation.Required, validation.Each(validation.Required)),
		validation.Field(&q.Paginate, validation.By(validatePaginate)),
	)
}

func validatePaginate(value any) error {
	p, _ := value.(*models.Paginate)
	if p == nil {
		return nil
	}
	return validation.ValidateStruct(p,
		validation.Field(&p.EntriesCount, validation.Required, validation.Min(1)),
		validation.Field(&p.CurrentPageNumber, validation.Min(0)),
	)
}

type queryDescriptor struct {
	Sources      map[string]string
	Paginate     *models.Paginate
	Validator    string
	Transformers []string
	ListHandler  string
}

// Key returns the memoization key of q.
func (q Query) Key() string {
	return hashkey.Sum(queryDescriptor{
		Sources:      q.Sources,
		Paginate:     q.Paginate,
		Validator:    validatorID(q.Validator),
		Transformers: transformerIDs(q.Transformers),
		ListHandler:  listHandlerID(q.ListHandler),
	})
}

// BatchResolver expands sources into modules and memoizes whole collections.
type BatchResolver struct {
	files       *FileResolver
	cache       *QueryCache
	logger      *slog.Logger
	concurrency int
}

// NewBatchResolver creates a batch resolver. concurrency <= 0 selects
// DefaultConcurrency.
func NewBatchResolver(files *FileResolver, cache *QueryCache, logger *slog.Logger, concurrency int) *BatchResolver {
	if logger == nil {
		logger = slog.Default()
	}
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	return &BatchResolver{files: files, cache: cache, logger: logger, concurrency: concurrency}
}

// ResolveBatch resolves q into a collection. Only a malformed query returns
// an error; unreadable sources and files are logged and skipped.
//
// Entries appear in completion order. Use a ListHandler for a stable order.
func (b *BatchResolver) ResolveBatch(ctx context.Context, q Query) (*models.Collection, error) {
	if err := q.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidQuery, err)
	}

	var started time.Time
	if q.Log {
		started = time.Now()
	}

	key := q.Key()
	if !q.SkipCache {
		if coll, ok := b.cache.Get(key); ok {
			if q.Log {
				b.logger.Info("content: batch cache hit",
					slog.String("key", key),
					slog.Duration("duration", time.Since(started)))
			}
			return coll, nil
		}
	}
	if q.Log {
		b.logger.Info("content: batch cache miss", slog.String("key", key))
	}

	gen := b.cache.generation()
	entries := b.collect(ctx, q)
	cacheable := ctx.Err() == nil

	if q.ListHandler != nil {
		handled, err := b.handleList(ctx, q.ListHandler, entries)
		if err != nil {
			b.logger.Warn("content: list handler failed",
				slog.String("handler", q.ListHandler.ID()),
				slog.String("error", err.Error()))
			cacheable = false
		} else {
			entries = handled
		}
	}

	coll := paginate(entries, q.Paginate)

	if cacheable {
		b.cache.put(key, coll, gen)
	}
	if q.Log {
		b.logger.Info("content: batch resolved",
			slog.String("key", key),
			slog.Int("total_entries", coll.TotalEntries),
			slog.Duration("duration", time.Since(started)))
	}
	return coll, nil
}

// collect expands every source concurrently and resolves every match.
func (b *BatchResolver) collect(ctx context.Context, q Query) []*models.Module {
	names := make([]string, 0, len(q.Sources))
	for name := range q.Sources {
		names = append(names, name)
	}
	sort.Strings(names)

	var (
		mu      sync.Mutex
		entries = make([]*models.Module, 0)
		sources errgroup.Group
		files   errgroup.Group
	)
	files.SetLimit(b.concurrency)

	for _, name := range names {
		glob := q.Sources[name]
		sources.Go(func() error {
			paths, err := b.files.store.Glob(glob, true)
			if err != nil {
				b.logger.Warn("content: glob failed",
					slog.String("source", name),
					slog.String("glob", glob),
					slog.String("error", err.Error()))
				return nil
			}
			if q.Log {
				b.logger.Info("content: source expanded",
					slog.String("source", name),
					slog.Int("matches", len(paths)))
			}
			opts := FileOptions{
				Validator:    q.Validator,
				Transformers: q.Transformers,
				MatcherName:  name,
				MatcherGlob:  glob,
				SkipCache:    q.SkipFileCache,
				Log:          q.Log,
			}
			for _, p := range paths {
				if ctx.Err() != nil {
					return nil
				}
				files.Go(func() error {
					if m := b.files.ResolveFile(ctx, p, opts); m != nil {
						mu.Lock()
						entries = append(entries, m)
						mu.Unlock()
					}
					return nil
				})
			}
			return nil
		})
	}

	_ = sources.Wait()
	_ = files.Wait()
	return entries
}

func (b *BatchResolver) handleList(ctx context.Context, h ListHandler, entries []*models.Module) (out []*models.Module, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("panic: %v", rec)
		}
	}()
	out, err = h.Handle(ctx, entries)
	if err != nil {
		return nil, err
	}
	if out == nil {
		out = make([]*models.Module, 0)
	}
	return out, nil
}

// paginate builds the collection. Page 0 and page 1 are distinct: page 0
// covers [0, c) and page n >= 1 covers [n*c, n*c+c).
func paginate(entries []*models.Module, p *models.Paginate) *models.Collection {
	coll := &models.Collection{TotalEntries: len(entries)}
	if p == nil {
		coll.Entries = entries
		return coll
	}

	page, count := p.Page(), p.EntriesCount
	start, end := page*count, page*count+count
	if page == 0 {
		start, end = page, page+count
	}
	totalPages := coll.TotalEntries/(end-start) + 1

	coll.Start, coll.End, coll.TotalPages = &start, &end, &totalPages
	lo, hi := clamp(start, len(entries)), clamp(end, len(entries))
	coll.Entries = append(make([]*models.Module, 0, hi-lo), entries[lo:hi]...)
	return coll
}

func clamp(i, n int) int {
	if i < 0 {
		return 0
	}
	if i > n {
		return n
	}
	return i
}
