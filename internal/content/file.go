package content

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/sync/singleflight"

	"github.com/starford/contentstore/internal/frontmatter"
	"github.com/starford/contentstore/internal/hashkey"
	"github.com/starford/contentstore/internal/models"
	"github.com/starford/contentstore/internal/storage"
)

// FileOptions controls how a single file is resolved.
type FileOptions struct {
	Validator    Validator
	Transformers []Transformer
	// MatcherName and MatcherGlob describe the batch source that matched
	// the file. They are passed to the validator but are not part of the
	// cache key: concurrent resolutions of the same key share one validator
	// call, which sees the first caller's matcher fields.
	MatcherName string
	MatcherGlob string
	// SkipCache forces a fresh read. The result is still cached.
	SkipCache bool
	Log       bool
}

// FileResolver turns one content file into a Module.
type FileResolver struct {
	store  storage.Provider
	cache  *FileCache
	logger *slog.Logger
	group  singleflight.Group
}

// NewFileResolver creates a resolver reading from store and memoizing in cache.
func NewFileResolver(store storage.Provider, cache *FileCache, logger *slog.Logger) *FileResolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &FileResolver{store: store, cache: cache, logger: logger}
}

type fileDescriptor struct {
	Path         string
	Validator    string
	Transformers []string
}

// FileKey returns the memoization key for resolving path with opts.
func FileKey(path string, opts FileOptions) string {
	return hashkey.Sum(fileDescriptor{
		Path:         path,
		Validator:    validatorID(opts.Validator),
		Transformers: transformerIDs(opts.Transformers),
	})
}

// ResolveFile returns the module for path, or nil when the file cannot be
// read or holds neither data nor body. It never fails: every problem is
// logged and degrades the result.
func (r *FileResolver) ResolveFile(ctx context.Context, path string, opts FileOptions) *models.Module {
	key := FileKey(path, opts)

	if opts.SkipCache {
		return r.load(ctx, key, path, opts).mod
	}
	if m, ok := r.cache.Get(key); ok {
		if opts.Log {
			r.logger.Info("content: file cache hit", slog.String("path", path), slog.String("key", key))
		}
		return m
	}
	if opts.Log {
		r.logger.Info("content: file cache miss", slog.String("path", path), slog.String("key", key))
	}

	v, _, _ := r.group.Do(key, func() (any, error) {
		return r.load(ctx, key, path, opts), nil
	})
	res, _ := v.(loadResult)
	if res.cancelled && ctx.Err() == nil {
		// The flight ran under another caller's cancelled context.
		res = r.load(ctx, key, path, opts)
	}
	return res.mod
}

// loadResult is what one flight produces. A cancelled result was never
// cached and must not be handed to callers whose context is still live.
type loadResult struct {
	mod       *models.Module
	cancelled bool
}

func (r *FileResolver) load(ctx context.Context, key, path string, opts FileOptions) (res loadResult) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Warn("content: resolve panicked", slog.String("path", path), slog.Any("panic", rec))
			res = loadResult{cancelled: ctx.Err() != nil}
		}
	}()

	if ctx.Err() != nil {
		return loadResult{cancelled: true}
	}

	gen := r.cache.generation(path)

	raw, err := r.store.Read(path)
	if err != nil {
		r.logger.Warn("content: read failed", slog.String("path", path), slog.String("error", err.Error()))
		return loadResult{}
	}

	rawFM, body, found := frontmatter.Split(string(raw))

	var data map[string]any
	if found && rawFM != "" {
		data = r.parseData(path, rawFM)
	}
	if len(data) > 0 && opts.Validator != nil {
		data = r.validate(ctx, path, data, opts)
	}
	if len(data) == 0 {
		data = nil
	}

	var bodyPtr *string
	if strings.TrimSpace(body) != "" {
		for _, t := range opts.Transformers {
			body = t.Transform(body)
		}
		bodyPtr = &body
	}

	// Validation may have degraded because the context ended.
	if ctx.Err() != nil {
		return loadResult{cancelled: true}
	}

	if data == nil && bodyPtr == nil {
		if opts.Log {
			r.logger.Info("content: empty module skipped", slog.String("path", path))
		}
		return loadResult{}
	}

	mod := &models.Module{
		Path:     path,
		Data:     data,
		Body:     bodyPtr,
		FileInfo: models.NewFileInfo(path),
	}
	if !r.cache.put(key, path, mod, gen) && opts.Log {
		r.logger.Info("content: file changed during resolve, not cached", slog.String("path", path))
	}
	return loadResult{mod: mod}
}

// parseData parses and shape-checks frontmatter, returning a private copy.
func (r *FileResolver) parseData(path, rawFM string) map[string]any {
	data, err := frontmatter.Parse(rawFM)
	if err != nil {
		if errors.Is(err, frontmatter.ErrNotMapping) {
			r.logger.Warn("content: invalid frontmatter shape", slog.String("path", path), slog.String("error", err.Error()))
		} else {
			r.logger.Warn("content: frontmatter parse failed", slog.String("path", path), slog.String("error", err.Error()))
		}
		return nil
	}
	return frontmatter.Clone(data)
}

func (r *FileResolver) validate(ctx context.Context, path string, data map[string]any, opts FileOptions) (out map[string]any) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Warn("content: validator panicked",
				slog.String("path", path),
				slog.String("validator", opts.Validator.ID()),
				slog.String("error", fmt.Sprint(rec)))
			out = nil
		}
	}()

	out, err := opts.Validator.Validate(ctx, ValidatorInput{
		Data:        data,
		Path:        path,
		PathParts:   strings.Split(path, "/"),
		MatcherGlob: opts.MatcherGlob,
		MatcherName: opts.MatcherName,
	})
	if err != nil {
		r.logger.Warn("content: validation failed",
			slog.String("path", path),
			slog.String("validator", opts.Validator.ID()),
			slog.String("error", err.Error()))
		return nil
	}
	return out
}
