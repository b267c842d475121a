package content

import (
	"context"

	"github.com/starford/contentstore/internal/models"
)

// ValidatorInput is what a Validator receives for one file.
type ValidatorInput struct {
	Data        map[string]any
	Path        string
	PathParts   []string
	MatcherGlob string
	MatcherName string
}

// Validator checks and reshapes parsed frontmatter. Returning a nil or empty
// map, or an error, drops the module's data.
//
// ID must identify the validation logic: two validators with the same ID
// share file cache entries.
type Validator interface {
	ID() string
	Validate(ctx context.Context, in ValidatorInput) (map[string]any, error)
}

// Transformer rewrites a whole body.
type Transformer interface {
	ID() string
	Transform(body string) string
}

// ListHandler post-processes the aggregated modules of a batch (sorting,
// filtering, deduplication).
type ListHandler interface {
	ID() string
	Handle(ctx context.Context, modules []*models.Module) ([]*models.Module, error)
}

// ValidatorFunc adapts a function to Validator under the given ID.
func ValidatorFunc(id string, fn func(ctx context.Context, in ValidatorInput) (map[string]any, error)) Validator {
	return validatorFunc{id: id, fn: fn}
}

// TransformerFunc adapts a function to Transformer under the given ID.
func TransformerFunc(id string, fn func(body string) string) Transformer {
	return transformerFunc{id: id, fn: fn}
}

// ListHandlerFunc adapts a function to ListHandler under the given ID.
func ListHandlerFunc(id string, fn func(ctx context.Context, modules []*models.Module) ([]*models.Module, error)) ListHandler {
	return listHandlerFunc{id: id, fn: fn}
}

type validatorFunc struct {
	id string
	fn func(ctx context.Context, in ValidatorInput) (map[string]any, error)
}

func (v validatorFunc) ID() string { return v.id }

func (v validatorFunc) Validate(ctx context.Context, in ValidatorInput) (map[string]any, error) {
	return v.fn(ctx, in)
}

type transformerFunc struct {
	id string
	fn func(string) string
}

func (t transformerFunc) ID() string { return t.id }

func (t transformerFunc) Transform(body string) string { return t.fn(body) }

type listHandlerFunc struct {
	id string
	fn func(ctx context.Context, modules []*models.Module) ([]*models.Module, error)
}

func (l listHandlerFunc) ID() string { return l.id }

func (l listHandlerFunc) Handle(ctx context.Context, modules []*models.Module) ([]*models.Module, error) {
	return l.fn(ctx, modules)
}

func validatorID(v Validator) string {
	if v == nil {
		return ""
	}
	return v.ID()
}

func listHandlerID(h ListHandler) string {
	if h == nil {
		return ""
	}
	return h.ID()
}

func transformerIDs(ts []Transformer) []string {
	if len(ts) == 0 {
		return nil
	}
	ids := make([]string, len(ts))
	for i, t := range ts {
		ids[i] = t.ID()
	}
	return ids
}
