// Package pipeline provides named validators, transformers and list handlers
// that can be referenced from configuration, HTTP requests and MCP tools.
//
// A component reference has the form "name" or "name:arg". The full reference
// is used as the component ID, so two references with the same text share
// cache entries.
package pipeline

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/starford/contentstore/internal/apperr"
	"github.com/starford/contentstore/internal/content"
)

// ValidatorFactory builds a validator from a reference and its argument.
type ValidatorFactory func(ref, arg string) (content.Validator, error)

// TransformerFactory builds a transformer from a reference and its argument.
type TransformerFactory func(ref, arg string) (content.Transformer, error)

// ListHandlerFactory builds a list handler from a reference and its argument.
type ListHandlerFactory func(ref, arg string) (content.ListHandler, error)

// Registry maps component names to factories.
type Registry struct {
	mu           sync.RWMutex
	validators   map[string]ValidatorFactory
	transformers map[string]TransformerFactory
	listHandlers map[string]ListHandlerFactory
}

// NewRegistry returns a registry holding the built-in components.
func NewRegistry() *Registry {
	r := &Registry{
		validators:   make(map[string]ValidatorFactory),
		transformers: make(map[string]TransformerFactory),
		listHandlers: make(map[string]ListHandlerFactory),
	}
	r.RegisterValidator("passthrough", newPassthrough)
	r.RegisterValidator("required", newRequired)

	r.RegisterTransformer("trim", simpleTransformer(strings.TrimSpace))
	r.RegisterTransformer("normalize-newlines", simpleTransformer(normalizeNewlines))
	r.RegisterTransformer("strip-comments", simpleTransformer(stripComments))
	r.RegisterTransformer("wikilinks", simpleTransformer(wikilinks))

	r.RegisterListHandler("sort", newSort)
	r.RegisterListHandler("exclude-drafts", newExcludeDrafts)
	r.RegisterListHandler("dedupe", newDedupe)
	return r
}

// RegisterValidator adds or replaces the validator factory for name.
func (r *Registry) RegisterValidator(name string, f ValidatorFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.validators[name] = f
}

// RegisterTransformer adds or replaces the transformer factory for name.
func (r *Registry) RegisterTransformer(name string, f TransformerFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.transformers[name] = f
}

// RegisterListHandler adds or replaces the list handler factory for name.
func (r *Registry) RegisterListHandler(name string, f ListHandlerFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.listHandlers[name] = f
}

// Validator builds the validator for ref. An empty ref yields nil.
func (r *Registry) Validator(ref string) (content.Validator, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return nil, nil
	}
	name, arg := splitRef(ref)
	r.mu.RLock()
	f, ok := r.validators[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("validator %q: %w", name, apperr.ErrUnknownComponent)
	}
	return f(ref, arg)
}

// Transformers builds the transformers for refs, preserving order.
func (r *Registry) Transformers(refs []string) ([]content.Transformer, error) {
	var out []content.Transformer
	for _, ref := range refs {
		ref = strings.TrimSpace(ref)
		if ref == "" {
			continue
		}
		name, arg := splitRef(ref)
		r.mu.RLock()
		f, ok := r.transformers[name]
		r.mu.RUnlock()
		if !ok {
			return nil, fmt.Errorf("transformer %q: %w", name, apperr.ErrUnknownComponent)
		}
		t, err := f(ref, arg)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}

// ListHandler builds a single handler applying refs in order. No refs yields nil.
func (r *Registry) ListHandler(refs []string) (content.ListHandler, error) {
	var handlers []content.ListHandler
	for _, ref := range refs {
		ref = strings.TrimSpace(ref)
		if ref == "" {
			continue
		}
		name, arg := splitRef(ref)
		r.mu.RLock()
		f, ok := r.listHandlers[name]
		r.mu.RUnlock()
		if !ok {
			return nil, fmt.Errorf("list handler %q: %w", name, apperr.ErrUnknownComponent)
		}
		h, err := f(ref, arg)
		if err != nil {
			return nil, err
		}
		handlers = append(handlers, h)
	}
	switch len(handlers) {
	case 0:
		return nil, nil
	case 1:
		return handlers[0], nil
	}
	return chain(handlers), nil
}

// Names lists registered component names per kind, sorted.
func (r *Registry) Names() (validators, transformers, listHandlers []string) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return sortedKeys(r.validators), sortedKeys(r.transformers), sortedKeys(r.listHandlers)
}

func splitRef(ref string) (name, arg string) {
	name, arg, _ = strings.Cut(ref, ":")
	return strings.TrimSpace(name), strings.TrimSpace(arg)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
