package pipeline

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"

	"github.com/starford/contentstore/internal/apperr"
	"github.com/starford/contentstore/internal/content"
	"github.com/starford/contentstore/internal/models"
)

// chain applies handlers in order. Its ID joins the handler IDs.
func chain(handlers []content.ListHandler) content.ListHandler {
	ids := make([]string, len(handlers))
	for i, h := range handlers {
		ids[i] = h.ID()
	}
	return content.ListHandlerFunc(strings.Join(ids, "|"), func(ctx context.Context, ms []*models.Module) ([]*models.Module, error) {
		var err error
		for _, h := range handlers {
			if ms, err = h.Handle(ctx, ms); err != nil {
				return nil, fmt.Errorf("%s: %w", h.ID(), err)
			}
		}
		return ms, nil
	})
}

// newSort builds "sort:<field>[:desc]". The fields path, slug and name sort by
// file info, any other field by the module's data. Modules missing the field
// sort last in either direction; ties break on path.
func newSort(ref, arg string) (content.ListHandler, error) {
	field, dir, _ := strings.Cut(arg, ":")
	field = strings.TrimSpace(field)
	if field == "" {
		return nil, fmt.Errorf("list handler %q needs a field: %w", ref, apperr.ErrInvalidInput)
	}
	var desc bool
	switch strings.TrimSpace(dir) {
	case "", "asc":
	case "desc":
		desc = true
	default:
		return nil, fmt.Errorf("list handler %q: direction must be asc or desc: %w", ref, apperr.ErrInvalidInput)
	}

	return content.ListHandlerFunc(ref, func(_ context.Context, ms []*models.Module) ([]*models.Module, error) {
		out := append([]*models.Module(nil), ms...)
		sort.SliceStable(out, func(i, j int) bool {
			a, aok := sortValue(out[i], field)
			b, bok := sortValue(out[j], field)
			switch {
			case !aok && !bok:
				return out[i].Path < out[j].Path
			case !aok:
				return false
			case !bok:
				return true
			}
			c := compare(a, b)
			if c == 0 {
				return out[i].Path < out[j].Path
			}
			if desc {
				return c > 0
			}
			return c < 0
		})
		return out, nil
	}), nil
}

func sortValue(m *models.Module, field string) (any, bool) {
	switch field {
	case "path":
		return m.Path, true
	case "slug":
		return m.Slug, true
	case "name":
		return m.Name, true
	}
	v, ok := m.Data[field]
	if !ok || v == nil {
		return nil, false
	}
	return v, true
}

// compare orders numbers numerically, times chronologically and everything
// else by its string form.
func compare(a, b any) int {
	if x, ok := number(a); ok {
		if y, ok := number(b); ok {
			switch {
			case x < y:
				return -1
			case x > y:
				return 1
			}
			return 0
		}
	}
	if x, ok := a.(time.Time); ok {
		if y, ok := b.(time.Time); ok {
			return x.Compare(y)
		}
	}
	return strings.Compare(fmt.Sprint(a), fmt.Sprint(b))
}

func number(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}

type publishState struct {
	Draft     bool  `mapstructure:"draft"`
	Published *bool `mapstructure:"published"`
}

// newExcludeDrafts drops modules whose data marks them as drafts, either
// with draft: true or published: false. String values like "true" are accepted.
func newExcludeDrafts(ref, _ string) (content.ListHandler, error) {
	return content.ListHandlerFunc(ref, func(_ context.Context, ms []*models.Module) ([]*models.Module, error) {
		out := make([]*models.Module, 0, len(ms))
		for _, m := range ms {
			state, err := decodePublishState(m.Data)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", m.Path, err)
			}
			if state.Draft || (state.Published != nil && !*state.Published) {
				continue
			}
			out = append(out, m)
		}
		return out, nil
	}), nil
}

func decodePublishState(data map[string]any) (publishState, error) {
	var state publishState
	if len(data) == 0 {
		return state, nil
	}
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &state,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return state, err
	}
	if err := dec.Decode(data); err != nil {
		return state, err
	}
	return state, nil
}

// newDedupe keeps the first module per path. A file matched by several
// sources otherwise appears once per source.
func newDedupe(ref, _ string) (content.ListHandler, error) {
	return content.ListHandlerFunc(ref, func(_ context.Context, ms []*models.Module) ([]*models.Module, error) {
		seen := make(map[string]struct{}, len(ms))
		out := make([]*models.Module, 0, len(ms))
		for _, m := range ms {
			if _, ok := seen[m.Path]; ok {
				continue
			}
			seen[m.Path] = struct{}{}
			out = append(out, m)
		}
		return out, nil
	}), nil
}
