// Package frontmatter splits leading YAML frontmatter from Markdown content
// and checks that it has the shape of a plain mapping.
package frontmatter

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"gopkg.in/yaml.v3"
)

// fencePattern matches a `---` fenced block at the very start of the text.
// Both fences must occupy a line of their own. The first group holds the raw
// block without fences and is unset for an empty block.
var fencePattern = regexp.MustCompile(`(?s)\A---[ \t]*\r?\n(?:(.*?)\r?\n)?---[ \t]*(?:\r?\n|\z)`)

// ErrNotMapping is returned when frontmatter parses to something other than
// a mapping with string keys.
var ErrNotMapping = errors.New("frontmatter: not a mapping")

// Split separates the leading frontmatter block from the body. When no block
// is present found is false and body is the whole text. raw is trimmed.
func Split(text string) (raw string, body string, found bool) {
	loc := fencePattern.FindStringSubmatchIndex(text)
	if loc == nil {
		return "", text, false
	}
	if loc[2] >= 0 {
		raw = strings.TrimSpace(text[loc[2]:loc[3]])
	}
	return raw, text[loc[1]:], true
}

// Parse decodes raw YAML and runs the basic shape check on the result.
func Parse(raw string) (map[string]any, error) {
	var v any
	if err := yaml.Unmarshal([]byte(raw), &v); err != nil {
		return nil, fmt.Errorf("frontmatter: parse: %w", err)
	}
	return CheckShape(v)
}

// CheckShape verifies v is a mapping whose keys are non-empty strings.
// A nil document yields an empty map.
func CheckShape(v any) (map[string]any, error) {
	if v == nil {
		return map[string]any{}, nil
	}
	m, ok := v.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%w: got %T", ErrNotMapping, v)
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, strings.TrimSpace(k))
	}
	if err := validation.Validate(keys, validation.Each(validation.Required)); err != nil {
		return nil, fmt.Errorf("%w: keys: %v", ErrNotMapping, err)
	}
	return m, nil
}

// Clone returns a deep copy of m so callers may mutate the result freely.
func Clone(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return Clone(t)
	case map[any]any:
		out := make(map[any]any, len(t))
		for k, v := range t {
			out[k] = cloneValue(v)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, v := range t {
			out[i] = cloneValue(v)
		}
		return out
	default:
		// YAML scalars (string, int, float64, bool, time.Time) are values.
		return v
	}
}
