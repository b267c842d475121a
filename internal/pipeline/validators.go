package pipeline

import (
	"context"
	"fmt"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/contentstore/internal/apperr"
	"github.com/starford/contentstore/internal/content"
)

func newPassthrough(ref, _ string) (content.Validator, error) {
	return content.ValidatorFunc(ref, func(_ context.Context, in content.ValidatorInput) (map[string]any, error) {
		return in.Data, nil
	}), nil
}

// newRequired builds "required:k1,k2": every listed key must be present and
// non-empty.
func newRequired(ref, arg string) (content.Validator, error) {
	var keys []*validation.KeyRules
	for _, k := range strings.Split(arg, ",") {
		if k = strings.TrimSpace(k); k != "" {
			keys = append(keys, validation.Key(k, validation.Required))
		}
	}
	if len(keys) == 0 {
		return nil, fmt.Errorf("validator %q needs at least one key: %w", ref, apperr.ErrInvalidInput)
	}
	rule := validation.Map(keys...).AllowExtraKeys()

	return content.ValidatorFunc(ref, func(_ context.Context, in content.ValidatorInput) (map[string]any, error) {
		if err := validation.Validate(in.Data, rule); err != nil {
			return nil, err
		}
		return in.Data, nil
	}), nil
}
