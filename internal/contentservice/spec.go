package contentservice

import (
	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// QuerySpec is the serializable form of a query. Pipeline components are
// referenced by name (see package pipeline). It is used for collections in
// the config file and for ad-hoc queries over HTTP and MCP.
type QuerySpec struct {
	Sources      map[string]string `yaml:"sources" json:"sources"`
	Validator    string            `yaml:"validator" json:"validator,omitempty"`
	Transformers []string          `yaml:"transformers" json:"transformers,omitempty"`
	ListHandlers []string          `yaml:"list_handlers" json:"listHandlers,omitempty"`
	// PageSize enables pagination when positive.
	PageSize  int  `yaml:"page_size" json:"pageSize,omitempty"`
	SkipCache bool `yaml:"skip_cache" json:"skipCache,omitempty"`
	Log       bool `yaml:"log" json:"log,omitempty"`
}

// Validate checks the shape of the spec. Component names are checked when
// the spec is compiled.
func (s QuerySpec) Validate() error {
	return validation.ValidateStruct(&s,
		validation.Field(&s.Sources, validation.Required, validation.Each(validation.Required)),
		validation.Field(&s.PageSize, validation.Min(0)),
	)
}
