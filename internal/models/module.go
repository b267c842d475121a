// Package models defines the domain types for resolved content.
package models

import (
	"path"
	"strings"
)

// FileInfo holds fields derived purely from a module's path.
type FileInfo struct {
	Ext      string   `json:"ext"`
	Name     string   `json:"name"`
	Slug     string   `json:"slug"`
	Dir      string   `json:"dir"`
	Segments []string `json:"segments"`
}

// Module is one resolved content file. Data and Body are never both nil.
type Module struct {
	Path string         `json:"path"`
	Data map[string]any `json:"data,omitempty"`
	Body *string        `json:"body,omitempty"`
	FileInfo
}

// BodyText returns the body or an empty string when absent.
func (m *Module) BodyText() string {
	if m.Body == nil {
		return ""
	}
	return *m.Body
}

// Collection is the aggregated, optionally paginated result of a query.
// Start, End and TotalPages are nil when no pagination was requested.
type Collection struct {
	Entries      []*Module `json:"entries"`
	Start        *int      `json:"start,omitempty"`
	End          *int      `json:"end,omitempty"`
	TotalPages   *int      `json:"totalPages,omitempty"`
	TotalEntries int       `json:"totalEntries"`
}

// Paginate requests one page of a collection. A nil CurrentPageNumber
// means page 1.
type Paginate struct {
	CurrentPageNumber *int `json:"currentPageNumber,omitempty" yaml:"current_page_number"`
	EntriesCount      int  `json:"entriesCount" yaml:"entries_count"`
}

// Page returns the requested page number, defaulting to 1.
func (p *Paginate) Page() int {
	if p.CurrentPageNumber == nil {
		return 1
	}
	return *p.CurrentPageNumber
}

// NewFileInfo derives file info from a slash-separated path.
func NewFileInfo(p string) FileInfo {
	base := path.Base(p)
	ext := path.Ext(base)
	dir := path.Dir(p)
	if dir == "." {
		dir = ""
	}
	return FileInfo{
		Ext:      strings.TrimPrefix(ext, "."),
		Name:     base,
		Slug:     slugify(strings.TrimSuffix(base, ext)),
		Dir:      dir,
		Segments: strings.Split(p, "/"),
	}
}

// slugify lower-cases s and collapses runs of non-alphanumerics into '-'.
func slugify(s string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(s) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r > 127 {
			b.WriteRune(r)
			dash = false
			continue
		}
		if !dash && b.Len() > 0 {
			b.WriteByte('-')
			dash = true
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}
