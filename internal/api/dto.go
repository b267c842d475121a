package api

import (
	"github.com/starford/contentstore/internal/catalog"
	"github.com/starford/contentstore/internal/contentservice"
)

// CollectionListResponse wraps the configured collections.
type CollectionListResponse struct {
	Collections []contentservice.CollectionInfo `json:"collections"`
}

// QueryRequest is the body of POST /api/query.
type QueryRequest struct {
	contentservice.QuerySpec
	Page *int `json:"page,omitempty"`
}

// SearchResponse wraps search results.
type SearchResponse struct {
	Results []catalog.SearchResult `json:"results"`
}

// InvalidateRequest is the body of POST /api/invalidate. An empty path
// invalidates everything.
type InvalidateRequest struct {
	Path string `json:"path"`
}

// InvalidateResponse reports what a manual invalidation affected.
type InvalidateResponse struct {
	Path        string   `json:"path"`
	Collections []string `json:"collections"`
}
