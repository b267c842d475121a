package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/starford/contentstore/internal/catalog"
	"github.com/starford/contentstore/internal/contentservice"
)

const maxBodySize = 1 << 20

// Handler holds API route handlers.
type Handler struct {
	svc          *contentservice.Service
	onInvalidate func(path string, collections []string)
}

// NewHandler creates a new Handler.
func NewHandler(svc *contentservice.Service, onInvalidate func(string, []string)) *Handler {
	return &Handler{svc: svc, onInvalidate: onInvalidate}
}

// filePath extracts the content path from the URL (everything after
// /api/files/). Encoded slashes are accepted.
func filePath(r *http.Request) string {
	raw := strings.TrimPrefix(chi.URLParam(r, "*"), "/")
	if raw == "" {
		return ""
	}
	decoded, err := url.PathUnescape(raw)
	if err != nil {
		return raw
	}
	return decoded
}

// pageParam parses the optional page query parameter.
func pageParam(r *http.Request) (*int, error) {
	raw := r.URL.Query().Get("page")
	if raw == "" {
		return nil, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return nil, errors.New("page must be a non-negative integer")
	}
	return &n, nil
}

func splitList(raw string) []string {
	if raw == "" {
		return nil
	}
	return strings.Split(raw, ",")
}

// ListCollections handles GET /api/collections.
func (h *Handler) ListCollections(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, CollectionListResponse{Collections: h.svc.Collections()})
}

// GetCollection handles GET /api/collections/{name}?page=.
func (h *Handler) GetCollection(w http.ResponseWriter, r *http.Request) {
	page, err := pageParam(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}
	coll, err := h.svc.QueryCollection(r.Context(), chi.URLParam(r, "name"), page)
	if err != nil {
		writeError(w, "query collection", err)
		return
	}
	writeJSON(w, http.StatusOK, coll)
}

// Query handles POST /api/query.
func (h *Handler) Query(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
	var req QueryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON"))
		return
	}
	coll, err := h.svc.Query(r.Context(), req.QuerySpec, req.Page)
	if err != nil {
		writeError(w, "query", err)
		return
	}
	writeJSON(w, http.StatusOK, coll)
}

// GetFile handles GET /api/files/*?validator=&transformers=a,b.
func (h *Handler) GetFile(w http.ResponseWriter, r *http.Request) {
	path := filePath(r)
	if path == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("path is required"))
		return
	}
	q := r.URL.Query()
	m, err := h.svc.ReadModule(r.Context(), path, q.Get("validator"), splitList(q.Get("transformers")))
	if err != nil {
		writeError(w, "read module", err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

// Search handles GET /api/search?q=&limit=.
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	if q == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("q is required"))
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	results, err := h.svc.Search(r.Context(), q, limit)
	if err != nil {
		writeError(w, "search", err)
		return
	}
	if results == nil {
		results = []catalog.SearchResult{}
	}
	writeJSON(w, http.StatusOK, SearchResponse{Results: results})
}

// Invalidate handles POST /api/invalidate.
func (h *Handler) Invalidate(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
	var req InvalidateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON"))
		return
	}
	cols := h.svc.Invalidate(req.Path)
	if h.onInvalidate != nil {
		h.onInvalidate(req.Path, cols)
	}
	if cols == nil {
		cols = []string{}
	}
	writeJSON(w, http.StatusOK, InvalidateResponse{Path: req.Path, Collections: cols})
}

// Stats handles GET /api/stats.
func (h *Handler) Stats(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.svc.Stats())
}
