package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/starford/contentstore/internal/contentservice"
)

// RouterConfig configures NewRouter.
type RouterConfig struct {
	AuthEnabled bool
	Token       string
	// Events, if non-nil, is mounted at GET /events inside the auth group.
	Events http.Handler
	// OnInvalidate, if non-nil, is called after a manual invalidation.
	OnInvalidate func(path string, collections []string)
}

// NewRouter creates a chi router with all API routes mounted.
func NewRouter(svc *contentservice.Service, cfg RouterConfig) chi.Router {
	h := NewHandler(svc, cfg.OnInvalidate)

	r := chi.NewRouter()
	r.Use(AuthMiddleware(cfg.AuthEnabled, cfg.Token))

	r.Get("/collections", h.ListCollections)
	r.Get("/collections/{name}", h.GetCollection)
	r.Post("/query", h.Query)
	r.Get("/files/*", h.GetFile)
	r.Get("/search", h.Search)
	r.Post("/invalidate", h.Invalidate)
	r.Get("/stats", h.Stats)

	if cfg.Events != nil {
		r.Get("/events", cfg.Events.ServeHTTP)
	}

	return r
}
