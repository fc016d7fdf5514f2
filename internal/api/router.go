package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/starford/slipbox/internal/noteservice"
)

// Auth configures bearer-token protection of the API.
type Auth struct {
	Enabled bool
	Token   string
}

// NewRouter creates a chi router with all API routes mounted. events, if
// non-nil, is served at GET /events behind the same auth middleware.
func NewRouter(svc *noteservice.Service, auth Auth, events http.Handler, logger *slog.Logger) chi.Router {
	h := NewHandler(svc, logger)

	r := chi.NewRouter()
	r.Use(AuthMiddleware(auth.Enabled, auth.Token))

	r.Get("/backlinks", h.Backlinks)

	r.Get("/notes", h.ListNotes)
	r.Post("/notes", h.CreateNote)
	r.Get("/notes/*", h.GetNote)

	r.Get("/search", h.Search)
	r.Get("/graph", h.Graph)

	if events != nil {
		r.Get("/events", events.ServeHTTP)
	}
	return r
}
