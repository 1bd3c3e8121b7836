package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/starford/lattice/internal/noteservice"
	"github.com/starford/lattice/internal/workspace"
)

// NewRouter creates a chi router with all API routes mounted.
// authEnabled controls whether Bearer token auth is enforced.
// sseHandler, if non-nil, is mounted at GET /events inside the auth group.
func NewRouter(ws *workspace.Workspace, svc *noteservice.Service, authEnabled bool, token string, sseHandler http.Handler) chi.Router {
	h := NewHandler(ws, svc)

	r := chi.NewRouter()
	r.Use(AuthMiddleware(authEnabled, token))

	r.Route("/notes", func(r chi.Router) {
		r.Get("/", h.ListNotes)
		r.Post("/", h.CreateNote)

		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", h.GetNote)
			r.Put("/", h.UpdateNote)
			r.Delete("/", h.DeleteNote)
			r.Post("/move", h.MoveNote)
			r.Get("/backlinks", h.Backlinks)
			r.Get("/markdown", h.Markdown)
			r.Get("/html", h.HTML)
			r.Put("/draft", h.Draft)
			r.Get("/save-status", h.SaveStatus)
			r.Post("/save-retry", h.RetrySave)
		})
	})

	r.Get("/active", h.ActiveNote)
	r.Put("/active", h.Activate)

	r.Get("/graph", h.Graph)

	r.Get("/backup", h.Export)
	r.Post("/backup", h.Import)

	if sseHandler != nil {
		r.Get("/events", sseHandler.ServeHTTP)
	}

	return r
}
