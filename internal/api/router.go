package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/starford/tablekit/internal/tableservice"
)

// NewRouter creates a chi router with all API routes mounted.
// authEnabled controls whether Bearer token auth is enforced.
// sseHandler, if non-nil, is mounted at GET /events inside the auth group.
func NewRouter(svc *tableservice.Service, authEnabled bool, token string, sseHandler http.Handler) chi.Router {
	h := NewHandler(svc)

	r := chi.NewRouter()
	r.Use(AuthMiddleware(authEnabled, token))

	// Resources CRUD.
	r.Get("/resources", h.ListResources)
	r.Get("/resources/*", h.GetResource)
	r.Put("/resources/*", h.PutResource)
	r.Delete("/resources/*", h.DeleteResource)

	// Row access.
	r.Get("/rows/*", h.Rows)
	r.Get("/export/*", h.Export)
	r.Get("/preview", h.Preview)

	// Foreign keys.
	r.Post("/foreign-keys/validate", h.ValidateForeignKeys)
	r.Post("/foreign-keys/check", h.CheckForeignKeys)

	if sseHandler != nil {
		r.Get("/events", sseHandler.ServeHTTP)
	}

	return r
}
