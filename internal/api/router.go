package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/starford/aislemap/internal/mapservice"
)

// NewRouter creates a chi router with all API routes mounted.
// authEnabled controls whether Bearer token auth is enforced.
// sseHandler, if non-nil, is mounted at GET /events inside the auth group.
func NewRouter(svc *mapservice.Service, authEnabled bool, token string, sseHandler http.Handler) chi.Router {
	h := NewHandler(svc)

	r := chi.NewRouter()
	r.Use(AuthMiddleware(authEnabled, token))

	// Markers.
	r.Get("/markers", h.VisibleMarkers)
	r.Get("/markers/all", h.AllMarkers)
	r.Get("/markers/{id}/image", h.MarkerImage)

	// Selection.
	r.Get("/selection", h.Selection)
	r.Post("/selection", h.AddItem)
	r.Delete("/selection/{id}", h.RemoveItem)

	// View.
	r.Get("/view", h.View)
	r.Put("/view/show-all", h.SetShowAll)
	r.Post("/view/show-all/toggle", h.ToggleShowAll)

	// Removal journal.
	r.Get("/removals", h.Removals)

	if sseHandler != nil {
		r.Get("/events", sseHandler.ServeHTTP)
	}

	return r
}
