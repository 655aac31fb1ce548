// internal/app/features/profile/routes.go
package profile

import (
	"github.com/dalemusser/campushub/internal/app/system/auth"
	"github.com/go-chi/chi/v5"
)

// PublicRoutes serves the public profile page.
func PublicRoutes(h *Handler) chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.ServeUser)
	return r
}

// EditRoutes serves the session-gated profile editor.
func EditRoutes(h *Handler, sessionMgr *auth.SessionManager) chi.Router {
	r := chi.NewRouter()
	r.Use(sessionMgr.RequireSignedIn)
	r.Get("/", h.ServeEdit)
	r.Post("/", h.HandleEdit)
	return r
}
