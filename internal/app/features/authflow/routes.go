// internal/app/features/authflow/routes.go
package authflow

import "github.com/go-chi/chi/v5"

// Routes returns the router for provider round-trip endpoints. Begin
// and callback endpoints are public; the link flow checks the session
// itself so it can render a friendly page instead of a bare redirect.
func Routes(h *Handler) chi.Router {
	r := chi.NewRouter()
	r.Get("/{provider}/login", h.ServeBeginLogin)
	r.Get("/{provider}/register", h.ServeBeginRegister)
	r.Get("/{provider}/link", h.ServeBeginLink)
	r.Get("/{provider}/callback", h.ServeCallback)
	return r
}
