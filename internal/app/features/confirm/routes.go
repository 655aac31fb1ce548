// internal/app/features/confirm/routes.go
package confirm

import "github.com/go-chi/chi/v5"

func Routes(h *Handler) chi.Router {
	r := chi.NewRouter()
	r.Get("/{token}", h.ServeConfirm)
	r.Post("/{token}", h.HandleSubmit)
	return r
}
