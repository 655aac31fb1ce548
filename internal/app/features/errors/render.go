// internal/app/features/errors/render.go
package errors

import (
	"net/http"

	"github.com/dalemusser/waffle/pantry/httpnav"
	"github.com/dalemusser/waffle/pantry/templates"
)

// RenderUnauthorized shows a friendly "sign in required" page.
// If backURL is empty, it will default to /login.
func RenderUnauthorized(w http.ResponseWriter, r *http.Request, backURL string) {
	data := newPageData(r, "Sign in required",
		"Please sign in to continue.", backURL, "/login")
	templates.Render(w, r, "error_forbidden", data)
}

// RenderForbidden shows a friendly access error page with a message.
// If backURL is empty, it resolves a safe back URL with a default fallback.
func RenderForbidden(w http.ResponseWriter, r *http.Request, msg, backURL string) {
	if backURL == "" {
		backURL = httpnav.ResolveBackURL(r, "/")
	}
	data := newPageData(r, "Access denied", msg, backURL, "/")
	templates.Render(w, r, "error_forbidden", data)
}

// RenderNotFound shows a friendly "not found" page with a message.
func RenderNotFound(w http.ResponseWriter, r *http.Request, msg, backURL string) {
	data := newPageData(r, "Not found", msg, backURL, "/")
	w.WriteHeader(http.StatusNotFound)
	templates.Render(w, r, "error_notfound", data)
}

// renderErrorPage renders the generic error page. The caller sets the
// status code first.
func renderErrorPage(w http.ResponseWriter, r *http.Request, title, msg, backURL string) {
	data := newPageData(r, title, msg, backURL, "/")
	templates.Render(w, r, "error_page", data)
}
