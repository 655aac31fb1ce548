// internal/app/features/errors/errors.go
package errors

import (
	"net/http"

	"github.com/dalemusser/campushub/internal/app/system/auth"
	"github.com/dalemusser/waffle/pantry/templates"
)

// pageData is the view model shared by all error pages.
type pageData struct {
	Title      string
	IsLoggedIn bool
	Role       string
	UserName   string
	Message    string
	BackURL    string
}

// newPageData fills the error view model from the request's session
// user. An empty backURL falls back to the given default.
func newPageData(r *http.Request, title, msg, backURL, backDefault string) pageData {
	d := pageData{Title: title, Message: msg, BackURL: backURL}
	if u, ok := auth.CurrentUser(r); ok && u != nil {
		d.IsLoggedIn = true
		d.Role = u.Role
		d.UserName = u.Name
	}
	if d.BackURL == "" {
		d.BackURL = backDefault
	}
	return d
}

// Handler serves the standalone error pages. No DB needed; it just
// renders templates.
type Handler struct{}

// NewHandler constructs an errors Handler.
func NewHandler() *Handler {
	return &Handler{}
}

// Forbidden renders a friendly "access denied" page.
// GET /forbidden
func (h *Handler) Forbidden(w http.ResponseWriter, r *http.Request) {
	data := newPageData(r, "Access denied",
		"You don't have permission to view this page.", "", "/")
	templates.Render(w, r, "error_forbidden", data)
}

// Unauthorized renders a friendly "sign in required" page.
// GET /unauthorized
func (h *Handler) Unauthorized(w http.ResponseWriter, r *http.Request) {
	data := newPageData(r, "Sign in required",
		"Please sign in to continue.", "", "/login")
	templates.Render(w, r, "error_forbidden", data)
}
