// internal/app/features/profile/profile.go
package profile

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	uierrors "github.com/dalemusser/campushub/internal/app/features/errors"
	"github.com/dalemusser/campushub/internal/app/policy/rolepolicy"
	userstore "github.com/dalemusser/campushub/internal/app/store/users"
	"github.com/dalemusser/campushub/internal/app/system/auth"
	"github.com/dalemusser/campushub/internal/app/system/authz"
	"github.com/dalemusser/campushub/internal/app/system/htmlsanitize"
	"github.com/dalemusser/campushub/internal/app/system/normalize"
	"github.com/dalemusser/campushub/internal/app/system/timeouts"
	"github.com/dalemusser/campushub/internal/app/system/viewdata"
	"github.com/dalemusser/campushub/internal/domain/models"
	"github.com/dalemusser/waffle/pantry/query"
	"github.com/dalemusser/waffle/pantry/templates"
)

// viewData is the view model for the public profile page.
type viewData struct {
	viewdata.BaseVM
	Name      string
	Username  string
	RoleLabel string
	CampusID  string
	Cohort    string
	IsSelf    bool
}

/*─────────────────────────────────────────────────────────────────────────────*
| GET /user?username=                                                         |
*─────────────────────────────────────────────────────────────────────────────*/

// ServeUser renders a user's public profile by username. Without a
// username the page shows the signed-in user's own profile.
func (h *Handler) ServeUser(w http.ResponseWriter, r *http.Request) {
	username := strings.TrimSpace(query.Get(r, "username"))
	if username == "" {
		self, err := auth.RequireUsername(r)
		if err != nil {
			http.Redirect(w, r, "/login?return="+url.QueryEscape(r.URL.RequestURI()), http.StatusSeeOther)
			return
		}
		username = self
	}

	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Short())
	defer cancel()

	u, err := h.Users.GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, userstore.ErrNotFound) {
			uierrors.RenderNotFound(w, r, "No such user.", "/")
			return
		}
		h.ErrLog.LogServerError(w, r, "load user profile failed", err, "A server error occurred.", "/")
		return
	}

	cohort := ""
	if u.Cohort != nil {
		cohort = strconv.Itoa(*u.Cohort)
	}

	_, viewerName, _, _ := authz.UserCtx(r)
	isSelf := viewerName == u.Username

	// The campus id is not public; only the owner and coordinators see it.
	campusID := u.CampusID
	if !isSelf && !authz.IsCoordinator(r) {
		campusID = ""
	}

	templates.Render(w, r, "user_profile", viewData{
		BaseVM:    viewdata.NewBaseVM(r, u.FullName(), "/"),
		Name:      u.FullName(),
		Username:  u.Username,
		RoleLabel: u.Role.Label(),
		CampusID:  campusID,
		Cohort:    cohort,
		IsSelf:    isSelf,
	})
}

// roleOption is one entry in the role selector.
type roleOption struct {
	Value     string
	Label     string
	Selected  bool
	Available bool
}

// editData is the view model for the profile editor.
type editData struct {
	viewdata.BaseVM
	FirstName string
	LastName  string
	Cohort    string
	Roles     []roleOption

	FirstNameError string
	LastNameError  string
	RoleError      string
}

// buildRoleOptions lists every role with its reachability from the
// user's current role, so the form can show unavailable roles disabled
// rather than hiding them.
func buildRoleOptions(current models.Role, hasCampusID bool, selected models.Role) []roleOption {
	avail := rolepolicy.Available(current, hasCampusID)
	opts := make([]roleOption, 0, len(models.AllRoles))
	for _, role := range models.AllRoles {
		opts = append(opts, roleOption{
			Value:     string(role),
			Label:     role.Label(),
			Selected:  role == selected,
			Available: avail[role],
		})
	}
	return opts
}

/*─────────────────────────────────────────────────────────────────────────────*
| GET /edit_profile                                                           |
*─────────────────────────────────────────────────────────────────────────────*/

// ServeEdit renders the signed-in user's profile editor.
func (h *Handler) ServeEdit(w http.ResponseWriter, r *http.Request) {
	_, _, uid, ok := authz.UserCtx(r)
	if !ok {
		uierrors.RenderUnauthorized(w, r, "/login")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Short())
	defer cancel()

	u, err := h.Users.GetByID(ctx, uid)
	if err != nil {
		uierrors.RenderNotFound(w, r, "User not found.", "/")
		return
	}

	cohort := ""
	if u.Cohort != nil {
		cohort = strconv.Itoa(*u.Cohort)
	}

	templates.Render(w, r, "edit_profile", editData{
		BaseVM:    viewdata.NewBaseVM(r, "Edit profile", "/"),
		FirstName: u.FirstName,
		LastName:  u.LastName,
		Cohort:    cohort,
		Roles:     buildRoleOptions(u.Role, u.CampusID != "", u.Role),
	})
}

/*─────────────────────────────────────────────────────────────────────────────*
| POST /edit_profile                                                          |
*─────────────────────────────────────────────────────────────────────────────*/

// HandleEdit saves the profile editor form.
func (h *Handler) HandleEdit(w http.ResponseWriter, r *http.Request) {
	_, _, uid, ok := authz.UserCtx(r)
	if !ok {
		uierrors.RenderUnauthorized(w, r, "/login")
		return
	}

	if err := r.ParseForm(); err != nil {
		h.ErrLog.LogBadRequest(w, r, "parse form failed", err, "Invalid form data.", "/edit_profile")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Short())
	defer cancel()

	u, err := h.Users.GetByID(ctx, uid)
	if err != nil {
		h.ErrLog.LogServerError(w, r, "load user for edit failed", err, "A server error occurred.", "/")
		return
	}

	first := normalize.Name(htmlsanitize.Plain(r.FormValue("first_name")))
	last := normalize.Name(htmlsanitize.Plain(r.FormValue("last_name")))
	requested := models.Role(strings.TrimSpace(r.FormValue("role")))
	cohort := parseCohort(r.FormValue("cohort"))

	data := editData{
		BaseVM:    viewdata.NewBaseVM(r, "Edit profile", "/"),
		FirstName: first,
		LastName:  last,
		Cohort:    r.FormValue("cohort"),
		Roles:     buildRoleOptions(u.Role, u.CampusID != "", requested),
	}

	valid := true
	if first == "" {
		data.FirstNameError = "First name cannot be empty."
		valid = false
	}
	if last == "" {
		data.LastNameError = "Last name cannot be empty."
		valid = false
	}
	if !rolepolicy.CanSwitchTo(u.Role, requested, u.CampusID != "") {
		data.RoleError = "You cannot switch to this role."
		valid = false
	}
	if !valid {
		templates.Render(w, r, "edit_profile", data)
		return
	}

	updated, err := h.Users.UpdateProfile(ctx, uid, userstore.ProfileUpdate{
		FirstName: first,
		LastName:  last,
		Role:      requested,
		Cohort:    cohort,
	})
	if err != nil {
		// A vanished user between resolution and write is a server
		// fault, not a user-correctable condition.
		h.ErrLog.LogServerError(w, r, "update profile failed", err, "A server error occurred.", "/")
		return
	}

	http.Redirect(w, r, "/user?username="+url.QueryEscape(updated.Username), http.StatusSeeOther)
}

// parseCohort reads the cohort field leniently: empty or non-numeric
// input just means no cohort.
func parseCohort(raw string) *int {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return nil
	}
	return &n
}
