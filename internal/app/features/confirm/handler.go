// internal/app/features/confirm/handler.go
package confirm

import (
	"context"
	"errors"
	"net/http"
	"net/url"

	uierrors "github.com/dalemusser/campushub/internal/app/features/errors"
	"github.com/dalemusser/campushub/internal/app/system/auditlog"
	"github.com/dalemusser/campushub/internal/app/system/auth"
	"github.com/dalemusser/campushub/internal/app/system/authutil"
	"github.com/dalemusser/campushub/internal/app/system/confirmflow"
	"github.com/dalemusser/campushub/internal/app/system/timeouts"
	"github.com/dalemusser/campushub/internal/app/system/viewdata"
	"github.com/dalemusser/campushub/internal/domain/models"
	"github.com/dalemusser/waffle/pantry/templates"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// Handler owns the invitation confirmation pages.
type Handler struct {
	Engine     *confirmflow.Engine
	SessionMgr *auth.SessionManager
	ErrLog     *uierrors.ErrorLogger
	AuditLog   *auditlog.Logger
	Log        *zap.Logger
}

// NewHandler constructs a confirm Handler.
func NewHandler(engine *confirmflow.Engine, sessionMgr *auth.SessionManager, errLog *uierrors.ErrorLogger, audit *auditlog.Logger, logger *zap.Logger) *Handler {
	return &Handler{
		Engine:     engine,
		SessionMgr: sessionMgr,
		ErrLog:     errLog,
		AuditLog:   audit,
		Log:        logger,
	}
}

// formData is the view model for the new-account form.
type formData struct {
	viewdata.BaseVM
	Token         string
	Name          string
	Username      string
	RoleLabel     string
	NeedsPassword bool
	PasswordRules string

	// Re-render state after a rejected submission.
	FirstName   string
	LastName    string
	ErrorField  string
	ErrorMsg    string
	BrokenRules []string
}

const invitationGone = "This invitation link is invalid, has expired, or has already been used."

/*─────────────────────────────────────────────────────────────────────────────*
| GET /confirm/{token}                                                        |
*─────────────────────────────────────────────────────────────────────────────*/

// ServeConfirm resolves the token and either shows the new-account form
// or, for link-mode invitations, applies the grant immediately.
func (h *Handler) ServeConfirm(w http.ResponseWriter, r *http.Request) {
	token := chi.URLParam(r, "token")

	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Short())
	defer cancel()

	c, err := h.Engine.Resolve(ctx, token)
	if err != nil {
		if errors.Is(err, confirmflow.ErrNotFound) {
			uierrors.RenderNotFound(w, r, invitationGone, "/")
			return
		}
		h.ErrLog.LogServerError(w, r, "resolve confirmation failed", err, "A server error occurred.", "/")
		return
	}

	if !c.CreatesUser() {
		h.applyLink(w, r, token, c)
		return
	}

	templates.Render(w, r, "confirm_new_user", formData{
		BaseVM:        viewdata.NewBaseVM(r, "Finish creating your account", "/"),
		Token:         token,
		Name:          c.Name,
		Username:      c.Username,
		RoleLabel:     c.Role.Label(),
		NeedsPassword: confirmflow.NeedsPassword(c),
		PasswordRules: authutil.PasswordRules(),
	})
}

// applyLink consumes a link-mode invitation. These carry no user input,
// so opening the link is the confirmation.
func (h *Handler) applyLink(w http.ResponseWriter, r *http.Request, token string, c *models.Confirmation) {
	// Applying a grant can touch both the confirmation and the user record.
	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Long())
	defer cancel()

	if err := h.Engine.SubmitLink(ctx, token); err != nil {
		if errors.Is(err, confirmflow.ErrNotFound) {
			uierrors.RenderNotFound(w, r, invitationGone, "/")
			return
		}
		h.ErrLog.LogServerError(w, r, "apply link confirmation failed", err, "A server error occurred.", "/")
		return
	}

	if c.UserID != nil {
		h.AuditLog.ConfirmationConsumed(ctx, r, *c.UserID, c.Username, c.Mode)
	}

	templates.Render(w, r, "confirm_done", doneData{
		BaseVM:  viewdata.NewBaseVM(r, "Invitation applied", "/"),
		Message: "The invitation has been applied to the account.",
	})
}

// doneData is the view model for the post-link confirmation page.
type doneData struct {
	viewdata.BaseVM
	Message string
}

/*─────────────────────────────────────────────────────────────────────────────*
| POST /confirm/{token}                                                       |
*─────────────────────────────────────────────────────────────────────────────*/

// HandleSubmit consumes a create-mode invitation into a new account and
// signs the new user in.
func (h *Handler) HandleSubmit(w http.ResponseWriter, r *http.Request) {
	token := chi.URLParam(r, "token")

	if err := r.ParseForm(); err != nil {
		h.ErrLog.LogBadRequest(w, r, "parse form failed", err, "Invalid form data.", "/")
		return
	}

	form := confirmflow.CreationForm{
		FirstName:       r.FormValue("first_name"),
		LastName:        r.FormValue("last_name"),
		Password:        r.FormValue("password"),
		ConfirmPassword: r.FormValue("confirm_password"),
	}

	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Medium())
	defer cancel()

	created, err := h.Engine.SubmitCreation(ctx, token, form)
	if err != nil {
		switch {
		case errors.Is(err, confirmflow.ErrNotFound):
			uierrors.RenderNotFound(w, r, invitationGone, "/")
		case errors.Is(err, confirmflow.ErrWrongMode):
			uierrors.RenderNotFound(w, r, invitationGone, "/")
		default:
			if ve, ok := confirmflow.AsValidation(err); ok {
				h.rerenderForm(w, r, token, form, ve)
				return
			}
			h.ErrLog.LogServerError(w, r, "submit confirmation failed", err, "A server error occurred.", "/")
		}
		return
	}

	h.AuditLog.ConfirmationConsumed(ctx, r, created.ID, created.Username, models.ConfirmationCreatesUser)

	if err := h.SessionMgr.SignIn(w, r, created); err != nil {
		// The account exists; a failed cookie write just means the user
		// signs in manually.
		h.Log.Warn("sign-in after confirmation failed",
			zap.Error(err), zap.String("username", created.Username))
		http.Redirect(w, r, "/login", http.StatusSeeOther)
		return
	}

	http.Redirect(w, r, "/user?username="+url.QueryEscape(created.Username), http.StatusSeeOther)
}

// rerenderForm shows the form again after a rejected submission. Names
// are retained; only the offending field is flagged, and password rule
// violations list every unmet requirement.
func (h *Handler) rerenderForm(w http.ResponseWriter, r *http.Request, token string, form confirmflow.CreationForm, ve *confirmflow.ValidationError) {
	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Short())
	defer cancel()

	c, err := h.Engine.Resolve(ctx, token)
	if err != nil {
		uierrors.RenderNotFound(w, r, invitationGone, "/")
		return
	}

	rules := make([]string, 0, len(ve.Rules))
	for _, rule := range ve.Rules {
		rules = append(rules, "Password must "+string(rule)+".")
	}

	templates.Render(w, r, "confirm_new_user", formData{
		BaseVM:        viewdata.NewBaseVM(r, "Finish creating your account", "/"),
		Token:         token,
		Name:          c.Name,
		Username:      c.Username,
		RoleLabel:     c.Role.Label(),
		NeedsPassword: confirmflow.NeedsPassword(c),
		PasswordRules: authutil.PasswordRules(),
		FirstName:     form.FirstName,
		LastName:      form.LastName,
		ErrorField:    ve.Field,
		ErrorMsg:      ve.Message,
		BrokenRules:   rules,
	})
}
