// internal/app/features/authflow/handler.go

// Package authflow is the HTTP boundary for external identity
// providers. It resolves the {provider} route segment through the
// registry, starts round trips, and dispatches callbacks on the flow
// recorded in the one-time state token. Session minting happens here,
// after the provider's Complete call has fully succeeded, so no
// provider failure can leave a signed-in session for unfinished work.
package authflow

import (
	"context"
	"errors"
	"net/http"
	"net/url"

	uierrors "github.com/dalemusser/campushub/internal/app/features/errors"
	"github.com/dalemusser/campushub/internal/app/providers"
	"github.com/dalemusser/campushub/internal/app/store/authstate"
	"github.com/dalemusser/campushub/internal/app/system/auditlog"
	"github.com/dalemusser/campushub/internal/app/system/auth"
	"github.com/dalemusser/campushub/internal/app/system/authz"
	"github.com/dalemusser/campushub/internal/app/system/timeouts"
	"github.com/dalemusser/waffle/pantry/query"
	"github.com/dalemusser/waffle/pantry/urlutil"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// Handler owns the /auth/{provider}/* endpoints.
type Handler struct {
	Registry   *providers.Registry
	States     *authstate.Store
	SessionMgr *auth.SessionManager
	ErrLog     *uierrors.ErrorLogger
	AuditLog   *auditlog.Logger
	Log        *zap.Logger
}

// NewHandler constructs an authflow Handler.
func NewHandler(registry *providers.Registry, states *authstate.Store, sessionMgr *auth.SessionManager, errLog *uierrors.ErrorLogger, audit *auditlog.Logger, logger *zap.Logger) *Handler {
	return &Handler{
		Registry:   registry,
		States:     states,
		SessionMgr: sessionMgr,
		ErrLog:     errLog,
		AuditLog:   audit,
		Log:        logger,
	}
}

// provider resolves the {provider} route segment, or renders a 404.
func (h *Handler) provider(w http.ResponseWriter, r *http.Request) (providers.Provider, bool) {
	name := chi.URLParam(r, "provider")
	p, ok := h.Registry.Lookup(name)
	if !ok {
		uierrors.RenderNotFound(w, r, "Unknown identity provider.", "/login")
		return nil, false
	}
	return p, true
}

// fail reports a round-trip failure. Provider rejections get their safe
// reason shown; everything else is a generic server error.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, op string, err error) {
	var pe *providers.ProviderError
	if errors.As(err, &pe) {
		h.Log.Warn("provider round trip rejected",
			zap.String("provider", pe.Provider),
			zap.String("op", pe.Op),
			zap.Error(err))
		uierrors.RenderForbidden(w, r, pe.Reason, "/login")
		return
	}
	h.ErrLog.LogServerError(w, r, op+" failed", err, "A server error occurred.", "/login")
}

/*─────────────────────────────────────────────────────────────────────────────*
| GET /auth/{provider}/login, /register, /link                                |
*─────────────────────────────────────────────────────────────────────────────*/

func (h *Handler) ServeBeginLogin(w http.ResponseWriter, r *http.Request) {
	p, ok := h.provider(w, r)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Short())
	defer cancel()

	dest, err := p.BeginLogin(ctx, query.Get(r, "return"))
	if err != nil {
		h.fail(w, r, "begin provider login", err)
		return
	}
	http.Redirect(w, r, dest, http.StatusSeeOther)
}

func (h *Handler) ServeBeginRegister(w http.ResponseWriter, r *http.Request) {
	p, ok := h.provider(w, r)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Short())
	defer cancel()

	dest, err := p.BeginRegistration(ctx, query.Get(r, "return"))
	if err != nil {
		h.fail(w, r, "begin provider registration", err)
		return
	}
	http.Redirect(w, r, dest, http.StatusSeeOther)
}

func (h *Handler) ServeBeginLink(w http.ResponseWriter, r *http.Request) {
	p, ok := h.provider(w, r)
	if !ok {
		return
	}

	_, _, uid, signedIn := authz.UserCtx(r)
	if !signedIn {
		uierrors.RenderUnauthorized(w, r, "/login")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Short())
	defer cancel()

	dest, err := p.BeginLink(ctx, uid, query.Get(r, "return"))
	if err != nil {
		h.fail(w, r, "begin provider link", err)
		return
	}
	http.Redirect(w, r, dest, http.StatusSeeOther)
}

/*─────────────────────────────────────────────────────────────────────────────*
| GET /auth/{provider}/callback                                               |
*─────────────────────────────────────────────────────────────────────────────*/

// ServeCallback validates and claims the one-time state, then finishes
// whichever flow the state was minted for.
func (h *Handler) ServeCallback(w http.ResponseWriter, r *http.Request) {
	p, ok := h.provider(w, r)
	if !ok {
		return
	}

	state := r.URL.Query().Get("state")
	if state == "" {
		uierrors.RenderForbidden(w, r, "This sign-in attempt is invalid or has expired. Try again.", "/login")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Medium())
	defer cancel()

	st, valid, err := h.States.Claim(ctx, p.Name(), state)
	if err != nil {
		h.ErrLog.LogServerError(w, r, "claim auth state failed", err, "A server error occurred.", "/login")
		return
	}
	if !valid {
		uierrors.RenderForbidden(w, r, "This sign-in attempt is invalid or has expired. Try again.", "/login")
		return
	}

	switch st.Flow {
	case authstate.FlowLogin:
		h.completeLogin(ctx, w, r, p, st)
	case authstate.FlowRegister:
		h.completeRegistration(ctx, w, r, p, st)
	case authstate.FlowLink:
		h.completeLink(ctx, w, r, p, st)
	default:
		h.ErrLog.LogServerError(w, r, "unknown auth flow", nil, "A server error occurred.", "/login")
	}
}

func (h *Handler) completeLogin(ctx context.Context, w http.ResponseWriter, r *http.Request, p providers.Provider, st *authstate.State) {
	u, err := p.CompleteLogin(ctx, r, st)
	if err != nil {
		h.fail(w, r, "complete provider login", err)
		return
	}

	if err := h.SessionMgr.SignIn(w, r, u); err != nil {
		h.ErrLog.LogServerError(w, r, "save session failed", err, "Unable to create session. Please try again.", "/login")
		return
	}

	h.AuditLog.LoginSuccess(ctx, r, u.ID, u.Username, p.Name())

	dest := urlutil.SafeReturn(st.ReturnURL, "", "/")
	http.Redirect(w, r, dest, http.StatusSeeOther)
}

func (h *Handler) completeRegistration(ctx context.Context, w http.ResponseWriter, r *http.Request, p providers.Provider, st *authstate.State) {
	c, err := p.CompleteRegistration(ctx, r, st)
	if err != nil {
		h.fail(w, r, "complete provider registration", err)
		return
	}

	// The invitation form finishes the registration; nothing has been
	// created yet.
	http.Redirect(w, r, "/confirm/"+url.PathEscape(c.Token), http.StatusSeeOther)
}

func (h *Handler) completeLink(ctx context.Context, w http.ResponseWriter, r *http.Request, p providers.Provider, st *authstate.State) {
	if err := p.CompleteLink(ctx, r, st); err != nil {
		h.fail(w, r, "complete provider link", err)
		return
	}

	if st.UserID != nil {
		h.AuditLog.ProviderLinked(ctx, r, *st.UserID, p.Name())
	}

	dest := urlutil.SafeReturn(st.ReturnURL, "", "/edit_profile")
	http.Redirect(w, r, dest, http.StatusSeeOther)
}
