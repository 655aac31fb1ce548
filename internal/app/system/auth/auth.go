// internal/app/system/auth/auth.go
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/dalemusser/campushub/internal/domain/models"
	"github.com/gorilla/sessions"
	"go.uber.org/zap"
)

// Session value keys. The whole session lives client-side inside the
// signed cookie; the signature is the store of truth, not a server-side
// table.
const (
	isAuthKey   = "is_authenticated"
	userIDKey   = "user_id"
	issuedAtKey = "issued_at"
)

// ErrAuthRequired is returned by RequireUsername when no signed-in user
// is attached to the request. It is distinct from a generic not-found so
// the boundary can redirect to login rather than render a 404.
var ErrAuthRequired = errors.New("authentication required")

// SessionUser is what gets injected into r.Context() for signed-in
// requests.
type SessionUser struct {
	ID       string
	Username string
	Name     string
	Role     string
	CampusID string
}

// UserFetcher loads fresh user data for a session's user id on each
// request, so role changes and deletions take effect immediately.
type UserFetcher interface {
	FetchSessionUser(ctx context.Context, userID string) (*SessionUser, error)
}

type ctxKey string

const currentUserKey ctxKey = "currentUser"

// SessionManager issues, reads, and invalidates the signed session
// cookie binding a request to a user id.
type SessionManager struct {
	store   *sessions.CookieStore
	name    string
	log     *zap.Logger
	fetcher UserFetcher
	maxAge  time.Duration // 0 = sessions do not expire server-side
}

// NewSessionManager builds a SessionManager around a cookie store signed
// with sessionKey. The `secure` flag controls whether cookies are marked
// Secure; in local dev over http://localhost use secure=false so cookies
// are accepted.
func NewSessionManager(sessionKey, cookieName, domain string, secure bool, logger *zap.Logger) (*SessionManager, error) {
	if sessionKey == "" {
		return nil, fmt.Errorf("session key is empty; provide ≥32 random chars")
	}
	if len(sessionKey) < 32 {
		logger.Warn("session key is short; 32+ chars recommended",
			zap.Int("length", len(sessionKey)))
	}

	store := sessions.NewCookieStore([]byte(sessionKey))
	opts := &sessions.Options{
		Domain:   domain,
		Path:     "/",
		Secure:   secure,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	}
	store.Options = opts

	logger.Info("session store initialized",
		zap.Bool("secure", secure),
		zap.String("domain", domain))

	return &SessionManager{store: store, name: cookieName, log: logger}, nil
}

// SetUserFetcher installs the fetcher used by LoadSessionUser to resolve
// fresh user data on each request.
func (m *SessionManager) SetUserFetcher(f UserFetcher) { m.fetcher = f }

// SetMaxAge sets the optional session lifetime checked against the
// issuance time recorded in the cookie. Zero disables the check.
func (m *SessionManager) SetMaxAge(d time.Duration) { m.maxAge = d }

// Store exposes the underlying cookie store (used by logout to build a
// deletion cookie with matching options).
func (m *SessionManager) Store() *sessions.CookieStore { return m.store }

// GetSession returns the request's session, or a fresh one alongside the
// decode error when the cookie is missing or fails its integrity check.
func (m *SessionManager) GetSession(r *http.Request) (*sessions.Session, error) {
	return m.store.Get(r, m.name)
}

// SignIn mints a session for the user: sets the authenticated state and
// user id in the cookie and writes it. The only side effect is the
// returned cookie; there is no server-side record to clean up.
func (m *SessionManager) SignIn(w http.ResponseWriter, r *http.Request, u *models.User) error {
	sess, err := m.GetSession(r)
	if err != nil {
		// Decode failures just mean we start from a fresh session.
		m.log.Warn("session cookie invalid, using fresh session",
			zap.Error(err), zap.String("user_id", u.ID.Hex()))
	}

	sess.Values[isAuthKey] = true
	sess.Values[userIDKey] = u.ID.Hex()
	sess.Values[issuedAtKey] = time.Now().UTC().Unix()

	if err := sess.Save(r, w); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

// SignOut instructs the client to discard the session cookie. Because
// the token is self-contained there is nothing to revoke server-side.
func (m *SessionManager) SignOut(w http.ResponseWriter, r *http.Request) error {
	sess, err := m.GetSession(r)
	if err != nil {
		m.log.Warn("session decode failed during sign-out", zap.Error(err))
	}

	if opts := m.store.Options; opts != nil {
		sess.Options.Domain = opts.Domain
		sess.Options.Path = opts.Path
		sess.Options.Secure = opts.Secure
		sess.Options.HttpOnly = opts.HttpOnly
		sess.Options.SameSite = opts.SameSite
	}
	sess.Options.MaxAge = -1 // delete immediately

	return sess.Save(r, w)
}

// ResolveUserID extracts the authenticated user id from the request's
// session cookie. It returns ok=false on a missing, malformed, expired,
// or integrity-check-failed cookie without distinguishing why.
func (m *SessionManager) ResolveUserID(r *http.Request) (string, bool) {
	sess, err := m.GetSession(r)
	if err != nil {
		return "", false
	}
	if isAuth, _ := sess.Values[isAuthKey].(bool); !isAuth {
		return "", false
	}
	id, _ := sess.Values[userIDKey].(string)
	if id == "" {
		return "", false
	}
	if m.maxAge > 0 {
		issued, _ := sess.Values[issuedAtKey].(int64)
		if issued == 0 || time.Since(time.Unix(issued, 0)) > m.maxAge {
			return "", false
		}
	}
	return id, true
}

// CurrentUser returns the user injected by LoadSessionUser and a found
// flag.
func CurrentUser(r *http.Request) (*SessionUser, bool) {
	u, ok := r.Context().Value(currentUserKey).(*SessionUser)
	return u, ok
}

// RequireUsername returns the signed-in user's username, or
// ErrAuthRequired when the request is anonymous.
func RequireUsername(r *http.Request) (string, error) {
	u, ok := CurrentUser(r)
	if !ok {
		return "", ErrAuthRequired
	}
	return u.Username, nil
}

// LoadSessionUser injects the user into context if they are signed in.
// With a fetcher installed the user record is re-read on each request;
// a vanished or unfetchable user downgrades the request to anonymous.
func (m *SessionManager) LoadSessionUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, ok := m.ResolveUserID(r)
		if !ok {
			next.ServeHTTP(w, r)
			return
		}

		if m.fetcher != nil {
			u, err := m.fetcher.FetchSessionUser(r.Context(), id)
			if err != nil {
				next.ServeHTTP(w, r)
				return
			}
			r = withUser(r, u)
		} else {
			r = withUser(r, &SessionUser{ID: id})
		}
		next.ServeHTTP(w, r)
	})
}

// RequireSignedIn ensures there is a user in context (set by
// LoadSessionUser). Anonymous HTML requests are redirected to
// /login?return=...; API callers get a plain 401.
func (m *SessionManager) RequireSignedIn(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := CurrentUser(r); ok {
			next.ServeHTTP(w, r)
			return
		}

		if wantsHTML(r) {
			ret := url.QueryEscape(r.URL.RequestURI())
			http.Redirect(w, r, "/login?return="+ret, http.StatusSeeOther)
			return
		}
		http.Error(w, "unauthorized", http.StatusUnauthorized)
	})
}

// RequireRole ensures there is a signed-in user with one of the allowed
// roles in context.
func (m *SessionManager) RequireRole(allowed ...string) func(http.Handler) http.Handler {
	set := make(map[string]struct{}, len(allowed))
	for _, role := range allowed {
		set[strings.ToLower(strings.TrimSpace(role))] = struct{}{}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			u, ok := CurrentUser(r)
			if !ok {
				if wantsHTML(r) {
					ret := url.QueryEscape(r.URL.RequestURI())
					http.Redirect(w, r, "/login?return="+ret, http.StatusSeeOther)
					return
				}
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			if _, has := set[strings.ToLower(u.Role)]; !has {
				if wantsHTML(r) {
					http.Redirect(w, r, "/forbidden", http.StatusSeeOther)
					return
				}
				http.Error(w, "forbidden", http.StatusForbidden)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// WithTestUser injects a user into the request context directly,
// bypassing the session middleware. Test helper.
func WithTestUser(r *http.Request, u *SessionUser) *http.Request {
	return withUser(r, u)
}

// helpers

func withUser(r *http.Request, u *SessionUser) *http.Request {
	return r.WithContext(context.WithValue(r.Context(), currentUserKey, u))
}

func wantsHTML(r *http.Request) bool {
	return strings.Contains(r.Header.Get("Accept"), "text/html")
}
