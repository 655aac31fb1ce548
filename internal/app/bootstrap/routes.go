// internal/app/bootstrap/routes.go
package bootstrap

import (
	"net/http"

	authflowfeature "github.com/dalemusser/campushub/internal/app/features/authflow"
	confirmfeature "github.com/dalemusser/campushub/internal/app/features/confirm"
	errorsfeature "github.com/dalemusser/campushub/internal/app/features/errors"
	healthfeature "github.com/dalemusser/campushub/internal/app/features/health"
	homefeature "github.com/dalemusser/campushub/internal/app/features/home"
	loginfeature "github.com/dalemusser/campushub/internal/app/features/login"
	logoutfeature "github.com/dalemusser/campushub/internal/app/features/logout"
	profilefeature "github.com/dalemusser/campushub/internal/app/features/profile"
	"github.com/dalemusser/campushub/internal/app/providers"
	"github.com/dalemusser/campushub/internal/app/providers/cas"
	"github.com/dalemusser/campushub/internal/app/providers/google"
	"github.com/dalemusser/campushub/internal/app/store/authstate"
	"github.com/dalemusser/campushub/internal/app/store/confirmations"
	userstore "github.com/dalemusser/campushub/internal/app/store/users"
	"github.com/dalemusser/campushub/internal/app/system/auditlog"
	"github.com/dalemusser/campushub/internal/app/system/auth"
	"github.com/dalemusser/campushub/internal/app/system/confirmflow"
	"github.com/dalemusser/waffle/config"
	"github.com/dalemusser/waffle/pantry/fileserver"
	"github.com/dalemusser/waffle/pantry/templates"
	"github.com/go-chi/chi/v5"
	"github.com/gorilla/csrf"
	"go.uber.org/zap"
)

// BuildHandler constructs the root HTTP handler (router) for this WAFFLE app.
//
// WAFFLE calls this after configuration, DB connections, schema setup, and
// any Startup hooks have completed. At this point you have access to:
//   - coreCfg: WAFFLE core configuration (ports, env, timeouts, etc.)
//   - appCfg: app-specific configuration defined in AppConfig
//   - deps: any DB or backend clients bundled in DBDeps
//   - logger: the fully configured zap.Logger for this app
//
// CampusHub initializes the template engine, builds the stores and the
// identity-provider registry, applies session and CSRF middleware, and
// mounts feature routers: home, login/logout, invitation confirmation,
// provider round trips, and profiles.
func BuildHandler(coreCfg *config.CoreConfig, appCfg AppConfig, deps DBDeps, logger *zap.Logger) (http.Handler, error) {
	// Create the session manager using app config.
	// Secure cookies are enabled in production mode.
	secure := coreCfg.Env == "prod"
	sessionMgr, err := auth.NewSessionManager(appCfg.SessionKey, appCfg.SessionName, appCfg.SessionDomain, secure, logger)
	if err != nil {
		logger.Error("session manager init failed", zap.Error(err))
		return nil, err
	}

	db := deps.CampusHubMongoDatabase

	// Set up the UserFetcher so LoadSessionUser fetches fresh user data on each request.
	// This ensures role changes and profile updates take effect immediately.
	sessionMgr.SetUserFetcher(userstore.NewFetcher(db))

	// Initialize and boot the template engine once at startup.
	// Dev mode enables template reloading for faster iteration.
	eng := templates.New(coreCfg.Env == "dev")
	if err := eng.Boot(logger); err != nil {
		logger.Error("template engine boot failed", zap.Error(err))
		return nil, err
	}
	templates.UseEngine(eng, logger)

	// Create error logger for handlers.
	errLog := errorsfeature.NewErrorLogger(logger)

	// Audit trail for sign-ins and consumed invitations.
	audit := auditlog.New(db, logger)

	// Stores.
	users := userstore.New(db)
	confs := confirmations.New(db, users, appCfg.ConfirmationExpiry, logger)
	states := authstate.New(db)

	// Invitation engine.
	engine := confirmflow.New(confs, logger)

	// Identity providers. Each registers only when configured, so a
	// deployment without campus SSO or Google simply has no such links.
	registry := providers.NewRegistry()
	if appCfg.CASServerURL != "" {
		casProvider := cas.New(appCfg.CASServerURL, appCfg.BaseURL, states, users, confs, logger)
		if err := registry.Register(casProvider); err != nil {
			return nil, err
		}
		logger.Info("registered identity provider", zap.String("provider", cas.ServiceName))
	}
	if appCfg.GoogleClientID != "" {
		googleProvider := google.New(appCfg.GoogleClientID, appCfg.GoogleClientSecret, appCfg.BaseURL, states, users, confs, logger)
		if err := registry.Register(googleProvider); err != nil {
			return nil, err
		}
		logger.Info("registered identity provider", zap.String("provider", google.ServiceName))
	}

	r := chi.NewRouter()

	// Global auth middleware: loads SessionUser into context if logged in.
	// This makes the current user available to all handlers via auth.CurrentUser(r).
	r.Use(sessionMgr.LoadSessionUser)

	// CSRF protection for all form posts. Provider callbacks are GET
	// requests, so the round trips are unaffected.
	r.Use(csrf.Protect(
		[]byte(appCfg.CSRFKey),
		csrf.Secure(secure),
		csrf.Path("/"),
	))

	// Health check endpoint for load balancers and orchestrators
	healthHandler := healthfeature.NewHandler(deps.CampusHubMongoClient, logger)
	r.Mount("/health", healthfeature.Routes(healthHandler))

	// Static assets with pre-compressed file support (gzip/brotli)
	r.Handle("/static/*", fileserver.Handler("/static", "public"))

	// Public pages
	homeHandler := homefeature.NewHandler(logger)
	r.Mount("/", homefeature.Routes(homeHandler))

	// Authentication
	loginHandler := loginfeature.NewHandler(users, sessionMgr, errLog, audit, registry, logger)
	r.Mount("/login", loginfeature.Routes(loginHandler))

	logoutHandler := logoutfeature.NewHandler(sessionMgr, logger)
	r.Mount("/logout", logoutfeature.Routes(logoutHandler))

	// Identity-provider round trips
	authflowHandler := authflowfeature.NewHandler(registry, states, sessionMgr, errLog, audit, logger)
	r.Mount("/auth", authflowfeature.Routes(authflowHandler))

	// Invitation confirmation
	confirmHandler := confirmfeature.NewHandler(engine, sessionMgr, errLog, audit, logger)
	r.Mount("/confirm", confirmfeature.Routes(confirmHandler))

	// Profiles
	profileHandler := profilefeature.NewHandler(users, errLog, logger)
	r.Mount("/user", profilefeature.PublicRoutes(profileHandler))
	r.Mount("/edit_profile", profilefeature.EditRoutes(profileHandler, sessionMgr))

	// Error pages
	errorsHandler := errorsfeature.NewHandler()
	r.Get("/forbidden", errorsHandler.Forbidden)
	r.Get("/unauthorized", errorsHandler.Unauthorized)

	return r, nil
}
