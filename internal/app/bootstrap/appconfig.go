// internal/app/bootstrap/appconfig.go
package bootstrap

import "time"

// AppConfig holds service-specific configuration for this WAFFLE app.
//
// These values come from environment variables, configuration files, or
// command-line flags (loaded in LoadConfig). They represent *app-level*
// configuration, not WAFFLE core configuration.
//
// WAFFLE's CoreConfig handles framework-level settings like HTTP/HTTPS
// ports, TLS, logging level, and request limits. AppConfig is where
// everything specific to CampusHub lives: the Mongo connection, session
// and CSRF secrets, identity-provider credentials, and invitation
// lifetimes.
type AppConfig struct {
	// MongoDB connection configuration
	MongoURI         string // MongoDB connection string (e.g., mongodb://localhost:27017)
	MongoDatabase    string // Database name within MongoDB
	MongoMaxPoolSize uint64 // Max connections in the driver pool
	MongoMinPoolSize uint64 // Min connections kept warm in the pool

	// Session management configuration
	SessionKey    string // Secret key for signing session cookies (must be strong in production)
	SessionName   string // Cookie name for sessions (default: campushub-session)
	SessionDomain string // Cookie domain (blank means current host)

	// CSRF protection
	CSRFKey string // Secret key for CSRF tokens (32 bytes; must be strong in production)

	// Base URL used to build provider callback URLs
	BaseURL string // e.g., "https://campushub.example.edu" or "http://localhost:3000"

	// CAS single sign-on (campus accounts). Blank disables the provider.
	CASServerURL string // e.g., "https://cas.example.edu/cas"

	// Google OAuth configuration. Blank client ID disables the provider.
	GoogleClientID     string
	GoogleClientSecret string

	// Invitation settings
	ConfirmationExpiry time.Duration // How long an unconsumed invitation stays valid
}
