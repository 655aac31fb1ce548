// internal/app/bootstrap/startup.go
package bootstrap

import (
	"context"

	"github.com/dalemusser/campushub/internal/app/resources"
	"github.com/dalemusser/campushub/internal/app/store/authstate"
	"github.com/dalemusser/waffle/config"
	"go.uber.org/zap"
)

// Startup runs one-time application initialization after DB connections and
// schema setup are complete, but before the HTTP handler is built. It is the
// place to load shared resources (like templates), warm caches, or perform
// any app-wide setup that depends on config and backends.
func Startup(ctx context.Context, coreCfg *config.CoreConfig, appCfg AppConfig, deps DBDeps, logger *zap.Logger) error {
	resources.LoadSharedTemplates()

	// Sweep leftover provider round-trip state from before the restart.
	// The TTL index handles steady-state expiry.
	states := authstate.New(deps.CampusHubMongoDatabase)
	if removed, err := states.CleanupExpired(ctx); err != nil {
		logger.Warn("auth state cleanup failed", zap.Error(err))
	} else if removed > 0 {
		logger.Info("removed expired auth states", zap.Int64("count", removed))
	}

	return nil
}
