// internal/app/bootstrap/db.go
package bootstrap

import (
	"context"
	"fmt"

	"github.com/dalemusser/campushub/internal/app/store/authstate"
	"github.com/dalemusser/campushub/internal/app/store/confirmations"
	userstore "github.com/dalemusser/campushub/internal/app/store/users"
	"github.com/dalemusser/waffle/config"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.uber.org/zap"
)

// ConnectDB establishes the MongoDB connection used by the whole app.
//
// Pool sizes come from app config so deployments can tune them without
// a rebuild. The connection is verified with a ping before startup
// continues; a service that cannot reach its database should fail fast
// rather than serve errors.
func ConnectDB(ctx context.Context, coreCfg *config.CoreConfig, appCfg AppConfig, logger *zap.Logger) (DBDeps, error) {
	opts := options.Client().
		ApplyURI(appCfg.MongoURI).
		SetMaxPoolSize(appCfg.MongoMaxPoolSize).
		SetMinPoolSize(appCfg.MongoMinPoolSize)

	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return DBDeps{}, fmt.Errorf("connect to MongoDB: %w", err)
	}

	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(ctx)
		return DBDeps{}, fmt.Errorf("ping MongoDB: %w", err)
	}

	logger.Info("connected to MongoDB",
		zap.String("database", appCfg.MongoDatabase),
		zap.Uint64("max_pool_size", appCfg.MongoMaxPoolSize))

	return DBDeps{
		CampusHubMongoClient:   client,
		CampusHubMongoDatabase: client.Database(appCfg.MongoDatabase),
	}, nil
}

// EnsureSchema creates the indexes every collection relies on: the
// case-insensitive unique username, the one-time state lookup with its
// TTL reaper, and the invitation expiry index.
func EnsureSchema(ctx context.Context, coreCfg *config.CoreConfig, appCfg AppConfig, deps DBDeps, logger *zap.Logger) error {
	db := deps.CampusHubMongoDatabase

	users := userstore.New(db)
	if err := users.EnsureIndexes(ctx); err != nil {
		return fmt.Errorf("ensure user indexes: %w", err)
	}

	confs := confirmations.New(db, users, appCfg.ConfirmationExpiry, logger)
	if err := confs.EnsureIndexes(ctx); err != nil {
		return fmt.Errorf("ensure confirmation indexes: %w", err)
	}

	states := authstate.New(db)
	if err := states.EnsureIndexes(ctx); err != nil {
		return fmt.Errorf("ensure auth state indexes: %w", err)
	}

	logger.Info("database schema ensured")
	return nil
}
