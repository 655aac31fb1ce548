// internal/app/store/confirmations/store.go
package confirmations

import (
	"context"
	"errors"
	"fmt"
	"time"

	userstore "github.com/dalemusser/campushub/internal/app/store/users"
	"github.com/dalemusser/campushub/internal/domain/models"
	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

const (
	// DefaultExpiry is how long an invitation is valid.
	DefaultExpiry = 7 * 24 * time.Hour
	// consumedRetention keeps consumed records around for audit before
	// the TTL index reaps them.
	consumedRetention = 30 * 24 * time.Hour
)

var (
	// ErrNotFound is returned when a confirmation does not exist, has
	// expired, or was already consumed. Callers cannot distinguish the
	// three cases; that is deliberate (prevents token enumeration).
	ErrNotFound = errors.New("confirmation not found")
	// ErrTargetMissing is returned when a link-mode confirmation's
	// target user no longer exists. Should not happen; handled anyway.
	ErrTargetMissing = errors.New("confirmation target user missing")
)

// Store manages invitation records and their atomic consumption.
type Store struct {
	c      *mongo.Collection
	users  *userstore.Store
	expiry time.Duration
	log    *zap.Logger
}

// New creates a Store with the specified default expiry for new records.
// If expiry is 0 or negative, DefaultExpiry is used.
func New(db *mongo.Database, users *userstore.Store, expiry time.Duration, logger *zap.Logger) *Store {
	if expiry <= 0 {
		expiry = DefaultExpiry
	}
	return &Store{
		c:      db.Collection("confirmations"),
		users:  users,
		expiry: expiry,
		log:    logger,
	}
}

// EnsureIndexes creates the TTL index that reaps expired and old
// consumed records. Expired-but-unreaped rows are already invisible to
// Get, so TTL lag is harmless.
func (s *Store) EnsureIndexes(ctx context.Context) error {
	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "reap_at", Value: 1}},
			Options: options.Index().SetName("idx_confirmations_reap_ttl").SetExpireAfterSeconds(0),
		},
		{
			Keys:    bson.D{{Key: "user_id", Value: 1}},
			Options: options.Index().SetName("idx_confirmations_user").SetSparse(true),
		},
	}
	_, err := s.c.Indexes().CreateMany(ctx, indexes)
	return err
}

// confirmationDoc wraps the model with the TTL field. reap_at trails
// expires_at so consumed records stay readable for audit.
type confirmationDoc struct {
	models.Confirmation `bson:",inline"`
	ReapAt              time.Time `bson:"reap_at"`
}

// Create inserts a new invitation record. A missing token is assigned a
// fresh 128-bit random uuid; missing timestamps get now/now+expiry.
func (s *Store) Create(ctx context.Context, c models.Confirmation) (models.Confirmation, error) {
	now := time.Now().UTC()
	if c.Token == "" {
		c.Token = uuid.NewString()
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = now
	}
	if c.ExpiresAt.IsZero() {
		c.ExpiresAt = c.CreatedAt.Add(s.expiry)
	}
	if !c.ExpiresAt.After(c.CreatedAt) {
		return models.Confirmation{}, errors.New("expires_at must be after created_at")
	}
	c.Consumed = false
	c.ConsumedAt = nil

	doc := confirmationDoc{Confirmation: c, ReapAt: c.ExpiresAt.Add(consumedRetention)}
	if _, err := s.c.InsertOne(ctx, doc); err != nil {
		return models.Confirmation{}, fmt.Errorf("insert confirmation: %w", err)
	}
	return c, nil
}

// Get returns the pending confirmation for a token. Absent, expired, and
// consumed records all come back as ErrNotFound. Side-effect free.
func (s *Store) Get(ctx context.Context, token string) (*models.Confirmation, error) {
	var c models.Confirmation
	err := s.c.FindOne(ctx, bson.M{
		"_id":        token,
		"consumed":   false,
		"expires_at": bson.M{"$gt": time.Now().UTC()},
	}).Decode(&c)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &c, nil
}

// consume flips consumed false→true with a compare-and-set, so two
// racing submissions on the same token get exactly one winner. Returns
// the confirmation as it was before consumption.
func (s *Store) consume(ctx context.Context, token string) (*models.Confirmation, error) {
	now := time.Now().UTC()
	var c models.Confirmation
	err := s.c.FindOneAndUpdate(ctx,
		bson.M{
			"_id":        token,
			"consumed":   false,
			"expires_at": bson.M{"$gt": now},
		},
		bson.M{"$set": bson.M{"consumed": true, "consumed_at": now}},
	).Decode(&c)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &c, nil
}

// unconsume rolls the consumed flag back after a failed paired effect.
// Only the consume/create sequence below may call it.
func (s *Store) unconsume(ctx context.Context, token string) {
	_, err := s.c.UpdateOne(ctx,
		bson.M{"_id": token, "consumed": true},
		bson.M{"$set": bson.M{"consumed": false}, "$unset": bson.M{"consumed_at": ""}},
	)
	if err != nil {
		s.log.Error("confirmation consume rollback failed",
			zap.String("token", token), zap.Error(err))
	}
}

// CreateUserAndConsume atomically consumes the token and creates the
// user record. Exactly one of N racing calls wins the compare-and-set;
// losers get ErrNotFound. If the user insert fails after the win, the
// flag is rolled back so the invitation is not burned without producing
// an owner.
func (s *Store) CreateUserAndConsume(ctx context.Context, token string, u models.User) (*models.User, error) {
	if _, err := s.consume(ctx, token); err != nil {
		return nil, err
	}

	created, err := s.users.Create(ctx, u)
	if err != nil {
		s.unconsume(ctx, token)
		return nil, fmt.Errorf("create user for confirmation: %w", err)
	}
	return &created, nil
}

// LinkAndConsume atomically consumes the token and applies the
// invitation's grant (role and/or provider identity) to the target
// user. Returns ErrTargetMissing if the target vanished; the token
// stays consumed in that case, since the grant can never be applied.
// Any other grant failure rolls the consumed flag back so the token
// can be retried; both grant writes are idempotent $set updates, so a
// retry after a partial application is safe.
func (s *Store) LinkAndConsume(ctx context.Context, token string) error {
	c, err := s.consume(ctx, token)
	if err != nil {
		return err
	}
	if c.UserID == nil {
		s.unconsume(ctx, token)
		return fmt.Errorf("confirmation %s has no target user", token)
	}

	if c.Provider != "" && c.ProviderSubject != "" {
		if err := s.users.LinkProviderIdentity(ctx, *c.UserID, c.Provider, c.ProviderSubject); err != nil {
			if errors.Is(err, userstore.ErrNotFound) {
				return ErrTargetMissing
			}
			s.unconsume(ctx, token)
			return err
		}
	}
	if c.Role != "" {
		if err := s.users.UpdateRole(ctx, *c.UserID, c.Role); err != nil {
			if errors.Is(err, userstore.ErrNotFound) {
				return ErrTargetMissing
			}
			s.unconsume(ctx, token)
			return err
		}
	}
	return nil
}
