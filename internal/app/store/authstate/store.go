// internal/app/store/authstate/store.go
package authstate

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Flow identifies which provider operation a begin/complete round trip
// belongs to. Stored with the state so the callback can dispatch without
// any in-process memory between the two requests.
type Flow string

const (
	FlowLogin    Flow = "login"
	FlowRegister Flow = "register"
	FlowLink     Flow = "link"
)

// DefaultExpiry bounds how long an abandoned round trip stays claimable.
const DefaultExpiry = 10 * time.Minute

// State correlates a provider begin with its complete. One-time use.
type State struct {
	State     string              `bson:"state"`
	Provider  string              `bson:"provider"`
	Flow      Flow                `bson:"flow"`
	UserID    *primitive.ObjectID `bson:"user_id,omitempty"` // link flow only
	ReturnURL string              `bson:"return_url,omitempty"`
	ExpiresAt time.Time           `bson:"expires_at"`
	CreatedAt time.Time           `bson:"created_at"`
}

// Store manages provider round-trip state tokens in MongoDB.
type Store struct {
	c *mongo.Collection
}

// New creates an auth state Store.
func New(db *mongo.Database) *Store {
	return &Store{c: db.Collection("auth_states")}
}

// EnsureIndexes creates indexes for lookup and TTL expiration.
func (s *Store) EnsureIndexes(ctx context.Context) error {
	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "state", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("idx_authstate_state"),
		},
		{
			Keys:    bson.D{{Key: "expires_at", Value: 1}},
			Options: options.Index().SetExpireAfterSeconds(0).SetName("idx_authstate_ttl"),
		},
	}
	_, err := s.c.Indexes().CreateMany(ctx, indexes)
	return err
}

// Begin stores a fresh state token for a provider round trip and returns
// it. The token is the only correlation between begin and complete, so
// restarted or horizontally scaled instances validate callbacks the same
// way.
func (s *Store) Begin(ctx context.Context, provider string, flow Flow, userID *primitive.ObjectID, returnURL string) (string, error) {
	state, err := generateState()
	if err != nil {
		return "", err
	}
	st := State{
		State:     state,
		Provider:  provider,
		Flow:      flow,
		UserID:    userID,
		ReturnURL: returnURL,
		ExpiresAt: time.Now().UTC().Add(DefaultExpiry),
		CreatedAt: time.Now().UTC(),
	}
	if _, err := s.c.InsertOne(ctx, st); err != nil {
		return "", err
	}
	return state, nil
}

// Claim validates and deletes a state token (one-time use). Returns the
// stored record, or valid=false when the state is unknown, expired, or
// belongs to a different provider.
func (s *Store) Claim(ctx context.Context, provider, state string) (*State, bool, error) {
	var st State
	err := s.c.FindOneAndDelete(ctx, bson.M{
		"state":      state,
		"provider":   provider,
		"expires_at": bson.M{"$gt": time.Now().UTC()},
	}).Decode(&st)

	if err == mongo.ErrNoDocuments {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return &st, true, nil
}

// CleanupExpired removes expired state tokens. Backup for when TTL index
// cleanup is delayed.
func (s *Store) CleanupExpired(ctx context.Context) (int64, error) {
	result, err := s.c.DeleteMany(ctx, bson.M{
		"expires_at": bson.M{"$lt": time.Now().UTC()},
	})
	if err != nil {
		return 0, err
	}
	return result.DeletedCount, nil
}

// generateState creates a cryptographically secure random state string.
func generateState() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.URLEncoding.EncodeToString(b), nil
}
