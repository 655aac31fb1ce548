package testutil

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/dalemusser/campushub/internal/domain/models"
	"github.com/dalemusser/waffle/pantry/text"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"golang.org/x/crypto/bcrypt"
)

// WithChiURLParam adds a chi URL parameter to the request context.
// Use this in handler tests that need to access chi.URLParam values.
func WithChiURLParam(r *http.Request, key, value string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add(key, value)
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

// Fixtures provides helper methods for creating test data.
type Fixtures struct {
	db *mongo.Database
	t  *testing.T
}

// NewFixtures creates a new Fixtures instance for the given test database.
func NewFixtures(t *testing.T, db *mongo.Database) *Fixtures {
	t.Helper()
	return &Fixtures{db: db, t: t}
}

// DB returns the underlying database for direct access in tests.
func (f *Fixtures) DB() *mongo.Database {
	return f.db
}

// CreateUser creates a test user with a password credential.
func (f *Fixtures) CreateUser(ctx context.Context, username, firstName, lastName string, role models.Role, password string) models.User {
	f.t.Helper()

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		f.t.Fatalf("failed to hash test password: %v", err)
	}
	hashStr := string(hash)

	now := time.Now().UTC()
	user := models.User{
		ID:           primitive.NewObjectID(),
		Username:     username,
		UsernameCI:   text.Fold(username),
		FirstName:    firstName,
		LastName:     lastName,
		Role:         role,
		AuthMethod:   models.AuthMethodPassword,
		PasswordHash: &hashStr,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	_, err = f.db.Collection("users").InsertOne(ctx, user)
	if err != nil {
		f.t.Fatalf("failed to create test user: %v", err)
	}

	return user
}

// CreateProviderUser creates a test user whose only credential is an
// external provider identity.
func (f *Fixtures) CreateProviderUser(ctx context.Context, username, firstName, lastName string, role models.Role, provider, subject string) models.User {
	f.t.Helper()

	now := time.Now().UTC()
	user := models.User{
		ID:                 primitive.NewObjectID(),
		Username:           username,
		UsernameCI:         text.Fold(username),
		FirstName:          firstName,
		LastName:           lastName,
		Role:               role,
		AuthMethod:         provider,
		ProviderIdentities: map[string]string{provider: subject},
		CreatedAt:          now,
		UpdatedAt:          now,
	}

	_, err := f.db.Collection("users").InsertOne(ctx, user)
	if err != nil {
		f.t.Fatalf("failed to create test provider user: %v", err)
	}

	return user
}

// CreateConfirmation creates a pending create-mode invitation.
func (f *Fixtures) CreateConfirmation(ctx context.Context, name, username string, role models.Role) models.Confirmation {
	f.t.Helper()

	now := time.Now().UTC()
	c := models.Confirmation{
		Token:     uuid.NewString(),
		Mode:      models.ConfirmationCreatesUser,
		Name:      name,
		Username:  username,
		Role:      role,
		CreatedAt: now,
		ExpiresAt: now.Add(24 * time.Hour),
	}

	f.insertConfirmation(ctx, c)
	return c
}

// CreateLinkConfirmation creates a pending link-mode invitation granting
// a role and/or provider identity to an existing user.
func (f *Fixtures) CreateLinkConfirmation(ctx context.Context, userID primitive.ObjectID, role models.Role, provider, subject string) models.Confirmation {
	f.t.Helper()

	now := time.Now().UTC()
	c := models.Confirmation{
		Token:           uuid.NewString(),
		Mode:            models.ConfirmationLinksExisting,
		Role:            role,
		Provider:        provider,
		ProviderSubject: subject,
		UserID:          &userID,
		CreatedAt:       now,
		ExpiresAt:       now.Add(24 * time.Hour),
	}

	f.insertConfirmation(ctx, c)
	return c
}

// CreateExpiredConfirmation creates an invitation whose expiry is in
// the past.
func (f *Fixtures) CreateExpiredConfirmation(ctx context.Context, name, username string, role models.Role) models.Confirmation {
	f.t.Helper()

	now := time.Now().UTC()
	c := models.Confirmation{
		Token:     uuid.NewString(),
		Mode:      models.ConfirmationCreatesUser,
		Name:      name,
		Username:  username,
		Role:      role,
		CreatedAt: now.Add(-48 * time.Hour),
		ExpiresAt: now.Add(-24 * time.Hour),
	}

	f.insertConfirmation(ctx, c)
	return c
}

func (f *Fixtures) insertConfirmation(ctx context.Context, c models.Confirmation) {
	f.t.Helper()

	doc := struct {
		models.Confirmation `bson:",inline"`
		ReapAt              time.Time `bson:"reap_at"`
	}{Confirmation: c, ReapAt: c.ExpiresAt.Add(30 * 24 * time.Hour)}

	if _, err := f.db.Collection("confirmations").InsertOne(ctx, doc); err != nil {
		f.t.Fatalf("failed to create test confirmation: %v", err)
	}
}
