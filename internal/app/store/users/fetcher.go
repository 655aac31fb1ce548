// internal/app/store/users/fetcher.go
package userstore

import (
	"context"

	"github.com/dalemusser/campushub/internal/app/system/auth"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

// Fetcher adapts the user store to auth.UserFetcher so the session
// middleware re-reads the user record on each request. Role changes and
// deletions take effect immediately instead of living on in the cookie.
type Fetcher struct {
	store *Store
}

// NewFetcher builds a Fetcher over the users collection.
func NewFetcher(db *mongo.Database) *Fetcher {
	return &Fetcher{store: New(db)}
}

// FetchSessionUser resolves a session's user id hex to fresh user data.
func (f *Fetcher) FetchSessionUser(ctx context.Context, userID string) (*auth.SessionUser, error) {
	oid, err := primitive.ObjectIDFromHex(userID)
	if err != nil {
		return nil, err
	}
	u, err := f.store.GetByID(ctx, oid)
	if err != nil {
		return nil, err
	}
	return &auth.SessionUser{
		ID:       u.ID.Hex(),
		Username: u.Username,
		Name:     u.FullName(),
		Role:     string(u.Role),
		CampusID: u.CampusID,
	}, nil
}
