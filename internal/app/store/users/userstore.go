// internal/app/store/users/userstore.go
package userstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dalemusser/campushub/internal/app/system/normalize"
	"github.com/dalemusser/campushub/internal/domain/models"
	wafflemongo "github.com/dalemusser/waffle/pantry/mongo"
	"github.com/dalemusser/waffle/pantry/text"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

var (
	// ErrNotFound is returned when no user matches the lookup.
	ErrNotFound = errors.New("user not found")
	// ErrDuplicateUsername is returned when attempting to create a user
	// with a username that already exists.
	ErrDuplicateUsername = errors.New("a user with this username already exists")
	// ErrAffiliationRequired is returned when a role change is refused
	// because the stored record carries no campus ID.
	ErrAffiliationRequired = errors.New("role requires a campus id")

	errBadRole        = errors.New(`role must be "external"|"student"|"faculty"|"alumn"|"coordinator"`)
	errCampusIDNeeded = errors.New("student/faculty must have campus_id")
)

type Store struct {
	c *mongo.Collection
}

func New(db *mongo.Database) *Store {
	return &Store{c: db.Collection("users")}
}

// EnsureIndexes creates the unique username index and the provider
// identity lookup index.
func (s *Store) EnsureIndexes(ctx context.Context) error {
	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "username_ci", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("idx_users_username_ci"),
		},
		{
			Keys:    bson.D{{Key: "campus_id", Value: 1}},
			Options: options.Index().SetName("idx_users_campus_id").SetSparse(true),
		},
	}
	_, err := s.c.Indexes().CreateMany(ctx, indexes)
	return err
}

// GetByID loads a user by ObjectID.
func (s *Store) GetByID(ctx context.Context, id primitive.ObjectID) (*models.User, error) {
	var u models.User
	if err := s.c.FindOne(ctx, bson.M{"_id": id}).Decode(&u); err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &u, nil
}

// GetByUsername looks up a user by case-insensitive username.
func (s *Store) GetByUsername(ctx context.Context, username string) (*models.User, error) {
	var u models.User
	if err := s.c.FindOne(ctx, bson.M{"username_ci": text.Fold(username)}).Decode(&u); err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &u, nil
}

// GetByProviderIdentity looks up the user holding a provider's external
// subject, e.g. the account linked to CAS NetID "lovela3".
func (s *Store) GetByProviderIdentity(ctx context.Context, provider, subject string) (*models.User, error) {
	var u models.User
	filter := bson.M{"provider_identities." + provider: subject}
	if err := s.c.FindOne(ctx, filter).Decode(&u); err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &u, nil
}

// Create inserts a new user after normalizing & validating fields.
// The ID is assigned here and immutable afterwards.
func (s *Store) Create(ctx context.Context, u models.User) (models.User, error) {
	u.ID = primitive.NewObjectID()
	u.FirstName = normalize.Name(u.FirstName)
	u.LastName = normalize.Name(u.LastName)
	u.Username = normalize.Username(u.Username)
	u.UsernameCI = text.Fold(u.Username)
	u.CampusID = normalize.CampusID(u.CampusID)

	if u.Username == "" {
		return models.User{}, errors.New("username is required")
	}
	if !models.IsValidRole(string(u.Role)) {
		return models.User{}, errBadRole
	}

	// Students and faculty must carry an institutional affiliation.
	if u.Role.RequiresCampusID() && u.CampusID == "" {
		return models.User{}, errCampusIDNeeded
	}

	now := time.Now()
	u.CreatedAt = now
	u.UpdatedAt = now

	if _, err := s.c.InsertOne(ctx, u); err != nil {
		if wafflemongo.IsDup(err) {
			return models.User{}, ErrDuplicateUsername
		}
		return models.User{}, fmt.Errorf("insert user: %w", err)
	}
	return u, nil
}

// ProfileUpdate holds the fields a profile edit may change.
type ProfileUpdate struct {
	FirstName string
	LastName  string
	Role      models.Role
	Cohort    *int
}

// UpdateProfile applies a profile edit and returns the updated user.
// Returns ErrNotFound if the user vanished between resolution and write.
// Role transition legality is the caller's responsibility (rolepolicy);
// the affiliation invariant is re-checked here so no write can violate it.
func (s *Store) UpdateProfile(ctx context.Context, id primitive.ObjectID, upd ProfileUpdate) (*models.User, error) {
	if !models.IsValidRole(string(upd.Role)) {
		return nil, errBadRole
	}

	filter := bson.M{"_id": id}
	if upd.Role.RequiresCampusID() {
		// Refuse the write unless the stored record carries a campus ID.
		filter["campus_id"] = bson.M{"$nin": bson.A{nil, ""}}
	}

	set := bson.M{
		"first_name": normalize.Name(upd.FirstName),
		"last_name":  normalize.Name(upd.LastName),
		"role":       upd.Role,
		"updated_at": time.Now(),
	}
	update := bson.M{"$set": set}
	if upd.Cohort != nil {
		set["cohort"] = *upd.Cohort
	} else {
		update["$unset"] = bson.M{"cohort": ""}
	}

	var u models.User
	err := s.c.FindOneAndUpdate(ctx, filter, update,
		options.FindOneAndUpdate().SetReturnDocument(options.After)).Decode(&u)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &u, nil
}

// LinkProviderIdentity attaches an external identity (provider service
// name + asserted subject) to an existing user. A single conditional
// update, so a failed provider round trip can never leave a half-linked
// state.
func (s *Store) LinkProviderIdentity(ctx context.Context, id primitive.ObjectID, provider, subject string) error {
	res, err := s.c.UpdateOne(ctx,
		bson.M{"_id": id},
		bson.M{"$set": bson.M{
			"provider_identities." + provider: subject,
			"updated_at":                      time.Now(),
		}},
	)
	if err != nil {
		return fmt.Errorf("link provider identity: %w", err)
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdateRole sets the user's role. Confirmation grants bypass the
// self-service transition table but not the affiliation invariant: a
// role requiring a campus ID yields ErrAffiliationRequired when the
// record has none.
func (s *Store) UpdateRole(ctx context.Context, id primitive.ObjectID, role models.Role) error {
	if !models.IsValidRole(string(role)) {
		return errBadRole
	}
	filter := bson.M{"_id": id}
	if role.RequiresCampusID() {
		filter["campus_id"] = bson.M{"$nin": bson.A{nil, ""}}
	}
	res, err := s.c.UpdateOne(ctx, filter,
		bson.M{"$set": bson.M{"role": role, "updated_at": time.Now()}})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		// The guarded filter cannot tell a missing user from a refused
		// role; re-read the bare ID to report the right error.
		if role.RequiresCampusID() {
			if n, cerr := s.c.CountDocuments(ctx, bson.M{"_id": id}); cerr == nil && n > 0 {
				return ErrAffiliationRequired
			}
		}
		return ErrNotFound
	}
	return nil
}
