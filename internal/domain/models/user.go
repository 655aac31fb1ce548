// internal/domain/models/user.go
package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Auth method values stored in User.AuthMethod. Provider-backed users
// carry the provider's registered service name (e.g. "cas", "google").
const (
	AuthMethodPassword = "password"
)

// User represents a portal account.
//
// NOTE:
//   - The ID is assigned at creation and immutable thereafter.
//   - Accounts with role student or faculty must have a non-empty
//     CampusID; the user store enforces this on create and update.
type User struct {
	ID         primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Username   string             `bson:"username" json:"username"`
	UsernameCI string             `bson:"username_ci" json:"username_ci"` // lowercase, diacritics-stripped
	FirstName  string             `bson:"first_name" json:"first_name"`
	LastName   string             `bson:"last_name" json:"last_name"`
	Role       Role               `bson:"role" json:"role"`
	CampusID   string             `bson:"campus_id,omitempty" json:"campus_id,omitempty"`
	Cohort     *int               `bson:"cohort,omitempty" json:"cohort,omitempty"` // entry year

	AuthMethod   string  `bson:"auth_method" json:"auth_method"`
	PasswordHash *string `bson:"password_hash,omitempty" json:"-"`

	// ProviderIdentities maps a provider service name to the external
	// subject asserted by that provider for this account.
	ProviderIdentities map[string]string `bson:"provider_identities,omitempty" json:"-"`

	CreatedAt time.Time `bson:"created_at" json:"created_at"`
	UpdatedAt time.Time `bson:"updated_at" json:"updated_at"`
}

// FullName returns the display name for the user.
func (u *User) FullName() string {
	if u.FirstName == "" {
		return u.LastName
	}
	if u.LastName == "" {
		return u.FirstName
	}
	return u.FirstName + " " + u.LastName
}
