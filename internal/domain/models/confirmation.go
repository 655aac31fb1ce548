// internal/domain/models/confirmation.go
package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Confirmation modes. A confirmation either creates a brand-new account
// or attaches a grant to an existing one.
const (
	ConfirmationCreatesUser   = "create_user"
	ConfirmationLinksExisting = "link_existing"
)

// Confirmation is a one-time invitation record. The token is the only
// lookup key and must be unguessable (128-bit random). Once Consumed
// flips to true the record is inert; it is never reverted.
type Confirmation struct {
	// Token is the opaque invitation token (uuid v4 string), stored as
	// the document _id so lookups and the consume compare-and-set hit
	// the primary index.
	Token string `bson:"_id" json:"token"`

	Mode string `bson:"mode" json:"mode"` // create_user | link_existing

	// Creation-mode fields.
	Name     string `bson:"name,omitempty" json:"name,omitempty"`         // prefilled display name
	Username string `bson:"username,omitempty" json:"username,omitempty"` // username the account will get
	Role     Role   `bson:"role,omitempty" json:"role,omitempty"`         // role granted on creation or link
	CampusID string `bson:"campus_id,omitempty" json:"campus_id,omitempty"`

	// Provider binding. When set, the invitation came from a validated
	// external assertion and the password steps are skipped; the created
	// or linked account is associated with this provider identity.
	Provider        string `bson:"provider,omitempty" json:"provider,omitempty"`
	ProviderSubject string `bson:"provider_subject,omitempty" json:"-"`

	// Link-mode target.
	UserID *primitive.ObjectID `bson:"user_id,omitempty" json:"user_id,omitempty"`

	CreatedAt  time.Time  `bson:"created_at" json:"created_at"`
	ExpiresAt  time.Time  `bson:"expires_at" json:"expires_at"` // invariant: ExpiresAt > CreatedAt
	Consumed   bool       `bson:"consumed" json:"consumed"`
	ConsumedAt *time.Time `bson:"consumed_at,omitempty" json:"consumed_at,omitempty"`
}

// CreatesUser reports whether this confirmation creates a new account.
func (c *Confirmation) CreatesUser() bool {
	return c.Mode == ConfirmationCreatesUser
}

// Expired reports whether the confirmation has passed its expiry.
func (c *Confirmation) Expired(now time.Time) bool {
	return !now.Before(c.ExpiresAt)
}
