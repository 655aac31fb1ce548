// internal/app/providers/provider.go

// Package providers defines the contract external identity providers
// implement and the registry the HTTP layer dispatches through. A
// provider round trip is split in two: a Begin operation persists
// one-time correlation state and returns the URL to send the user to,
// and a Complete operation validates the provider's callback against
// that state and applies the flow's outcome. All correlation data lives
// in the persisted state token, so restarts and horizontally scaled
// instances handle callbacks identically.
package providers

import (
	"context"
	"fmt"
	"net/http"

	"github.com/dalemusser/campushub/internal/app/store/authstate"
	"github.com/dalemusser/campushub/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Assertion is the identity a provider vouches for after a completed
// round trip. Subject is the provider-scoped stable identifier (CAS
// NetID, Google user id); Email and Name are best-effort extras.
type Assertion struct {
	Subject string
	Email   string
	Name    string
}

// ProviderError is the typed failure for a rejected or failed round
// trip. Reason is safe to show the user; Err carries the underlying
// cause for logs.
type ProviderError struct {
	Provider string
	Op       string
	Reason   string
	Err      error
}

func (e *ProviderError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s %s: %s: %v", e.Provider, e.Op, e.Reason, e.Err)
	}
	return fmt.Sprintf("%s %s: %s", e.Provider, e.Op, e.Reason)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// Provider is the identity provider contract. Every operation is
// mandatory; a provider that cannot support an operation returns a
// ProviderError from it rather than omitting it.
//
// Begin operations persist one-time state and return the absolute URL
// to redirect the user to. Complete operations receive the callback
// request plus the claimed state record (already validated and
// single-use) and finish the flow:
//
//   - CompleteLogin resolves the assertion to an existing local user.
//   - CompleteRegistration turns the assertion into a create-mode
//     invitation; it never creates the user directly.
//   - CompleteLink attaches the asserted identity to the state's user.
type Provider interface {
	Name() string

	BeginLogin(ctx context.Context, returnURL string) (string, error)
	BeginRegistration(ctx context.Context, returnURL string) (string, error)
	BeginLink(ctx context.Context, userID primitive.ObjectID, returnURL string) (string, error)

	CompleteLogin(ctx context.Context, r *http.Request, st *authstate.State) (*models.User, error)
	CompleteRegistration(ctx context.Context, r *http.Request, st *authstate.State) (*models.Confirmation, error)
	CompleteLink(ctx context.Context, r *http.Request, st *authstate.State) error
}
