// internal/app/system/confirmflow/engine.go

// Package confirmflow drives the one-time invitation flow: resolving a
// token to its pending invitation, collecting the new user's details,
// and consuming the token into either a new account or a grant applied
// to an existing account. The HTTP layer owns rendering and session
// minting; this engine owns the rules.
package confirmflow

import (
	"context"
	"errors"
	"fmt"

	"github.com/dalemusser/campushub/internal/app/store/confirmations"
	userstore "github.com/dalemusser/campushub/internal/app/store/users"
	"github.com/dalemusser/campushub/internal/app/system/authutil"
	"github.com/dalemusser/campushub/internal/app/system/htmlsanitize"
	"github.com/dalemusser/campushub/internal/app/system/normalize"
	"github.com/dalemusser/campushub/internal/domain/models"
	"go.uber.org/zap"
)

var (
	// ErrNotFound means the token does not resolve to a pending
	// invitation. Absent, expired, and already-consumed tokens are all
	// reported identically.
	ErrNotFound = errors.New("invitation not found")
	// ErrWrongMode means the submission does not match the invitation's
	// mode (e.g. posting the new-account form against a link-mode token).
	ErrWrongMode = errors.New("invitation mode mismatch")
)

// ValidationError reports a rejected form field. Field names the input
// that must be re-entered; for password rule violations Rules carries
// every requirement the candidate failed, so the form can show the full
// list at once.
type ValidationError struct {
	Field   string
	Message string
	Rules   []authutil.Rule
}

func (e *ValidationError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: %s", e.Field, e.Message)
	}
	return fmt.Sprintf("%s: invalid", e.Field)
}

// AsValidation unwraps err into a *ValidationError if it is one.
func AsValidation(err error) (*ValidationError, bool) {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ve, true
	}
	return nil, false
}

// ConfirmationStore is the slice of the confirmations store the engine
// needs. Satisfied by *confirmations.Store; tests use in-memory fakes.
type ConfirmationStore interface {
	Get(ctx context.Context, token string) (*models.Confirmation, error)
	CreateUserAndConsume(ctx context.Context, token string, u models.User) (*models.User, error)
	LinkAndConsume(ctx context.Context, token string) error
}

// Engine applies the invitation rules over a ConfirmationStore.
type Engine struct {
	store ConfirmationStore
	log   *zap.Logger
}

// New builds an Engine.
func New(store ConfirmationStore, logger *zap.Logger) *Engine {
	return &Engine{store: store, log: logger}
}

// Resolve loads the pending invitation for a token without consuming
// it. Used by the GET side to decide what form (if any) to show.
func (e *Engine) Resolve(ctx context.Context, token string) (*models.Confirmation, error) {
	c, err := e.store.Get(ctx, token)
	if err != nil {
		if errors.Is(err, confirmations.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return c, nil
}

// CreationForm carries the user-editable fields of the new-account form.
// The username, role, and affiliation come from the invitation itself
// and cannot be altered by the submitter.
type CreationForm struct {
	FirstName       string
	LastName        string
	Password        string
	ConfirmPassword string
}

// NeedsPassword reports whether an invitation's account will be a local
// password account. Provider-bound invitations authenticate through the
// external identity and skip the password fields entirely.
func NeedsPassword(c *models.Confirmation) bool {
	return c.Provider == ""
}

// SubmitCreation consumes a create-mode invitation into a new user.
// Validation failures leave the invitation pending so the submitter can
// correct the form and try again; only a fully valid submission touches
// the consumed flag. Under racing submissions exactly one call returns
// the created user, the rest get ErrNotFound.
func (e *Engine) SubmitCreation(ctx context.Context, token string, form CreationForm) (*models.User, error) {
	c, err := e.Resolve(ctx, token)
	if err != nil {
		return nil, err
	}
	if !c.CreatesUser() {
		return nil, ErrWrongMode
	}

	first := normalize.Name(htmlsanitize.Plain(form.FirstName))
	last := normalize.Name(htmlsanitize.Plain(form.LastName))
	if first == "" {
		return nil, &ValidationError{Field: "first_name", Message: "First name is required."}
	}
	if last == "" {
		return nil, &ValidationError{Field: "last_name", Message: "Last name is required."}
	}

	u := models.User{
		Username:  c.Username,
		FirstName: first,
		LastName:  last,
		Role:      c.Role,
		CampusID:  c.CampusID,
	}

	if NeedsPassword(c) {
		// Mismatch clears only the confirm field on re-render; the
		// typed password survives.
		if form.Password != form.ConfirmPassword {
			return nil, &ValidationError{
				Field:   "confirm_password",
				Message: "Passwords do not match.",
			}
		}
		if rules := authutil.Check(form.Password); len(rules) > 0 {
			return nil, &ValidationError{
				Field:   "password",
				Message: "Password does not meet the requirements.",
				Rules:   rules,
			}
		}

		hash, err := authutil.HashPassword(form.Password)
		if err != nil {
			return nil, fmt.Errorf("hash password: %w", err)
		}
		u.AuthMethod = models.AuthMethodPassword
		u.PasswordHash = &hash
	} else {
		u.AuthMethod = c.Provider
		u.ProviderIdentities = map[string]string{c.Provider: c.ProviderSubject}
	}

	created, err := e.store.CreateUserAndConsume(ctx, token, u)
	if err != nil {
		if errors.Is(err, confirmations.ErrNotFound) {
			return nil, ErrNotFound
		}
		if errors.Is(err, userstore.ErrDuplicateUsername) {
			return nil, &ValidationError{
				Field:   "username",
				Message: "An account with this username already exists.",
			}
		}
		return nil, err
	}

	e.log.Info("invitation consumed, user created",
		zap.String("token", token),
		zap.String("username", created.Username),
		zap.String("role", string(created.Role)))
	return created, nil
}

// SubmitLink consumes a link-mode invitation, applying its grant (role
// and/or provider identity) to the target user. Link invitations carry
// no user input, so they are applied as soon as the holder opens them.
func (e *Engine) SubmitLink(ctx context.Context, token string) error {
	c, err := e.Resolve(ctx, token)
	if err != nil {
		return err
	}
	if c.CreatesUser() {
		return ErrWrongMode
	}

	if err := e.store.LinkAndConsume(ctx, token); err != nil {
		if errors.Is(err, confirmations.ErrNotFound) {
			return ErrNotFound
		}
		return err
	}

	e.log.Info("invitation consumed, grant applied",
		zap.String("token", token))
	return nil
}
