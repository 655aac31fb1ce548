// internal/app/providers/google/google.go

// Package google implements the Google identity provider using the
// standard OAuth2 authorization code flow plus a userinfo fetch. The
// asserted subject is Google's stable user id, never the email.
package google

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/dalemusser/campushub/internal/app/providers"
	"github.com/dalemusser/campushub/internal/app/store/authstate"
	"github.com/dalemusser/campushub/internal/app/store/confirmations"
	userstore "github.com/dalemusser/campushub/internal/app/store/users"
	"github.com/dalemusser/campushub/internal/app/system/normalize"
	"github.com/dalemusser/campushub/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
	googleoauth "golang.org/x/oauth2/google"
)

// ServiceName is the registry key and route segment for this provider.
const ServiceName = "google"

const userinfoURL = "https://www.googleapis.com/oauth2/v2/userinfo"

// Provider implements providers.Provider over Google OAuth2.
type Provider struct {
	clientID      string
	clientSecret  string
	baseURL       string
	states        *authstate.Store
	users         *userstore.Store
	confirmations *confirmations.Store
	log           *zap.Logger
}

// New builds the Google provider.
func New(clientID, clientSecret, baseURL string, states *authstate.Store, users *userstore.Store, confs *confirmations.Store, logger *zap.Logger) *Provider {
	return &Provider{
		clientID:      clientID,
		clientSecret:  clientSecret,
		baseURL:       baseURL,
		states:        states,
		users:         users,
		confirmations: confs,
		log:           logger,
	}
}

// Name returns the provider's service name.
func (p *Provider) Name() string { return ServiceName }

// IsConfigured reports whether OAuth credentials are present.
func (p *Provider) IsConfigured() bool {
	return p.clientID != "" && p.clientSecret != ""
}

func (p *Provider) oauth2Config() *oauth2.Config {
	return &oauth2.Config{
		ClientID:     p.clientID,
		ClientSecret: p.clientSecret,
		RedirectURL:  p.baseURL + "/auth/" + ServiceName + "/callback",
		Scopes: []string{
			"openid",
			"https://www.googleapis.com/auth/userinfo.email",
			"https://www.googleapis.com/auth/userinfo.profile",
		},
		Endpoint: googleoauth.Endpoint,
	}
}

func (p *Provider) begin(ctx context.Context, flow authstate.Flow, userID *primitive.ObjectID, returnURL string) (string, error) {
	if !p.IsConfigured() {
		return "", &providers.ProviderError{
			Provider: ServiceName, Op: "begin",
			Reason: "Google sign-in is not configured.",
		}
	}
	state, err := p.states.Begin(ctx, ServiceName, flow, userID, returnURL)
	if err != nil {
		return "", &providers.ProviderError{
			Provider: ServiceName, Op: "begin", Reason: "Could not start sign-in.", Err: err,
		}
	}
	return p.oauth2Config().AuthCodeURL(state, oauth2.AccessTypeOffline), nil
}

// BeginLogin starts a login round trip.
func (p *Provider) BeginLogin(ctx context.Context, returnURL string) (string, error) {
	return p.begin(ctx, authstate.FlowLogin, nil, returnURL)
}

// BeginRegistration starts a registration round trip.
func (p *Provider) BeginRegistration(ctx context.Context, returnURL string) (string, error) {
	return p.begin(ctx, authstate.FlowRegister, nil, returnURL)
}

// BeginLink starts a round trip that will attach the asserted Google
// identity to an existing signed-in user.
func (p *Provider) BeginLink(ctx context.Context, userID primitive.ObjectID, returnURL string) (string, error) {
	return p.begin(ctx, authstate.FlowLink, &userID, returnURL)
}

// userInfo is the subset of Google's userinfo response we use.
type userInfo struct {
	ID        string `json:"id"`
	Email     string `json:"email"`
	Name      string `json:"name"`
	GivenName string `json:"given_name"`
}

// assert exchanges the callback's code and fetches the user's identity.
func (p *Provider) assert(ctx context.Context, r *http.Request) (*providers.Assertion, error) {
	if errParam := r.URL.Query().Get("error"); errParam != "" {
		return nil, &providers.ProviderError{
			Provider: ServiceName, Op: "complete",
			Reason: "Google sign-in was cancelled or denied.",
			Err:    fmt.Errorf("oauth error: %s", errParam),
		}
	}
	code := r.URL.Query().Get("code")
	if code == "" {
		return nil, &providers.ProviderError{
			Provider: ServiceName, Op: "complete",
			Reason: "Google sign-in was cancelled or denied.",
		}
	}

	token, err := p.oauth2Config().Exchange(ctx, code)
	if err != nil {
		return nil, &providers.ProviderError{
			Provider: ServiceName, Op: "complete",
			Reason: "Google sign-in could not be verified.", Err: err,
		}
	}

	info, err := fetchUserInfo(ctx, token)
	if err != nil {
		return nil, &providers.ProviderError{
			Provider: ServiceName, Op: "complete",
			Reason: "Google sign-in could not be verified.", Err: err,
		}
	}
	return &providers.Assertion{
		Subject: info.ID,
		Email:   info.Email,
		Name:    info.Name,
	}, nil
}

// fetchUserInfo retrieves identity details from Google's userinfo
// endpoint.
func fetchUserInfo(ctx context.Context, token *oauth2.Token) (*userInfo, error) {
	client := oauth2.NewClient(ctx, oauth2.StaticTokenSource(token))

	resp, err := client.Get(userinfoURL)
	if err != nil {
		return nil, fmt.Errorf("fetch user info: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("userinfo status %d", resp.StatusCode)
	}

	var info userInfo
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return nil, fmt.Errorf("decode user info: %w", err)
	}
	if info.ID == "" {
		return nil, errors.New("userinfo response has no subject")
	}
	return &info, nil
}

// CompleteLogin resolves the asserted Google identity to an existing
// account.
func (p *Provider) CompleteLogin(ctx context.Context, r *http.Request, st *authstate.State) (*models.User, error) {
	assertion, err := p.assert(ctx, r)
	if err != nil {
		return nil, err
	}

	u, err := p.users.GetByProviderIdentity(ctx, ServiceName, assertion.Subject)
	if err != nil {
		if errors.Is(err, userstore.ErrNotFound) {
			return nil, &providers.ProviderError{
				Provider: ServiceName, Op: "login",
				Reason: "No account is linked to this Google identity. Register first.",
			}
		}
		return nil, err
	}
	return u, nil
}

// CompleteRegistration turns the asserted identity into a create-mode
// invitation. The invitation, not this call, creates the user.
func (p *Provider) CompleteRegistration(ctx context.Context, r *http.Request, st *authstate.State) (*models.Confirmation, error) {
	assertion, err := p.assert(ctx, r)
	if err != nil {
		return nil, err
	}

	if _, err := p.users.GetByProviderIdentity(ctx, ServiceName, assertion.Subject); err == nil {
		return nil, &providers.ProviderError{
			Provider: ServiceName, Op: "register",
			Reason: "This Google identity is already registered. Sign in instead.",
		}
	} else if !errors.Is(err, userstore.ErrNotFound) {
		return nil, err
	}

	name := assertion.Name
	if name == "" {
		name = assertion.Email
	}
	username := normalize.UsernameFromName(name)
	if username == "" {
		username = normalize.Username(assertion.Email)
	}

	c, err := p.confirmations.Create(ctx, models.Confirmation{
		Mode:            models.ConfirmationCreatesUser,
		Name:            name,
		Username:        username,
		Role:            models.RoleExternal,
		Provider:        ServiceName,
		ProviderSubject: assertion.Subject,
	})
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// CompleteLink attaches the asserted Google identity to the state's
// user.
func (p *Provider) CompleteLink(ctx context.Context, r *http.Request, st *authstate.State) error {
	if st.UserID == nil {
		return &providers.ProviderError{
			Provider: ServiceName, Op: "link",
			Reason: "This link request is not bound to an account.",
		}
	}

	assertion, err := p.assert(ctx, r)
	if err != nil {
		return err
	}

	if existing, err := p.users.GetByProviderIdentity(ctx, ServiceName, assertion.Subject); err == nil {
		if existing.ID != *st.UserID {
			return &providers.ProviderError{
				Provider: ServiceName, Op: "link",
				Reason: "This Google identity is already linked to another account.",
			}
		}
		return nil
	} else if !errors.Is(err, userstore.ErrNotFound) {
		return err
	}

	return p.users.LinkProviderIdentity(ctx, *st.UserID, ServiceName, assertion.Subject)
}
