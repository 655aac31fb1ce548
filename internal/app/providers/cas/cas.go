// internal/app/providers/cas/cas.go

// Package cas implements the campus single sign-on provider over the
// CAS 2.0 protocol: login redirects to the CAS server with a service
// URL, and callbacks are validated server-side through serviceValidate.
// The asserted NetID doubles as the user's campus id.
package cas

import (
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/dalemusser/campushub/internal/app/providers"
	"github.com/dalemusser/campushub/internal/app/store/authstate"
	"github.com/dalemusser/campushub/internal/app/store/confirmations"
	userstore "github.com/dalemusser/campushub/internal/app/store/users"
	"github.com/dalemusser/campushub/internal/app/system/normalize"
	"github.com/dalemusser/campushub/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

// ServiceName is the registry key and route segment for this provider.
const ServiceName = "cas"

// Provider implements providers.Provider against a CAS 2.0 server.
type Provider struct {
	serverURL     string // e.g. "https://cas.example.edu/cas"
	baseURL       string // this app's external base URL
	states        *authstate.Store
	users         *userstore.Store
	confirmations *confirmations.Store
	client        *http.Client
	log           *zap.Logger
}

// New builds the CAS provider. serverURL is the CAS server base (no
// trailing slash); baseURL is this app's external base URL used to
// build the callback service URL.
func New(serverURL, baseURL string, states *authstate.Store, users *userstore.Store, confs *confirmations.Store, logger *zap.Logger) *Provider {
	return &Provider{
		serverURL:     serverURL,
		baseURL:       baseURL,
		states:        states,
		users:         users,
		confirmations: confs,
		client:        &http.Client{Timeout: 10 * time.Second},
		log:           logger,
	}
}

// Name returns the provider's service name.
func (p *Provider) Name() string { return ServiceName }

// serviceURL builds the callback URL registered with the CAS server for
// a round trip. CAS requires the exact same service URL at login and at
// ticket validation, so the state rides inside it.
func (p *Provider) serviceURL(state string) string {
	return p.baseURL + "/auth/" + ServiceName + "/callback?state=" + url.QueryEscape(state)
}

func (p *Provider) begin(ctx context.Context, flow authstate.Flow, userID *primitive.ObjectID, returnURL string) (string, error) {
	state, err := p.states.Begin(ctx, ServiceName, flow, userID, returnURL)
	if err != nil {
		return "", &providers.ProviderError{
			Provider: ServiceName, Op: "begin", Reason: "Could not start sign-in.", Err: err,
		}
	}
	return p.serverURL + "/login?service=" + url.QueryEscape(p.serviceURL(state)), nil
}

// BeginLogin starts a login round trip.
func (p *Provider) BeginLogin(ctx context.Context, returnURL string) (string, error) {
	return p.begin(ctx, authstate.FlowLogin, nil, returnURL)
}

// BeginRegistration starts a registration round trip.
func (p *Provider) BeginRegistration(ctx context.Context, returnURL string) (string, error) {
	return p.begin(ctx, authstate.FlowRegister, nil, returnURL)
}

// BeginLink starts a round trip that will attach the asserted NetID to
// an existing signed-in user.
func (p *Provider) BeginLink(ctx context.Context, userID primitive.ObjectID, returnURL string) (string, error) {
	return p.begin(ctx, authstate.FlowLink, &userID, returnURL)
}

// assert validates the callback's service ticket with the CAS server
// and returns the asserted identity.
func (p *Provider) assert(ctx context.Context, r *http.Request, st *authstate.State) (*providers.Assertion, error) {
	ticket := r.URL.Query().Get("ticket")
	if ticket == "" {
		return nil, &providers.ProviderError{
			Provider: ServiceName, Op: "complete",
			Reason: "The campus sign-in was cancelled or failed.",
		}
	}

	validateURL := p.serverURL + "/serviceValidate?service=" +
		url.QueryEscape(p.serviceURL(st.State)) + "&ticket=" + url.QueryEscape(ticket)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, validateURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return nil, &providers.ProviderError{
			Provider: ServiceName, Op: "complete",
			Reason: "The campus sign-in service is unavailable.", Err: err,
		}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &providers.ProviderError{
			Provider: ServiceName, Op: "complete",
			Reason: "The campus sign-in service is unavailable.",
			Err:    fmt.Errorf("serviceValidate status %d", resp.StatusCode),
		}
	}

	assertion, err := parseServiceResponse(body)
	if err != nil {
		return nil, &providers.ProviderError{
			Provider: ServiceName, Op: "complete",
			Reason: "The campus sign-in could not be verified.", Err: err,
		}
	}
	return assertion, nil
}

// CompleteLogin resolves the asserted NetID to an existing account.
func (p *Provider) CompleteLogin(ctx context.Context, r *http.Request, st *authstate.State) (*models.User, error) {
	assertion, err := p.assert(ctx, r, st)
	if err != nil {
		return nil, err
	}

	u, err := p.users.GetByProviderIdentity(ctx, ServiceName, assertion.Subject)
	if err != nil {
		if errors.Is(err, userstore.ErrNotFound) {
			return nil, &providers.ProviderError{
				Provider: ServiceName, Op: "login",
				Reason: "No account is linked to this campus identity. Register first.",
			}
		}
		return nil, err
	}
	return u, nil
}

// CompleteRegistration turns the asserted NetID into a create-mode
// invitation. The invitation, not this call, creates the user.
func (p *Provider) CompleteRegistration(ctx context.Context, r *http.Request, st *authstate.State) (*models.Confirmation, error) {
	assertion, err := p.assert(ctx, r, st)
	if err != nil {
		return nil, err
	}

	if _, err := p.users.GetByProviderIdentity(ctx, ServiceName, assertion.Subject); err == nil {
		return nil, &providers.ProviderError{
			Provider: ServiceName, Op: "register",
			Reason: "This campus identity is already registered. Sign in instead.",
		}
	} else if !errors.Is(err, userstore.ErrNotFound) {
		return nil, err
	}

	name := assertion.Name
	if name == "" {
		name = assertion.Subject
	}
	username := normalize.UsernameFromName(name)
	if username == "" {
		username = normalize.Username(assertion.Subject)
	}

	c, err := p.confirmations.Create(ctx, models.Confirmation{
		Mode:            models.ConfirmationCreatesUser,
		Name:            name,
		Username:        username,
		Role:            models.RoleExternal,
		CampusID:        assertion.Subject,
		Provider:        ServiceName,
		ProviderSubject: assertion.Subject,
	})
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// CompleteLink attaches the asserted NetID to the state's user.
func (p *Provider) CompleteLink(ctx context.Context, r *http.Request, st *authstate.State) error {
	if st.UserID == nil {
		return &providers.ProviderError{
			Provider: ServiceName, Op: "link",
			Reason: "This link request is not bound to an account.",
		}
	}

	assertion, err := p.assert(ctx, r, st)
	if err != nil {
		return err
	}

	if existing, err := p.users.GetByProviderIdentity(ctx, ServiceName, assertion.Subject); err == nil {
		if existing.ID != *st.UserID {
			return &providers.ProviderError{
				Provider: ServiceName, Op: "link",
				Reason: "This campus identity is already linked to another account.",
			}
		}
		return nil // already linked to this account
	} else if !errors.Is(err, userstore.ErrNotFound) {
		return err
	}

	if err := p.users.LinkProviderIdentity(ctx, *st.UserID, ServiceName, assertion.Subject); err != nil {
		return err
	}
	return nil
}

// CAS 2.0 serviceValidate response shapes. encoding/xml matches the
// local element names, so the cas: prefix needs no special handling.
type serviceResponse struct {
	XMLName xml.Name     `xml:"serviceResponse"`
	Success *authSuccess `xml:"authenticationSuccess"`
	Failure *authFailure `xml:"authenticationFailure"`
}

type authSuccess struct {
	User       string `xml:"user"`
	Attributes struct {
		Email       string `xml:"mail"`
		DisplayName string `xml:"displayName"`
	} `xml:"attributes"`
}

type authFailure struct {
	Code    string `xml:"code,attr"`
	Message string `xml:",chardata"`
}

// parseServiceResponse parses a serviceValidate body into an Assertion.
func parseServiceResponse(body []byte) (*providers.Assertion, error) {
	var sr serviceResponse
	if err := xml.Unmarshal(body, &sr); err != nil {
		return nil, fmt.Errorf("parse serviceValidate response: %w", err)
	}
	if sr.Failure != nil {
		return nil, fmt.Errorf("authentication failure %s: %s", sr.Failure.Code, sr.Failure.Message)
	}
	if sr.Success == nil || sr.Success.User == "" {
		return nil, errors.New("serviceValidate response has no authenticated user")
	}
	return &providers.Assertion{
		Subject: sr.Success.User,
		Email:   sr.Success.Attributes.Email,
		Name:    sr.Success.Attributes.DisplayName,
	}, nil
}
