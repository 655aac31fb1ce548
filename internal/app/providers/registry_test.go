package providers_test

import (
	"context"
	"net/http"
	"testing"

	"github.com/dalemusser/campushub/internal/app/providers"
	"github.com/dalemusser/campushub/internal/app/store/authstate"
	"github.com/dalemusser/campushub/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// stubProvider satisfies providers.Provider with a fixed name.
type stubProvider struct{ name string }

func (s *stubProvider) Name() string { return s.name }
func (s *stubProvider) BeginLogin(ctx context.Context, returnURL string) (string, error) {
	return "", nil
}
func (s *stubProvider) BeginRegistration(ctx context.Context, returnURL string) (string, error) {
	return "", nil
}
func (s *stubProvider) BeginLink(ctx context.Context, userID primitive.ObjectID, returnURL string) (string, error) {
	return "", nil
}
func (s *stubProvider) CompleteLogin(ctx context.Context, r *http.Request, st *authstate.State) (*models.User, error) {
	return nil, nil
}
func (s *stubProvider) CompleteRegistration(ctx context.Context, r *http.Request, st *authstate.State) (*models.Confirmation, error) {
	return nil, nil
}
func (s *stubProvider) CompleteLink(ctx context.Context, r *http.Request, st *authstate.State) error {
	return nil
}

func TestRegistry_RegisterAndLookup(t *testing.T) {
	reg := providers.NewRegistry()
	if err := reg.Register(&stubProvider{name: "cas"}); err != nil {
		t.Fatalf("register failed: %v", err)
	}

	p, ok := reg.Lookup("cas")
	if !ok {
		t.Fatal("expected to find registered provider")
	}
	if p.Name() != "cas" {
		t.Errorf("name: got %q, want %q", p.Name(), "cas")
	}

	if _, ok := reg.Lookup("github"); ok {
		t.Error("lookup of unregistered provider should fail")
	}
}

func TestRegistry_RejectsDuplicates(t *testing.T) {
	reg := providers.NewRegistry()
	if err := reg.Register(&stubProvider{name: "google"}); err != nil {
		t.Fatalf("register failed: %v", err)
	}
	if err := reg.Register(&stubProvider{name: "google"}); err == nil {
		t.Error("duplicate registration should fail")
	}
}

func TestRegistry_RejectsEmptyName(t *testing.T) {
	reg := providers.NewRegistry()
	if err := reg.Register(&stubProvider{name: ""}); err == nil {
		t.Error("empty name should fail")
	}
}

func TestRegistry_NamesSorted(t *testing.T) {
	reg := providers.NewRegistry()
	for _, name := range []string{"google", "cas"} {
		if err := reg.Register(&stubProvider{name: name}); err != nil {
			t.Fatalf("register %s failed: %v", name, err)
		}
	}

	names := reg.Names()
	if len(names) != 2 || names[0] != "cas" || names[1] != "google" {
		t.Errorf("names: got %v, want [cas google]", names)
	}
}
