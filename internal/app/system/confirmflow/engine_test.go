package confirmflow_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/dalemusser/campushub/internal/app/store/confirmations"
	userstore "github.com/dalemusser/campushub/internal/app/store/users"
	"github.com/dalemusser/campushub/internal/app/system/authutil"
	"github.com/dalemusser/campushub/internal/app/system/confirmflow"
	"github.com/dalemusser/campushub/internal/domain/models"
	"github.com/dalemusser/waffle/pantry/text"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

// fakeStore is an in-memory ConfirmationStore with the same consume
// semantics as the Mongo-backed store: compare-and-set consumption with
// rollback when the paired user insert fails.
type fakeStore struct {
	mu     sync.Mutex
	confs  map[string]*models.Confirmation
	users  map[string]models.User // keyed by folded username
	linked []string               // tokens applied via LinkAndConsume
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		confs: make(map[string]*models.Confirmation),
		users: make(map[string]models.User),
	}
}

func (f *fakeStore) add(c models.Confirmation) models.Confirmation {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := c
	f.confs[c.Token] = &cp
	return c
}

func (f *fakeStore) addUser(u models.User) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.users[text.Fold(u.Username)] = u
}

func (f *fakeStore) pending(c *models.Confirmation) bool {
	return c != nil && !c.Consumed && time.Now().UTC().Before(c.ExpiresAt)
}

func (f *fakeStore) Get(ctx context.Context, token string) (*models.Confirmation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c := f.confs[token]
	if !f.pending(c) {
		return nil, confirmations.ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (f *fakeStore) CreateUserAndConsume(ctx context.Context, token string, u models.User) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	c := f.confs[token]
	if !f.pending(c) {
		return nil, confirmations.ErrNotFound
	}
	c.Consumed = true

	key := text.Fold(u.Username)
	if _, exists := f.users[key]; exists {
		c.Consumed = false
		return nil, fmt.Errorf("create user for confirmation: %w", userstore.ErrDuplicateUsername)
	}

	u.ID = primitive.NewObjectID()
	f.users[key] = u
	return &u, nil
}

func (f *fakeStore) LinkAndConsume(ctx context.Context, token string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	c := f.confs[token]
	if !f.pending(c) {
		return confirmations.ErrNotFound
	}
	c.Consumed = true
	f.linked = append(f.linked, token)
	return nil
}

func newEngine(store *fakeStore) *confirmflow.Engine {
	return confirmflow.New(store, zap.NewNop())
}

func createInvitation(store *fakeStore) models.Confirmation {
	now := time.Now().UTC()
	return store.add(models.Confirmation{
		Token:     "tok-create",
		Mode:      models.ConfirmationCreatesUser,
		Name:      "Jordan Fox",
		Username:  "jfox",
		Role:      models.RoleStudent,
		CampusID:  "jf1234",
		CreatedAt: now,
		ExpiresAt: now.Add(time.Hour),
	})
}

func validForm() confirmflow.CreationForm {
	return confirmflow.CreationForm{
		FirstName:       "Jordan",
		LastName:        "Fox",
		Password:        "sturdy-pass1",
		ConfirmPassword: "sturdy-pass1",
	}
}

func TestSubmitCreation_Success(t *testing.T) {
	store := newFakeStore()
	createInvitation(store)
	eng := newEngine(store)

	u, err := eng.SubmitCreation(context.Background(), "tok-create", validForm())
	if err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	if u.Username != "jfox" || u.Role != models.RoleStudent || u.CampusID != "jf1234" {
		t.Errorf("created user carries wrong invitation fields: %+v", u)
	}
	if u.AuthMethod != models.AuthMethodPassword || u.PasswordHash == nil {
		t.Error("password account should carry a hash")
	}
	if !authutil.CheckPassword("sturdy-pass1", *u.PasswordHash) {
		t.Error("stored hash should verify the submitted password")
	}
}

func TestSubmitCreation_SecondSubmitLoses(t *testing.T) {
	store := newFakeStore()
	createInvitation(store)
	eng := newEngine(store)

	if _, err := eng.SubmitCreation(context.Background(), "tok-create", validForm()); err != nil {
		t.Fatalf("first submit failed: %v", err)
	}
	if _, err := eng.SubmitCreation(context.Background(), "tok-create", validForm()); err != confirmflow.ErrNotFound {
		t.Errorf("second submit: got %v, want ErrNotFound", err)
	}
}

func TestSubmitCreation_UnknownToken(t *testing.T) {
	eng := newEngine(newFakeStore())

	if _, err := eng.SubmitCreation(context.Background(), "no-such-token", validForm()); err != confirmflow.ErrNotFound {
		t.Errorf("got %v, want ErrNotFound", err)
	}
}

func TestSubmitCreation_ExpiredToken(t *testing.T) {
	store := newFakeStore()
	now := time.Now().UTC()
	store.add(models.Confirmation{
		Token:     "tok-old",
		Mode:      models.ConfirmationCreatesUser,
		Username:  "jfox",
		Role:      models.RoleStudent,
		CreatedAt: now.Add(-2 * time.Hour),
		ExpiresAt: now.Add(-time.Hour),
	})
	eng := newEngine(store)

	if _, err := eng.SubmitCreation(context.Background(), "tok-old", validForm()); err != confirmflow.ErrNotFound {
		t.Errorf("got %v, want ErrNotFound", err)
	}
}

func TestSubmitCreation_LinkToken_WrongMode(t *testing.T) {
	store := newFakeStore()
	uid := primitive.NewObjectID()
	now := time.Now().UTC()
	store.add(models.Confirmation{
		Token:     "tok-link",
		Mode:      models.ConfirmationLinksExisting,
		Role:      models.RoleAlumn,
		UserID:    &uid,
		CreatedAt: now,
		ExpiresAt: now.Add(time.Hour),
	})
	eng := newEngine(store)

	if _, err := eng.SubmitCreation(context.Background(), "tok-link", validForm()); err != confirmflow.ErrWrongMode {
		t.Errorf("got %v, want ErrWrongMode", err)
	}
}

func TestSubmitCreation_WeakPassword_LeavesPending(t *testing.T) {
	store := newFakeStore()
	createInvitation(store)
	eng := newEngine(store)

	form := validForm()
	form.Password = "ab"
	form.ConfirmPassword = "ab"

	_, err := eng.SubmitCreation(context.Background(), "tok-create", form)
	ve, ok := confirmflow.AsValidation(err)
	if !ok {
		t.Fatalf("expected validation error, got %v", err)
	}
	if ve.Field != "password" {
		t.Errorf("field: got %q, want %q", ve.Field, "password")
	}
	if len(ve.Rules) == 0 {
		t.Error("expected the violated rules to be reported")
	}

	// The invitation survives the failed attempt.
	if _, err := eng.Resolve(context.Background(), "tok-create"); err != nil {
		t.Errorf("invitation should still be pending: %v", err)
	}
}

func TestSubmitCreation_PasswordMismatch_FlagsConfirmField(t *testing.T) {
	store := newFakeStore()
	createInvitation(store)
	eng := newEngine(store)

	form := validForm()
	form.ConfirmPassword = "different-pass1"

	_, err := eng.SubmitCreation(context.Background(), "tok-create", form)
	ve, ok := confirmflow.AsValidation(err)
	if !ok {
		t.Fatalf("expected validation error, got %v", err)
	}
	if ve.Field != "confirm_password" {
		t.Errorf("field: got %q, want %q", ve.Field, "confirm_password")
	}

	if _, err := eng.Resolve(context.Background(), "tok-create"); err != nil {
		t.Errorf("invitation should still be pending: %v", err)
	}
}

func TestSubmitCreation_MissingName(t *testing.T) {
	store := newFakeStore()
	createInvitation(store)
	eng := newEngine(store)

	form := validForm()
	form.FirstName = "   "

	_, err := eng.SubmitCreation(context.Background(), "tok-create", form)
	ve, ok := confirmflow.AsValidation(err)
	if !ok {
		t.Fatalf("expected validation error, got %v", err)
	}
	if ve.Field != "first_name" {
		t.Errorf("field: got %q, want %q", ve.Field, "first_name")
	}
}

func TestSubmitCreation_StripsMarkupFromNames(t *testing.T) {
	store := newFakeStore()
	createInvitation(store)
	eng := newEngine(store)

	form := validForm()
	form.FirstName = "<b>Jordan</b>"
	form.LastName = "Fox<script>alert(1)</script>"

	u, err := eng.SubmitCreation(context.Background(), "tok-create", form)
	if err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	if u.FirstName != "Jordan" || u.LastName != "Fox" {
		t.Errorf("names not sanitized: %q %q", u.FirstName, u.LastName)
	}
}

func TestSubmitCreation_ProviderBound_SkipsPassword(t *testing.T) {
	store := newFakeStore()
	now := time.Now().UTC()
	store.add(models.Confirmation{
		Token:           "tok-cas",
		Mode:            models.ConfirmationCreatesUser,
		Username:        "jf1234",
		Role:            models.RoleExternal,
		CampusID:        "jf1234",
		Provider:        "cas",
		ProviderSubject: "jf1234",
		CreatedAt:       now,
		ExpiresAt:       now.Add(time.Hour),
	})
	eng := newEngine(store)

	form := confirmflow.CreationForm{FirstName: "Jordan", LastName: "Fox"}
	u, err := eng.SubmitCreation(context.Background(), "tok-cas", form)
	if err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	if u.AuthMethod != "cas" {
		t.Errorf("auth method: got %q, want %q", u.AuthMethod, "cas")
	}
	if u.PasswordHash != nil {
		t.Error("provider-bound account should have no password hash")
	}
	if u.ProviderIdentities["cas"] != "jf1234" {
		t.Errorf("provider identity not recorded: %v", u.ProviderIdentities)
	}
}

func TestSubmitCreation_DuplicateUsername_RollsBack(t *testing.T) {
	store := newFakeStore()
	createInvitation(store)
	store.addUser(models.User{ID: primitive.NewObjectID(), Username: "jfox"})
	eng := newEngine(store)

	_, err := eng.SubmitCreation(context.Background(), "tok-create", validForm())
	ve, ok := confirmflow.AsValidation(err)
	if !ok {
		t.Fatalf("expected validation error, got %v", err)
	}
	if ve.Field != "username" {
		t.Errorf("field: got %q, want %q", ve.Field, "username")
	}

	// The rollback leaves the invitation pending.
	if _, err := eng.Resolve(context.Background(), "tok-create"); err != nil {
		t.Errorf("invitation should still be pending: %v", err)
	}
}

func TestSubmitCreation_RacingSubmits_OneWinner(t *testing.T) {
	store := newFakeStore()
	createInvitation(store)
	eng := newEngine(store)

	const n = 16
	errs := make([]error, n)
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func(i int) {
			defer wg.Done()
			_, errs[i] = eng.SubmitCreation(context.Background(), "tok-create", validForm())
		}(i)
	}
	wg.Wait()

	var wins, losses int
	for _, err := range errs {
		switch err {
		case nil:
			wins++
		case confirmflow.ErrNotFound:
			losses++
		default:
			t.Errorf("unexpected error: %v", err)
		}
	}
	if wins != 1 {
		t.Errorf("expected exactly one winner, got %d", wins)
	}
	if losses != n-1 {
		t.Errorf("expected %d losers, got %d", n-1, losses)
	}
	if len(store.users) != 1 {
		t.Errorf("expected exactly one user created, got %d", len(store.users))
	}
}

func TestSubmitLink_AppliesGrantOnce(t *testing.T) {
	store := newFakeStore()
	uid := primitive.NewObjectID()
	now := time.Now().UTC()
	store.add(models.Confirmation{
		Token:     "tok-link",
		Mode:      models.ConfirmationLinksExisting,
		Role:      models.RoleAlumn,
		UserID:    &uid,
		CreatedAt: now,
		ExpiresAt: now.Add(time.Hour),
	})
	eng := newEngine(store)

	if err := eng.SubmitLink(context.Background(), "tok-link"); err != nil {
		t.Fatalf("link failed: %v", err)
	}
	if len(store.linked) != 1 {
		t.Errorf("expected one applied grant, got %d", len(store.linked))
	}

	if err := eng.SubmitLink(context.Background(), "tok-link"); err != confirmflow.ErrNotFound {
		t.Errorf("second apply: got %v, want ErrNotFound", err)
	}
}

func TestSubmitLink_CreateToken_WrongMode(t *testing.T) {
	store := newFakeStore()
	createInvitation(store)
	eng := newEngine(store)

	if err := eng.SubmitLink(context.Background(), "tok-create"); err != confirmflow.ErrWrongMode {
		t.Errorf("got %v, want ErrWrongMode", err)
	}
}
