package confirmations_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dalemusser/campushub/internal/app/store/confirmations"
	userstore "github.com/dalemusser/campushub/internal/app/store/users"
	"github.com/dalemusser/campushub/internal/domain/models"
	"github.com/dalemusser/campushub/internal/testutil"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

func newStores(t *testing.T) (*confirmations.Store, *userstore.Store, *testutil.Fixtures) {
	t.Helper()
	db := testutil.SetupTestDB(t)
	users := userstore.New(db)
	if err := users.EnsureIndexes(context.Background()); err != nil {
		t.Fatalf("ensure user indexes: %v", err)
	}
	confs := confirmations.New(db, users, time.Hour, zap.NewNop())
	return confs, users, testutil.NewFixtures(t, db)
}

func TestCreate_AssignsTokenAndExpiry(t *testing.T) {
	confs, _, _ := newStores(t)
	ctx := context.Background()

	c, err := confs.Create(ctx, models.Confirmation{
		Mode:     models.ConfirmationCreatesUser,
		Username: "jfox",
		Role:     models.RoleExternal,
	})
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if c.Token == "" {
		t.Error("expected a generated token")
	}
	if !c.ExpiresAt.After(c.CreatedAt) {
		t.Error("expiry should be after creation")
	}

	got, err := confs.Get(ctx, c.Token)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if got.Username != "jfox" {
		t.Errorf("username: got %q, want %q", got.Username, "jfox")
	}
}

func TestGet_ExpiredToken(t *testing.T) {
	confs, _, fx := newStores(t)
	ctx := context.Background()

	c := fx.CreateExpiredConfirmation(ctx, "Jordan Fox", "jfox", models.RoleExternal)

	if _, err := confs.Get(ctx, c.Token); !errors.Is(err, confirmations.ErrNotFound) {
		t.Errorf("got %v, want ErrNotFound", err)
	}
}

func TestGet_UnknownToken(t *testing.T) {
	confs, _, _ := newStores(t)

	if _, err := confs.Get(context.Background(), "no-such-token"); !errors.Is(err, confirmations.ErrNotFound) {
		t.Errorf("got %v, want ErrNotFound", err)
	}
}

func TestCreateUserAndConsume_CreatesUserOnce(t *testing.T) {
	confs, users, _ := newStores(t)
	ctx := context.Background()

	c, err := confs.Create(ctx, models.Confirmation{
		Mode:     models.ConfirmationCreatesUser,
		Username: "jfox",
		Role:     models.RoleExternal,
	})
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}

	created, err := confs.CreateUserAndConsume(ctx, c.Token, models.User{
		Username: "jfox",
		Role:     models.RoleExternal,
	})
	if err != nil {
		t.Fatalf("consume failed: %v", err)
	}

	if _, err := users.GetByID(ctx, created.ID); err != nil {
		t.Errorf("created user should exist: %v", err)
	}

	// Consumed tokens are invisible and cannot be consumed again.
	if _, err := confs.Get(ctx, c.Token); !errors.Is(err, confirmations.ErrNotFound) {
		t.Errorf("consumed token should not resolve: %v", err)
	}
	if _, err := confs.CreateUserAndConsume(ctx, c.Token, models.User{Username: "other", Role: models.RoleExternal}); !errors.Is(err, confirmations.ErrNotFound) {
		t.Errorf("second consume: got %v, want ErrNotFound", err)
	}
}

func TestCreateUserAndConsume_DuplicateUsername_RollsBack(t *testing.T) {
	confs, users, _ := newStores(t)
	ctx := context.Background()

	if _, err := users.Create(ctx, models.User{Username: "jfox", Role: models.RoleExternal}); err != nil {
		t.Fatalf("seed user failed: %v", err)
	}

	c, err := confs.Create(ctx, models.Confirmation{
		Mode:     models.ConfirmationCreatesUser,
		Username: "jfox",
		Role:     models.RoleExternal,
	})
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}

	_, err = confs.CreateUserAndConsume(ctx, c.Token, models.User{Username: "jfox", Role: models.RoleExternal})
	if !errors.Is(err, userstore.ErrDuplicateUsername) {
		t.Fatalf("got %v, want ErrDuplicateUsername", err)
	}

	// The failed insert rolled the consumed flag back.
	if _, err := confs.Get(ctx, c.Token); err != nil {
		t.Errorf("token should still be pending after rollback: %v", err)
	}
}

func TestLinkAndConsume_AppliesGrant(t *testing.T) {
	confs, users, _ := newStores(t)
	ctx := context.Background()

	target, err := users.Create(ctx, models.User{Username: "jfox", Role: models.RoleExternal})
	if err != nil {
		t.Fatalf("seed user failed: %v", err)
	}

	c, err := confs.Create(ctx, models.Confirmation{
		Mode:            models.ConfirmationLinksExisting,
		Role:            models.RoleAlumn,
		Provider:        "cas",
		ProviderSubject: "jf1234",
		UserID:          &target.ID,
	})
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}

	if err := confs.LinkAndConsume(ctx, c.Token); err != nil {
		t.Fatalf("link failed: %v", err)
	}

	got, err := users.GetByID(ctx, target.ID)
	if err != nil {
		t.Fatalf("reload failed: %v", err)
	}
	if got.Role != models.RoleAlumn {
		t.Errorf("role: got %s, want alumn", got.Role)
	}
	if got.ProviderIdentities["cas"] != "jf1234" {
		t.Errorf("provider identity not applied: %v", got.ProviderIdentities)
	}

	if err := confs.LinkAndConsume(ctx, c.Token); !errors.Is(err, confirmations.ErrNotFound) {
		t.Errorf("second link: got %v, want ErrNotFound", err)
	}
}

func TestLinkAndConsume_TargetMissing_BurnsToken(t *testing.T) {
	confs, _, _ := newStores(t)
	ctx := context.Background()

	gone := primitive.NewObjectID()
	c, err := confs.Create(ctx, models.Confirmation{
		Mode:            models.ConfirmationLinksExisting,
		Provider:        "cas",
		ProviderSubject: "jf1234",
		UserID:          &gone,
	})
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}

	if err := confs.LinkAndConsume(ctx, c.Token); !errors.Is(err, confirmations.ErrTargetMissing) {
		t.Fatalf("got %v, want ErrTargetMissing", err)
	}

	// The grant can never be applied, so the token stays consumed.
	if _, err := confs.Get(ctx, c.Token); !errors.Is(err, confirmations.ErrNotFound) {
		t.Errorf("token should stay consumed: %v", err)
	}
}

func TestLinkAndConsume_RefusedGrant_RollsBack(t *testing.T) {
	confs, users, _ := newStores(t)
	ctx := context.Background()

	// No campus id on record, so a student grant is refused at the
	// user store.
	target, err := users.Create(ctx, models.User{Username: "visitor", Role: models.RoleExternal})
	if err != nil {
		t.Fatalf("seed user failed: %v", err)
	}

	c, err := confs.Create(ctx, models.Confirmation{
		Mode:   models.ConfirmationLinksExisting,
		Role:   models.RoleStudent,
		UserID: &target.ID,
	})
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}

	if err := confs.LinkAndConsume(ctx, c.Token); !errors.Is(err, userstore.ErrAffiliationRequired) {
		t.Fatalf("got %v, want ErrAffiliationRequired", err)
	}

	// The failed grant rolled the consumed flag back.
	if _, err := confs.Get(ctx, c.Token); err != nil {
		t.Errorf("token should still be pending after rollback: %v", err)
	}
	got, err := users.GetByID(ctx, target.ID)
	if err != nil {
		t.Fatalf("reload failed: %v", err)
	}
	if got.Role != models.RoleExternal {
		t.Errorf("role should be unchanged, got %s", got.Role)
	}
}

func TestLinkAndConsume_NoTargetUser_RollsBack(t *testing.T) {
	confs, _, _ := newStores(t)
	ctx := context.Background()

	c, err := confs.Create(ctx, models.Confirmation{
		Mode: models.ConfirmationLinksExisting,
		Role: models.RoleAlumn,
	})
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}

	if err := confs.LinkAndConsume(ctx, c.Token); err == nil {
		t.Fatal("link without a target user should fail")
	}

	if _, err := confs.Get(ctx, c.Token); err != nil {
		t.Errorf("token should still be pending after rollback: %v", err)
	}
}
