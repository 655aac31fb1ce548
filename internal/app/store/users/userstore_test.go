package userstore_test

import (
	"context"
	"errors"
	"testing"

	userstore "github.com/dalemusser/campushub/internal/app/store/users"
	"github.com/dalemusser/campushub/internal/domain/models"
	"github.com/dalemusser/campushub/internal/testutil"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func newStore(t *testing.T) *userstore.Store {
	t.Helper()
	db := testutil.SetupTestDB(t)
	s := userstore.New(db)
	if err := s.EnsureIndexes(context.Background()); err != nil {
		t.Fatalf("ensure indexes: %v", err)
	}
	return s
}

func TestCreate_AndGetByUsername_CaseInsensitive(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	created, err := s.Create(ctx, models.User{
		Username:  "JFox",
		FirstName: "Jordan",
		LastName:  "Fox",
		Role:      models.RoleExternal,
	})
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if created.Username != "jfox" {
		t.Errorf("username should be normalized: got %q", created.Username)
	}

	got, err := s.GetByUsername(ctx, "JFOX")
	if err != nil {
		t.Fatalf("lookup failed: %v", err)
	}
	if got.ID != created.ID {
		t.Errorf("lookup returned wrong user: %s vs %s", got.ID.Hex(), created.ID.Hex())
	}
}

func TestCreate_DuplicateUsername(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	if _, err := s.Create(ctx, models.User{Username: "jfox", Role: models.RoleExternal}); err != nil {
		t.Fatalf("first create failed: %v", err)
	}
	_, err := s.Create(ctx, models.User{Username: "JFOX", Role: models.RoleExternal})
	if !errors.Is(err, userstore.ErrDuplicateUsername) {
		t.Errorf("got %v, want ErrDuplicateUsername", err)
	}
}

func TestCreate_StudentRequiresCampusID(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	if _, err := s.Create(ctx, models.User{Username: "jfox", Role: models.RoleStudent}); err == nil {
		t.Error("student without campus id should be rejected")
	}
	if _, err := s.Create(ctx, models.User{Username: "jfox", Role: models.RoleStudent, CampusID: "jf1234"}); err != nil {
		t.Errorf("student with campus id should be accepted: %v", err)
	}
}

func TestGetByID_NotFound(t *testing.T) {
	s := newStore(t)

	_, err := s.GetByID(context.Background(), primitive.NewObjectID())
	if !errors.Is(err, userstore.ErrNotFound) {
		t.Errorf("got %v, want ErrNotFound", err)
	}
}

func TestUpdateProfile_SetsAndClearsCohort(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	created, err := s.Create(ctx, models.User{
		Username: "jfox",
		Role:     models.RoleStudent,
		CampusID: "jf1234",
	})
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}

	cohort := 2027
	updated, err := s.UpdateProfile(ctx, created.ID, userstore.ProfileUpdate{
		FirstName: "Jordan",
		LastName:  "Fox",
		Role:      models.RoleStudent,
		Cohort:    &cohort,
	})
	if err != nil {
		t.Fatalf("update failed: %v", err)
	}
	if updated.Cohort == nil || *updated.Cohort != 2027 {
		t.Errorf("cohort not set: %v", updated.Cohort)
	}

	updated, err = s.UpdateProfile(ctx, created.ID, userstore.ProfileUpdate{
		FirstName: "Jordan",
		LastName:  "Fox",
		Role:      models.RoleAlumn,
	})
	if err != nil {
		t.Fatalf("update failed: %v", err)
	}
	if updated.Cohort != nil {
		t.Errorf("cohort should be cleared, got %v", *updated.Cohort)
	}
	if updated.Role != models.RoleAlumn {
		t.Errorf("role: got %s, want alumn", updated.Role)
	}
}

func TestUpdateRole_AffiliationInvariant(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	created, err := s.Create(ctx, models.User{Username: "visitor", Role: models.RoleExternal})
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}

	// No campus id on record, so a role requiring one is refused even
	// though grants bypass the transition table.
	err = s.UpdateRole(ctx, created.ID, models.RoleFaculty)
	if !errors.Is(err, userstore.ErrAffiliationRequired) {
		t.Errorf("got %v, want ErrAffiliationRequired", err)
	}

	// An unknown user is a different failure than a refused role.
	err = s.UpdateRole(ctx, primitive.NewObjectID(), models.RoleFaculty)
	if !errors.Is(err, userstore.ErrNotFound) {
		t.Errorf("got %v, want ErrNotFound", err)
	}

	if err := s.UpdateRole(ctx, created.ID, models.RoleAlumn); err != nil {
		t.Errorf("role without affiliation requirement should apply: %v", err)
	}
}

func TestLinkProviderIdentity_AndLookup(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	created, err := s.Create(ctx, models.User{Username: "jfox", Role: models.RoleExternal})
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}

	if err := s.LinkProviderIdentity(ctx, created.ID, "cas", "jf1234"); err != nil {
		t.Fatalf("link failed: %v", err)
	}

	got, err := s.GetByProviderIdentity(ctx, "cas", "jf1234")
	if err != nil {
		t.Fatalf("lookup failed: %v", err)
	}
	if got.ID != created.ID {
		t.Errorf("lookup returned wrong user: %s vs %s", got.ID.Hex(), created.ID.Hex())
	}

	if _, err := s.GetByProviderIdentity(ctx, "google", "jf1234"); !errors.Is(err, userstore.ErrNotFound) {
		t.Errorf("wrong provider should not resolve: %v", err)
	}
}
