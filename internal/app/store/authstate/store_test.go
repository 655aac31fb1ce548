package authstate_test

import (
	"context"
	"testing"
	"time"

	"github.com/dalemusser/campushub/internal/app/store/authstate"
	"github.com/dalemusser/campushub/internal/testutil"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func newStore(t *testing.T) (*authstate.Store, *testutil.Fixtures) {
	t.Helper()
	db := testutil.SetupTestDB(t)
	s := authstate.New(db)
	if err := s.EnsureIndexes(context.Background()); err != nil {
		t.Fatalf("ensure indexes: %v", err)
	}
	return s, testutil.NewFixtures(t, db)
}

func TestBeginAndClaim_RoundTrip(t *testing.T) {
	s, _ := newStore(t)
	ctx := context.Background()

	uid := primitive.NewObjectID()
	state, err := s.Begin(ctx, "cas", authstate.FlowLink, &uid, "/edit_profile")
	if err != nil {
		t.Fatalf("begin failed: %v", err)
	}
	if state == "" {
		t.Fatal("expected a non-empty state token")
	}

	st, valid, err := s.Claim(ctx, "cas", state)
	if err != nil {
		t.Fatalf("claim failed: %v", err)
	}
	if !valid {
		t.Fatal("expected a valid claim")
	}
	if st.Flow != authstate.FlowLink {
		t.Errorf("flow: got %s, want link", st.Flow)
	}
	if st.UserID == nil || *st.UserID != uid {
		t.Errorf("user id not preserved: %v", st.UserID)
	}
	if st.ReturnURL != "/edit_profile" {
		t.Errorf("return url: got %q", st.ReturnURL)
	}
}

func TestClaim_OneTimeUse(t *testing.T) {
	s, _ := newStore(t)
	ctx := context.Background()

	state, err := s.Begin(ctx, "google", authstate.FlowLogin, nil, "")
	if err != nil {
		t.Fatalf("begin failed: %v", err)
	}

	if _, valid, err := s.Claim(ctx, "google", state); err != nil || !valid {
		t.Fatalf("first claim should succeed: valid=%v err=%v", valid, err)
	}
	if _, valid, err := s.Claim(ctx, "google", state); err != nil || valid {
		t.Errorf("second claim should be invalid: valid=%v err=%v", valid, err)
	}
}

func TestClaim_WrongProvider(t *testing.T) {
	s, _ := newStore(t)
	ctx := context.Background()

	state, err := s.Begin(ctx, "cas", authstate.FlowLogin, nil, "")
	if err != nil {
		t.Fatalf("begin failed: %v", err)
	}

	if _, valid, err := s.Claim(ctx, "google", state); err != nil || valid {
		t.Errorf("claim under another provider should be invalid: valid=%v err=%v", valid, err)
	}

	// The mismatch does not burn the token for the right provider.
	if _, valid, err := s.Claim(ctx, "cas", state); err != nil || !valid {
		t.Errorf("claim under the right provider should still succeed: valid=%v err=%v", valid, err)
	}
}

func TestClaim_Expired(t *testing.T) {
	s, fx := newStore(t)
	ctx := context.Background()

	expired := authstate.State{
		State:     "expired-state",
		Provider:  "cas",
		Flow:      authstate.FlowLogin,
		ExpiresAt: time.Now().UTC().Add(-time.Minute),
		CreatedAt: time.Now().UTC().Add(-time.Hour),
	}
	if _, err := fx.DB().Collection("auth_states").InsertOne(ctx, expired); err != nil {
		t.Fatalf("seed state failed: %v", err)
	}

	if _, valid, err := s.Claim(ctx, "cas", "expired-state"); err != nil || valid {
		t.Errorf("expired state should be invalid: valid=%v err=%v", valid, err)
	}
}

func TestCleanupExpired(t *testing.T) {
	s, fx := newStore(t)
	ctx := context.Background()

	for i, state := range []string{"old-1", "old-2"} {
		doc := authstate.State{
			State:     state,
			Provider:  "cas",
			Flow:      authstate.FlowLogin,
			ExpiresAt: time.Now().UTC().Add(-time.Duration(i+1) * time.Minute),
			CreatedAt: time.Now().UTC().Add(-time.Hour),
		}
		if _, err := fx.DB().Collection("auth_states").InsertOne(ctx, doc); err != nil {
			t.Fatalf("seed state failed: %v", err)
		}
	}
	if _, err := s.Begin(ctx, "cas", authstate.FlowLogin, nil, ""); err != nil {
		t.Fatalf("begin failed: %v", err)
	}

	removed, err := s.CleanupExpired(ctx)
	if err != nil {
		t.Fatalf("cleanup failed: %v", err)
	}
	if removed != 2 {
		t.Errorf("removed: got %d, want 2", removed)
	}
}
