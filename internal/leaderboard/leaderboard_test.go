package leaderboard

import (
	"testing"
	"time"

	"github.com/wichananm65/referral-tracker/internal/user"
)

func referrer(id string, created time.Time, n int) user.User {
	given := make([]string, n)
	for i := range given {
		given[i] = id + "-friend@example.com"
	}
	return user.User{
		ID:             id,
		FirstName:      "F" + id,
		LastName:       "L" + id,
		Email:          id + "@example.com",
		CreatedAt:      created,
		ReferralCode:   "CODE" + id,
		GivenReferrals: given,
	}
}

func TestTop_TiesGoToEarliestCreated(t *testing.T) {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	users := []user.User{
		referrer("a", base.Add(2*time.Hour), 3),
		referrer("b", base.Add(time.Hour), 1),
		referrer("c", base, 3),
		referrer("d", base.Add(3*time.Hour), 0),
	}

	got, found := Top(users)
	if !found {
		t.Fatalf("expected a top referrer")
	}
	if got.User.ID != "c" || got.Count != 3 {
		t.Fatalf("expected c with 3, got %s with %d", got.User.ID, got.Count)
	}
}

func TestTop_OrderIndependent(t *testing.T) {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	users := []user.User{
		referrer("z", base, 2),
		referrer("y", base, 2),
		referrer("x", base.Add(time.Minute), 5),
	}
	reversed := []user.User{users[2], users[1], users[0]}

	a, _ := Top(users)
	b, _ := Top(reversed)
	if a.User.ID != b.User.ID || a.User.ID != "x" {
		t.Fatalf("expected x regardless of order, got %s and %s", a.User.ID, b.User.ID)
	}

	users[2].GivenReferrals = users[2].GivenReferrals[:1]
	reversed[0] = users[2]
	a, _ = Top(users)
	b, _ = Top(reversed)
	if a.User.ID != "y" || b.User.ID != "y" {
		t.Fatalf("expected id tie-break to pick y, got %s and %s", a.User.ID, b.User.ID)
	}
}

func TestTop_Empty(t *testing.T) {
	if _, found := Top(nil); found {
		t.Fatalf("expected empty result for no users")
	}

	base := time.Now()
	if _, found := Top([]user.User{referrer("a", base, 0), referrer("b", base, 0)}); found {
		t.Fatalf("expected empty result when every count is zero")
	}
}
