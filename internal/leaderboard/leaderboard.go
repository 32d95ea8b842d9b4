package leaderboard

import (
	"time"

	"github.com/wichananm65/referral-tracker/internal/user"
)

// Summary is the public view of the top referrer.
type Summary struct {
	ID           string    `json:"id"`
	FirstName    string    `json:"first_name"`
	LastName     string    `json:"last_name"`
	Email        string    `json:"email"`
	CreatedAt    time.Time `json:"created_at"`
	ReferralCode string    `json:"referral_code"`
}

type Standing struct {
	User  Summary `json:"user"`
	Count int     `json:"count"`
}

// Result is what gets cached. Found is false for the empty leaderboard.
type Result struct {
	Standing Standing `json:"standing"`
	Found    bool     `json:"found"`
}

func summaryOf(u user.User) Summary {
	return Summary{
		ID:           u.ID,
		FirstName:    u.FirstName,
		LastName:     u.LastName,
		Email:        u.Email,
		CreatedAt:    u.CreatedAt,
		ReferralCode: u.ReferralCode,
	}
}

// Top reduces users to the one with the most given referrals. Ties go to the
// earliest created_at, then to the smallest id. Users with no referrals never
// win, so found is false when nobody has referred anyone.
func Top(users []user.User) (Standing, bool) {
	var (
		best  user.User
		count int
	)
	for _, u := range users {
		n := u.ReferralCount()
		if n == 0 {
			continue
		}
		if count == 0 || outranks(u, n, best, count) {
			best, count = u, n
		}
	}
	if count == 0 {
		return Standing{}, false
	}
	return Standing{User: summaryOf(best), Count: count}, true
}

func outranks(u user.User, n int, best user.User, bestCount int) bool {
	if n != bestCount {
		return n > bestCount
	}
	if !u.CreatedAt.Equal(best.CreatedAt) {
		return u.CreatedAt.Before(best.CreatedAt)
	}
	return u.ID < best.ID
}
