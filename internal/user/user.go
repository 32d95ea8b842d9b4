package user

import "time"

type User struct {
	ID             string    `json:"id"`
	FirstName      string    `json:"first_name"`
	LastName       string    `json:"last_name"`
	Email          string    `json:"email"`
	CreatedAt      time.Time `json:"created_at"`
	ReferralCode   string    `json:"referral_code"`
	ReferredBy     *string   `json:"referred_by"`
	GivenReferrals []string  `json:"given_referrals"`
}

// ReferralCount is derived from the referral list; it is never stored.
func (u User) ReferralCount() int {
	return len(u.GivenReferrals)
}

func (u User) clone() User {
	out := u
	if u.ReferredBy != nil {
		ref := *u.ReferredBy
		out.ReferredBy = &ref
	}
	out.GivenReferrals = append(make([]string, 0, len(u.GivenReferrals)), u.GivenReferrals...)
	return out
}
