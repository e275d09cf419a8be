package domain

import (
	"time"
)

// PhoneVerification is a single proof-of-possession challenge for a phone.
// A superseded challenge can no longer be matched but still counts toward
// the request rate window until it is swept.
type PhoneVerification struct {
	ID               string    `json:"id"`
	Phone            string    `json:"phone"`
	VerificationCode string    `json:"-"`
	IsVerified       bool      `json:"is_verified"`
	IsSuperseded     bool      `json:"is_superseded"`
	ExpiresAt        time.Time `json:"expires_at"`
	CreatedAt        time.Time `json:"created_at"`
}

// IsActionable reports whether the challenge can still be matched at now.
func (v *PhoneVerification) IsActionable(now time.Time) bool {
	return !v.IsVerified && !v.IsSuperseded && now.Before(v.ExpiresAt)
}
