package domain

import (
	"time"
)

// User is the identity anchor. Exactly one User exists per normalized phone.
type User struct {
	ID             string          `json:"id"`
	Phone          string          `json:"phone"`
	Name           *string         `json:"name,omitempty"`
	Email          *string         `json:"email,omitempty"`
	ProfileImage   *string         `json:"profile_image,omitempty"`
	IsActive       bool            `json:"is_active"`
	SocialAccounts []SocialAccount `json:"social_accounts,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// NewUser builds an active user for the given normalized phone, copying the
// optional display fields from the OAuth profile when one is supplied.
func NewUser(id, phone string, profile *OAuthProfile, now time.Time) *User {
	u := &User{
		ID:        id,
		Phone:     phone,
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if profile != nil {
		u.Name = profile.Name
		u.Email = profile.Email
		u.ProfileImage = profile.ProfileImage
	}
	return u
}
