package domain

import (
	"time"
)

// SocialAccount links a User to one external identity. The pair
// (Provider, ProviderID) is globally unique.
type SocialAccount struct {
	ID           string    `json:"id"`
	UserID       string    `json:"user_id"`
	Provider     Provider  `json:"provider"`
	ProviderID   string    `json:"-"`
	Email        *string   `json:"email,omitempty"`
	Name         *string   `json:"name,omitempty"`
	ProfileImage *string   `json:"profile_image,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// OAuthProfile is the payload an identity provider returns after consent.
// Phone is set only when the provider itself vouches for the number.
type OAuthProfile struct {
	Provider     Provider `json:"provider"`
	ProviderID   string   `json:"provider_id"`
	Email        *string  `json:"email,omitempty"`
	Name         *string  `json:"name,omitempty"`
	ProfileImage *string  `json:"profile_image,omitempty"`
	Phone        *string  `json:"phone,omitempty"`
}

// NewSocialAccount snapshots the profile into a link owned by userID.
func NewSocialAccount(id, userID string, p *OAuthProfile, now time.Time) *SocialAccount {
	return &SocialAccount{
		ID:           id,
		UserID:       userID,
		Provider:     p.Provider,
		ProviderID:   p.ProviderID,
		Email:        p.Email,
		Name:         p.Name,
		ProfileImage: p.ProfileImage,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

// ApplyProfile refreshes the snapshot fields from a newer provider profile.
func (a *SocialAccount) ApplyProfile(p *OAuthProfile, now time.Time) {
	a.Email = p.Email
	a.Name = p.Name
	a.ProfileImage = p.ProfileImage
	a.UpdatedAt = now
}
