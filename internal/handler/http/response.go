package http

import (
	"time"

	"github.com/DrOksusu/dba-portal-auth/internal/domain"
	"github.com/DrOksusu/dba-portal-auth/internal/phone"
)

// UserResponse is the public view of a user. The phone is shown in display
// format; provider subject ids are never exposed.
type UserResponse struct {
	ID             string                  `json:"id"`
	Phone          string                  `json:"phone"`
	Name           *string                 `json:"name,omitempty"`
	Email          *string                 `json:"email,omitempty"`
	ProfileImage   *string                 `json:"profile_image,omitempty"`
	IsActive       bool                    `json:"is_active"`
	SocialAccounts []SocialAccountResponse `json:"social_accounts"`
	CreatedAt      time.Time               `json:"created_at"`
}

// SocialAccountResponse is the public view of a linked provider account.
type SocialAccountResponse struct {
	Provider     domain.Provider `json:"provider"`
	Email        *string         `json:"email,omitempty"`
	Name         *string         `json:"name,omitempty"`
	ProfileImage *string         `json:"profile_image,omitempty"`
	LinkedAt     time.Time       `json:"linked_at"`
}

// TokenResponse carries a freshly issued credential pair.
type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
}

// LoginResponse is returned by every login endpoint. When
// PhoneVerificationRequired is true only PendingToken is set.
type LoginResponse struct {
	User                      *UserResponse  `json:"user,omitempty"`
	Tokens                    *TokenResponse `json:"tokens,omitempty"`
	IsNewUser                 bool           `json:"is_new_user"`
	AccountLinked             bool           `json:"account_linked"`
	PhoneVerificationRequired bool           `json:"phone_verification_required"`
	PendingToken              string         `json:"pending_token,omitempty"`
}

func toUserResponse(u *domain.User) *UserResponse {
	if u == nil {
		return nil
	}
	accounts := make([]SocialAccountResponse, 0, len(u.SocialAccounts))
	for _, a := range u.SocialAccounts {
		accounts = append(accounts, SocialAccountResponse{
			Provider:     a.Provider,
			Email:        a.Email,
			Name:         a.Name,
			ProfileImage: a.ProfileImage,
			LinkedAt:     a.CreatedAt,
		})
	}
	return &UserResponse{
		ID:             u.ID,
		Phone:          phone.Format(u.Phone),
		Name:           u.Name,
		Email:          u.Email,
		ProfileImage:   u.ProfileImage,
		IsActive:       u.IsActive,
		SocialAccounts: accounts,
		CreatedAt:      u.CreatedAt,
	}
}

func toTokenResponse(p *domain.TokenPair) *TokenResponse {
	if p == nil {
		return nil
	}
	return &TokenResponse{AccessToken: p.AccessToken, RefreshToken: p.RefreshToken, TokenType: "Bearer"}
}

func toLoginResponse(res *domain.LoginResult) LoginResponse {
	return LoginResponse{
		User:                      toUserResponse(res.User),
		Tokens:                    toTokenResponse(res.Tokens),
		IsNewUser:                 res.IsNewUser,
		AccountLinked:             res.AccountLinked,
		PhoneVerificationRequired: res.PhoneVerificationRequired,
		PendingToken:              res.PendingToken,
	}
}
