package domain

import (
	"time"
)

// TokenType distinguishes access credentials from refresh credentials.
type TokenType string

const (
	TokenTypeAccess  TokenType = "access"
	TokenTypeRefresh TokenType = "refresh"
)

// JwtToken is the persisted, revocable record of an issued credential.
// Only the SHA-256 digest of the credential is stored.
type JwtToken struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	TokenType TokenType `json:"token_type"`
	TokenHash string    `json:"-"`
	IsRevoked bool      `json:"is_revoked"`
	ExpiresAt time.Time `json:"expires_at"`
	CreatedAt time.Time `json:"created_at"`
}

// IsExpired reports whether the record is past its expiry at now.
func (t *JwtToken) IsExpired(now time.Time) bool {
	return !now.Before(t.ExpiresAt)
}

// TokenPair holds an access and refresh token pair.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}
