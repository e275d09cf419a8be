package repository

import (
	"context"
	"time"

	"github.com/DrOksusu/dba-portal-auth/internal/domain"
)

// UserRepository defines the interface for user persistence operations.
type UserRepository interface {
	// GetByID retrieves a user by their unique identifier.
	GetByID(ctx context.Context, id string) (*domain.User, error)

	// GetByPhone retrieves a user by their normalized phone number.
	GetByPhone(ctx context.Context, phone string) (*domain.User, error)

	// CreateWithSocialAccount inserts a user and its first social account
	// in one transaction.
	CreateWithSocialAccount(ctx context.Context, user *domain.User, account *domain.SocialAccount) error

	// Update modifies the display fields of an existing user.
	Update(ctx context.Context, user *domain.User) error

	// Deactivate clears the active flag of a user, stamping UpdatedAt with at.
	Deactivate(ctx context.Context, id string, at time.Time) error
}

// SocialAccountRepository defines the interface for social account links.
type SocialAccountRepository interface {
	// GetByProvider retrieves the link for (provider, providerID).
	GetByProvider(ctx context.Context, provider domain.Provider, providerID string) (*domain.SocialAccount, error)

	// ListByUserID returns every link owned by the user.
	ListByUserID(ctx context.Context, userID string) ([]domain.SocialAccount, error)

	// Create inserts a new link. A duplicate (provider, providerID) yields
	// apperrors.ErrAlreadyExists.
	Create(ctx context.Context, account *domain.SocialAccount) error

	// UpdateByProvider refreshes the profile snapshot of an existing link.
	UpdateByProvider(ctx context.Context, account *domain.SocialAccount) error
}

// TokenRepository defines the interface for issued credential records.
// Tokens are addressed by their SHA256 hash.
type TokenRepository interface {
	// ReplaceForUser revokes every unrevoked token of the user and stores
	// the given tokens, atomically.
	ReplaceForUser(ctx context.Context, userID string, tokens ...*domain.JwtToken) error

	// Rotate revokes the presented refresh token only if it is still valid
	// and owned by userID, then behaves like ReplaceForUser. It returns
	// apperrors.ErrNotFound when the refresh token was not valid.
	Rotate(ctx context.Context, refreshHash, userID string, tokens ...*domain.JwtToken) error

	// GetByHash retrieves a token record of the given type.
	GetByHash(ctx context.Context, tokenHash string, tokenType domain.TokenType) (*domain.JwtToken, error)

	// Revoke revokes one unrevoked token. Revoking twice is a no-op.
	Revoke(ctx context.Context, tokenHash string) error

	// RevokeByUserID revokes every unrevoked token of the user.
	RevokeByUserID(ctx context.Context, userID string) error

	// DeleteExpired removes records whose expiry has passed and returns
	// how many were removed.
	DeleteExpired(ctx context.Context, before time.Time) (int64, error)
}

// PhoneVerificationRepository defines the interface for verification challenges.
type PhoneVerificationRepository interface {
	// SupersedeUnverified marks every unverified challenge for the phone as
	// superseded. Superseded rows still count toward CountSince.
	SupersedeUnverified(ctx context.Context, phone string) error

	// Create stores a new challenge.
	Create(ctx context.Context, v *domain.PhoneVerification) error

	// FindValidMatch returns the unverified, unsuperseded, unexpired challenge
	// matching phone and code.
	FindValidMatch(ctx context.Context, phone, code string, now time.Time) (*domain.PhoneVerification, error)

	// MarkVerified flips a challenge that is still open at now (unverified,
	// not superseded, unexpired) to verified. It reports false otherwise,
	// including when another caller verified it first.
	MarkVerified(ctx context.Context, id string, now time.Time) (bool, error)

	// DeleteExpiredFor removes expired unverified challenges for the phone.
	DeleteExpiredFor(ctx context.Context, phone string, now time.Time) error

	// CountSince counts challenges created for the phone at or after since.
	CountSince(ctx context.Context, phone string, since time.Time) (int, error)

	// FindMostRecentVerified returns the newest verified challenge for the phone.
	FindMostRecentVerified(ctx context.Context, phone string) (*domain.PhoneVerification, error)

	// DeleteStale removes expired challenges that were never verified and
	// returns how many were removed.
	DeleteStale(ctx context.Context, now time.Time) (int64, error)
}

// SendThrottle is an atomic per-phone log of granted code requests.
type SendThrottle interface {
	// Allow records a send for phone if fewer than limit were recorded in the
	// trailing window and reports whether it did. Refusals are not recorded.
	Allow(ctx context.Context, phone string, limit int, window time.Duration) (bool, error)
}
