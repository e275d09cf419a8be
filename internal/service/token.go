package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/DrOksusu/dba-portal-auth/internal/auth"
	"github.com/DrOksusu/dba-portal-auth/internal/domain"
	"github.com/DrOksusu/dba-portal-auth/internal/repository"
	apperrors "github.com/DrOksusu/dba-portal-auth/pkg/errors"
)

// TokenService issues, rotates, validates and revokes session token pairs.
// Every token is both signed and persisted, so it can be revoked before it
// expires.
type TokenService struct {
	tokens  repository.TokenRepository
	users   repository.UserRepository
	codec   *auth.Codec
	logger  *slog.Logger
	nowFunc func() time.Time
}

// NewTokenService creates a new token lifecycle service.
func NewTokenService(
	tokens repository.TokenRepository,
	users repository.UserRepository,
	codec *auth.Codec,
	logger *slog.Logger,
) *TokenService {
	return &TokenService{
		tokens:  tokens,
		users:   users,
		codec:   codec,
		logger:  logger,
		nowFunc: time.Now,
	}
}

// IssueSession revokes every outstanding token of the user and issues a new
// access/refresh pair in the same transaction.
func (s *TokenService) IssueSession(ctx context.Context, userID string) (*domain.TokenPair, error) {
	pair, records, err := s.mint(userID)
	if err != nil {
		return nil, err
	}

	if err := s.tokens.ReplaceForUser(ctx, userID, records...); err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, domain.ErrUserNotFound
		}
		return nil, storageErr("replace session tokens", err)
	}

	s.logger.InfoContext(ctx, "session issued", slog.String("user_id", userID))
	return pair, nil
}

// Refresh rotates a refresh token into a new pair. A refresh token can be
// used at most once; concurrent rotations of the same token let exactly one
// caller win.
func (s *TokenService) Refresh(ctx context.Context, refreshToken string) (*domain.TokenPair, error) {
	userID, err := s.codec.Verify(refreshToken, domain.TokenTypeRefresh)
	if err != nil {
		return nil, domain.ErrInvalidRefreshToken
	}

	hash := auth.HashToken(refreshToken)
	rec, err := s.tokens.GetByHash(ctx, hash, domain.TokenTypeRefresh)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, domain.ErrInvalidRefreshToken
		}
		return nil, storageErr("get refresh token", err)
	}
	if rec.IsRevoked || rec.IsExpired(s.nowFunc()) || rec.UserID != userID {
		s.logger.WarnContext(ctx, "refresh token rejected",
			slog.String("user_id", userID),
			slog.Bool("revoked", rec.IsRevoked),
		)
		return nil, domain.ErrInvalidRefreshToken
	}

	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, domain.ErrInvalidRefreshToken
		}
		return nil, storageErr("get user", err)
	}
	if !user.IsActive {
		return nil, domain.ErrAccountInactive
	}

	pair, records, err := s.mint(userID)
	if err != nil {
		return nil, err
	}

	if err := s.tokens.Rotate(ctx, hash, userID, records...); err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, domain.ErrInvalidRefreshToken
		}
		return nil, storageErr("rotate refresh token", err)
	}

	sessionsIssued.WithLabelValues("refresh").Inc()
	s.logger.InfoContext(ctx, "session refreshed", slog.String("user_id", userID))
	return pair, nil
}

// Validate returns the subject of a token that is correctly signed, of the
// expected kind, stored, unrevoked, unexpired and stored for that subject.
// Expected rejections are domain errors; only storage faults are wrapped.
func (s *TokenService) Validate(ctx context.Context, token string, kind domain.TokenType) (string, error) {
	userID, err := s.codec.Verify(token, kind)
	if err != nil {
		if errors.Is(err, auth.ErrExpired) {
			return "", domain.ErrTokenExpired
		}
		return "", domain.ErrInvalidToken
	}

	rec, err := s.tokens.GetByHash(ctx, auth.HashToken(token), kind)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return "", domain.ErrInvalidToken
		}
		return "", storageErr("get token", err)
	}

	switch {
	case rec.UserID != userID:
		return "", domain.ErrInvalidToken
	case rec.IsRevoked:
		return "", domain.ErrTokenRevoked
	case rec.IsExpired(s.nowFunc()):
		return "", domain.ErrTokenExpired
	}
	return userID, nil
}

// Revoke revokes the given token. Revoking an unknown or already revoked
// token is a no-op.
func (s *TokenService) Revoke(ctx context.Context, token string) error {
	if err := s.tokens.Revoke(ctx, auth.HashToken(token)); err != nil {
		return storageErr("revoke token", err)
	}
	return nil
}

// RevokeAll revokes every outstanding token of the user.
func (s *TokenService) RevokeAll(ctx context.Context, userID string) error {
	if err := s.tokens.RevokeByUserID(ctx, userID); err != nil {
		return storageErr("revoke user tokens", err)
	}
	s.logger.InfoContext(ctx, "all sessions revoked", slog.String("user_id", userID))
	return nil
}

// SweepExpired deletes token records that are past their expiry.
func (s *TokenService) SweepExpired(ctx context.Context) (int64, error) {
	n, err := s.tokens.DeleteExpired(ctx, s.nowFunc().UTC())
	if err != nil {
		return 0, storageErr("delete expired tokens", err)
	}
	tokensSwept.WithLabelValues("token").Add(float64(n))
	return n, nil
}

func (s *TokenService) mint(userID string) (*domain.TokenPair, []*domain.JwtToken, error) {
	now := s.nowFunc().UTC()
	pair := &domain.TokenPair{}
	records := make([]*domain.JwtToken, 0, 2)

	for _, kind := range []domain.TokenType{domain.TokenTypeAccess, domain.TokenTypeRefresh} {
		token, err := s.codec.Issue(userID, kind)
		if err != nil {
			return nil, nil, fmt.Errorf("issue %s token: %w", kind, err)
		}
		expiresAt, err := s.codec.ExpiryOf(token)
		if err != nil {
			return nil, nil, fmt.Errorf("read %s token expiry: %w", kind, err)
		}

		records = append(records, &domain.JwtToken{
			ID:        uuid.NewString(),
			UserID:    userID,
			TokenType: kind,
			TokenHash: auth.HashToken(token),
			ExpiresAt: expiresAt,
			CreatedAt: now,
		})
		if kind == domain.TokenTypeAccess {
			pair.AccessToken = token
		} else {
			pair.RefreshToken = token
		}
	}
	return pair, records, nil
}

func storageErr(op string, err error) error {
	return domain.StorageUnavailable(fmt.Errorf("%s: %w", op, err))
}
