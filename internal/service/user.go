package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/DrOksusu/dba-portal-auth/internal/domain"
	"github.com/DrOksusu/dba-portal-auth/internal/repository"
	apperrors "github.com/DrOksusu/dba-portal-auth/pkg/errors"
)

// SessionTokens is the part of the token lifecycle the user operations need.
type SessionTokens interface {
	Validate(ctx context.Context, token string, kind domain.TokenType) (string, error)
	Revoke(ctx context.Context, token string) error
	RevokeAll(ctx context.Context, userID string) error
}

// UpdateProfileInput holds the optional display fields a user may change.
// Nil leaves a field unchanged; an empty string clears it.
type UpdateProfileInput struct {
	Name  *string `json:"name" validate:"omitempty,max=100"`
	Email *string `json:"email" validate:"omitempty,email,max=255"`
}

// UserService implements account operations on an authenticated user.
type UserService struct {
	users    repository.UserRepository
	accounts repository.SocialAccountRepository
	tokens   SessionTokens
	events   EventPublisher
	logger   *slog.Logger
	nowFunc  func() time.Time
}

// NewUserService creates a new user service.
func NewUserService(
	users repository.UserRepository,
	accounts repository.SocialAccountRepository,
	tokens SessionTokens,
	events EventPublisher,
	logger *slog.Logger,
) *UserService {
	return &UserService{
		users:    users,
		accounts: accounts,
		tokens:   tokens,
		events:   events,
		logger:   logger,
		nowFunc:  time.Now,
	}
}

// GetUser returns the user with its linked social accounts.
func (s *UserService) GetUser(ctx context.Context, id string) (*domain.User, error) {
	user, err := s.getUser(ctx, id)
	if err != nil {
		return nil, err
	}

	accounts, err := s.accounts.ListByUserID(ctx, id)
	if err != nil {
		return nil, storageErr("list social accounts", err)
	}
	user.SocialAccounts = accounts
	return user, nil
}

// UpdateProfile changes the user's display fields.
func (s *UserService) UpdateProfile(ctx context.Context, id string, input UpdateProfileInput) (*domain.User, error) {
	user, err := s.getUser(ctx, id)
	if err != nil {
		return nil, err
	}

	if input.Name != nil {
		user.Name = optional(*input.Name)
	}
	if input.Email != nil {
		user.Email = optional(*input.Email)
	}
	user.UpdatedAt = s.nowFunc().UTC()

	if err := s.users.Update(ctx, user); err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, domain.ErrUserNotFound
		}
		return nil, storageErr("update user", err)
	}

	s.logger.InfoContext(ctx, "user profile updated", slog.String("user_id", id))
	return user, nil
}

// Deactivate soft-deletes the user and revokes all of its sessions.
func (s *UserService) Deactivate(ctx context.Context, id string) error {
	if err := s.users.Deactivate(ctx, id, s.nowFunc().UTC()); err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return domain.ErrUserNotFound
		}
		return storageErr("deactivate user", err)
	}
	if err := s.tokens.RevokeAll(ctx, id); err != nil {
		return err
	}

	s.logger.InfoContext(ctx, "user deactivated", slog.String("user_id", id))
	if err := s.events.PublishUserDeactivated(ctx, id); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish user.deactivated event",
			slog.String("user_id", id),
			slog.String("error", err.Error()),
		)
	}
	return nil
}

// Logout revokes the presented token and every other token of the user.
func (s *UserService) Logout(ctx context.Context, userID, token string) error {
	if token != "" {
		if err := s.tokens.Revoke(ctx, token); err != nil {
			return err
		}
	}
	if err := s.tokens.RevokeAll(ctx, userID); err != nil {
		return err
	}
	s.logger.InfoContext(ctx, "user logged out", slog.String("user_id", userID))
	return nil
}

// SessionSubject resolves an access token to the active user it belongs to.
// A deactivated user is rejected like an invalid token.
func (s *UserService) SessionSubject(ctx context.Context, token string) (*domain.User, error) {
	userID, err := s.tokens.Validate(ctx, token, domain.TokenTypeAccess)
	if err != nil {
		return nil, err
	}

	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, domain.ErrInvalidToken
		}
		return nil, storageErr("get user", err)
	}
	if !user.IsActive {
		return nil, domain.ErrAccountInactive
	}
	return user, nil
}

func (s *UserService) getUser(ctx context.Context, id string) (*domain.User, error) {
	user, err := s.users.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, domain.ErrUserNotFound
		}
		return nil, storageErr("get user", err)
	}
	return user, nil
}

func optional(v string) *string {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil
	}
	return &v
}
