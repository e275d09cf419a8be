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
	"github.com/DrOksusu/dba-portal-auth/internal/phone"
	"github.com/DrOksusu/dba-portal-auth/internal/repository"
	apperrors "github.com/DrOksusu/dba-portal-auth/pkg/errors"
)

// Login paths, used as the sessions metric label.
const (
	pathPhone          = "phone"
	pathProvider       = "provider"
	pathSocialComplete = "social_complete"
)

// PhoneVerifier is the part of the verification engine the linking engine needs.
type PhoneVerifier interface {
	CheckCode(ctx context.Context, phone, code string) (bool, error)
	IsPreviouslyVerified(ctx context.Context, phone string) (bool, error)
}

// SessionIssuer mints a new session for a user.
type SessionIssuer interface {
	IssueSession(ctx context.Context, userID string) (*domain.TokenPair, error)
}

// EventPublisher publishes auth domain events.
type EventPublisher interface {
	PublishUserRegistered(ctx context.Context, user *domain.User, provider domain.Provider) error
	PublishSocialLinked(ctx context.Context, userID string, provider domain.Provider) error
	PublishUserDeactivated(ctx context.Context, userID string) error
}

// IdentityService decides, for each login, whether it belongs to an existing
// account, a new account, or has to wait for phone verification.
type IdentityService struct {
	users    repository.UserRepository
	accounts repository.SocialAccountRepository
	verifier PhoneVerifier
	sessions SessionIssuer
	pending  *auth.PendingSigner
	events   EventPublisher
	logger   *slog.Logger
	nowFunc  func() time.Time
}

// NewIdentityService creates a new identity linking service.
func NewIdentityService(
	users repository.UserRepository,
	accounts repository.SocialAccountRepository,
	verifier PhoneVerifier,
	sessions SessionIssuer,
	pending *auth.PendingSigner,
	events EventPublisher,
	logger *slog.Logger,
) *IdentityService {
	return &IdentityService{
		users:    users,
		accounts: accounts,
		verifier: verifier,
		sessions: sessions,
		pending:  pending,
		events:   events,
		logger:   logger,
		nowFunc:  time.Now,
	}
}

// LoginWithProvider handles a profile returned by an OAuth provider.
//
// A known (provider, providerID) logs straight in. Otherwise a phone vouched
// for by the provider links to, or creates, the account owning that phone.
// Without one, the result asks for phone verification and carries the
// profile forward in PendingToken.
func (s *IdentityService) LoginWithProvider(ctx context.Context, profile *domain.OAuthProfile) (*domain.LoginResult, error) {
	if err := validateProfile(profile); err != nil {
		return nil, err
	}

	acct, err := s.accounts.GetByProvider(ctx, profile.Provider, profile.ProviderID)
	switch {
	case err == nil:
		return s.loginReturning(ctx, acct, profile)
	case !errors.Is(err, apperrors.ErrNotFound):
		return nil, storageErr("get social account", err)
	}

	if profile.Phone != nil {
		p := phone.Normalize(*profile.Phone)
		if phone.IsValid(p) {
			return s.onboard(ctx, p, profile, pathProvider)
		}
		s.logger.WarnContext(ctx, "ignoring unusable provider phone",
			slog.String("provider", string(profile.Provider)),
		)
	}

	token, err := s.pending.Sign(profile)
	if err != nil {
		return nil, apperrors.Internal(fmt.Errorf("sign pending profile: %w", err))
	}

	s.logger.InfoContext(ctx, "phone verification required",
		slog.String("provider", string(profile.Provider)),
	)
	return &domain.LoginResult{
		PhoneVerificationRequired: true,
		PendingToken:              token,
	}, nil
}

// OpenPending decodes a PendingToken issued by LoginWithProvider.
func (s *IdentityService) OpenPending(token string) (*domain.OAuthProfile, error) {
	profile, err := s.pending.Open(token)
	if err != nil {
		return nil, domain.ErrInvalidToken
	}
	return profile, nil
}

// CompleteWithVerifiedPhone finishes an OAuth login that needed phone
// verification. Either code must check out, or the phone must have been
// verified before; otherwise nothing is written.
func (s *IdentityService) CompleteWithVerifiedPhone(
	ctx context.Context,
	rawPhone, code string,
	profile *domain.OAuthProfile,
) (*domain.LoginResult, error) {
	if err := validateProfile(profile); err != nil {
		return nil, err
	}
	p := phone.Normalize(rawPhone)
	if !phone.IsValid(p) {
		return nil, domain.ErrInvalidPhoneFormat
	}

	verified := false
	if code != "" {
		ok, err := s.verifier.CheckCode(ctx, p, code)
		if err != nil {
			return nil, err
		}
		verified = ok
	}
	if !verified {
		ok, err := s.verifier.IsPreviouslyVerified(ctx, p)
		if err != nil {
			return nil, err
		}
		verified = ok
	}
	if !verified {
		return nil, domain.ErrPhoneVerificationFailed
	}

	return s.onboard(ctx, p, profile, pathSocialComplete)
}

// LoginWithPhone logs an existing user in with a fresh verification code.
func (s *IdentityService) LoginWithPhone(ctx context.Context, rawPhone, code string) (*domain.LoginResult, error) {
	p := phone.Normalize(rawPhone)
	if !phone.IsValid(p) {
		return nil, domain.ErrInvalidPhoneFormat
	}

	ok, err := s.verifier.CheckCode(ctx, p, code)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, domain.ErrPhoneVerificationFailed
	}

	user, err := s.users.GetByPhone(ctx, p)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, domain.ErrUserNotFound
		}
		return nil, storageErr("get user by phone", err)
	}
	if !user.IsActive {
		return nil, domain.ErrAccountInactive
	}

	tokens, err := s.issue(ctx, user, pathPhone)
	if err != nil {
		return nil, err
	}
	return &domain.LoginResult{User: user, Tokens: tokens}, nil
}

func (s *IdentityService) loginReturning(
	ctx context.Context,
	acct *domain.SocialAccount,
	profile *domain.OAuthProfile,
) (*domain.LoginResult, error) {
	acct.ApplyProfile(profile, s.nowFunc().UTC())
	if err := s.accounts.UpdateByProvider(ctx, acct); err != nil {
		return nil, storageErr("update social account", err)
	}

	user, err := s.users.GetByID(ctx, acct.UserID)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, domain.ErrUserNotFound
		}
		return nil, storageErr("get user", err)
	}
	if !user.IsActive {
		return nil, domain.ErrAccountInactive
	}

	tokens, err := s.issue(ctx, user, pathProvider)
	if err != nil {
		return nil, err
	}
	return &domain.LoginResult{User: user, Tokens: tokens}, nil
}

// onboard attaches the profile to the account owning phone, creating the
// account when none exists, and issues a session.
func (s *IdentityService) onboard(
	ctx context.Context,
	p string,
	profile *domain.OAuthProfile,
	path string,
) (*domain.LoginResult, error) {
	user, err := s.users.GetByPhone(ctx, p)
	switch {
	case err == nil:
		return s.linkExisting(ctx, user, profile, path)
	case !errors.Is(err, apperrors.ErrNotFound):
		return nil, storageErr("get user by phone", err)
	}

	now := s.nowFunc().UTC()
	user = domain.NewUser(uuid.NewString(), p, profile, now)
	acct := domain.NewSocialAccount(uuid.NewString(), user.ID, profile, now)

	if err := s.users.CreateWithSocialAccount(ctx, user, acct); err != nil {
		if !errors.Is(err, apperrors.ErrAlreadyExists) {
			return nil, storageErr("create user", err)
		}
		// Lost a race: either the phone or the external identity was taken
		// in the meantime.
		existing, gerr := s.users.GetByPhone(ctx, p)
		if gerr != nil {
			if errors.Is(gerr, apperrors.ErrNotFound) {
				return nil, domain.ErrSocialAccountConflict
			}
			return nil, storageErr("get user by phone", gerr)
		}
		return s.linkExisting(ctx, existing, profile, path)
	}
	user.SocialAccounts = []domain.SocialAccount{*acct}

	s.logger.InfoContext(ctx, "user registered",
		slog.String("user_id", user.ID),
		slog.String("provider", string(profile.Provider)),
	)
	if err := s.events.PublishUserRegistered(ctx, user, profile.Provider); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish user.registered event",
			slog.String("user_id", user.ID),
			slog.String("error", err.Error()),
		)
	}

	tokens, err := s.issue(ctx, user, path)
	if err != nil {
		return nil, err
	}
	return &domain.LoginResult{
		User:          user,
		Tokens:        tokens,
		IsNewUser:     true,
		AccountLinked: true,
	}, nil
}

func (s *IdentityService) linkExisting(
	ctx context.Context,
	user *domain.User,
	profile *domain.OAuthProfile,
	path string,
) (*domain.LoginResult, error) {
	if !user.IsActive {
		return nil, domain.ErrAccountInactive
	}

	linked, err := s.linkAccount(ctx, user, profile)
	if err != nil {
		return nil, err
	}

	tokens, err := s.issue(ctx, user, path)
	if err != nil {
		return nil, err
	}
	return &domain.LoginResult{User: user, Tokens: tokens, AccountLinked: linked}, nil
}

// linkAccount binds the external identity to user. It reports false when the
// identity was already bound to user and only its snapshot was refreshed.
// An identity bound to another user is never moved.
func (s *IdentityService) linkAccount(ctx context.Context, user *domain.User, profile *domain.OAuthProfile) (bool, error) {
	now := s.nowFunc().UTC()

	existing, err := s.accounts.GetByProvider(ctx, profile.Provider, profile.ProviderID)
	switch {
	case err == nil:
		return false, s.refreshOwned(ctx, user, existing, profile, now)
	case !errors.Is(err, apperrors.ErrNotFound):
		return false, storageErr("get social account", err)
	}

	acct := domain.NewSocialAccount(uuid.NewString(), user.ID, profile, now)
	if err := s.accounts.Create(ctx, acct); err != nil {
		if !errors.Is(err, apperrors.ErrAlreadyExists) {
			return false, storageErr("create social account", err)
		}
		existing, gerr := s.accounts.GetByProvider(ctx, profile.Provider, profile.ProviderID)
		if gerr != nil {
			return false, storageErr("get social account", gerr)
		}
		return false, s.refreshOwned(ctx, user, existing, profile, now)
	}

	s.logger.InfoContext(ctx, "social account linked",
		slog.String("user_id", user.ID),
		slog.String("provider", string(profile.Provider)),
	)
	if err := s.events.PublishSocialLinked(ctx, user.ID, profile.Provider); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish user.social_linked event",
			slog.String("user_id", user.ID),
			slog.String("error", err.Error()),
		)
	}
	return true, nil
}

func (s *IdentityService) refreshOwned(
	ctx context.Context,
	user *domain.User,
	acct *domain.SocialAccount,
	profile *domain.OAuthProfile,
	now time.Time,
) error {
	if acct.UserID != user.ID {
		s.logger.WarnContext(ctx, "social account owned by another user",
			slog.String("user_id", user.ID),
			slog.String("provider", string(profile.Provider)),
		)
		return domain.ErrSocialAccountConflict
	}
	acct.ApplyProfile(profile, now)
	if err := s.accounts.UpdateByProvider(ctx, acct); err != nil {
		return storageErr("update social account", err)
	}
	return nil
}

func (s *IdentityService) issue(ctx context.Context, user *domain.User, path string) (*domain.TokenPair, error) {
	tokens, err := s.sessions.IssueSession(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	sessionsIssued.WithLabelValues(path).Inc()
	return tokens, nil
}

func validateProfile(profile *domain.OAuthProfile) error {
	if profile == nil {
		return apperrors.InvalidInput("oauth profile is required")
	}
	if !domain.IsValidProvider(profile.Provider) {
		return apperrors.InvalidInput(fmt.Sprintf("unsupported provider %q", profile.Provider))
	}
	if profile.ProviderID == "" {
		return apperrors.InvalidInput("provider id is required")
	}
	return nil
}
