package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/DrOksusu/dba-portal-auth/internal/domain"
	"github.com/DrOksusu/dba-portal-auth/internal/phone"
	"github.com/DrOksusu/dba-portal-auth/internal/repository"
	apperrors "github.com/DrOksusu/dba-portal-auth/pkg/errors"
)

// Notifier delivers a verification code to a phone number. A nil error means
// the channel accepted the message.
type Notifier interface {
	Send(ctx context.Context, phone, code string) error
}

// VerificationConfig holds the phone verification policy.
type VerificationConfig struct {
	CodeTTL    time.Duration
	RateWindow time.Duration
	RateMax    int
}

// DefaultVerificationConfig returns a 5 minute code lifetime and at most
// 3 requests per phone per minute.
func DefaultVerificationConfig() VerificationConfig {
	return VerificationConfig{
		CodeTTL:    5 * time.Minute,
		RateWindow: time.Minute,
		RateMax:    3,
	}
}

// VerificationService proves possession of a phone number with one-time codes.
type VerificationService struct {
	repo     repository.PhoneVerificationRepository
	throttle repository.SendThrottle
	notifier Notifier
	cfg      VerificationConfig
	logger   *slog.Logger

	nowFunc      func() time.Time
	generateCode func() (string, error)
}

// NewVerificationService creates a new phone verification service. throttle
// may be nil, in which case only the stored request count is enforced.
func NewVerificationService(
	repo repository.PhoneVerificationRepository,
	throttle repository.SendThrottle,
	notifier Notifier,
	cfg VerificationConfig,
	logger *slog.Logger,
) *VerificationService {
	return &VerificationService{
		repo:         repo,
		throttle:     throttle,
		notifier:     notifier,
		cfg:          cfg,
		logger:       logger,
		nowFunc:      time.Now,
		generateCode: phone.GenerateCode,
	}
}

// RequestCode issues a new code for the phone, superseding any open one, and
// sends it through the notifier.
func (s *VerificationService) RequestCode(ctx context.Context, rawPhone string) error {
	p := phone.Normalize(rawPhone)
	if !phone.IsValid(p) {
		return domain.ErrInvalidPhoneFormat
	}
	now := s.nowFunc().UTC()

	n, err := s.repo.CountSince(ctx, p, now.Add(-s.cfg.RateWindow))
	if err != nil {
		return storageErr("count verification requests", err)
	}
	if n >= s.cfg.RateMax {
		return s.rateLimited(ctx, p)
	}

	// The throttle records a slot only when it grants one, so it runs after
	// every other rejection.
	if s.throttle != nil {
		ok, err := s.throttle.Allow(ctx, p, s.cfg.RateMax, s.cfg.RateWindow)
		switch {
		case err != nil:
			s.logger.WarnContext(ctx, "send throttle unavailable, falling back to stored count",
				slog.String("error", err.Error()),
			)
		case !ok:
			return s.rateLimited(ctx, p)
		}
	}

	if err := s.repo.SupersedeUnverified(ctx, p); err != nil {
		return storageErr("supersede verifications", err)
	}

	code, err := s.generateCode()
	if err != nil {
		return apperrors.Internal(err)
	}

	v := &domain.PhoneVerification{
		ID:               uuid.NewString(),
		Phone:            p,
		VerificationCode: code,
		ExpiresAt:        now.Add(s.cfg.CodeTTL),
		CreatedAt:        now,
	}
	if err := s.repo.Create(ctx, v); err != nil {
		return storageErr("create verification", err)
	}

	if err := s.notifier.Send(ctx, p, code); err != nil {
		s.logger.ErrorContext(ctx, "failed to send verification code",
			slog.String("phone", phone.Mask(p)),
			slog.String("error", err.Error()),
		)
		return domain.NotificationFailed(err)
	}

	verificationCodesSent.Inc()
	s.logger.InfoContext(ctx, "verification code sent", slog.String("phone", phone.Mask(p)))
	return nil
}

// CheckCode reports whether code matches an open challenge for the phone and
// consumes it. A wrong, expired or already used code yields false, not an error.
func (s *VerificationService) CheckCode(ctx context.Context, rawPhone, code string) (bool, error) {
	p := phone.Normalize(rawPhone)
	if !phone.IsValid(p) {
		return false, domain.ErrInvalidPhoneFormat
	}
	now := s.nowFunc().UTC()

	v, err := s.repo.FindValidMatch(ctx, p, code, now)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			verificationChecks.WithLabelValues("mismatch").Inc()
			return false, nil
		}
		return false, storageErr("find verification", err)
	}

	won, err := s.repo.MarkVerified(ctx, v.ID, now)
	if err != nil {
		return false, storageErr("mark verification verified", err)
	}
	if !won {
		// Used, superseded or expired since the lookup.
		verificationChecks.WithLabelValues("already_used").Inc()
		return false, nil
	}

	if err := s.repo.DeleteExpiredFor(ctx, p, now); err != nil {
		s.logger.WarnContext(ctx, "failed to clean up expired verifications",
			slog.String("phone", phone.Mask(p)),
			slog.String("error", err.Error()),
		)
	}

	verificationChecks.WithLabelValues("verified").Inc()
	s.logger.InfoContext(ctx, "phone verified", slog.String("phone", phone.Mask(p)))
	return true, nil
}

// IsPreviouslyVerified reports whether the phone has ever passed verification.
// The trust does not expire.
func (s *VerificationService) IsPreviouslyVerified(ctx context.Context, rawPhone string) (bool, error) {
	p := phone.Normalize(rawPhone)
	if !phone.IsValid(p) {
		return false, domain.ErrInvalidPhoneFormat
	}

	if _, err := s.repo.FindMostRecentVerified(ctx, p); err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return false, nil
		}
		return false, storageErr("find verified phone", err)
	}
	return true, nil
}

// SweepExpired deletes challenges that expired without being verified.
func (s *VerificationService) SweepExpired(ctx context.Context) (int64, error) {
	n, err := s.repo.DeleteStale(ctx, s.nowFunc().UTC())
	if err != nil {
		return 0, storageErr("delete stale verifications", err)
	}
	tokensSwept.WithLabelValues("verification").Add(float64(n))
	return n, nil
}

func (s *VerificationService) rateLimited(ctx context.Context, p string) error {
	verificationRateLimited.Inc()
	s.logger.WarnContext(ctx, "verification request rate limited", slog.String("phone", phone.Mask(p)))
	return domain.ErrRateLimited
}
