package domain

import (
	"net/http"

	apperrors "github.com/DrOksusu/dba-portal-auth/pkg/errors"
)

// Failure kinds returned by the identity and session engine. Callers compare
// with errors.Is; StorageUnavailable wraps its cause and is built per call.
var (
	ErrInvalidPhoneFormat      = apperrors.New("INVALID_PHONE_FORMAT", "invalid phone number format", http.StatusBadRequest)
	ErrRateLimited             = apperrors.New("RATE_LIMITED", "too many verification requests, try again later", http.StatusTooManyRequests)
	ErrPhoneVerificationFailed = apperrors.New("PHONE_VERIFICATION_FAILED", "phone verification failed", http.StatusBadRequest)
	ErrUserNotFound            = apperrors.New("USER_NOT_FOUND", "user not found", http.StatusNotFound)
	ErrInvalidToken            = apperrors.New("INVALID_TOKEN", "invalid token", http.StatusUnauthorized)
	ErrTokenExpired            = apperrors.New("TOKEN_EXPIRED", "token expired", http.StatusUnauthorized)
	ErrTokenRevoked            = apperrors.New("TOKEN_REVOKED", "token revoked", http.StatusUnauthorized)
	ErrInvalidRefreshToken     = apperrors.New("INVALID_REFRESH_TOKEN", "invalid refresh token", http.StatusUnauthorized)
	ErrAccountInactive         = apperrors.New("UNAUTHORIZED", "unauthorized", http.StatusUnauthorized)
	ErrSocialAccountConflict   = apperrors.New("SOCIAL_ACCOUNT_CONFLICT", "social account is linked to another user", http.StatusConflict)
)

// StorageUnavailable wraps a repository fault.
func StorageUnavailable(err error) *apperrors.AppError {
	e := apperrors.Unavailable("storage unavailable", err)
	e.Code = "STORAGE_UNAVAILABLE"
	return e
}

// NotificationFailed wraps a notifier fault.
func NotificationFailed(err error) *apperrors.AppError {
	e := apperrors.BadGateway("failed to deliver verification code", err)
	e.Code = "NOTIFICATION_FAILED"
	return e
}
