package domain

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	apperrors "github.com/DrOksusu/dba-portal-auth/pkg/errors"
)

func strPtr(s string) *string { return &s }

// ============================================================================
// Provider
// ============================================================================

func TestIsValidProvider(t *testing.T) {
	assert.True(t, IsValidProvider(ProviderGoogle))
	assert.True(t, IsValidProvider(ProviderKakao))
	assert.False(t, IsValidProvider("naver"))
	assert.False(t, IsValidProvider(""))
}

// ============================================================================
// User / SocialAccount
// ============================================================================

func TestNewUser_CopiesProfileDisplayData(t *testing.T) {
	now := time.Now()
	p := &OAuthProfile{Provider: ProviderKakao, ProviderID: "k1", Name: strPtr("Kim"), Email: strPtr("kim@example.com")}

	u := NewUser("u1", "01012345678", p, now)

	assert.Equal(t, "u1", u.ID)
	assert.Equal(t, "01012345678", u.Phone)
	assert.True(t, u.IsActive)
	assert.Equal(t, "Kim", *u.Name)
	assert.Equal(t, "kim@example.com", *u.Email)
	assert.Nil(t, u.ProfileImage)
	assert.Equal(t, now, u.CreatedAt)
}

func TestNewUser_WithoutProfile(t *testing.T) {
	u := NewUser("u1", "01012345678", nil, time.Now())
	assert.Nil(t, u.Name)
	assert.Nil(t, u.Email)
	assert.True(t, u.IsActive)
}

func TestSocialAccount_ApplyProfile(t *testing.T) {
	created := time.Now().Add(-time.Hour)
	a := NewSocialAccount("a1", "u1", &OAuthProfile{Provider: ProviderGoogle, ProviderID: "g1", Name: strPtr("old")}, created)

	later := time.Now()
	a.ApplyProfile(&OAuthProfile{Provider: ProviderGoogle, ProviderID: "g1", Name: strPtr("new"), Email: strPtr("n@example.com")}, later)

	assert.Equal(t, "new", *a.Name)
	assert.Equal(t, "n@example.com", *a.Email)
	assert.Equal(t, created, a.CreatedAt)
	assert.Equal(t, later, a.UpdatedAt)
	assert.Equal(t, "u1", a.UserID)
}

// ============================================================================
// Token / PhoneVerification
// ============================================================================

func TestJwtToken_IsExpired(t *testing.T) {
	now := time.Now()
	tok := &JwtToken{ExpiresAt: now}
	assert.True(t, tok.IsExpired(now))
	assert.False(t, tok.IsExpired(now.Add(-time.Second)))
}

func TestPhoneVerification_IsActionable(t *testing.T) {
	now := time.Now()
	tests := []struct {
		name string
		v    PhoneVerification
		want bool
	}{
		{"fresh", PhoneVerification{ExpiresAt: now.Add(time.Minute)}, true},
		{"verified", PhoneVerification{IsVerified: true, ExpiresAt: now.Add(time.Minute)}, false},
		{"superseded", PhoneVerification{IsSuperseded: true, ExpiresAt: now.Add(time.Minute)}, false},
		{"expired", PhoneVerification{ExpiresAt: now.Add(-time.Second)}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.v.IsActionable(now))
		})
	}
}

// ============================================================================
// Errors
// ============================================================================

func TestErrorKinds_Status(t *testing.T) {
	assert.Equal(t, http.StatusTooManyRequests, apperrors.HTTPStatus(ErrRateLimited))
	assert.Equal(t, http.StatusUnauthorized, apperrors.HTTPStatus(ErrInvalidRefreshToken))
	assert.Equal(t, http.StatusConflict, apperrors.HTTPStatus(ErrSocialAccountConflict))
	assert.Equal(t, http.StatusNotFound, apperrors.HTTPStatus(ErrUserNotFound))
}

func TestAccountInactive_LooksLikeUnauthorized(t *testing.T) {
	assert.Equal(t, "unauthorized", ErrAccountInactive.Message)
	assert.Equal(t, http.StatusUnauthorized, ErrAccountInactive.Status)
	assert.True(t, errors.Is(ErrAccountInactive, apperrors.ErrUnauthorized))
}

func TestStorageUnavailable_WrapsCause(t *testing.T) {
	cause := fmt.Errorf("connection reset")
	err := StorageUnavailable(cause)
	assert.Equal(t, "STORAGE_UNAVAILABLE", err.Code)
	assert.Equal(t, http.StatusServiceUnavailable, apperrors.HTTPStatus(err))
	assert.ErrorIs(t, err, cause)
}

func TestNotificationFailed_WrapsCause(t *testing.T) {
	cause := fmt.Errorf("gateway said no")
	err := NotificationFailed(cause)
	assert.Equal(t, http.StatusBadGateway, err.Status)
	assert.ErrorIs(t, err, cause)
}
