package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DrOksusu/dba-portal-auth/internal/domain"
)

func testPendingKey(t *testing.T) []byte {
	t.Helper()
	key, err := DeriveKey(testAccessSecret, "pending-profile")
	require.NoError(t, err)
	return key
}

func TestPendingSigner_RoundTrip(t *testing.T) {
	s := NewPendingSigner(testPendingKey(t), 10*time.Minute)
	name := "Hong"
	profile := &domain.OAuthProfile{Provider: domain.ProviderGoogle, ProviderID: "g1", Name: &name}

	tok, err := s.Sign(profile)
	require.NoError(t, err)

	got, err := s.Open(tok)
	require.NoError(t, err)
	assert.Equal(t, domain.ProviderGoogle, got.Provider)
	assert.Equal(t, "g1", got.ProviderID)
	require.NotNil(t, got.Name)
	assert.Equal(t, "Hong", *got.Name)
	assert.Nil(t, got.Phone)
}

func TestPendingSigner_Expired(t *testing.T) {
	s := NewPendingSigner(testPendingKey(t), 10*time.Minute).
		WithClock(func() time.Time { return time.Now().Add(-11 * time.Minute) })

	tok, err := s.Sign(&domain.OAuthProfile{Provider: domain.ProviderKakao, ProviderID: "k1"})
	require.NoError(t, err)

	s.WithClock(time.Now)
	_, err = s.Open(tok)
	assert.ErrorIs(t, err, ErrExpired)
}

func TestPendingSigner_RejectsSessionToken(t *testing.T) {
	key := testPendingKey(t)
	s := NewPendingSigner(key, time.Minute)
	c := NewCodec(string(key), testRefreshSecret, time.Minute, time.Hour)

	access, err := c.Issue("user-1", domain.TokenTypeAccess)
	require.NoError(t, err)

	_, err = s.Open(access)
	assert.ErrorIs(t, err, ErrWrongKind)
}

func TestPendingSigner_Tampered(t *testing.T) {
	s := NewPendingSigner(testPendingKey(t), time.Minute)
	tok, err := s.Sign(&domain.OAuthProfile{Provider: domain.ProviderGoogle, ProviderID: "g1"})
	require.NoError(t, err)

	_, err = s.Open(tok + "x")
	assert.ErrorIs(t, err, ErrInvalidSignature)
}

func TestPendingSigner_NilProfile(t *testing.T) {
	s := NewPendingSigner(testPendingKey(t), time.Minute)
	_, err := s.Sign(nil)
	assert.Error(t, err)
}

func TestDeriveKey(t *testing.T) {
	a, err := DeriveKey("secret", "pending-profile")
	require.NoError(t, err)
	b, err := DeriveKey("secret", "pending-profile")
	require.NoError(t, err)
	c, err := DeriveKey("secret", "other")
	require.NoError(t, err)

	assert.Len(t, a, 32)
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
}
