package auth

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/hkdf"

	"github.com/DrOksusu/dba-portal-auth/internal/domain"
)

const pendingKind = "pending"

// PendingClaims carries an OAuth profile between the provider callback and
// the phone verification completion step.
type PendingClaims struct {
	Kind    string              `json:"typ"`
	Profile domain.OAuthProfile `json:"profile"`
	jwt.RegisteredClaims
}

// PendingSigner issues and opens short-lived pending-profile tokens.
type PendingSigner struct {
	key     []byte
	expiry  time.Duration
	nowFunc func() time.Time
}

// NewPendingSigner creates a signer with its own key.
func NewPendingSigner(key []byte, expiry time.Duration) *PendingSigner {
	return &PendingSigner{key: key, expiry: expiry, nowFunc: time.Now}
}

// WithClock replaces the time source. Used by tests.
func (s *PendingSigner) WithClock(now func() time.Time) *PendingSigner {
	s.nowFunc = now
	return s
}

// Sign wraps profile into a signed token.
func (s *PendingSigner) Sign(profile *domain.OAuthProfile) (string, error) {
	if profile == nil {
		return "", fmt.Errorf("pending profile is nil")
	}

	now := s.nowFunc().UTC()
	claims := &PendingClaims{
		Kind:    pendingKind,
		Profile: *profile,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   string(profile.Provider) + ":" + profile.ProviderID,
			Issuer:    issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.expiry)),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.key)
	if err != nil {
		return "", fmt.Errorf("sign pending token: %w", err)
	}
	return signed, nil
}

// Open verifies token and returns the profile it carries.
func (s *PendingSigner) Open(token string) (*domain.OAuthProfile, error) {
	p := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.nowFunc),
	)

	claims := &PendingClaims{}
	if _, err := p.ParseWithClaims(token, claims, hmacKey(s.key)); err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpired
		}
		return nil, ErrInvalidSignature
	}
	if claims.Kind != pendingKind {
		return nil, ErrWrongKind
	}
	if !domain.IsValidProvider(claims.Profile.Provider) || claims.Profile.ProviderID == "" {
		return nil, ErrInvalidSignature
	}

	profile := claims.Profile
	return &profile, nil
}

// DeriveKey expands secret into a 32-byte key bound to info with HKDF-SHA256.
func DeriveKey(secret, info string) ([]byte, error) {
	key := make([]byte, 32)
	r := hkdf.New(sha256.New, []byte(secret), nil, []byte(info))
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, fmt.Errorf("derive %s key: %w", info, err)
	}
	return key, nil
}
