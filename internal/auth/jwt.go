package auth

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/DrOksusu/dba-portal-auth/internal/domain"
)

const issuer = "dba-portal-auth"

// Codec failures. Verify returns exactly one of these for any token it rejects.
var (
	ErrInvalidSignature = errors.New("invalid token signature")
	ErrExpired          = errors.New("token expired")
	ErrWrongKind        = errors.New("wrong token kind")
)

// Claims is the payload of every session credential.
type Claims struct {
	Kind domain.TokenType `json:"typ"`
	jwt.RegisteredClaims
}

// Codec signs and verifies access and refresh tokens. Each kind has its own
// key, so a token of one kind never verifies as the other.
type Codec struct {
	keys    map[domain.TokenType][]byte
	expiry  map[domain.TokenType]time.Duration
	nowFunc func() time.Time
}

// NewCodec creates a codec with per-kind secrets and lifetimes.
func NewCodec(accessSecret, refreshSecret string, accessExpiry, refreshExpiry time.Duration) *Codec {
	return &Codec{
		keys: map[domain.TokenType][]byte{
			domain.TokenTypeAccess:  []byte(accessSecret),
			domain.TokenTypeRefresh: []byte(refreshSecret),
		},
		expiry: map[domain.TokenType]time.Duration{
			domain.TokenTypeAccess:  accessExpiry,
			domain.TokenTypeRefresh: refreshExpiry,
		},
		nowFunc: time.Now,
	}
}

// WithClock replaces the time source. Used by tests.
func (c *Codec) WithClock(now func() time.Time) *Codec {
	c.nowFunc = now
	return c
}

// Issue mints a signed token of the given kind for subject.
func (c *Codec) Issue(subject string, kind domain.TokenType) (string, error) {
	key, ok := c.keys[kind]
	if !ok {
		return "", fmt.Errorf("unknown token kind %q", kind)
	}

	now := c.nowFunc().UTC()
	claims := &Claims{
		Kind: kind,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   subject,
			Issuer:    issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(c.expiry[kind])),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(key)
	if err != nil {
		return "", fmt.Errorf("sign %s token: %w", kind, err)
	}
	return signed, nil
}

// Verify checks the signature, expiry and kind of token and returns its subject.
func (c *Codec) Verify(token string, kind domain.TokenType) (string, error) {
	key, ok := c.keys[kind]
	if !ok {
		return "", ErrWrongKind
	}

	claims := &Claims{}
	_, err := c.parser().ParseWithClaims(token, claims, hmacKey(key))
	switch {
	case err == nil:
	case errors.Is(err, jwt.ErrTokenExpired):
		return "", ErrExpired
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		if c.verifiesAsOther(token, kind) {
			return "", ErrWrongKind
		}
		return "", ErrInvalidSignature
	default:
		return "", ErrInvalidSignature
	}

	if claims.Kind != kind {
		return "", ErrWrongKind
	}
	if claims.Subject == "" {
		return "", ErrInvalidSignature
	}
	return claims.Subject, nil
}

// ExpiryOf reads the embedded expiry without checking the signature. It must
// only be called on tokens this codec has just issued or verified.
func (c *Codec) ExpiryOf(token string) (time.Time, error) {
	claims := &Claims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return time.Time{}, fmt.Errorf("parse token expiry: %w", err)
	}
	if claims.ExpiresAt == nil {
		return time.Time{}, fmt.Errorf("token has no expiry")
	}
	return claims.ExpiresAt.Time, nil
}

func (c *Codec) verifiesAsOther(token string, kind domain.TokenType) bool {
	for k, key := range c.keys {
		if k == kind {
			continue
		}
		p := jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithoutClaimsValidation())
		if _, err := p.ParseWithClaims(token, &Claims{}, hmacKey(key)); err == nil {
			return true
		}
	}
	return false
}

func (c *Codec) parser() *jwt.Parser {
	return jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(c.nowFunc),
	)
}

func hmacKey(key []byte) jwt.Keyfunc {
	return func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return key, nil
	}
}

// HashToken returns the SHA256 hex digest stored in place of the token.
func HashToken(token string) string {
	h := sha256.Sum256([]byte(token))
	return hex.EncodeToString(h[:])
}
