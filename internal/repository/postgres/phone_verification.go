package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/DrOksusu/dba-portal-auth/internal/domain"
	"github.com/DrOksusu/dba-portal-auth/pkg/database"
	apperrors "github.com/DrOksusu/dba-portal-auth/pkg/errors"
)

const verificationColumns = `id, phone, verification_code, is_verified, is_superseded, expires_at, created_at`

// PhoneVerificationRepository implements repository.PhoneVerificationRepository using PostgreSQL.
type PhoneVerificationRepository struct {
	pool database.DBTX
}

// NewPhoneVerificationRepository creates a new PostgreSQL-backed verification repository.
func NewPhoneVerificationRepository(pool database.DBTX) *PhoneVerificationRepository {
	return &PhoneVerificationRepository{pool: pool}
}

// SupersedeUnverified retires every open challenge for the phone. The rows
// stay until swept so the request window still counts them.
func (r *PhoneVerificationRepository) SupersedeUnverified(ctx context.Context, phone string) error {
	query := `
		UPDATE phone_verifications
		SET is_superseded = true
		WHERE phone = $1 AND is_verified = false AND is_superseded = false`

	if _, err := r.pool.Exec(ctx, query, phone); err != nil {
		return fmt.Errorf("supersede verifications: %w", err)
	}
	return nil
}

// Create stores a new challenge.
func (r *PhoneVerificationRepository) Create(ctx context.Context, v *domain.PhoneVerification) error {
	query := `
		INSERT INTO phone_verifications (id, phone, verification_code, is_verified, is_superseded, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`

	_, err := r.pool.Exec(ctx, query,
		v.ID, v.Phone, v.VerificationCode, v.IsVerified, v.IsSuperseded, v.ExpiresAt, v.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert verification: %w", err)
	}
	return nil
}

// FindValidMatch returns the open challenge matching phone and code.
func (r *PhoneVerificationRepository) FindValidMatch(ctx context.Context, phone, code string, now time.Time) (_ *domain.PhoneVerification, err error) {
	query := `
		SELECT ` + verificationColumns + `
		FROM phone_verifications
		WHERE phone = $1 AND verification_code = $2
		  AND is_verified = false AND is_superseded = false AND expires_at > $3
		ORDER BY created_at DESC
		LIMIT 1`

	ctx, end := database.TraceQuery(ctx, "FindVerificationMatch", query)
	defer func() {
		if errors.Is(err, apperrors.ErrNotFound) {
			end(nil)
			return
		}
		end(err)
	}()

	return r.scanVerification(ctx, query, phone, code, now)
}

// MarkVerified flips the challenge to verified if it is still open at now.
// The guard re-checks what FindValidMatch saw, so a challenge superseded or
// expired in between is refused and only the first concurrent caller wins.
func (r *PhoneVerificationRepository) MarkVerified(ctx context.Context, id string, now time.Time) (bool, error) {
	query := `
		UPDATE phone_verifications SET is_verified = true
		WHERE id = $1 AND is_verified = false AND is_superseded = false AND expires_at > $2`

	ct, err := r.pool.Exec(ctx, query, id, now)
	if err != nil {
		return false, fmt.Errorf("mark verification verified: %w", err)
	}
	return ct.RowsAffected() == 1, nil
}

// DeleteExpiredFor removes expired, unverified challenges for the phone.
func (r *PhoneVerificationRepository) DeleteExpiredFor(ctx context.Context, phone string, now time.Time) error {
	query := `DELETE FROM phone_verifications WHERE phone = $1 AND is_verified = false AND expires_at < $2`

	if _, err := r.pool.Exec(ctx, query, phone, now); err != nil {
		return fmt.Errorf("delete expired verifications: %w", err)
	}
	return nil
}

// CountSince counts challenges created for the phone at or after since,
// superseded ones included.
func (r *PhoneVerificationRepository) CountSince(ctx context.Context, phone string, since time.Time) (int, error) {
	query := `SELECT COUNT(*) FROM phone_verifications WHERE phone = $1 AND created_at >= $2`

	var n int
	if err := r.pool.QueryRow(ctx, query, phone, since).Scan(&n); err != nil {
		return 0, fmt.Errorf("count verifications: %w", err)
	}
	return n, nil
}

// FindMostRecentVerified returns the newest verified challenge for the phone.
func (r *PhoneVerificationRepository) FindMostRecentVerified(ctx context.Context, phone string) (*domain.PhoneVerification, error) {
	query := `
		SELECT ` + verificationColumns + `
		FROM phone_verifications
		WHERE phone = $1 AND is_verified = true
		ORDER BY created_at DESC
		LIMIT 1`

	return r.scanVerification(ctx, query, phone)
}

// DeleteStale removes expired challenges that were never verified,
// superseded ones included. Verified challenges are kept.
func (r *PhoneVerificationRepository) DeleteStale(ctx context.Context, now time.Time) (n int64, err error) {
	query := `DELETE FROM phone_verifications WHERE is_verified = false AND expires_at < $1`

	ctx, end := database.TraceQuery(ctx, "DeleteStaleVerifications", query)
	defer func() { end(err) }()

	ct, err := r.pool.Exec(ctx, query, now)
	if err != nil {
		return 0, fmt.Errorf("delete stale verifications: %w", err)
	}
	return ct.RowsAffected(), nil
}

func (r *PhoneVerificationRepository) scanVerification(ctx context.Context, query string, args ...any) (*domain.PhoneVerification, error) {
	var v domain.PhoneVerification
	err := r.pool.QueryRow(ctx, query, args...).Scan(
		&v.ID,
		&v.Phone,
		&v.VerificationCode,
		&v.IsVerified,
		&v.IsSuperseded,
		&v.ExpiresAt,
		&v.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("scan verification: %w", err)
	}
	return &v, nil
}
