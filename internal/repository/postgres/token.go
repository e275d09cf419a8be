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

// TokenRepository implements repository.TokenRepository using PostgreSQL.
type TokenRepository struct {
	pool database.DBTX
}

// NewTokenRepository creates a new PostgreSQL-backed token repository.
func NewTokenRepository(pool database.DBTX) *TokenRepository {
	return &TokenRepository{pool: pool}
}

// ReplaceForUser revokes every outstanding token of the user and inserts the
// new ones in one transaction. The user row is locked first so concurrent
// session issuance for the same user is serialised.
func (r *TokenRepository) ReplaceForUser(ctx context.Context, userID string, tokens ...*domain.JwtToken) (err error) {
	ctx, end := database.TraceQuery(ctx, "ReplaceUserTokens", "UPDATE jwt_tokens; INSERT INTO jwt_tokens")
	defer func() { end(err) }()

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err = lockUser(ctx, tx, userID); err != nil {
		return err
	}
	if err = replaceTokens(ctx, tx, userID, tokens); err != nil {
		return err
	}

	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// Rotate consumes a refresh token and issues its replacements atomically.
// The conditional update means that of two concurrent rotations of the same
// refresh token only one sees a row affected; the other gets ErrNotFound.
func (r *TokenRepository) Rotate(ctx context.Context, refreshHash, userID string, tokens ...*domain.JwtToken) (err error) {
	ctx, end := database.TraceQuery(ctx, "RotateRefreshToken", "UPDATE jwt_tokens; INSERT INTO jwt_tokens")
	defer func() {
		if errors.Is(err, apperrors.ErrNotFound) {
			end(nil)
			return
		}
		end(err)
	}()

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err = lockUser(ctx, tx, userID); err != nil {
		return err
	}

	ct, err := tx.Exec(ctx, `
		UPDATE jwt_tokens
		SET is_revoked = true
		WHERE token_hash = $1 AND token_type = 'refresh' AND user_id = $2
		  AND is_revoked = false AND expires_at > $3`,
		refreshHash, userID, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("consume refresh token: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}

	if err = replaceTokens(ctx, tx, userID, tokens); err != nil {
		return err
	}

	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// GetByHash retrieves a token record of the given type by its hash.
func (r *TokenRepository) GetByHash(ctx context.Context, tokenHash string, tokenType domain.TokenType) (*domain.JwtToken, error) {
	query := `
		SELECT id, user_id, token_type, token_hash, is_revoked, expires_at, created_at
		FROM jwt_tokens
		WHERE token_hash = $1 AND token_type = $2`

	var (
		t   domain.JwtToken
		typ string
	)
	err := r.pool.QueryRow(ctx, query, tokenHash, string(tokenType)).Scan(
		&t.ID,
		&t.UserID,
		&typ,
		&t.TokenHash,
		&t.IsRevoked,
		&t.ExpiresAt,
		&t.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("scan token: %w", err)
	}
	t.TokenType = domain.TokenType(typ)
	return &t, nil
}

// Revoke revokes a specific unrevoked token by its hash.
func (r *TokenRepository) Revoke(ctx context.Context, tokenHash string) error {
	query := `UPDATE jwt_tokens SET is_revoked = true WHERE token_hash = $1 AND is_revoked = false`

	if _, err := r.pool.Exec(ctx, query, tokenHash); err != nil {
		return fmt.Errorf("revoke token: %w", err)
	}
	return nil
}

// RevokeByUserID revokes all outstanding tokens for the given user.
func (r *TokenRepository) RevokeByUserID(ctx context.Context, userID string) error {
	query := `UPDATE jwt_tokens SET is_revoked = true WHERE user_id = $1 AND is_revoked = false`

	if _, err := r.pool.Exec(ctx, query, userID); err != nil {
		return fmt.Errorf("revoke tokens by user: %w", err)
	}
	return nil
}

// DeleteExpired removes every token that expired before the given instant.
func (r *TokenRepository) DeleteExpired(ctx context.Context, before time.Time) (n int64, err error) {
	query := `DELETE FROM jwt_tokens WHERE expires_at < $1`

	ctx, end := database.TraceQuery(ctx, "DeleteExpiredTokens", query)
	defer func() { end(err) }()

	ct, err := r.pool.Exec(ctx, query, before)
	if err != nil {
		return 0, fmt.Errorf("delete expired tokens: %w", err)
	}
	return ct.RowsAffected(), nil
}

func lockUser(ctx context.Context, tx pgx.Tx, userID string) error {
	var id string
	err := tx.QueryRow(ctx, `SELECT id FROM users WHERE id = $1 FOR UPDATE`, userID).Scan(&id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return apperrors.ErrNotFound
		}
		return fmt.Errorf("lock user: %w", err)
	}
	return nil
}

func replaceTokens(ctx context.Context, tx pgx.Tx, userID string, tokens []*domain.JwtToken) error {
	_, err := tx.Exec(ctx,
		`UPDATE jwt_tokens SET is_revoked = true WHERE user_id = $1 AND is_revoked = false`,
		userID,
	)
	if err != nil {
		return fmt.Errorf("revoke outstanding tokens: %w", err)
	}

	for _, t := range tokens {
		_, err := tx.Exec(ctx, `
			INSERT INTO jwt_tokens (id, user_id, token_type, token_hash, is_revoked, expires_at, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			t.ID, userID, string(t.TokenType), t.TokenHash, false, t.ExpiresAt, t.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("insert %s token: %w", t.TokenType, err)
		}
	}
	return nil
}
