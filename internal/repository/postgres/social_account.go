package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/DrOksusu/dba-portal-auth/internal/domain"
	"github.com/DrOksusu/dba-portal-auth/pkg/database"
	apperrors "github.com/DrOksusu/dba-portal-auth/pkg/errors"
)

const socialAccountColumns = `id, user_id, provider, provider_id, email, name, profile_image, created_at, updated_at`

// execer is satisfied by both the pool and an open transaction.
type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// SocialAccountRepository implements repository.SocialAccountRepository using PostgreSQL.
type SocialAccountRepository struct {
	pool database.DBTX
}

// NewSocialAccountRepository creates a new PostgreSQL-backed social account repository.
func NewSocialAccountRepository(pool database.DBTX) *SocialAccountRepository {
	return &SocialAccountRepository{pool: pool}
}

// GetByProvider retrieves the link for (provider, providerID).
func (r *SocialAccountRepository) GetByProvider(ctx context.Context, provider domain.Provider, providerID string) (*domain.SocialAccount, error) {
	query := `SELECT ` + socialAccountColumns + ` FROM social_accounts WHERE provider = $1 AND provider_id = $2`

	a, err := scanSocialAccount(r.pool.QueryRow(ctx, query, string(provider), providerID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("scan social account: %w", err)
	}
	return a, nil
}

// ListByUserID returns every link owned by the user, oldest first.
func (r *SocialAccountRepository) ListByUserID(ctx context.Context, userID string) ([]domain.SocialAccount, error) {
	query := `SELECT ` + socialAccountColumns + ` FROM social_accounts WHERE user_id = $1 ORDER BY created_at ASC`

	rows, err := r.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("query social accounts: %w", err)
	}
	defer rows.Close()

	accounts := make([]domain.SocialAccount, 0)
	for rows.Next() {
		a, err := scanSocialAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("scan social account row: %w", err)
		}
		accounts = append(accounts, *a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate social account rows: %w", err)
	}
	return accounts, nil
}

// Create inserts a new link.
func (r *SocialAccountRepository) Create(ctx context.Context, a *domain.SocialAccount) error {
	return insertSocialAccount(ctx, r.pool, a)
}

// UpdateByProvider refreshes the snapshot fields of an existing link.
func (r *SocialAccountRepository) UpdateByProvider(ctx context.Context, a *domain.SocialAccount) error {
	query := `
		UPDATE social_accounts
		SET email = $1, name = $2, profile_image = $3, updated_at = $4
		WHERE provider = $5 AND provider_id = $6`

	ct, err := r.pool.Exec(ctx, query, a.Email, a.Name, a.ProfileImage, a.UpdatedAt, string(a.Provider), a.ProviderID)
	if err != nil {
		return fmt.Errorf("update social account: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}

func insertSocialAccount(ctx context.Context, db execer, a *domain.SocialAccount) error {
	query := `
		INSERT INTO social_accounts (id, user_id, provider, provider_id, email, name, profile_image, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	_, err := db.Exec(ctx, query,
		a.ID, a.UserID, string(a.Provider), a.ProviderID, a.Email, a.Name, a.ProfileImage, a.CreatedAt, a.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperrors.AlreadyExists("social account", "provider_id", string(a.Provider)+":"+a.ProviderID)
		}
		return fmt.Errorf("insert social account: %w", err)
	}
	return nil
}

func scanSocialAccount(row pgx.Row) (*domain.SocialAccount, error) {
	var (
		a        domain.SocialAccount
		provider string
	)
	if err := row.Scan(
		&a.ID,
		&a.UserID,
		&provider,
		&a.ProviderID,
		&a.Email,
		&a.Name,
		&a.ProfileImage,
		&a.CreatedAt,
		&a.UpdatedAt,
	); err != nil {
		return nil, err
	}
	a.Provider = domain.Provider(provider)
	return &a, nil
}
