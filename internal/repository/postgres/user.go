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

const userColumns = `id, phone, name, email, profile_image, is_active, created_at, updated_at`

// UserRepository implements repository.UserRepository using PostgreSQL.
type UserRepository struct {
	pool database.DBTX
}

// NewUserRepository creates a new PostgreSQL-backed user repository.
func NewUserRepository(pool database.DBTX) *UserRepository {
	return &UserRepository{pool: pool}
}

// GetByID retrieves a user by their ID.
func (r *UserRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	return r.scanUser(ctx, "GetUserByID", query, id)
}

// GetByPhone retrieves a user by their normalized phone number.
func (r *UserRepository) GetByPhone(ctx context.Context, phone string) (*domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE phone = $1`
	return r.scanUser(ctx, "GetUserByPhone", query, phone)
}

// CreateWithSocialAccount inserts a user and its first social account in a
// single transaction so a user never exists without the link that created it.
func (r *UserRepository) CreateWithSocialAccount(ctx context.Context, u *domain.User, a *domain.SocialAccount) (err error) {
	ctx, end := database.TraceQuery(ctx, "CreateUserWithSocialAccount", "INSERT INTO users; INSERT INTO social_accounts")
	defer func() { end(err) }()

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	_, err = tx.Exec(ctx, `
		INSERT INTO users (id, phone, name, email, profile_image, is_active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		u.ID, u.Phone, u.Name, u.Email, u.ProfileImage, u.IsActive, u.CreatedAt, u.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperrors.AlreadyExists("user", "phone", u.Phone)
		}
		return fmt.Errorf("insert user: %w", err)
	}

	if err = insertSocialAccount(ctx, tx, a); err != nil {
		return err
	}

	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// Update writes the display fields and UpdatedAt of an existing user.
func (r *UserRepository) Update(ctx context.Context, u *domain.User) error {
	query := `
		UPDATE users
		SET name = $1, email = $2, profile_image = $3, updated_at = $4
		WHERE id = $5`

	ct, err := r.pool.Exec(ctx, query, u.Name, u.Email, u.ProfileImage, u.UpdatedAt, u.ID)
	if err != nil {
		return fmt.Errorf("update user: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}

// Deactivate soft-deletes a user as of at.
func (r *UserRepository) Deactivate(ctx context.Context, id string, at time.Time) error {
	query := `UPDATE users SET is_active = false, updated_at = $1 WHERE id = $2`

	ct, err := r.pool.Exec(ctx, query, at, id)
	if err != nil {
		return fmt.Errorf("deactivate user: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}

func (r *UserRepository) scanUser(ctx context.Context, op, query string, args ...any) (_ *domain.User, err error) {
	ctx, end := database.TraceQuery(ctx, op, query)
	defer func() {
		if errors.Is(err, apperrors.ErrNotFound) {
			end(nil)
			return
		}
		end(err)
	}()

	var u domain.User
	err = r.pool.QueryRow(ctx, query, args...).Scan(
		&u.ID,
		&u.Phone,
		&u.Name,
		&u.Email,
		&u.ProfileImage,
		&u.IsActive,
		&u.CreatedAt,
		&u.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("scan user: %w", err)
	}
	return &u, nil
}
