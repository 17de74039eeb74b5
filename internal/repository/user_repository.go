package repository

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/aryan0dhankhar/bizdesk/internal/domain"
)

// PostgresUserRepository implements domain.UserRepository using PostgreSQL
type PostgresUserRepository struct {
	db     *sqlx.DB
	logger *slog.Logger
}

// NewPostgresUserRepository creates a new user repository
func NewPostgresUserRepository(db *sqlx.DB, logger *slog.Logger) *PostgresUserRepository {
	if logger == nil {
		logger = slog.Default()
	}

	return &PostgresUserRepository{
		db:     db,
		logger: logger,
	}
}

// Upsert inserts the profile or refreshes email and name for an existing subject.
// An empty full name never overwrites a stored one.
func (r *PostgresUserRepository) Upsert(ctx context.Context, user *domain.User) error {
	query := `
		INSERT INTO users (id, email, full_name, avatar_url)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET
			email = EXCLUDED.email,
			full_name = COALESCE(NULLIF(EXCLUDED.full_name, ''), users.full_name),
			avatar_url = COALESCE(NULLIF(EXCLUDED.avatar_url, ''), users.avatar_url),
			updated_at = now()
		RETURNING full_name, avatar_url, created_at, updated_at, last_login_at
	`

	err := r.db.QueryRowxContext(ctx, query,
		user.ID,
		user.Email,
		user.FullName,
		user.AvatarURL,
	).Scan(&user.FullName, &user.AvatarURL, &user.CreatedAt, &user.UpdatedAt, &user.LastLoginAt)

	if err != nil {
		r.logger.Error("failed to upsert user",
			slog.String("user_id", user.ID),
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("failed to upsert user: %w", mapError(err))
	}

	return nil
}

const userColumns = `id, email, full_name, avatar_url, created_at, updated_at, last_login_at`

// GetByID retrieves a user by ID
func (r *PostgresUserRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	user := &domain.User{}
	err := r.db.GetContext(ctx, user, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", mapError(err))
	}
	return user, nil
}

// GetByEmail retrieves a user by email, case-insensitively
func (r *PostgresUserRepository) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	user := &domain.User{}
	err := r.db.GetContext(ctx, user, `SELECT `+userColumns+` FROM users WHERE lower(email) = lower($1)`, email)
	if err != nil {
		return nil, fmt.Errorf("failed to get user by email: %w", mapError(err))
	}
	return user, nil
}

// TouchLogin records a successful sign-in
func (r *PostgresUserRepository) TouchLogin(ctx context.Context, id string, at time.Time) error {
	res, err := r.db.ExecContext(ctx, `UPDATE users SET last_login_at = $2 WHERE id = $1`, id, at)
	if err != nil {
		return fmt.Errorf("failed to record login: %w", err)
	}
	return expectRows(res)
}
