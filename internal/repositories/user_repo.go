package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/aquameter/aquameter/internal/database"
	"github.com/aquameter/aquameter/internal/models"
	"github.com/aquameter/aquameter/pkg/auth"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type UserRepository struct {
	pool *pgxpool.Pool
}

func NewUserRepository(db *database.DB) *UserRepository {
	return &UserRepository{pool: db.Pool}
}

const userColumns = `id, email, password_hash, name, token_key, role, password_changed_at, created_at, updated_at`

// scanUserRow handles nullable fields and populates a User model from a database row
func scanUserRow(scanner rowScanner) (*models.User, error) {
	var user models.User
	var passwordChangedAt *time.Time

	err := scanner.Scan(
		&user.ID, &user.Email, &user.PasswordHash, &user.Name,
		&user.TokenKey, &user.Role, &passwordChangedAt,
		&user.CreatedAt, &user.UpdatedAt,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}

	user.PasswordChangedAt = passwordChangedAt
	return &user, nil
}

func scanUserRows(rows pgx.Rows) ([]*models.User, error) {
	defer rows.Close()

	users := make([]*models.User, 0)

	for rows.Next() {
		user, err := scanUserRow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, user)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return users, nil
}

func (r *UserRepository) GetByID(ctx context.Context, id string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	return scanUserRow(r.pool.QueryRow(ctx, query, id))
}

func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE email = $1`
	return scanUserRow(r.pool.QueryRow(ctx, query, email))
}

func (r *UserRepository) List(ctx context.Context, limit, offset int) ([]*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users ORDER BY created_at DESC LIMIT $1 OFFSET $2`

	rows, err := r.pool.Query(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to query users: %w", err)
	}

	return scanUserRows(rows)
}

func (r *UserRepository) Count(ctx context.Context) (int, error) {
	var count int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM users`).Scan(&count); err != nil {
		return 0, database.MapPostgresError(err)
	}
	return count, nil
}

func (r *UserRepository) Create(ctx context.Context, user *models.User) (*models.User, error) {
	user.ID = uuid.New().String()

	tokenKey, err := auth.GenerateTokenKey()
	if err != nil {
		return nil, fmt.Errorf("failed to generate token key: %w", err)
	}
	user.TokenKey = tokenKey

	now := time.Now()
	user.CreatedAt = now
	user.UpdatedAt = now

	if user.Role == "" {
		user.Role = "user"
	}

	query := `
		INSERT INTO users (id, email, password_hash, name, token_key, role, password_changed_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING ` + userColumns

	return scanUserRow(r.pool.QueryRow(ctx, query,
		user.ID, user.Email, user.PasswordHash, user.Name,
		user.TokenKey, user.Role, user.PasswordChangedAt,
		user.CreatedAt, user.UpdatedAt,
	))
}

// UpdatePassword replaces the password hash and rotates the per-user token
// key in one statement, invalidating every previously issued session token.
func (r *UserRepository) UpdatePassword(ctx context.Context, id, passwordHash string) (*models.User, error) {
	tokenKey, err := auth.GenerateTokenKey()
	if err != nil {
		return nil, fmt.Errorf("failed to generate token key: %w", err)
	}

	now := time.Now()

	query := `
		UPDATE users SET password_hash = $1, token_key = $2, password_changed_at = $3, updated_at = $3
		WHERE id = $4
		RETURNING ` + userColumns

	return scanUserRow(r.pool.QueryRow(ctx, query, passwordHash, tokenKey, now, id))
}
