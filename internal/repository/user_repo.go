// Package repository provides data access layer implementations.
package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hushboard/hushboard/internal/models"
	apperrors "github.com/hushboard/hushboard/internal/pkg/errors"
)

// UserRepository defines the interface for credential store operations.
type UserRepository interface {
	Create(ctx context.Context, user *models.User) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	GetByUsername(ctx context.Context, username string) (*models.User, error)
	GetByGoogleID(ctx context.Context, googleID string) (*models.User, error)
	FindOrCreateByGoogleID(ctx context.Context, googleID, username string) (*models.User, error)
	UpdateSecret(ctx context.Context, userID uuid.UUID, secret string) error
	ListWithSecret(ctx context.Context) ([]*models.User, error)
}

type userRepo struct {
	pool *pgxpool.Pool
}

// NewUserRepository creates a new user repository.
func NewUserRepository(pool *pgxpool.Pool) UserRepository {
	return &userRepo{pool: pool}
}

// Create inserts a new user into the database. A unique violation on
// username or google_id surfaces as ErrDuplicateUser.
func (r *userRepo) Create(ctx context.Context, user *models.User) error {
	query := `
		INSERT INTO users (id, username, password_hash, google_id, secret)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at, updated_at`

	if user.ID == uuid.Nil {
		user.ID = uuid.New()
	}

	err := r.pool.QueryRow(ctx, query,
		user.ID,
		user.Username,
		user.PasswordHash,
		user.GoogleID,
		user.Secret,
	).Scan(&user.CreatedAt, &user.UpdatedAt)
	if isUniqueViolation(err) {
		return apperrors.ErrDuplicateUser
	}
	return err
}

// GetByID retrieves a user by its UUID.
func (r *userRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	query := `
		SELECT id, username, password_hash, google_id, secret, created_at, updated_at
		FROM users WHERE id = $1`

	return r.scanOne(r.pool.QueryRow(ctx, query, id))
}

// GetByUsername retrieves a user by username.
func (r *userRepo) GetByUsername(ctx context.Context, username string) (*models.User, error) {
	query := `
		SELECT id, username, password_hash, google_id, secret, created_at, updated_at
		FROM users WHERE username = $1`

	return r.scanOne(r.pool.QueryRow(ctx, query, username))
}

// GetByGoogleID retrieves a user by its federated Google identifier.
func (r *userRepo) GetByGoogleID(ctx context.Context, googleID string) (*models.User, error) {
	query := `
		SELECT id, username, password_hash, google_id, secret, created_at, updated_at
		FROM users WHERE google_id = $1`

	return r.scanOne(r.pool.QueryRow(ctx, query, googleID))
}

// googleIdentityStore is the slice of the repository the find-or-create
// decision tree drives; tests substitute it to reach the conflict paths.
type googleIdentityStore interface {
	GetByGoogleID(ctx context.Context, googleID string) (*models.User, error)
	Create(ctx context.Context, user *models.User) error
}

// FindOrCreateByGoogleID resolves the user for a federated identity, creating
// the record on first login. The operation is race-safe: it inserts first and
// treats a unique violation as "somebody else won", retrying as a lookup, so
// two concurrent first-logins for the same identity yield exactly one row.
func (r *userRepo) FindOrCreateByGoogleID(ctx context.Context, googleID, username string) (*models.User, error) {
	return findOrCreateByGoogleID(ctx, r, googleID, username)
}

func findOrCreateByGoogleID(ctx context.Context, store googleIdentityStore, googleID, username string) (*models.User, error) {
	user, err := store.GetByGoogleID(ctx, googleID)
	if err != nil {
		return nil, err
	}
	if user != nil {
		return user, nil
	}

	user = &models.User{
		ID:       uuid.New(),
		Username: username,
		GoogleID: &googleID,
	}
	err = store.Create(ctx, user)
	if err == nil {
		return user, nil
	}
	if !errors.Is(err, apperrors.ErrDuplicateUser) {
		return nil, err
	}

	// Lost the race or the username is already taken. If the google_id now
	// resolves, the racer's row is ours to reuse; otherwise the conflict was
	// on username and the identity cannot be linked.
	user, lookupErr := store.GetByGoogleID(ctx, googleID)
	if lookupErr != nil {
		return nil, lookupErr
	}
	if user == nil {
		return nil, apperrors.ErrDuplicateUser
	}
	return user, nil
}

// UpdateSecret overwrites the user's secret text.
func (r *userRepo) UpdateSecret(ctx context.Context, userID uuid.UUID, secret string) error {
	query := `
		UPDATE users SET secret = $2, updated_at = now()
		WHERE id = $1`

	result, err := r.pool.Exec(ctx, query, userID, secret)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return apperrors.ErrUserNotFound
	}
	return nil
}

// ListWithSecret retrieves all users who have posted a non-empty secret.
func (r *userRepo) ListWithSecret(ctx context.Context) ([]*models.User, error) {
	query := `
		SELECT id, username, password_hash, google_id, secret, created_at, updated_at
		FROM users
		WHERE secret IS NOT NULL AND secret <> ''
		ORDER BY updated_at DESC`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []*models.User
	for rows.Next() {
		var user models.User
		if err := rows.Scan(
			&user.ID,
			&user.Username,
			&user.PasswordHash,
			&user.GoogleID,
			&user.Secret,
			&user.CreatedAt,
			&user.UpdatedAt,
		); err != nil {
			return nil, err
		}
		users = append(users, &user)
	}
	return users, rows.Err()
}

func (r *userRepo) scanOne(row pgx.Row) (*models.User, error) {
	var user models.User
	err := row.Scan(
		&user.ID,
		&user.Username,
		&user.PasswordHash,
		&user.GoogleID,
		&user.Secret,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan user: %w", err)
	}
	return &user, nil
}

// isUniqueViolation reports whether err is a PostgreSQL unique constraint
// violation (SQLSTATE 23505).
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// Compile-time check to ensure userRepo implements UserRepository.
var _ UserRepository = (*userRepo)(nil)
