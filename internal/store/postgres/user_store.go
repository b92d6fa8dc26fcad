package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/docsign/internal/models"
	"github.com/wolfeidau/docsign/internal/store"
)

// UserStore implements store.UserStore using PostgreSQL.
type UserStore struct {
	pool *pgxpool.Pool
}

// NewUserStore creates a new PostgreSQL-backed user store.
func NewUserStore(pool *pgxpool.Pool) *UserStore {
	return &UserStore{
		pool: pool,
	}
}

// Get retrieves a user by ID.
func (s *UserStore) Get(ctx context.Context, userID string) (*models.User, error) {
	query := `
		SELECT user_id, username, email, public_key_pem, fingerprint, created_at, updated_at
		FROM users
		WHERE user_id = $1
	`

	var user models.User
	err := s.pool.QueryRow(ctx, query, userID).Scan(
		&user.UserID,
		&user.Username,
		&user.Email,
		&user.PublicKeyPEM,
		&user.Fingerprint,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get user: %w", mapPostgresError(err))
	}

	return &user, nil
}

// Ensure inserts the user when missing and returns the stored row.
func (s *UserStore) Ensure(ctx context.Context, user *models.User) (*models.User, error) {
	query := `
		INSERT INTO users (user_id, username, email, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $4)
		ON CONFLICT (user_id) DO NOTHING
	`

	result, err := s.pool.Exec(ctx, query, user.UserID, user.Username, user.Email, time.Now().UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to ensure user: %w", mapPostgresError(err))
	}

	if result.RowsAffected() > 0 {
		log.Debug().Str("user_id", user.UserID).Msg("Provisioned user")
	}

	return s.Get(ctx, user.UserID)
}

// SetPublicKey records the user's public key.
func (s *UserStore) SetPublicKey(ctx context.Context, userID, publicKeyPEM, fingerprint string) error {
	query := `
		UPDATE users
		SET public_key_pem = $2, fingerprint = $3, updated_at = $4
		WHERE user_id = $1
	`

	result, err := s.pool.Exec(ctx, query, userID, publicKeyPEM, fingerprint, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to update user public key: %w", mapPostgresError(err))
	}

	if result.RowsAffected() == 0 {
		return store.ErrUserNotFound
	}

	return nil
}

// ClearPublicKey removes the user's public key.
func (s *UserStore) ClearPublicKey(ctx context.Context, userID string) error {
	return s.SetPublicKey(ctx, userID, "", "")
}
