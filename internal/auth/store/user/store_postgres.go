package user

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"securekyc/internal/auth/models"
	"securekyc/internal/platform/postgres"
	id "securekyc/pkg/domain"
	"securekyc/pkg/platform/sentinel"
	txcontext "securekyc/pkg/platform/tx"
)

// PostgresUserStore persists users in the users table. Email uniqueness is
// case-insensitive through the stored lower-cased form.
type PostgresUserStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresUserStore {
	return &PostgresUserStore{db: db}
}

func (s *PostgresUserStore) Create(ctx context.Context, user *models.User) error {
	_, err := txcontext.ExecutorFrom(ctx, s.db).ExecContext(ctx, `
		INSERT INTO users (id, email, password_hash, created_at)
		VALUES ($1, lower($2), $3, $4)
	`, uuid.UUID(user.ID), user.Email, user.PasswordHash, user.CreatedAt)
	if err != nil {
		if postgres.IsUniqueViolation(err) {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (s *PostgresUserStore) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	return s.findOne(ctx, `SELECT id, email, password_hash, created_at FROM users WHERE email = lower($1)`, email)
}

func (s *PostgresUserStore) FindByID(ctx context.Context, userID id.UserID) (*models.User, error) {
	return s.findOne(ctx, `SELECT id, email, password_hash, created_at FROM users WHERE id = $1`, uuid.UUID(userID))
}

func (s *PostgresUserStore) EmailOf(ctx context.Context, userID id.UserID) (string, error) {
	user, err := s.FindByID(ctx, userID)
	if err != nil {
		return "", err
	}
	return user.Email, nil
}

func (s *PostgresUserStore) findOne(ctx context.Context, query string, arg any) (*models.User, error) {
	var (
		user   models.User
		userID uuid.UUID
	)
	err := txcontext.ExecutorFrom(ctx, s.db).QueryRowContext(ctx, query, arg).
		Scan(&userID, &user.Email, &user.PasswordHash, &user.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find user: %w", err)
	}
	user.ID = id.UserID(userID)
	return &user, nil
}
