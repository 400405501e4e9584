package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/go-otp-link/internal/domain"
	"github.com/go-otp-link/internal/pkg/id"
)

// UserRepo is the minimal user store backing the default host adapter. Real
// embedders keep their own user table and implement the host hooks against it.
type UserRepo struct {
	db *sql.DB
}

func NewUserRepo(db *sql.DB) *UserRepo {
	return &UserRepo{db: db}
}

func (r *UserRepo) querier(tx *sql.Tx) Querier {
	if tx != nil {
		return tx
	}
	return r.db
}

// Create inserts a user row and returns its generated ULID.
func (r *UserRepo) Create(ctx context.Context, tx *sql.Tx, email string) (string, error) {
	userID := id.New()
	_, err := r.querier(tx).ExecContext(ctx,
		`insert into app_user(id, email) values($1, $2)`, userID, email)
	if err != nil {
		return "", fmt.Errorf("create user: %w", err)
	}
	return userID, nil
}

// Find returns the email of the user with the given id.
func (r *UserRepo) Find(ctx context.Context, tx *sql.Tx, userID string) (string, error) {
	var email string
	err := r.querier(tx).QueryRowContext(ctx,
		`select email from app_user where id = $1`, userID).Scan(&email)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", domain.ErrNotFound
		}
		return "", err
	}
	return email, nil
}
