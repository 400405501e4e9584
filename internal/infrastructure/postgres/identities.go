package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/go-otp-link/internal/domain"
	"github.com/jackc/pgx/v5/pgconn"
)

// IdentityRepo persists email identities in the email_identity table.
// user_ref is the primary key; email is unique.
type IdentityRepo struct {
	db *sql.DB
}

func NewIdentityRepo(db *sql.DB) *IdentityRepo {
	return &IdentityRepo{db: db}
}

func (r *IdentityRepo) querier(tx *sql.Tx) Querier {
	if tx != nil {
		return tx
	}
	return r.db
}

const identityColumns = `email, user_ref, status, date_created, date_verified`

func (r *IdentityRepo) FindByEmail(ctx context.Context, tx *sql.Tx, email string) (*domain.EmailIdentity, error) {
	row := r.querier(tx).QueryRowContext(ctx,
		`select `+identityColumns+` from email_identity where email = $1`, email)
	return scanIdentity(row)
}

func (r *IdentityRepo) FindByUser(ctx context.Context, tx *sql.Tx, userRef string) (*domain.EmailIdentity, error) {
	row := r.querier(tx).QueryRowContext(ctx,
		`select `+identityColumns+` from email_identity where user_ref = $1`, userRef)
	return scanIdentity(row)
}

func (r *IdentityRepo) Create(ctx context.Context, tx *sql.Tx, identity *domain.EmailIdentity) error {
	_, err := r.querier(tx).ExecContext(ctx,
		`insert into email_identity(email, user_ref, status) values($1, $2, $3)`,
		identity.Email, identity.UserRef, identity.Status,
	)
	if err != nil {
		// two registrations can race past the existence check; the unique
		// constraint settles it
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return fmt.Errorf("create identity %s: %w", identity.Email, domain.ErrConflict)
		}
		return fmt.Errorf("create identity: %w", err)
	}
	return nil
}

func (r *IdentityRepo) Update(ctx context.Context, tx *sql.Tx, identity *domain.EmailIdentity) error {
	res, err := r.querier(tx).ExecContext(ctx,
		`update email_identity set status = $1, date_verified = $2 where user_ref = $3`,
		identity.Status, identity.DateVerified, identity.UserRef,
	)
	if err != nil {
		return fmt.Errorf("update identity: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("update identity %s: %w", identity.UserRef, domain.ErrNotFound)
	}
	return nil
}

func scanIdentity(row *sql.Row) (*domain.EmailIdentity, error) {
	var i domain.EmailIdentity
	var verified sql.NullTime
	if err := row.Scan(&i.Email, &i.UserRef, &i.Status, &i.DateCreated, &verified); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	if verified.Valid {
		i.DateVerified = &verified.Time
	}
	return &i, nil
}
