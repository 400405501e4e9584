package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-otp-link/internal/domain"
	"github.com/go-otp-link/internal/pkg/id"
	"github.com/go-otp-link/internal/pkg/token"
)

// TokenRepo issues and consumes one-time tokens in the otp_token table.
// Read filters expired rows in the query, so a stale token is
// indistinguishable from a missing one.
type TokenRepo struct {
	db  *sql.DB
	now func() time.Time
}

func NewTokenRepo(db *sql.DB) *TokenRepo {
	return &TokenRepo{db: db, now: time.Now}
}

func (r *TokenRepo) querier(tx *sql.Tx) Querier {
	if tx != nil {
		return tx
	}
	return r.db
}

func (r *TokenRepo) Create(ctx context.Context, tx *sql.Tx, userRef string, typ domain.TokenType, lifetime time.Duration) (string, error) {
	value, err := token.NewOpaque()
	if err != nil {
		return "", err
	}
	_, err = r.querier(tx).ExecContext(ctx,
		`insert into otp_token(id, value, type, user_ref, expires_at) values($1, $2, $3, $4, $5)`,
		id.New(), value, typ, userRef, r.now().UTC().Add(lifetime),
	)
	if err != nil {
		return "", fmt.Errorf("create one-time token: %w", err)
	}
	return value, nil
}

func (r *TokenRepo) Read(ctx context.Context, tx *sql.Tx, value string) (*domain.OneTimeToken, error) {
	row := r.querier(tx).QueryRowContext(ctx,
		`select id, value, type, user_ref, expires_at, created_at from otp_token where value = $1 and expires_at > $2`,
		value, r.now().UTC(),
	)
	var t domain.OneTimeToken
	if err := row.Scan(&t.ID, &t.Value, &t.Type, &t.UserRef, &t.ExpiresAt, &t.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return &t, nil
}

func (r *TokenRepo) Delete(ctx context.Context, tx *sql.Tx, tokenID string) error {
	res, err := r.querier(tx).ExecContext(ctx, `delete from otp_token where id = $1`, tokenID)
	if err != nil {
		return fmt.Errorf("delete one-time token: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("delete one-time token %s: %w", tokenID, domain.ErrNotFound)
	}
	return nil
}

// DeleteExpired removes stale token rows; intended for a maintenance job.
func (r *TokenRepo) DeleteExpired(ctx context.Context, tx *sql.Tx) (int64, error) {
	res, err := r.querier(tx).ExecContext(ctx, `delete from otp_token where expires_at <= $1`, r.now().UTC())
	if err != nil {
		return 0, fmt.Errorf("delete expired tokens: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}
