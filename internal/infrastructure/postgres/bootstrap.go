package postgres

import (
	"context"
	"database/sql"
	"fmt"
)

// Bootstrap creates the tables this service owns if they do not exist yet.
// Production deployments run real migrations instead; this keeps local
// development and tests self-contained.
func Bootstrap(ctx context.Context, db *sql.DB) error {
	stmts := []string{
		`create table if not exists app_user (
			id text primary key,
			email text not null,
			created_at timestamptz not null default now()
		)`,
		`create table if not exists email_identity (
			user_ref text primary key,
			email text not null unique,
			status text not null,
			date_created timestamptz not null default now(),
			date_verified timestamptz
		)`,
		`create table if not exists otp_token (
			id text primary key,
			value text not null unique,
			type text not null,
			user_ref text not null,
			expires_at timestamptz not null,
			created_at timestamptz not null default now()
		)`,
	}
	for _, stmt := range stmts {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("bootstrap schema: %w", err)
		}
	}
	return nil
}
