package domain

import "time"

// TokenType is the purpose a one-time token was minted for.
type TokenType string

const (
	TokenAuthentication    TokenType = "AUTHENTICATION"
	TokenEmailVerification TokenType = "EMAIL_VERIFICATION"
)

// OneTimeToken is a single-use, purpose-typed credential bound to a user and
// delivered via an email link. It is deleted on first successful use; a read
// that finds no row, a wrong purpose or an expired row is reported uniformly
// as not found.
type OneTimeToken struct {
	ID        string
	Value     string
	Type      TokenType
	UserRef   string
	ExpiresAt time.Time
	CreatedAt time.Time
}
