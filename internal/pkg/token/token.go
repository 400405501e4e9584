package token

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
)

// NewOpaque generates a cryptographically random 64-character hex token,
// used as the value of one-time email-link tokens.
func NewOpaque() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate opaque token: %w", err)
	}
	return hex.EncodeToString(b), nil
}
