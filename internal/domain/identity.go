package domain

import "time"

// IdentityStatus is the verification state of an email identity.
type IdentityStatus string

const (
	StatusUnverified IdentityStatus = "UNVERIFIED" // email registered but not verified yet
	StatusVerified   IdentityStatus = "VERIFIED"   // email successfully verified
	StatusInactive   IdentityStatus = "INACTIVE"   // email no longer active for authentication
)

// EmailIdentity links a lower-cased email address to a user account and its
// verification state. There is at most one identity per user, and
// DateVerified is set exactly once, when the status becomes VERIFIED.
type EmailIdentity struct {
	Email        string
	UserRef      string
	Status       IdentityStatus
	DateCreated  time.Time
	DateVerified *time.Time
}

// Active reports whether the identity may request a login link.
func (i *EmailIdentity) Active() bool {
	return i.Status == StatusVerified || i.Status == StatusUnverified
}
