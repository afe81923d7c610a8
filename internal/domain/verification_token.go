package domain

import "time"

// TokenPurpose scopes a verification token to the action it authorizes
type TokenPurpose string

const (
	PurposeEmailVerification       TokenPurpose = "email_verification"
	PurposeEmailChangeVerification TokenPurpose = "email_change_verification"
	PurposePasswordReset           TokenPurpose = "password_reset"
)

// VerificationToken is a single-use secret proving control of an email
// address or authorizing a sensitive account action. At most one live token
// exists per (principal, purpose); issuing a new one supersedes the old.
type VerificationToken struct {
	Value       string       `json:"-" db:"value"`
	PrincipalID string       `json:"principal_id" db:"principal_id"`
	Purpose     TokenPurpose `json:"purpose" db:"purpose"`
	CreatedAt   time.Time    `json:"created_at" db:"created_at"`
	ExpiresAt   time.Time    `json:"expires_at" db:"expires_at"`
}

// IsExpired reports whether the token lifetime has elapsed at the given time
func (t *VerificationToken) IsExpired(now time.Time) bool {
	return now.After(t.ExpiresAt)
}
