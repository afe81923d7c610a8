package repository

import "errors"

// Common repository errors
var (
	// ErrNotFound is returned when a record is not found
	ErrNotFound = errors.New("record not found")

	// ErrDuplicateEmail is returned when trying to create a user with an existing email
	ErrDuplicateEmail = errors.New("user with this email already exists")

	// ErrDuplicatePrincipal is returned when a principal violates the per-provider uniqueness rule
	ErrDuplicatePrincipal = errors.New("principal already exists")

	// ErrDuplicateToken is returned when trying to create a token with an existing hash
	ErrDuplicateToken = errors.New("token with this hash already exists")

	// ErrDuplicateVerificationToken is returned when a verification token value collides
	ErrDuplicateVerificationToken = errors.New("verification token already exists")

	// ErrDuplicateTokenForPurpose is returned when a (principal, purpose) pair
	// already holds a live token
	ErrDuplicateTokenForPurpose = errors.New("live token already exists for this purpose")
)
