package service

import (
	"errors"
	"fmt"
	"time"
)

// Validation/conflict errors: recoverable with different input
var (
	ErrEmailAlreadyRegistered    = errors.New("email is already registered")
	ErrSameEmail                 = errors.New("new email is the same as the current email")
	ErrChangeAlreadyPending      = errors.New("an email change is already pending")
	ErrAlreadyLinked             = errors.New("a local credential is already linked")
	ErrDuplicateAuthMethod       = errors.New("authentication method already exists")
	ErrIncompleteProviderProfile = errors.New("provider profile is missing required fields")
)

// State/permission errors: not retryable without a different action
var (
	ErrLastAuthMethod     = errors.New("cannot remove the only authentication method")
	ErrAuthMethodNotFound = errors.New("authentication method not found")
	ErrNoAccountToLink    = errors.New("no account found to link the provider to")
	ErrNoPendingRequest   = errors.New("no pending email change request")
)

// Token lifecycle errors
var (
	// ErrInvalidOrExpiredToken covers both unknown and expired tokens so
	// callers cannot probe whether a token value ever existed.
	ErrInvalidOrExpiredToken = errors.New("invalid or expired token")
	ErrWrongTokenPurpose     = errors.New("token was issued for a different purpose")
)

// Credential errors
var (
	ErrInvalidCredentials = errors.New("invalid email or password")
)

// CooldownError reports that a verification token for the same purpose was
// issued too recently.
type CooldownError struct {
	Remaining time.Duration
}

func (e *CooldownError) Error() string {
	return fmt.Sprintf("a token was issued recently, retry in %ds", e.RemainingSeconds())
}

// RemainingSeconds returns the remaining cooldown rounded up to whole seconds
func (e *CooldownError) RemainingSeconds() int {
	secs := int((e.Remaining + time.Second - 1) / time.Second)
	if secs < 1 {
		secs = 1
	}
	return secs
}

// AsCooldownError unwraps err into a *CooldownError if it is one
func AsCooldownError(err error) (*CooldownError, bool) {
	var cerr *CooldownError
	if errors.As(err, &cerr) {
		return cerr, true
	}
	return nil, false
}
