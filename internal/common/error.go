// Package common defines shared constants and sentinel errors used across
// the authkeeper server and its command-line tools. Callers should use
// errors.Is / errors.As to match these values.
package common

import (
	"errors"
	"fmt"
	"math"
	"time"
)

var (
	// Repository-level errors.
	ErrorNotFound         = errors.New("not found")
	ErrStorageUnavailable = errors.New("storage unavailable")

	// Input rejected before it reaches the engine.
	ErrValidation = errors.New("validation error")

	// Registration.
	ErrEmailInUse = errors.New("email already in use")

	// Login. Wrong email and wrong password are deliberately the same error.
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrAccountLocked      = errors.New("account locked")

	// Access tokens (invalid, malformed or expired).
	ErrInvalidToken = errors.New("invalid token")

	// Refresh token lifecycle.
	ErrInvalidRefreshToken = errors.New("invalid refresh token")

	// Password reset tokens.
	ErrInvalidOrExpiredToken = errors.New("invalid or expired token")

	// Email verification tokens.
	ErrVerificationInvalid = errors.New("verification token invalid")
	ErrVerificationExpired = errors.New("verification token expired")
)

// InvalidCredentialsError is returned by a failed password check on an
// existing, unlocked account. It matches ErrInvalidCredentials.
type InvalidCredentialsError struct {
	Remaining int
}

func (e *InvalidCredentialsError) Error() string {
	return fmt.Sprintf("%s: %d attempts left", ErrInvalidCredentials, e.Remaining)
}

func (e *InvalidCredentialsError) Unwrap() error { return ErrInvalidCredentials }

// AccountLockedError carries the moment the lock lifts. It matches
// ErrAccountLocked.
type AccountLockedError struct {
	Until time.Time
	// RetryAfterMinutes is the lock remainder rounded up to whole minutes.
	RetryAfterMinutes int
}

// NewAccountLockedError computes the retry hint relative to now.
func NewAccountLockedError(until, now time.Time) *AccountLockedError {
	minutes := int(math.Ceil(until.Sub(now).Minutes()))
	if minutes < 1 {
		minutes = 1
	}
	return &AccountLockedError{Until: until, RetryAfterMinutes: minutes}
}

func (e *AccountLockedError) Error() string {
	return fmt.Sprintf("%s: try again in %d minutes", ErrAccountLocked, e.RetryAfterMinutes)
}

func (e *AccountLockedError) Unwrap() error { return ErrAccountLocked }
