// Package services contains server-side business logic: the credential and
// token lifecycle engine (AuthService), its ledgers and the administrative
// UserService.
package services

import (
	"strings"
	"time"
)

// PasswordHasher derives and checks password digests.
type PasswordHasher interface {
	Hash(plaintext string) (string, error)
	Verify(digest, plaintext string) bool
}

type options struct {
	now func() time.Time
}

// Option customises a service.
type Option func(*options)

// WithClock replaces time.Now. Every expiry decision reads this clock.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

func buildOptions(opts []Option) options {
	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
