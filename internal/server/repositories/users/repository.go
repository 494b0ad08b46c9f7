// Package users declares the server-side repository contract for user
// accounts, including the lockout counters and the email verification
// token that live on the user row.
package users

import (
	"context"
	"time"

	"github.com/dmitrijs2005/authkeeper/internal/server/models"
)

// Repository defines persistence operations on user accounts.
// Lookups return common.ErrorNotFound when no row matches.
type Repository interface {
	// Create inserts user and returns the stored row. A clash on the
	// case-insensitive email index is reported as common.ErrEmailInUse.
	Create(ctx context.Context, user *models.User) (*models.User, error)

	// FindByEmail matches email case-insensitively.
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	FindByID(ctx context.Context, id string) (*models.User, error)

	// List returns one page of users matching filter and the total match count.
	List(ctx context.Context, filter models.UserFilter) ([]*models.User, int, error)

	// Update applies the non-nil fields of upd and returns the updated row.
	Update(ctx context.Context, id string, upd models.UserUpdate, at time.Time) (*models.User, error)
	UpdatePassword(ctx context.Context, id string, passwordHash string, at time.Time) error
	SoftDelete(ctx context.Context, id string, at time.Time) error

	// GetFailuresForUpdate reads the lockout counters and holds a row lock
	// until the surrounding transaction ends.
	GetFailuresForUpdate(ctx context.Context, id string) (*models.LoginFailures, error)
	SaveFailures(ctx context.Context, id string, f models.LoginFailures) error
	ResetFailures(ctx context.Context, id string) error

	// SetEmailVerification replaces any outstanding verification token.
	SetEmailVerification(ctx context.Context, id string, tokenHash string, expiresAt time.Time) error
	// FindByVerificationHashForUpdate locks the row holding tokenHash.
	FindByVerificationHashForUpdate(ctx context.Context, tokenHash string) (*models.User, error)
	// MarkEmailVerified stamps the verification time and clears the token.
	MarkEmailVerified(ctx context.Context, id string, at time.Time) error
}
