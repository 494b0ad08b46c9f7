// Package resettokens declares the repository contract for single-use
// password reset tokens.
package resettokens

import (
	"context"
	"time"

	"github.com/dmitrijs2005/authkeeper/internal/server/models"
)

// Repository stores reset token digests.
type Repository interface {
	Create(ctx context.Context, userID string, tokenHash string, expiresAt time.Time) (*models.ResetToken, error)

	// ConsumeIfValid marks the token used if it is unused and unexpired at
	// now, and returns it. Of several concurrent callers at most one wins;
	// the others, like callers with a bad token, get common.ErrorNotFound.
	ConsumeIfValid(ctx context.Context, tokenHash string, now time.Time) (*models.ResetToken, error)
}
