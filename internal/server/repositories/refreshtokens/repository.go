// Package refreshtokens declares the server-side repository contract for
// managing refresh tokens in persistent storage.
package refreshtokens

import (
	"context"
	"time"

	"github.com/dmitrijs2005/authkeeper/internal/server/models"
)

// Repository defines operations for issuing, rotating and revoking refresh
// tokens. Tokens are addressed by the digest of the opaque value.
type Repository interface {
	// Create stores a new token digest for userID.
	Create(ctx context.Context, userID string, tokenHash string, expiresAt time.Time) (*models.RefreshToken, error)

	// FindValidByHash returns the non-revoked token with tokenHash and locks
	// it until the surrounding transaction ends. Expiry is not checked.
	// A missing or revoked token yields common.ErrorNotFound.
	FindValidByHash(ctx context.Context, tokenHash string) (*models.RefreshToken, error)

	// FindByHash returns the token regardless of its state.
	FindByHash(ctx context.Context, tokenHash string) (*models.RefreshToken, error)

	// Revoke stamps revoked_at on an active token. Revoking twice is a no-op.
	Revoke(ctx context.Context, id string, at time.Time) error

	// RevokeAllForUser revokes every active token of userID and reports how many.
	RevokeAllForUser(ctx context.Context, userID string, at time.Time) (int64, error)

	// LinkReplacement records that id was rotated into replacementID.
	LinkReplacement(ctx context.Context, id string, replacementID string) error
}
