package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/authkeeper/internal/common"
	"github.com/dmitrijs2005/authkeeper/internal/dbx"
	"github.com/dmitrijs2005/authkeeper/internal/server/auth"
	"github.com/dmitrijs2005/authkeeper/internal/server/repositories/repomanager"
)

// ResetLedger issues and consumes single-use password reset tokens.
type ResetLedger struct {
	tx   dbx.Transactor
	rm   repomanager.RepositoryManager
	ttl  time.Duration
	size int
}

func NewResetLedger(tx dbx.Transactor, rm repomanager.RepositoryManager, ttl time.Duration, size int) *ResetLedger {
	return &ResetLedger{tx: tx, rm: rm, ttl: ttl, size: size}
}

// newOpaqueToken is swapped in tests.
var newOpaqueToken = auth.NewOpaqueToken

// Issue mints a reset token for userID and returns the raw value.
func (l *ResetLedger) Issue(ctx context.Context, userID string, now time.Time) (string, error) {
	raw, digest, err := newOpaqueToken(l.size)
	if err != nil {
		return "", err
	}
	if _, err := l.rm.ResetTokens(l.tx.Conn()).Create(ctx, userID, digest, now.Add(l.ttl)); err != nil {
		return "", fmt.Errorf("error storing reset token: %w", err)
	}
	return raw, nil
}

// Discard mints a token of the usual size and throws it away, so a request
// for an unknown account costs about as much as a real one.
func (l *ResetLedger) Discard() {
	_, _, _ = newOpaqueToken(l.size)
}

// Consume marks raw used and returns its owner. It runs through db so the
// caller can make the consumption part of a larger transaction. Of several
// concurrent consumers exactly one succeeds; the rest, like callers with an
// unknown, used or expired token, get common.ErrInvalidOrExpiredToken.
func (l *ResetLedger) Consume(ctx context.Context, db dbx.DBTX, raw string, now time.Time) (string, error) {
	t, err := l.rm.ResetTokens(db).ConsumeIfValid(ctx, auth.Digest(raw), now)
	if errors.Is(err, common.ErrorNotFound) {
		return "", common.ErrInvalidOrExpiredToken
	}
	if err != nil {
		return "", fmt.Errorf("error consuming reset token: %w", err)
	}
	return t.UserID, nil
}
