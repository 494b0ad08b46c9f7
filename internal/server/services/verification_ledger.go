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

// VerificationLedger manages the email verification token kept on the
// user row. A user has at most one outstanding token.
type VerificationLedger struct {
	tx   dbx.Transactor
	rm   repomanager.RepositoryManager
	ttl  time.Duration
	size int
}

func NewVerificationLedger(tx dbx.Transactor, rm repomanager.RepositoryManager, ttl time.Duration, size int) *VerificationLedger {
	return &VerificationLedger{tx: tx, rm: rm, ttl: ttl, size: size}
}

// Issue replaces any outstanding token of userID with a fresh one.
func (l *VerificationLedger) Issue(ctx context.Context, userID string, now time.Time) (string, error) {
	raw, digest, err := auth.NewOpaqueToken(l.size)
	if err != nil {
		return "", err
	}
	if err := l.rm.Users(l.tx.Conn()).SetEmailVerification(ctx, userID, digest, now.Add(l.ttl)); err != nil {
		return "", fmt.Errorf("error storing verification token: %w", err)
	}
	return raw, nil
}

// Consume verifies the email of the token's owner and returns the owner id.
// An unknown token fails with common.ErrVerificationInvalid, a known but
// expired one with common.ErrVerificationExpired; neither is consumed.
func (l *VerificationLedger) Consume(ctx context.Context, raw string, now time.Time) (string, error) {
	digest := auth.Digest(raw)

	var userID string
	err := l.tx.WithTx(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		repo := l.rm.Users(tx)

		u, err := repo.FindByVerificationHashForUpdate(ctx, digest)
		if errors.Is(err, common.ErrorNotFound) {
			return common.ErrVerificationInvalid
		}
		if err != nil {
			return fmt.Errorf("error looking up verification token: %w", err)
		}

		if u.EmailVerificationExpiresAt == nil || !u.EmailVerificationExpiresAt.After(now) {
			return common.ErrVerificationExpired
		}

		if err := repo.MarkEmailVerified(ctx, u.ID, now); err != nil {
			return fmt.Errorf("error marking email verified: %w", err)
		}
		userID = u.ID
		return nil
	})
	if err != nil {
		return "", err
	}
	return userID, nil
}
