package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/authkeeper/internal/common"
	"github.com/dmitrijs2005/authkeeper/internal/dbx"
	"github.com/dmitrijs2005/authkeeper/internal/logging"
	"github.com/dmitrijs2005/authkeeper/internal/server/auth"
	"github.com/dmitrijs2005/authkeeper/internal/server/metrics"
	"github.com/dmitrijs2005/authkeeper/internal/server/models"
	"github.com/dmitrijs2005/authkeeper/internal/server/repositories/repomanager"
)

// Rotation is the result of exchanging a refresh token.
type Rotation struct {
	RefreshToken string
	Record       *models.RefreshToken
	User         *models.User
}

// RefreshLedger issues, rotates and revokes refresh tokens. Only token
// digests are stored; the raw value leaves the ledger exactly once.
type RefreshLedger struct {
	tx   dbx.Transactor
	rm   repomanager.RepositoryManager
	ttl  time.Duration
	size int
	log  logging.Logger
}

func NewRefreshLedger(tx dbx.Transactor, rm repomanager.RepositoryManager, ttl time.Duration, size int, log logging.Logger) *RefreshLedger {
	return &RefreshLedger{tx: tx, rm: rm, ttl: ttl, size: size, log: log}
}

// Issue mints a token for userID and stores its digest through db, which
// may be a transaction handle.
func (l *RefreshLedger) Issue(ctx context.Context, db dbx.DBTX, userID string, now time.Time) (string, *models.RefreshToken, error) {
	raw, digest, err := auth.NewOpaqueToken(l.size)
	if err != nil {
		return "", nil, err
	}

	rec, err := l.rm.RefreshTokens(db).Create(ctx, userID, digest, now.Add(l.ttl))
	if err != nil {
		return "", nil, fmt.Errorf("error storing refresh token: %w", err)
	}
	return raw, rec, nil
}

// ValidateAndRotate exchanges raw for a new token in one transaction: the
// presented record is locked, a replacement is issued, the presented record
// is revoked and linked to its replacement. A missing, revoked or expired
// token, or one whose owner is no longer active, fails with
// common.ErrInvalidRefreshToken. Expired and orphaned tokens are revoked
// on the way out.
func (l *RefreshLedger) ValidateAndRotate(ctx context.Context, raw string, now time.Time) (*Rotation, error) {
	digest := auth.Digest(raw)

	var (
		rot    *Rotation
		reject string
	)
	err := l.tx.WithTx(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		tokens := l.rm.RefreshTokens(tx)

		cur, err := tokens.FindValidByHash(ctx, digest)
		if errors.Is(err, common.ErrorNotFound) {
			reject = metrics.ResultInvalid
			return nil
		}
		if err != nil {
			return fmt.Errorf("error looking up refresh token: %w", err)
		}

		if !cur.ExpiresAt.After(now) {
			reject = metrics.ResultExpired
			return tokens.Revoke(ctx, cur.ID, now)
		}

		user, err := l.rm.Users(tx).FindByID(ctx, cur.UserID)
		if err != nil && !errors.Is(err, common.ErrorNotFound) {
			return fmt.Errorf("error looking up token owner: %w", err)
		}
		if user == nil || user.Status != models.StatusActive {
			reject = metrics.ResultInvalid
			return tokens.Revoke(ctx, cur.ID, now)
		}

		newRaw, next, err := l.Issue(ctx, tx, cur.UserID, now)
		if err != nil {
			return err
		}
		if err := tokens.Revoke(ctx, cur.ID, now); err != nil {
			return err
		}
		if err := tokens.LinkReplacement(ctx, cur.ID, next.ID); err != nil {
			return err
		}

		rot = &Rotation{RefreshToken: newRaw, Record: next, User: user}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if rot == nil {
		if reject == metrics.ResultInvalid {
			reject = l.classifyRejected(ctx, digest)
		}
		metrics.Refreshes.WithLabelValues(reject).Inc()
		return nil, common.ErrInvalidRefreshToken
	}

	metrics.Refreshes.WithLabelValues(metrics.ResultSuccess).Inc()
	return rot, nil
}

// classifyRejected tells a replayed, already rotated token apart from an
// unknown one. Replays are logged for forensic tracing.
func (l *RefreshLedger) classifyRejected(ctx context.Context, digest string) string {
	rec, err := l.rm.RefreshTokens(l.tx.Conn()).FindByHash(ctx, digest)
	if err != nil || rec.ReplacedBy == nil {
		return metrics.ResultInvalid
	}
	l.log.Warn(ctx, "rotated refresh token presented again",
		"user_id", rec.UserID,
		"token_id", rec.ID,
		"replaced_by", *rec.ReplacedBy,
	)
	return metrics.ResultReuse
}

// RevokeAll revokes every active token of userID through db.
func (l *RefreshLedger) RevokeAll(ctx context.Context, db dbx.DBTX, userID string, now time.Time) (int64, error) {
	n, err := l.rm.RefreshTokens(db).RevokeAllForUser(ctx, userID, now)
	if err != nil {
		return 0, fmt.Errorf("error revoking refresh tokens: %w", err)
	}
	return n, nil
}
