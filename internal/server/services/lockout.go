package services

import (
	"context"
	"fmt"
	"time"

	"github.com/dmitrijs2005/authkeeper/internal/dbx"
	"github.com/dmitrijs2005/authkeeper/internal/server/models"
	"github.com/dmitrijs2005/authkeeper/internal/server/repositories/repomanager"
)

// LockoutPolicy configures the failed-login lock.
type LockoutPolicy struct {
	// Threshold is the failure count within Window that locks the account.
	Threshold int
	// Window is how old the previous failure may be for a new one to count
	// towards the same streak.
	Window time.Duration
	// Duration is how long a lock lasts.
	Duration time.Duration
}

// FailureOutcome is the state after recording a failed login.
type FailureOutcome struct {
	Count       int
	Remaining   int
	LockedUntil *time.Time
	// Escalated is set when this very failure locked the account.
	Escalated bool
}

// Locked reports whether the failure left the account locked.
func (o FailureOutcome) Locked() bool { return o.LockedUntil != nil }

// LockoutTracker keeps the per-user failure streak on the user row.
type LockoutTracker struct {
	tx     dbx.Transactor
	rm     repomanager.RepositoryManager
	policy LockoutPolicy
}

func NewLockoutTracker(tx dbx.Transactor, rm repomanager.RepositoryManager, policy LockoutPolicy) *LockoutTracker {
	return &LockoutTracker{tx: tx, rm: rm, policy: policy}
}

// Admit reports whether a login for u may proceed to password checking.
// It returns the lock end when u is locked at now.
func (t *LockoutTracker) Admit(u *models.User, now time.Time) (lockedUntil time.Time, ok bool) {
	if u.LockedAt(now) {
		return *u.LockedUntil, false
	}
	return time.Time{}, true
}

// RecordFailure registers one failed password check. The counters are read
// under a row lock and written back in the same transaction, so concurrent
// failures for one user are serialised.
func (t *LockoutTracker) RecordFailure(ctx context.Context, userID string, now time.Time) (FailureOutcome, error) {
	var out FailureOutcome

	err := t.tx.WithTx(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		repo := t.rm.Users(tx)

		cur, err := repo.GetFailuresForUpdate(ctx, userID)
		if err != nil {
			return fmt.Errorf("error reading login failures: %w", err)
		}

		// Another attempt locked the account while this one was hashing.
		if cur.LockedAt(now) {
			out = FailureOutcome{Count: cur.FailedLogins, LockedUntil: cur.LockedUntil}
			return nil
		}

		next := nextFailures(*cur, now, t.policy)
		if err := repo.SaveFailures(ctx, userID, next); err != nil {
			return fmt.Errorf("error saving login failures: %w", err)
		}

		out = FailureOutcome{
			Count:       next.FailedLogins,
			Remaining:   max(0, t.policy.Threshold-next.FailedLogins),
			LockedUntil: next.LockedUntil,
			Escalated:   next.LockedUntil != nil,
		}
		return nil
	})
	if err != nil {
		return FailureOutcome{}, err
	}
	return out, nil
}

// Reset clears the failure streak after a successful login.
func (t *LockoutTracker) Reset(ctx context.Context, userID string) error {
	if err := t.rm.Users(t.tx.Conn()).ResetFailures(ctx, userID); err != nil {
		return fmt.Errorf("error resetting login failures: %w", err)
	}
	return nil
}

// nextFailures computes the counters after one more failure at now.
// A streak restarts at 1 when there is no previous failure, when the
// previous one is older than the window, or when an earlier lock has run out.
func nextFailures(cur models.LoginFailures, now time.Time, p LockoutPolicy) models.LoginFailures {
	count := cur.FailedLogins + 1
	switch {
	case cur.LastFailedLoginAt == nil,
		now.Sub(*cur.LastFailedLoginAt) > p.Window,
		cur.LockedUntil != nil && !cur.LockedUntil.After(now):
		count = 1
	}

	next := models.LoginFailures{FailedLogins: count, LastFailedLoginAt: &now}
	if count >= p.Threshold {
		until := now.Add(p.Duration)
		next.LockedUntil = &until
	}
	return next
}
