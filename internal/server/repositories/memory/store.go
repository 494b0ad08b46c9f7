// Package memory is an in-process store implementing both
// repomanager.RepositoryManager and dbx.Transactor. It backs development
// mode and engine tests.
//
// Transactions are fully serialised: WithTx holds the store mutex for the
// whole unit of work and restores a snapshot when it fails. Repository calls
// made outside a transaction take the mutex per call. The DBTX handles passed
// around are ignored; membership in a transaction travels in the context.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/dmitrijs2005/authkeeper/internal/dbx"
	"github.com/dmitrijs2005/authkeeper/internal/server/models"
	"github.com/dmitrijs2005/authkeeper/internal/server/repositories/refreshtokens"
	"github.com/dmitrijs2005/authkeeper/internal/server/repositories/resettokens"
	"github.com/dmitrijs2005/authkeeper/internal/server/repositories/users"
)

type txKey struct{}

type data struct {
	users      map[string]models.User
	userOrder  []string
	refresh    map[string]models.RefreshToken
	reset      map[string]models.ResetToken
	resetOrder []string
}

func (d *data) clone() *data {
	c := &data{
		users:      make(map[string]models.User, len(d.users)),
		userOrder:  append([]string(nil), d.userOrder...),
		refresh:    make(map[string]models.RefreshToken, len(d.refresh)),
		reset:      make(map[string]models.ResetToken, len(d.reset)),
		resetOrder: append([]string(nil), d.resetOrder...),
	}
	for k, v := range d.users {
		c.users[k] = v
	}
	for k, v := range d.refresh {
		c.refresh[k] = v
	}
	for k, v := range d.reset {
		c.reset[k] = v
	}
	return c
}

// Store holds all rows in maps guarded by one mutex.
type Store struct {
	mu  sync.Mutex
	d   *data
	now func() time.Time
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{
		d: &data{
			users:   map[string]models.User{},
			refresh: map[string]models.RefreshToken{},
			reset:   map[string]models.ResetToken{},
		},
		now: time.Now,
	}
}

// Conn returns nil; memory repositories do not use the handle.
func (s *Store) Conn() dbx.DBTX { return nil }

// WithTx runs fn while holding the store lock. A nested call joins the
// outer transaction. On error or panic the pre-transaction state is restored.
func (s *Store) WithTx(ctx context.Context, fn dbx.TxFunc) (err error) {
	if s.inTx(ctx) {
		return fn(ctx, nil)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	snap := s.d.clone()
	defer func() {
		if p := recover(); p != nil {
			s.d = snap
			panic(p)
		}
		if err != nil {
			s.d = snap
		}
	}()

	return fn(context.WithValue(ctx, txKey{}, s), nil)
}

func (s *Store) inTx(ctx context.Context) bool {
	owner, _ := ctx.Value(txKey{}).(*Store)
	return owner == s
}

// acquire locks the store unless ctx already belongs to a transaction on it.
func (s *Store) acquire(ctx context.Context) func() {
	if s.inTx(ctx) {
		return func() {}
	}
	s.mu.Lock()
	return s.mu.Unlock
}

// Users returns the memory users repository.
func (s *Store) Users(dbx.DBTX) users.Repository { return &userRepo{s: s} }

// RefreshTokens returns the memory refresh token repository.
func (s *Store) RefreshTokens(dbx.DBTX) refreshtokens.Repository { return &refreshRepo{s: s} }

// ResetTokens returns the memory reset token repository.
func (s *Store) ResetTokens(dbx.DBTX) resettokens.Repository { return &resetRepo{s: s} }
