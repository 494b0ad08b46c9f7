package memory

import (
	"context"
	"time"

	"github.com/dmitrijs2005/authkeeper/internal/common"
	"github.com/dmitrijs2005/authkeeper/internal/server/models"
	"github.com/google/uuid"
)

type refreshRepo struct {
	s *Store
}

func (r *refreshRepo) Create(ctx context.Context, userID string, tokenHash string, expiresAt time.Time) (*models.RefreshToken, error) {
	defer r.s.acquire(ctx)()

	t := models.RefreshToken{
		ID:        uuid.NewString(),
		UserID:    userID,
		TokenHash: tokenHash,
		ExpiresAt: expiresAt,
		CreatedAt: r.s.now(),
	}
	r.s.d.refresh[t.ID] = t
	return &t, nil
}

func (r *refreshRepo) find(tokenHash string, activeOnly bool) (*models.RefreshToken, error) {
	for _, t := range r.s.d.refresh {
		if t.TokenHash != tokenHash {
			continue
		}
		if activeOnly && t.RevokedAt != nil {
			continue
		}
		return &t, nil
	}
	return nil, common.ErrorNotFound
}

func (r *refreshRepo) FindValidByHash(ctx context.Context, tokenHash string) (*models.RefreshToken, error) {
	defer r.s.acquire(ctx)()
	return r.find(tokenHash, true)
}

func (r *refreshRepo) FindByHash(ctx context.Context, tokenHash string) (*models.RefreshToken, error) {
	defer r.s.acquire(ctx)()
	return r.find(tokenHash, false)
}

func (r *refreshRepo) Revoke(ctx context.Context, id string, at time.Time) error {
	defer r.s.acquire(ctx)()

	t, ok := r.s.d.refresh[id]
	if !ok || t.RevokedAt != nil {
		return nil
	}
	t.RevokedAt = &at
	r.s.d.refresh[id] = t
	return nil
}

func (r *refreshRepo) RevokeAllForUser(ctx context.Context, userID string, at time.Time) (int64, error) {
	defer r.s.acquire(ctx)()

	var n int64
	for id, t := range r.s.d.refresh {
		if t.UserID != userID || t.RevokedAt != nil {
			continue
		}
		t.RevokedAt = &at
		r.s.d.refresh[id] = t
		n++
	}
	return n, nil
}

func (r *refreshRepo) LinkReplacement(ctx context.Context, id string, replacementID string) error {
	defer r.s.acquire(ctx)()

	t, ok := r.s.d.refresh[id]
	if !ok {
		return nil
	}
	t.ReplacedBy = &replacementID
	r.s.d.refresh[id] = t
	return nil
}

type resetRepo struct {
	s *Store
}

func (r *resetRepo) Create(ctx context.Context, userID string, tokenHash string, expiresAt time.Time) (*models.ResetToken, error) {
	defer r.s.acquire(ctx)()

	t := models.ResetToken{
		ID:        uuid.NewString(),
		UserID:    userID,
		TokenHash: tokenHash,
		ExpiresAt: expiresAt,
		CreatedAt: r.s.now(),
	}
	r.s.d.reset[t.ID] = t
	r.s.d.resetOrder = append(r.s.d.resetOrder, t.ID)
	return &t, nil
}

func (r *resetRepo) ConsumeIfValid(ctx context.Context, tokenHash string, now time.Time) (*models.ResetToken, error) {
	defer r.s.acquire(ctx)()

	for _, id := range r.s.d.resetOrder {
		t := r.s.d.reset[id]
		if t.TokenHash != tokenHash || !t.Usable(now) {
			continue
		}
		t.UsedAt = &now
		r.s.d.reset[id] = t
		return &t, nil
	}
	return nil, common.ErrorNotFound
}
