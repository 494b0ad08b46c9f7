package memory

import (
	"context"
	"strings"
	"time"

	"github.com/dmitrijs2005/authkeeper/internal/common"
	"github.com/dmitrijs2005/authkeeper/internal/server/models"
	"github.com/google/uuid"
)

type userRepo struct {
	s *Store
}

func (r *userRepo) emailTaken(email, exceptID string) bool {
	for id, u := range r.s.d.users {
		if id != exceptID && strings.EqualFold(u.Email, email) {
			return true
		}
	}
	return false
}

func (r *userRepo) Create(ctx context.Context, user *models.User) (*models.User, error) {
	defer r.s.acquire(ctx)()

	if r.emailTaken(user.Email, "") {
		return nil, common.ErrEmailInUse
	}

	u := *user
	u.ID = uuid.NewString()
	u.CreatedAt = r.s.now()
	u.UpdatedAt = nil
	u.LoginFailures = models.LoginFailures{}
	if u.Role == "" {
		u.Role = models.RoleUser
	}
	if u.Status == "" {
		u.Status = models.StatusActive
	}

	r.s.d.users[u.ID] = u
	r.s.d.userOrder = append(r.s.d.userOrder, u.ID)
	return &u, nil
}

func (r *userRepo) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	defer r.s.acquire(ctx)()

	for _, u := range r.s.d.users {
		if strings.EqualFold(u.Email, email) {
			return &u, nil
		}
	}
	return nil, common.ErrorNotFound
}

func (r *userRepo) FindByID(ctx context.Context, id string) (*models.User, error) {
	defer r.s.acquire(ctx)()

	u, ok := r.s.d.users[id]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return &u, nil
}

func (r *userRepo) List(ctx context.Context, filter models.UserFilter) ([]*models.User, int, error) {
	defer r.s.acquire(ctx)()

	search := strings.ToLower(filter.Search)
	var matched []*models.User
	// newest first
	for i := len(r.s.d.userOrder) - 1; i >= 0; i-- {
		u := r.s.d.users[r.s.d.userOrder[i]]
		if search != "" && !strings.Contains(strings.ToLower(u.Name), search) &&
			!strings.Contains(strings.ToLower(u.Email), search) {
			continue
		}
		if filter.Status != "" && u.Status != filter.Status {
			continue
		}
		if filter.Role != "" && u.Role != filter.Role {
			continue
		}
		matched = append(matched, &u)
	}

	total := len(matched)
	start := filter.Offset()
	if start >= total {
		return nil, total, nil
	}
	end := total
	if filter.PageSize > 0 && start+filter.PageSize < end {
		end = start + filter.PageSize
	}
	return matched[start:end], total, nil
}

func (r *userRepo) Update(ctx context.Context, id string, upd models.UserUpdate, at time.Time) (*models.User, error) {
	defer r.s.acquire(ctx)()

	u, ok := r.s.d.users[id]
	if !ok {
		return nil, common.ErrorNotFound
	}
	if upd.Email != nil && r.emailTaken(*upd.Email, id) {
		return nil, common.ErrEmailInUse
	}
	if upd.Name != nil {
		u.Name = *upd.Name
	}
	if upd.Email != nil {
		u.Email = *upd.Email
	}
	if upd.Role != nil {
		u.Role = *upd.Role
	}
	if upd.Status != nil {
		u.Status = *upd.Status
	}
	u.UpdatedAt = &at

	r.s.d.users[id] = u
	return &u, nil
}

// mutate applies fn to the stored user with the lock held.
func (r *userRepo) mutate(ctx context.Context, id string, fn func(u *models.User)) error {
	defer r.s.acquire(ctx)()

	u, ok := r.s.d.users[id]
	if !ok {
		return common.ErrorNotFound
	}
	fn(&u)
	r.s.d.users[id] = u
	return nil
}

func (r *userRepo) UpdatePassword(ctx context.Context, id string, passwordHash string, at time.Time) error {
	return r.mutate(ctx, id, func(u *models.User) {
		u.PasswordHash = passwordHash
		u.UpdatedAt = &at
	})
}

func (r *userRepo) SoftDelete(ctx context.Context, id string, at time.Time) error {
	return r.mutate(ctx, id, func(u *models.User) {
		u.Status = models.StatusDeleted
		u.UpdatedAt = &at
	})
}

func (r *userRepo) GetFailuresForUpdate(ctx context.Context, id string) (*models.LoginFailures, error) {
	defer r.s.acquire(ctx)()

	u, ok := r.s.d.users[id]
	if !ok {
		return nil, common.ErrorNotFound
	}
	f := u.LoginFailures
	return &f, nil
}

func (r *userRepo) SaveFailures(ctx context.Context, id string, f models.LoginFailures) error {
	return r.mutate(ctx, id, func(u *models.User) { u.LoginFailures = f })
}

func (r *userRepo) ResetFailures(ctx context.Context, id string) error {
	return r.mutate(ctx, id, func(u *models.User) { u.LoginFailures = models.LoginFailures{} })
}

func (r *userRepo) SetEmailVerification(ctx context.Context, id string, tokenHash string, expiresAt time.Time) error {
	return r.mutate(ctx, id, func(u *models.User) {
		u.EmailVerificationHash = &tokenHash
		u.EmailVerificationExpiresAt = &expiresAt
	})
}

func (r *userRepo) FindByVerificationHashForUpdate(ctx context.Context, tokenHash string) (*models.User, error) {
	defer r.s.acquire(ctx)()

	for _, u := range r.s.d.users {
		if u.EmailVerificationHash != nil && *u.EmailVerificationHash == tokenHash {
			return &u, nil
		}
	}
	return nil, common.ErrorNotFound
}

func (r *userRepo) MarkEmailVerified(ctx context.Context, id string, at time.Time) error {
	return r.mutate(ctx, id, func(u *models.User) {
		u.EmailVerifiedAt = &at
		u.EmailVerificationHash = nil
		u.EmailVerificationExpiresAt = nil
	})
}
