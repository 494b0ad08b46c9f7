package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/authkeeper/internal/common"
	"github.com/dmitrijs2005/authkeeper/internal/dbx"
	"github.com/dmitrijs2005/authkeeper/internal/logging"
	"github.com/dmitrijs2005/authkeeper/internal/server/models"
	"github.com/dmitrijs2005/authkeeper/internal/server/repositories/repomanager"
)

// Default and maximum page sizes for List.
const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// UserService is plain data access on accounts for the account owner and
// for administrators. Results are always PublicUser projections.
type UserService struct {
	tx     dbx.Transactor
	rm     repomanager.RepositoryManager
	hasher PasswordHasher
	log    logging.Logger
	now    func() time.Time
}

func NewUserService(tx dbx.Transactor, m repomanager.RepositoryManager, hasher PasswordHasher, log logging.Logger, opts ...Option) *UserService {
	o := buildOptions(opts)
	return &UserService{tx: tx, rm: m, hasher: hasher, log: log, now: o.now}
}

func (s *UserService) Get(ctx context.Context, id string) (*models.PublicUser, error) {
	u, err := s.rm.Users(s.tx.Conn()).FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	p := u.Public()
	return &p, nil
}

// List returns one page of users and the total number of matches. Page
// defaults to 1 and PageSize to DefaultPageSize, capped at MaxPageSize.
func (s *UserService) List(ctx context.Context, filter models.UserFilter) ([]models.PublicUser, int, error) {
	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.PageSize < 1 {
		filter.PageSize = DefaultPageSize
	}
	filter.PageSize = min(filter.PageSize, MaxPageSize)

	users, total, err := s.rm.Users(s.tx.Conn()).List(ctx, filter)
	if err != nil {
		return nil, 0, err
	}

	out := make([]models.PublicUser, 0, len(users))
	for _, u := range users {
		out = append(out, u.Public())
	}
	return out, total, nil
}

// Update applies the given fields. An empty update returns the user as is.
func (s *UserService) Update(ctx context.Context, id string, upd models.UserUpdate) (*models.PublicUser, error) {
	if upd.Empty() {
		return s.Get(ctx, id)
	}
	if upd.Email != nil {
		email := normalizeEmail(*upd.Email)
		upd.Email = &email
	}

	u, err := s.rm.Users(s.tx.Conn()).Update(ctx, id, upd, s.now())
	if err != nil {
		return nil, err
	}
	p := u.Public()
	return &p, nil
}

// SoftDelete marks the user DELETED. Its refresh tokens stop working
// because rotation requires an active owner.
func (s *UserService) SoftDelete(ctx context.Context, id string) error {
	if err := s.rm.Users(s.tx.Conn()).SoftDelete(ctx, id, s.now()); err != nil {
		return err
	}
	s.log.Info(ctx, "user deleted", "user_id", id)
	return nil
}

// ChangePassword replaces the password after checking the current one.
// A wrong current password fails with common.ErrInvalidCredentials.
func (s *UserService) ChangePassword(ctx context.Context, userID, current, next string) error {
	users := s.rm.Users(s.tx.Conn())

	u, err := users.FindByID(ctx, userID)
	if err != nil {
		return err
	}
	if !s.hasher.Verify(u.PasswordHash, current) {
		return common.ErrInvalidCredentials
	}

	digest, err := s.hasher.Hash(next)
	if err != nil {
		return fmt.Errorf("error hashing password: %w", err)
	}
	if err := users.UpdatePassword(ctx, userID, digest, s.now()); err != nil {
		return err
	}
	s.log.Info(ctx, "password changed", "user_id", userID)
	return nil
}

// Create adds an ACTIVE user with the given role, for administrators and
// bootstrap tooling. No session is opened.
func (s *UserService) Create(ctx context.Context, name, email, password string, role models.Role) (*models.PublicUser, error) {
	if !role.Valid() {
		return nil, fmt.Errorf("%w: unknown role %q", common.ErrValidation, role)
	}

	digest, err := s.hasher.Hash(password)
	if err != nil {
		return nil, fmt.Errorf("error hashing password: %w", err)
	}

	u, err := s.rm.Users(s.tx.Conn()).Create(ctx, &models.User{
		Name:         name,
		Email:        normalizeEmail(email),
		PasswordHash: digest,
		Role:         role,
		Status:       models.StatusActive,
	})
	if err != nil {
		if errors.Is(err, common.ErrEmailInUse) {
			return nil, err
		}
		return nil, fmt.Errorf("error creating user: %w", err)
	}

	s.log.Info(ctx, "user created", "user_id", u.ID, "role", u.Role)
	p := u.Public()
	return &p, nil
}
