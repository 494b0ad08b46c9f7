// Package users provides a PostgreSQL-backed repository for user accounts.
package users

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dmitrijs2005/authkeeper/internal/common"
	"github.com/dmitrijs2005/authkeeper/internal/dbx"
	"github.com/dmitrijs2005/authkeeper/internal/server/models"
	"github.com/jackc/pgx/v5/pgconn"
)

const (
	uniqueViolation      = "23505"
	invalidTextRepresentation = "22P02"
)

const userColumns = `id, name, email, password_hash, role, status,
	failed_logins, last_failed_login_at, locked_until,
	email_verification_hash, email_verification_expires_at, email_verified_at,
	created_at, updated_at`

// PostgresRepository implements Repository over dbx.DBTX
// (satisfied by *sql.DB or *sql.Tx).
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

type scanner interface {
	Scan(dest ...any) error
}

func scanUser(row scanner) (*models.User, error) {
	u := &models.User{}
	err := row.Scan(
		&u.ID, &u.Name, &u.Email, &u.PasswordHash, &u.Role, &u.Status,
		&u.FailedLogins, &u.LastFailedLoginAt, &u.LockedUntil,
		&u.EmailVerificationHash, &u.EmailVerificationExpiresAt, &u.EmailVerifiedAt,
		&u.CreatedAt, &u.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return u, nil
}

func pgCode(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}

func isUniqueViolation(err error) bool { return pgCode(err) == uniqueViolation }

// isMalformedID reports an id the uuid column could not parse. No row can
// match such an id.
func isMalformedID(err error) bool { return pgCode(err) == invalidTextRepresentation }

func (r *PostgresRepository) queryOne(ctx context.Context, query string, args ...any) (*models.User, error) {
	u, err := scanUser(r.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) || isMalformedID(err) {
			return nil, common.ErrorNotFound
		}
		if isUniqueViolation(err) {
			return nil, common.ErrEmailInUse
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return u, nil
}

func (r *PostgresRepository) execOne(ctx context.Context, query string, args ...any) error {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		if isMalformedID(err) {
			return common.ErrorNotFound
		}
		return fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if n == 0 {
		return common.ErrorNotFound
	}
	return nil
}

// Create inserts a new user row.
func (r *PostgresRepository) Create(ctx context.Context, user *models.User) (*models.User, error) {
	query := `
		INSERT INTO users (name, email, password_hash, role, status)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING ` + userColumns

	return r.queryOne(ctx, query, user.Name, user.Email, user.PasswordHash, user.Role, user.Status)
}

// FindByEmail looks a user up by email, ignoring case.
func (r *PostgresRepository) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE lower(email) = lower($1)`
	return r.queryOne(ctx, query, email)
}

// FindByID looks a user up by primary key.
func (r *PostgresRepository) FindByID(ctx context.Context, id string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	return r.queryOne(ctx, query, id)
}

// List returns a page of users ordered by creation time, newest first.
func (r *PostgresRepository) List(ctx context.Context, filter models.UserFilter) ([]*models.User, int, error) {
	var (
		conds []string
		args  []any
	)
	if filter.Search != "" {
		args = append(args, "%"+strings.ToLower(filter.Search)+"%")
		conds = append(conds, fmt.Sprintf("(lower(name) LIKE $%d OR lower(email) LIKE $%d)", len(args), len(args)))
	}
	if filter.Status != "" {
		args = append(args, filter.Status)
		conds = append(conds, fmt.Sprintf("status = $%d", len(args)))
	}
	if filter.Role != "" {
		args = append(args, filter.Role)
		conds = append(conds, fmt.Sprintf("role = $%d", len(args)))
	}

	where := ""
	if len(conds) > 0 {
		where = " WHERE " + strings.Join(conds, " AND ")
	}

	var total int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("db error: %w", err)
	}

	args = append(args, filter.PageSize, filter.Offset())
	query := `SELECT ` + userColumns + ` FROM users` + where +
		fmt.Sprintf(` ORDER BY created_at DESC LIMIT $%d OFFSET $%d`, len(args)-1, len(args))

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var out []*models.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("db error: %w", err)
		}
		out = append(out, u)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("db error: %w", err)
	}

	return out, total, nil
}

// Update writes the non-nil fields of upd.
func (r *PostgresRepository) Update(ctx context.Context, id string, upd models.UserUpdate, at time.Time) (*models.User, error) {
	sets := []string{"updated_at = $2"}
	args := []any{id, at}

	add := func(col string, v any) {
		args = append(args, v)
		sets = append(sets, fmt.Sprintf("%s = $%d", col, len(args)))
	}
	if upd.Name != nil {
		add("name", *upd.Name)
	}
	if upd.Email != nil {
		add("email", *upd.Email)
	}
	if upd.Role != nil {
		add("role", *upd.Role)
	}
	if upd.Status != nil {
		add("status", *upd.Status)
	}

	query := `UPDATE users SET ` + strings.Join(sets, ", ") + ` WHERE id = $1 RETURNING ` + userColumns
	return r.queryOne(ctx, query, args...)
}

// UpdatePassword replaces the stored password digest.
func (r *PostgresRepository) UpdatePassword(ctx context.Context, id string, passwordHash string, at time.Time) error {
	query := `
		UPDATE users SET password_hash = $2, updated_at = $3
		WHERE id = $1
	`
	return r.execOne(ctx, query, id, passwordHash, at)
}

// SoftDelete marks the user DELETED. The row is kept.
func (r *PostgresRepository) SoftDelete(ctx context.Context, id string, at time.Time) error {
	query := `
		UPDATE users SET status = 'DELETED', updated_at = $2
		WHERE id = $1
	`
	return r.execOne(ctx, query, id, at)
}

// GetFailuresForUpdate reads the lockout counters under a row lock.
func (r *PostgresRepository) GetFailuresForUpdate(ctx context.Context, id string) (*models.LoginFailures, error) {
	query := `
		SELECT failed_logins, last_failed_login_at, locked_until
		FROM users
		WHERE id = $1
		FOR UPDATE
	`
	f := &models.LoginFailures{}
	if err := r.db.QueryRowContext(ctx, query, id).Scan(&f.FailedLogins, &f.LastFailedLoginAt, &f.LockedUntil); err != nil {
		if errors.Is(err, sql.ErrNoRows) || isMalformedID(err) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return f, nil
}

// SaveFailures overwrites the lockout counters.
func (r *PostgresRepository) SaveFailures(ctx context.Context, id string, f models.LoginFailures) error {
	query := `
		UPDATE users SET failed_logins = $2, last_failed_login_at = $3, locked_until = $4
		WHERE id = $1
	`
	return r.execOne(ctx, query, id, f.FailedLogins, f.LastFailedLoginAt, f.LockedUntil)
}

// ResetFailures clears the lockout counters.
func (r *PostgresRepository) ResetFailures(ctx context.Context, id string) error {
	query := `
		UPDATE users SET failed_logins = 0, last_failed_login_at = NULL, locked_until = NULL
		WHERE id = $1
	`
	return r.execOne(ctx, query, id)
}

// SetEmailVerification stores the digest of a fresh verification token.
func (r *PostgresRepository) SetEmailVerification(ctx context.Context, id string, tokenHash string, expiresAt time.Time) error {
	query := `
		UPDATE users SET email_verification_hash = $2, email_verification_expires_at = $3
		WHERE id = $1
	`
	return r.execOne(ctx, query, id, tokenHash, expiresAt)
}

// FindByVerificationHashForUpdate locks and returns the user holding tokenHash.
func (r *PostgresRepository) FindByVerificationHashForUpdate(ctx context.Context, tokenHash string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE email_verification_hash = $1 FOR UPDATE`
	return r.queryOne(ctx, query, tokenHash)
}

// MarkEmailVerified records verification and drops the token.
func (r *PostgresRepository) MarkEmailVerified(ctx context.Context, id string, at time.Time) error {
	query := `
		UPDATE users
		SET email_verified_at = $2, email_verification_hash = NULL, email_verification_expires_at = NULL
		WHERE id = $1
	`
	return r.execOne(ctx, query, id, at)
}
