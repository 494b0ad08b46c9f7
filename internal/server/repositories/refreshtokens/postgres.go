// Package refreshtokens provides a PostgreSQL-backed repository for managing
// refresh tokens used in the server's authentication flow.
package refreshtokens

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/authkeeper/internal/common"
	"github.com/dmitrijs2005/authkeeper/internal/dbx"
	"github.com/dmitrijs2005/authkeeper/internal/server/models"
)

const tokenColumns = `id, user_id, token_hash, expires_at, created_at, revoked_at, replaced_by_token_id`

// PostgresRepository implements Repository over dbx.DBTX
// (satisfied by *sql.DB or *sql.Tx).
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) queryOne(ctx context.Context, query string, args ...any) (*models.RefreshToken, error) {
	t := &models.RefreshToken{}
	err := r.db.QueryRowContext(ctx, query, args...).Scan(
		&t.ID, &t.UserID, &t.TokenHash, &t.ExpiresAt, &t.CreatedAt, &t.RevokedAt, &t.ReplacedBy,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return t, nil
}

// Create inserts a new refresh token row.
func (r *PostgresRepository) Create(ctx context.Context, userID string, tokenHash string, expiresAt time.Time) (*models.RefreshToken, error) {
	query := `
		INSERT INTO refresh_tokens (user_id, token_hash, expires_at)
		VALUES ($1, $2, $3)
		RETURNING ` + tokenColumns
	return r.queryOne(ctx, query, userID, tokenHash, expiresAt)
}

// FindValidByHash selects the active token row FOR UPDATE.
func (r *PostgresRepository) FindValidByHash(ctx context.Context, tokenHash string) (*models.RefreshToken, error) {
	query := `
		SELECT ` + tokenColumns + `
		FROM refresh_tokens
		WHERE token_hash = $1 AND revoked_at IS NULL
		FOR UPDATE
	`
	return r.queryOne(ctx, query, tokenHash)
}

// FindByHash selects the token row in any state.
func (r *PostgresRepository) FindByHash(ctx context.Context, tokenHash string) (*models.RefreshToken, error) {
	query := `
		SELECT ` + tokenColumns + `
		FROM refresh_tokens
		WHERE token_hash = $1
	`
	return r.queryOne(ctx, query, tokenHash)
}

// Revoke marks a single token revoked.
func (r *PostgresRepository) Revoke(ctx context.Context, id string, at time.Time) error {
	query := `
		UPDATE refresh_tokens SET revoked_at = $2
		WHERE id = $1 AND revoked_at IS NULL
	`
	if _, err := r.db.ExecContext(ctx, query, id, at); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

// RevokeAllForUser marks every active token of userID revoked.
func (r *PostgresRepository) RevokeAllForUser(ctx context.Context, userID string, at time.Time) (int64, error) {
	query := `
		UPDATE refresh_tokens SET revoked_at = $2
		WHERE user_id = $1 AND revoked_at IS NULL
	`
	res, err := r.db.ExecContext(ctx, query, userID, at)
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return n, nil
}

// LinkReplacement stores the rotation link old -> new.
func (r *PostgresRepository) LinkReplacement(ctx context.Context, id string, replacementID string) error {
	query := `
		UPDATE refresh_tokens SET replaced_by_token_id = $2
		WHERE id = $1
	`
	if _, err := r.db.ExecContext(ctx, query, id, replacementID); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}
