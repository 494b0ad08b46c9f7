// Package resettokens provides a PostgreSQL-backed repository for password
// reset tokens.
package resettokens

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

const tokenColumns = `id, user_id, token_hash, expires_at, used_at, created_at`

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) queryOne(ctx context.Context, query string, args ...any) (*models.ResetToken, error) {
	t := &models.ResetToken{}
	err := r.db.QueryRowContext(ctx, query, args...).Scan(
		&t.ID, &t.UserID, &t.TokenHash, &t.ExpiresAt, &t.UsedAt, &t.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return t, nil
}

func (r *PostgresRepository) Create(ctx context.Context, userID string, tokenHash string, expiresAt time.Time) (*models.ResetToken, error) {
	query := `
		INSERT INTO password_reset_tokens (user_id, token_hash, expires_at)
		VALUES ($1, $2, $3)
		RETURNING ` + tokenColumns
	return r.queryOne(ctx, query, userID, tokenHash, expiresAt)
}

// ConsumeIfValid is a single conditional UPDATE; the row lock it takes
// serialises concurrent consumers of the same token.
func (r *PostgresRepository) ConsumeIfValid(ctx context.Context, tokenHash string, now time.Time) (*models.ResetToken, error) {
	query := `
		UPDATE password_reset_tokens SET used_at = $2
		WHERE token_hash = $1 AND used_at IS NULL AND expires_at > $2
		RETURNING ` + tokenColumns
	return r.queryOne(ctx, query, tokenHash, now)
}
