package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/tkivite/knowledgestore-api/internal/domain"
	apperrors "github.com/tkivite/knowledgestore-api/pkg/errors"
	"github.com/tkivite/knowledgestore-api/pkg/database"
)

// RefreshTokenRepository implements repository.RefreshTokenRepository on PostgreSQL.
type RefreshTokenRepository struct {
	db database.DBTX
}

// NewRefreshTokenRepository returns a repository backed by db.
func NewRefreshTokenRepository(db database.DBTX) *RefreshTokenRepository {
	return &RefreshTokenRepository{db: db}
}

// Create stores a new session row.
func (r *RefreshTokenRepository) Create(ctx context.Context, rt *domain.RefreshToken) (err error) {
	const query = `INSERT INTO refresh_tokens (id, user_id, token_hash, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5)`

	ctx, end := database.TraceQuery(ctx, "refresh_tokens.create", query)
	defer func() { end(err) }()

	if _, err = r.db.Exec(ctx, query, rt.ID, rt.UserID, rt.TokenHash, rt.ExpiresAt, rt.CreatedAt); err != nil {
		return fmt.Errorf("insert refresh token: %w", err)
	}
	return nil
}

// Find returns the live row for tokenHash owned by userID.
func (r *RefreshTokenRepository) Find(ctx context.Context, tokenHash, userID string, now time.Time) (_ *domain.RefreshToken, err error) {
	const query = `SELECT id, user_id, token_hash, expires_at, created_at
		FROM refresh_tokens
		WHERE token_hash = $1 AND user_id = $2 AND expires_at > $3`

	ctx, end := database.TraceQuery(ctx, "refresh_tokens.find", query)
	defer func() { end(spanError(err)) }()

	var rt domain.RefreshToken
	err = r.db.QueryRow(ctx, query, tokenHash, userID, now).
		Scan(&rt.ID, &rt.UserID, &rt.TokenHash, &rt.ExpiresAt, &rt.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NotFoundMessage("refresh token not found")
		}
		return nil, fmt.Errorf("find refresh token: %w", err)
	}
	return &rt, nil
}

// Delete removes the row for tokenHash, if present.
func (r *RefreshTokenRepository) Delete(ctx context.Context, tokenHash string) (err error) {
	const query = `DELETE FROM refresh_tokens WHERE token_hash = $1`

	ctx, end := database.TraceQuery(ctx, "refresh_tokens.delete", query)
	defer func() { end(err) }()

	if _, err = r.db.Exec(ctx, query, tokenHash); err != nil {
		return fmt.Errorf("delete refresh token: %w", err)
	}
	return nil
}

// DeleteByUserID removes every session of userID.
func (r *RefreshTokenRepository) DeleteByUserID(ctx context.Context, userID string) (_ int64, err error) {
	const query = `DELETE FROM refresh_tokens WHERE user_id = $1`

	ctx, end := database.TraceQuery(ctx, "refresh_tokens.delete_by_user", query)
	defer func() { end(err) }()

	tag, err := r.db.Exec(ctx, query, userID)
	if err != nil {
		return 0, fmt.Errorf("delete refresh tokens for user: %w", err)
	}
	return tag.RowsAffected(), nil
}

// DeleteExpired purges rows that expired before now.
func (r *RefreshTokenRepository) DeleteExpired(ctx context.Context, now time.Time) (_ int64, err error) {
	const query = `DELETE FROM refresh_tokens WHERE expires_at <= $1`

	ctx, end := database.TraceQuery(ctx, "refresh_tokens.delete_expired", query)
	defer func() { end(err) }()

	tag, err := r.db.Exec(ctx, query, now)
	if err != nil {
		return 0, fmt.Errorf("delete expired refresh tokens: %w", err)
	}
	return tag.RowsAffected(), nil
}
