package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tkivite/knowledgestore-api/internal/domain"
	apperrors "github.com/tkivite/knowledgestore-api/pkg/errors"
)

var tokenColumns = []string{"id", "user_id", "token_hash", "expires_at", "created_at"}

func sampleToken() *domain.RefreshToken {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	return &domain.RefreshToken{
		ID:        "c0a80101-0000-4000-8000-000000000001",
		UserID:    "u-1",
		TokenHash: "5e884898da28047151d0e56f8dc6292773603d0d6aabbdd62a11ef721d1542d8",
		ExpiresAt: now.Add(7 * 24 * time.Hour),
		CreatedAt: now,
	}
}

func TestRefreshTokenRepository_Create(t *testing.T) {
	mock := newMock(t)
	rt := sampleToken()

	mock.ExpectExec("INSERT INTO refresh_tokens").
		WithArgs(rt.ID, rt.UserID, rt.TokenHash, rt.ExpiresAt, rt.CreatedAt).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, NewRefreshTokenRepository(mock).Create(context.Background(), rt))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRefreshTokenRepository_Find(t *testing.T) {
	mock := newMock(t)
	rt := sampleToken()
	now := rt.CreatedAt.Add(time.Hour)

	mock.ExpectQuery(`FROM refresh_tokens\s+WHERE token_hash = \$1 AND user_id = \$2 AND expires_at > \$3`).
		WithArgs(rt.TokenHash, rt.UserID, now).
		WillReturnRows(pgxmock.NewRows(tokenColumns).AddRow(rt.ID, rt.UserID, rt.TokenHash, rt.ExpiresAt, rt.CreatedAt))

	got, err := NewRefreshTokenRepository(mock).Find(context.Background(), rt.TokenHash, rt.UserID, now)
	require.NoError(t, err)
	assert.Equal(t, rt, got)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRefreshTokenRepository_Find_Missing(t *testing.T) {
	mock := newMock(t)
	now := time.Now()

	mock.ExpectQuery("FROM refresh_tokens").
		WithArgs("hash", "u-1", now).
		WillReturnRows(pgxmock.NewRows(tokenColumns))

	_, err := NewRefreshTokenRepository(mock).Find(context.Background(), "hash", "u-1", now)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestRefreshTokenRepository_Delete_Idempotent(t *testing.T) {
	mock := newMock(t)

	mock.ExpectExec(`DELETE FROM refresh_tokens WHERE token_hash = \$1`).
		WithArgs("hash").
		WillReturnResult(pgxmock.NewResult("DELETE", 0))

	assert.NoError(t, NewRefreshTokenRepository(mock).Delete(context.Background(), "hash"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRefreshTokenRepository_DeleteByUserID(t *testing.T) {
	mock := newMock(t)

	mock.ExpectExec(`DELETE FROM refresh_tokens WHERE user_id = \$1`).
		WithArgs("u-1").
		WillReturnResult(pgxmock.NewResult("DELETE", 3))

	n, err := NewRefreshTokenRepository(mock).DeleteByUserID(context.Background(), "u-1")
	require.NoError(t, err)
	assert.EqualValues(t, 3, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRefreshTokenRepository_DeleteByUserID_Error(t *testing.T) {
	mock := newMock(t)

	mock.ExpectExec("DELETE FROM refresh_tokens").
		WithArgs("u-1").
		WillReturnError(errors.New("conn busy"))

	_, err := NewRefreshTokenRepository(mock).DeleteByUserID(context.Background(), "u-1")
	assert.ErrorContains(t, err, "conn busy")
}

func TestRefreshTokenRepository_DeleteExpired(t *testing.T) {
	mock := newMock(t)
	now := time.Now()

	mock.ExpectExec(`DELETE FROM refresh_tokens WHERE expires_at <= \$1`).
		WithArgs(now).
		WillReturnResult(pgxmock.NewResult("DELETE", 12))

	n, err := NewRefreshTokenRepository(mock).DeleteExpired(context.Background(), now)
	require.NoError(t, err)
	assert.EqualValues(t, 12, n)
}
