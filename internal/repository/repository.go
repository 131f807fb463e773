package repository

import (
	"context"
	"time"

	"github.com/tkivite/knowledgestore-api/internal/domain"
)

// UserRepository persists users. Lookups that find nothing return an error
// matching apperrors.ErrNotFound.
type UserRepository interface {
	// Create inserts u. A duplicate email yields apperrors.ErrAlreadyExists.
	Create(ctx context.Context, u *domain.User) error

	GetByID(ctx context.Context, id string) (*domain.User, error)

	// GetVerifiedByID only returns users whose email is verified.
	GetVerifiedByID(ctx context.Context, id string) (*domain.User, error)

	// GetByEmail matches case-insensitively.
	GetByEmail(ctx context.Context, email string) (*domain.User, error)

	// GetByVerificationToken returns the user holding token if it expires after now.
	GetByVerificationToken(ctx context.Context, token string, now time.Time) (*domain.User, error)

	// GetByResetToken returns the user holding token if it expires after now.
	GetByResetToken(ctx context.Context, token string, now time.Time) (*domain.User, error)

	// Update applies patch to the user. If the patch's guard token no longer
	// matches, nothing is written and ErrNotFound is returned.
	Update(ctx context.Context, id string, patch domain.UserPatch) (*domain.User, error)
}

// RefreshTokenRepository persists refresh token rows keyed by token digest.
type RefreshTokenRepository interface {
	Create(ctx context.Context, rt *domain.RefreshToken) error

	// Find returns the row for tokenHash owned by userID that expires after now.
	Find(ctx context.Context, tokenHash, userID string, now time.Time) (*domain.RefreshToken, error)

	// Delete removes the row for tokenHash. A missing row is not an error.
	Delete(ctx context.Context, tokenHash string) error

	// DeleteByUserID removes every row owned by userID and reports how many.
	DeleteByUserID(ctx context.Context, userID string) (int64, error)

	// DeleteExpired purges rows that expired at or before now.
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}
