package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/tkivite/knowledgestore-api/internal/auth"
	"github.com/tkivite/knowledgestore-api/internal/domain"
	apperrors "github.com/tkivite/knowledgestore-api/pkg/errors"
)

const msgInvalidRefresh = "Invalid or expired refresh token"

// Refresh exchanges a stored refresh token for a new access token. The
// refresh token itself is left untouched.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (_ *domain.Refreshed, err error) {
	defer observe("refresh", &err)

	if refreshToken == "" {
		return nil, apperrors.Unauthorized("Refresh token required")
	}

	userID, err := s.codec.Verify(refreshToken, auth.KindRefresh)
	if err != nil {
		return nil, apperrors.Unauthorized(msgInvalidRefresh)
	}

	unauthorized := apperrors.Unauthorized(msgInvalidRefresh)
	if _, err := s.tokens.Find(ctx, auth.HashToken(refreshToken), userID, s.now().UTC()); err != nil {
		return nil, notFoundAs(err, unauthorized, "find refresh token")
	}
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, notFoundAs(err, unauthorized, "get user for refresh")
	}

	access, err := s.codec.IssueAccess(user.ID)
	if err != nil {
		return nil, fmt.Errorf("issue access token: %w", err)
	}

	s.log(ctx).DebugContext(ctx, "access token refreshed", slog.String("user_id", user.ID))
	return &domain.Refreshed{AccessToken: access.Value, User: sanitize(user)}, nil
}

// Logout deletes the session behind refreshToken. Unknown tokens are ignored.
func (s *AuthService) Logout(ctx context.Context, refreshToken string) (err error) {
	defer observe("logout", &err)

	if refreshToken == "" {
		return nil
	}
	if err := s.tokens.Delete(ctx, auth.HashToken(refreshToken)); err != nil {
		return fmt.Errorf("delete refresh token: %w", err)
	}
	return nil
}

// LogoutAll deletes every session owned by userID and reports how many there were.
func (s *AuthService) LogoutAll(ctx context.Context, userID string) (_ int64, err error) {
	defer observe("logout_all", &err)

	n, err := s.tokens.DeleteByUserID(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("delete refresh tokens: %w", err)
	}

	s.log(ctx).InfoContext(ctx, "all sessions revoked",
		slog.String("user_id", userID),
		slog.Int64("sessions_revoked", n),
	)
	return n, nil
}

// PruneExpiredSessions deletes refresh token rows that can no longer be redeemed.
func (s *AuthService) PruneExpiredSessions(ctx context.Context) (int64, error) {
	n, err := s.tokens.DeleteExpired(ctx, s.now().UTC())
	if err != nil {
		return 0, fmt.Errorf("delete expired refresh tokens: %w", err)
	}
	return n, nil
}

// Authenticate resolves an access token to a live, verified user. Claims in
// the token are not trusted beyond the subject.
func (s *AuthService) Authenticate(ctx context.Context, accessToken string) (*domain.User, error) {
	userID, err := s.codec.Verify(accessToken, auth.KindAccess)
	if err != nil {
		return nil, apperrors.Unauthorized("Invalid or expired token")
	}

	user, err := s.users.GetVerifiedByID(ctx, userID)
	if err != nil {
		return nil, notFoundAs(err, apperrors.Unauthorized("User not found or not verified"), "get verified user")
	}
	return sanitize(user), nil
}
