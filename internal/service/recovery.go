package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/tkivite/knowledgestore-api/internal/auth"
	"github.com/tkivite/knowledgestore-api/internal/domain"
	apperrors "github.com/tkivite/knowledgestore-api/pkg/errors"
	"github.com/tkivite/knowledgestore-api/pkg/logger"
	"github.com/tkivite/knowledgestore-api/pkg/validator"
)

// EmailInput carries a single email address.
type EmailInput struct {
	Email string `json:"email" validate:"required,email"`
}

// ResetPasswordInput holds a reset token and the new password.
type ResetPasswordInput struct {
	Token    string `json:"token" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// VerifyEmail consumes a verification token and marks its owner verified.
func (s *AuthService) VerifyEmail(ctx context.Context, token string) (_ *domain.User, err error) {
	defer observe("verify_email", &err)

	invalid := apperrors.InvalidInput("Invalid or expired verification token")
	if token == "" {
		return nil, invalid
	}

	user, err := s.users.GetByVerificationToken(ctx, token, s.now().UTC())
	if err != nil {
		return nil, notFoundAs(err, invalid, "get user by verification token")
	}

	verified := true
	user, err = s.users.Update(ctx, user.ID, domain.UserPatch{
		IsVerified:               &verified,
		Verification:             domain.ClearToken,
		RequireVerificationToken: token,
	})
	if err != nil {
		return nil, notFoundAs(err, invalid, "mark user verified")
	}

	s.log(ctx).InfoContext(ctx, "email verified", slog.String("user_id", user.ID))
	return sanitize(user), nil
}

// ResendVerification replaces the pending verification token and emails it again.
func (s *AuthService) ResendVerification(ctx context.Context, input EmailInput) (err error) {
	defer observe("resend_verification", &err)

	input.Email = normalizeEmail(input.Email)
	if err := validator.Validate(input); err != nil {
		return err
	}

	user, err := s.users.GetByEmail(ctx, input.Email)
	if err != nil {
		return notFoundAs(err, apperrors.NotFoundMessage("User not found"), "get user by email")
	}
	if user.IsVerified {
		return apperrors.InvalidInput("Email is already verified")
	}

	token, err := s.newToken()
	if err != nil {
		return fmt.Errorf("generate verification token: %w", err)
	}
	user, err = s.users.Update(ctx, user.ID, domain.UserPatch{
		Verification: &domain.OneTimeToken{Token: token, ExpiresAt: s.now().UTC().Add(VerificationTokenTTL)},
	})
	if err != nil {
		return fmt.Errorf("store verification token: %w", err)
	}

	if err := s.notifier.SendVerificationEmail(ctx, recipient(user), token); err != nil {
		s.log(ctx).ErrorContext(ctx, "failed to resend verification email",
			slog.String("user_id", user.ID),
			slog.String("error", err.Error()),
		)
	}
	return nil
}

// ForgotPassword emails a reset link when the address belongs to an
// account. The outcome is never revealed to the caller: every well-formed
// request succeeds.
func (s *AuthService) ForgotPassword(ctx context.Context, input EmailInput) (err error) {
	defer observe("forgot_password", &err)

	input.Email = normalizeEmail(input.Email)
	if err := validator.Validate(input); err != nil {
		return err
	}

	user, err := s.users.GetByEmail(ctx, input.Email)
	if err != nil {
		if apperrors.IsNotFound(err) {
			s.log(ctx).InfoContext(ctx, "password reset requested for unknown email", logger.Email(input.Email))
		} else {
			s.log(ctx).ErrorContext(ctx, "password reset lookup failed", slog.String("error", err.Error()))
		}
		return nil
	}

	token, err := s.newToken()
	if err != nil {
		s.log(ctx).ErrorContext(ctx, "failed to generate reset token", slog.String("error", err.Error()))
		return nil
	}
	user, err = s.users.Update(ctx, user.ID, domain.UserPatch{
		Reset: &domain.OneTimeToken{Token: token, ExpiresAt: s.now().UTC().Add(ResetTokenTTL)},
	})
	if err != nil {
		s.log(ctx).ErrorContext(ctx, "failed to store reset token", slog.String("error", err.Error()))
		return nil
	}

	if err := s.notifier.SendPasswordResetEmail(ctx, recipient(user), token); err != nil {
		s.log(ctx).ErrorContext(ctx, "failed to send password reset email",
			slog.String("user_id", user.ID),
			slog.String("error", err.Error()),
		)
	}

	s.log(ctx).InfoContext(ctx, "password reset requested", slog.String("user_id", user.ID))
	return nil
}

// ResetPassword sets a new password using a reset token and ends every
// session the user had open.
func (s *AuthService) ResetPassword(ctx context.Context, input ResetPasswordInput) (err error) {
	defer observe("reset_password", &err)

	if err := validator.Validate(input); err != nil {
		return err
	}
	if res := auth.CheckPassword(input.Password); !res.Valid {
		return apperrors.InvalidInput(res.Reason)
	}

	invalid := apperrors.InvalidInput("Invalid or expired reset token")
	user, err := s.users.GetByResetToken(ctx, input.Token, s.now().UTC())
	if err != nil {
		return notFoundAs(err, invalid, "get user by reset token")
	}

	digest, err := s.hasher.Hash(input.Password)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	user, err = s.users.Update(ctx, user.ID, domain.UserPatch{
		PasswordHash:      &digest,
		Reset:             domain.ClearToken,
		RequireResetToken: input.Token,
	})
	if err != nil {
		return notFoundAs(err, invalid, "update password")
	}

	revoked, err := s.tokens.DeleteByUserID(ctx, user.ID)
	if err != nil {
		return fmt.Errorf("revoke sessions after password reset: %w", err)
	}

	if err := s.notifier.SendPasswordChangeNotification(ctx, recipient(user)); err != nil {
		s.log(ctx).ErrorContext(ctx, "failed to send password change notification",
			slog.String("user_id", user.ID),
			slog.String("error", err.Error()),
		)
	}

	s.log(ctx).InfoContext(ctx, "password reset",
		slog.String("user_id", user.ID),
		slog.Int64("sessions_revoked", revoked),
	)
	return nil
}
