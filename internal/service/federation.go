package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/tkivite/knowledgestore-api/internal/domain"
	apperrors "github.com/tkivite/knowledgestore-api/pkg/errors"
	"github.com/tkivite/knowledgestore-api/pkg/logger"
)

var errFederationDisabled = apperrors.Unauthorized("Google sign-in is not configured")

// GoogleSignIn opens a session for the owner of a Google identity or
// access token, creating or linking the account as needed.
func (s *AuthService) GoogleSignIn(ctx context.Context, token string) (_ *domain.Session, err error) {
	defer observe("google", &err)

	if s.google == nil {
		return nil, errFederationDisabled
	}
	if token == "" {
		return nil, apperrors.Unauthorized("Google token required")
	}

	id, err := s.google.Verify(ctx, token)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		s.log(ctx).InfoContext(ctx, "google token rejected", slog.String("error", err.Error()))
		return nil, apperrors.Unauthorized("Invalid provider token")
	}
	return s.federate(ctx, id)
}

// GoogleCallback redeems an authorization code and signs its owner in.
func (s *AuthService) GoogleCallback(ctx context.Context, code string) (_ *domain.Session, err error) {
	defer observe("google_callback", &err)

	if s.google == nil {
		return nil, errFederationDisabled
	}
	if code == "" {
		return nil, apperrors.Unauthorized("Authorization code required")
	}

	id, err := s.google.Exchange(ctx, code)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		s.log(ctx).InfoContext(ctx, "google code rejected", slog.String("error", err.Error()))
		return nil, apperrors.Unauthorized("Invalid authorization code")
	}
	return s.federate(ctx, id)
}

// federate links id to the account with the same email, or creates one.
// Federated accounts are always verified.
func (s *AuthService) federate(ctx context.Context, id domain.ExternalIdentity) (*domain.Session, error) {
	email := normalizeEmail(id.Email)
	if email == "" {
		return nil, apperrors.Unauthorized("Email not available from provider")
	}

	user, err := s.users.GetByEmail(ctx, email)
	switch {
	case err == nil:
		user, err = s.link(ctx, user, id)
	case apperrors.IsNotFound(err):
		user, err = s.createFederated(ctx, email, id)
		if errors.Is(err, apperrors.ErrAlreadyExists) {
			// Lost a race with a concurrent sign-in for the same email.
			user, err = s.users.GetByEmail(ctx, email)
			if err == nil {
				user, err = s.link(ctx, user, id)
			}
		}
	}
	if err != nil {
		return nil, fmt.Errorf("resolve federated user: %w", err)
	}

	session, err := s.openSession(ctx, user)
	if err != nil {
		return nil, err
	}

	s.log(ctx).InfoContext(ctx, "federated sign-in",
		slog.String("user_id", user.ID),
		slog.String("provider", id.Provider),
		slog.String("source", string(id.Source)),
	)
	return session, nil
}

func (s *AuthService) link(ctx context.Context, user *domain.User, id domain.ExternalIdentity) (*domain.User, error) {
	var patch domain.UserPatch
	if user.ExternalID == nil || *user.ExternalID != id.ExternalID {
		patch.ExternalID = &id.ExternalID
	}
	if id.Picture != "" && (user.Picture == nil || *user.Picture != id.Picture) {
		patch.Picture = &id.Picture
	}
	if !user.IsVerified {
		verified := true
		patch.IsVerified = &verified
		patch.Verification = domain.ClearToken
	}
	if patch.Empty() {
		return user, nil
	}
	return s.users.Update(ctx, user.ID, patch)
}

func (s *AuthService) createFederated(ctx context.Context, email string, id domain.ExternalIdentity) (*domain.User, error) {
	name := strings.TrimSpace(id.Name)
	if name == "" {
		name, _, _ = strings.Cut(email, "@")
	}

	now := s.now().UTC()
	user := &domain.User{
		ID:         uuid.NewString(),
		Email:      email,
		Name:       name,
		IsVerified: true,
		ExternalID: &id.ExternalID,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if id.Picture != "" {
		user.Picture = &id.Picture
	}
	if err := s.users.Create(ctx, user); err != nil {
		return nil, err
	}

	s.log(ctx).InfoContext(ctx, "federated user created",
		slog.String("user_id", user.ID),
		logger.Email(user.Email),
	)
	return user, nil
}
