package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/tkivite/knowledgestore-api/internal/auth"
	"github.com/tkivite/knowledgestore-api/internal/domain"
	"github.com/tkivite/knowledgestore-api/internal/event"
	"github.com/tkivite/knowledgestore-api/internal/repository"
	apperrors "github.com/tkivite/knowledgestore-api/pkg/errors"
	"github.com/tkivite/knowledgestore-api/pkg/logger"
	"github.com/tkivite/knowledgestore-api/pkg/validator"
)

// Lifetimes of the single-use email tokens.
const (
	VerificationTokenTTL = 24 * time.Hour
	ResetTokenTTL        = time.Hour
)

// CodeEmailNotVerified distinguishes an unverified login from bad credentials.
const CodeEmailNotVerified = "EMAIL_NOT_VERIFIED"

const msgInvalidCredentials = "Invalid email or password"

// Notifier delivers the transactional emails the auth flows trigger.
type Notifier interface {
	SendVerificationEmail(ctx context.Context, to event.Recipient, token string) error
	SendPasswordResetEmail(ctx context.Context, to event.Recipient, token string) error
	SendPasswordChangeNotification(ctx context.Context, to event.Recipient) error
}

// IdentityVerifier resolves third-party credentials to an external identity.
type IdentityVerifier interface {
	Verify(ctx context.Context, token string) (domain.ExternalIdentity, error)
	Exchange(ctx context.Context, code string) (domain.ExternalIdentity, error)
}

// Option customises an AuthService.
type Option func(*AuthService)

// WithClock sets the time source for token expiry.
func WithClock(now func() time.Time) Option {
	return func(s *AuthService) { s.now = now }
}

// WithIdentityVerifier enables Google sign-in.
func WithIdentityVerifier(v IdentityVerifier) Option {
	return func(s *AuthService) { s.google = v }
}

// AuthService implements signup, login, email verification, password
// recovery, session refresh and federated sign-in.
type AuthService struct {
	users    repository.UserRepository
	tokens   repository.RefreshTokenRepository
	hasher   *auth.PasswordHasher
	codec    *auth.TokenCodec
	notifier Notifier
	google   IdentityVerifier
	logger   *slog.Logger

	now      func() time.Time
	newToken func() (string, error)
}

// NewAuthService creates an AuthService.
func NewAuthService(
	users repository.UserRepository,
	tokens repository.RefreshTokenRepository,
	hasher *auth.PasswordHasher,
	codec *auth.TokenCodec,
	notifier Notifier,
	logger *slog.Logger,
	opts ...Option,
) *AuthService {
	s := &AuthService{
		users:    users,
		tokens:   tokens,
		hasher:   hasher,
		codec:    codec,
		notifier: notifier,
		logger:   logger,
		now:      time.Now,
		newToken: auth.GenerateOpaqueToken,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SignupInput holds the parameters for creating a password account.
type SignupInput struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8"`
	Name     string `json:"name" validate:"notblank"`
}

// LoginInput holds the parameters for a password login.
type LoginInput struct {
	Email    string `json:"email" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// Signup creates an unverified account and emails a verification link.
// The returned user carries no credentials or tokens.
func (s *AuthService) Signup(ctx context.Context, input SignupInput) (_ *domain.User, err error) {
	defer observe("signup", &err)

	input.Email = normalizeEmail(input.Email)
	if err := validator.Validate(input); err != nil {
		return nil, err
	}

	switch _, err := s.users.GetByEmail(ctx, input.Email); {
	case err == nil:
		return nil, apperrors.AlreadyExists("user", "email", input.Email)
	case !apperrors.IsNotFound(err):
		return nil, fmt.Errorf("check existing user: %w", err)
	}

	if res := auth.CheckPassword(input.Password); !res.Valid {
		return nil, apperrors.InvalidInput(res.Reason)
	}

	digest, err := s.hasher.Hash(input.Password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	token, err := s.newToken()
	if err != nil {
		return nil, fmt.Errorf("generate verification token: %w", err)
	}

	now := s.now().UTC()
	expires := now.Add(VerificationTokenTTL)
	user := &domain.User{
		ID:                  uuid.NewString(),
		Email:               input.Email,
		Name:                strings.TrimSpace(input.Name),
		PasswordHash:        &digest,
		VerificationToken:   &token,
		VerificationExpires: &expires,
		CreatedAt:           now,
		UpdatedAt:           now,
	}
	if err := s.users.Create(ctx, user); err != nil {
		return nil, fmt.Errorf("create user: %w", err)
	}

	if err := s.notifier.SendVerificationEmail(ctx, recipient(user), token); err != nil {
		s.log(ctx).ErrorContext(ctx, "failed to send verification email",
			slog.String("user_id", user.ID),
			slog.String("error", err.Error()),
		)
	}

	s.log(ctx).InfoContext(ctx, "user signed up",
		slog.String("user_id", user.ID),
		logger.Email(user.Email),
	)
	return sanitize(user), nil
}

// Login checks a password and opens a session. Unknown emails, federated
// accounts without a password and wrong passwords are indistinguishable.
func (s *AuthService) Login(ctx context.Context, input LoginInput) (_ *domain.Session, err error) {
	defer observe("login", &err)

	input.Email = normalizeEmail(input.Email)
	if err := validator.Validate(input); err != nil {
		return nil, err
	}

	user, err := s.users.GetByEmail(ctx, input.Email)
	if err != nil {
		if apperrors.IsNotFound(err) {
			return nil, apperrors.Unauthorized(msgInvalidCredentials)
		}
		return nil, fmt.Errorf("get user by email: %w", err)
	}
	if !user.HasPassword() || !s.hasher.Verify(input.Password, *user.PasswordHash) {
		reason := "bad credentials"
		if !user.HasPassword() && user.IsFederated() {
			reason = "federated account without password"
		}
		s.log(ctx).InfoContext(ctx, "login rejected",
			slog.String("user_id", user.ID),
			slog.String("reason", reason),
		)
		return nil, apperrors.Unauthorized(msgInvalidCredentials)
	}
	if !user.IsVerified {
		return nil, apperrors.Unauthorized("Please verify your email before logging in").WithCode(CodeEmailNotVerified)
	}

	session, err := s.openSession(ctx, user)
	if err != nil {
		return nil, err
	}

	s.log(ctx).InfoContext(ctx, "user logged in", slog.String("user_id", user.ID))
	return session, nil
}

// openSession issues an access/refresh pair and stores the refresh token digest.
func (s *AuthService) openSession(ctx context.Context, user *domain.User) (*domain.Session, error) {
	access, err := s.codec.IssueAccess(user.ID)
	if err != nil {
		return nil, fmt.Errorf("issue access token: %w", err)
	}
	refresh, err := s.codec.IssueRefresh(user.ID)
	if err != nil {
		return nil, fmt.Errorf("issue refresh token: %w", err)
	}

	row := &domain.RefreshToken{
		ID:        uuid.NewString(),
		UserID:    user.ID,
		TokenHash: auth.HashToken(refresh.Value),
		ExpiresAt: refresh.ExpiresAt,
		CreatedAt: s.now().UTC(),
	}
	if err := s.tokens.Create(ctx, row); err != nil {
		return nil, fmt.Errorf("store refresh token: %w", err)
	}

	return &domain.Session{
		User:   sanitize(user),
		Tokens: domain.TokenPair{AccessToken: access.Value, RefreshToken: refresh.Value},
	}, nil
}

func (s *AuthService) log(ctx context.Context) *slog.Logger {
	return logger.WithContext(ctx, s.logger)
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func recipient(u *domain.User) event.Recipient {
	return event.Recipient{UserID: u.ID, Email: u.Email, Name: u.Name}
}

// sanitize returns a copy of u without credentials or pending tokens.
func sanitize(u *domain.User) *domain.User {
	cpy := *u
	cpy.PasswordHash = nil
	cpy.ExternalID = nil
	cpy.VerificationToken, cpy.VerificationExpires = nil, nil
	cpy.ResetToken, cpy.ResetExpires = nil, nil
	return &cpy
}

// notFoundAs maps a repository miss to replacement and wraps anything else.
func notFoundAs(err error, replacement error, op string) error {
	if errors.Is(err, apperrors.ErrNotFound) {
		return replacement
	}
	return fmt.Errorf("%s: %w", op, err)
}
