package http

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/tkivite/knowledgestore-api/internal/auth"
	"github.com/tkivite/knowledgestore-api/internal/domain"
	"github.com/tkivite/knowledgestore-api/internal/service"
	apperrors "github.com/tkivite/knowledgestore-api/pkg/errors"
	"github.com/tkivite/knowledgestore-api/pkg/httputil"
	"github.com/tkivite/knowledgestore-api/pkg/validator"
)

const maxBodyBytes = 1 << 20

// AuthService is the subset of *service.AuthService the handlers call.
type AuthService interface {
	Signup(ctx context.Context, input service.SignupInput) (*domain.User, error)
	Login(ctx context.Context, input service.LoginInput) (*domain.Session, error)
	VerifyEmail(ctx context.Context, token string) (*domain.User, error)
	ResendVerification(ctx context.Context, input service.EmailInput) error
	ForgotPassword(ctx context.Context, input service.EmailInput) error
	ResetPassword(ctx context.Context, input service.ResetPasswordInput) error
	Refresh(ctx context.Context, refreshToken string) (*domain.Refreshed, error)
	Logout(ctx context.Context, refreshToken string) error
	LogoutAll(ctx context.Context, userID string) (int64, error)
	GoogleSignIn(ctx context.Context, token string) (*domain.Session, error)
	GoogleCallback(ctx context.Context, code string) (*domain.Session, error)
	Authenticate(ctx context.Context, accessToken string) (*domain.User, error)
}

// AuthHandler serves the /api/v1/auth routes.
type AuthHandler struct {
	service AuthService
	logger  *slog.Logger
}

// NewAuthHandler creates an AuthHandler.
func NewAuthHandler(svc AuthService, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{service: svc, logger: logger}
}

// --- Request DTOs ---

// RefreshTokenRequest is the body of refresh-token and logout.
type RefreshTokenRequest struct {
	RefreshToken string `json:"refreshToken"`
}

// GoogleRequest carries a Google identity or access token.
type GoogleRequest struct {
	Token string `json:"token"`
}

// GoogleCallbackRequest carries an authorization code.
type GoogleCallbackRequest struct {
	Code string `json:"code" validate:"required"`
}

// --- Response types ---

// UserResponse wraps a single user.
type UserResponse struct {
	User *domain.User `json:"user"`
}

// VerifyEmailResponse is returned after a successful verification.
type VerifyEmailResponse struct {
	Message string       `json:"message"`
	User    *domain.User `json:"user"`
}

// LogoutAllResponse reports how many sessions were closed.
type LogoutAllResponse struct {
	Message         string `json:"message"`
	SessionsRevoked int64  `json:"sessionsRevoked"`
}

// SessionResponse describes the caller of an optionally authenticated route.
type SessionResponse struct {
	Authenticated bool         `json:"authenticated"`
	User          *domain.User `json:"user,omitempty"`
}

// ForgotPasswordMessage is returned for every forgot-password request.
const ForgotPasswordMessage = "If an account with that email exists, a password reset link has been sent"

// --- Handlers ---

// Signup handles POST /api/v1/auth/signup
func (h *AuthHandler) Signup(w http.ResponseWriter, r *http.Request) {
	var req service.SignupInput
	if !h.decode(w, r, &req) {
		return
	}

	user, err := h.service.Signup(r.Context(), req)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteData(w, http.StatusCreated, UserResponse{User: user})
}

// Login handles POST /api/v1/auth/login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req service.LoginInput
	if !h.decode(w, r, &req) {
		return
	}

	session, err := h.service.Login(r.Context(), req)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteData(w, http.StatusOK, session)
}

// VerifyEmail handles GET /api/v1/auth/verify-email/{token}
func (h *AuthHandler) VerifyEmail(w http.ResponseWriter, r *http.Request) {
	user, err := h.service.VerifyEmail(r.Context(), chi.URLParam(r, "token"))
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteData(w, http.StatusOK, VerifyEmailResponse{Message: "Email verified successfully", User: user})
}

// ResendVerification handles POST /api/v1/auth/resend-verification
func (h *AuthHandler) ResendVerification(w http.ResponseWriter, r *http.Request) {
	var req service.EmailInput
	if !h.decode(w, r, &req) {
		return
	}

	if err := h.service.ResendVerification(r.Context(), req); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteMessage(w, http.StatusOK, "Verification email sent")
}

// ForgotPassword handles POST /api/v1/auth/forgot-password
func (h *AuthHandler) ForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req service.EmailInput
	if !h.decode(w, r, &req) {
		return
	}

	if err := h.service.ForgotPassword(r.Context(), req); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteMessage(w, http.StatusOK, ForgotPasswordMessage)
}

// ResetPassword handles POST /api/v1/auth/reset-password
func (h *AuthHandler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var req service.ResetPasswordInput
	if !h.decode(w, r, &req) {
		return
	}

	if err := h.service.ResetPassword(r.Context(), req); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteMessage(w, http.StatusOK, "Password reset successfully")
}

// RefreshToken handles POST /api/v1/auth/refresh-token
func (h *AuthHandler) RefreshToken(w http.ResponseWriter, r *http.Request) {
	var req RefreshTokenRequest
	if !h.decode(w, r, &req) {
		return
	}

	out, err := h.service.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteData(w, http.StatusOK, out)
}

// Logout handles POST /api/v1/auth/logout
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	var req RefreshTokenRequest
	if !h.decode(w, r, &req) {
		return
	}

	if err := h.service.Logout(r.Context(), req.RefreshToken); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteMessage(w, http.StatusOK, "Logged out successfully")
}

// LogoutAll handles POST /api/v1/auth/logout-all
func (h *AuthHandler) LogoutAll(w http.ResponseWriter, r *http.Request) {
	id, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		httputil.WriteError(w, r, apperrors.Unauthorized("Access token required"), h.logger)
		return
	}

	n, err := h.service.LogoutAll(r.Context(), id.UserID)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteData(w, http.StatusOK, LogoutAllResponse{Message: "Logged out from all devices", SessionsRevoked: n})
}

// Google handles POST /api/v1/auth/google
func (h *AuthHandler) Google(w http.ResponseWriter, r *http.Request) {
	var req GoogleRequest
	if !h.decode(w, r, &req) {
		return
	}

	session, err := h.service.GoogleSignIn(r.Context(), req.Token)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteData(w, http.StatusOK, session)
}

// GoogleCallback handles POST /api/v1/auth/google/callback
func (h *AuthHandler) GoogleCallback(w http.ResponseWriter, r *http.Request) {
	var req GoogleCallbackRequest
	if !h.decode(w, r, &req) {
		return
	}

	session, err := h.service.GoogleCallback(r.Context(), req.Code)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteData(w, http.StatusOK, session)
}

// Me handles GET /api/v1/auth/me
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	id, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		httputil.WriteError(w, r, apperrors.Unauthorized("Access token required"), h.logger)
		return
	}
	httputil.WriteData(w, http.StatusOK, UserResponse{User: id.User})
}

// Session handles GET /api/v1/auth/session. It never fails.
func (h *AuthHandler) Session(w http.ResponseWriter, r *http.Request) {
	id, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		httputil.WriteData(w, http.StatusOK, SessionResponse{})
		return
	}
	httputil.WriteData(w, http.StatusOK, SessionResponse{Authenticated: true, User: id.User})
}

// decode reads and validates a JSON body, writing a 400 on failure.
func (h *AuthHandler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := validator.DecodeAndValidate(r, dst); err != nil {
		httputil.WriteValidationError(w, r, err)
		return false
	}
	return true
}
