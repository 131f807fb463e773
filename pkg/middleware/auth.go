package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	apperrors "github.com/tkivite/knowledgestore-api/pkg/errors"
	"github.com/tkivite/knowledgestore-api/pkg/httputil"
	"github.com/tkivite/knowledgestore-api/pkg/logger"
)

// Resolver validates a bearer token and returns a context carrying the
// caller's identity together with the caller's user id. A returned error is
// written to the client as is, so it should be an *apperrors.AppError.
type Resolver func(ctx context.Context, token string) (context.Context, string, error)

const bearerPrefix = "Bearer "

// BearerToken extracts the token from an "Authorization: Bearer <token>" header.
func BearerToken(header string) (string, bool) {
	if !strings.HasPrefix(header, bearerPrefix) {
		return "", false
	}
	token := strings.TrimSpace(header[len(bearerPrefix):])
	return token, token != ""
}

// Auth rejects requests without a valid bearer token.
func Auth(resolve Resolver, fallback *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := BearerToken(r.Header.Get("Authorization"))
			if !ok {
				httputil.WriteError(w, r, apperrors.Unauthorized("Access token required"), fallback)
				return
			}

			ctx, userID, err := resolve(r.Context(), token)
			if err != nil {
				httputil.WriteError(w, r, err, fallback)
				return
			}
			next.ServeHTTP(w, r.WithContext(withUser(ctx, userID)))
		})
	}
}

// OptionalAuth attaches an identity when a valid bearer token is present and
// otherwise serves the request anonymously. It never fails the request.
func OptionalAuth(resolve Resolver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := BearerToken(r.Header.Get("Authorization"))
			if !ok {
				next.ServeHTTP(w, r)
				return
			}

			ctx, userID, err := resolve(r.Context(), token)
			if err != nil {
				logger.FromContext(r.Context()).DebugContext(r.Context(), "optional auth skipped",
					slog.String("error", err.Error()))
				next.ServeHTTP(w, r)
				return
			}
			next.ServeHTTP(w, r.WithContext(withUser(ctx, userID)))
		})
	}
}

// withUser records the user id for log enrichment and rebuilds the
// request-scoped logger so downstream log lines carry it.
func withUser(ctx context.Context, userID string) context.Context {
	ctx = logger.WithUserID(ctx, userID)
	return logger.NewContext(ctx, logger.FromContext(ctx).With(slog.String("user_id", userID)))
}

// UserIDFromContext returns the id of the authenticated caller, if any.
func UserIDFromContext(ctx context.Context) string {
	return logger.UserIDFromContext(ctx)
}
