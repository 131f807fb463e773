package auth

import (
	"context"

	"github.com/tkivite/knowledgestore-api/internal/domain"
)

// Identity is the authenticated caller resolved from a bearer token.
type Identity struct {
	UserID string
	User   *domain.User
}

type identityKey struct{}

// WithIdentity attaches id to ctx.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

// IdentityFromContext returns the caller attached by the request authenticator.
func IdentityFromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityKey{}).(Identity)
	return id, ok
}
