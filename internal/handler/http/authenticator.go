package http

import (
	"context"

	"github.com/tkivite/knowledgestore-api/internal/auth"
	"github.com/tkivite/knowledgestore-api/internal/domain"
	"github.com/tkivite/knowledgestore-api/pkg/middleware"
)

// Authenticator resolves an access token to a live, verified user.
type Authenticator interface {
	Authenticate(ctx context.Context, accessToken string) (*domain.User, error)
}

// NewResolver adapts an Authenticator to the bearer auth middleware. The
// resolved user is attached with auth.WithIdentity.
func NewResolver(a Authenticator) middleware.Resolver {
	return func(ctx context.Context, token string) (context.Context, string, error) {
		user, err := a.Authenticate(ctx, token)
		if err != nil {
			return ctx, "", err
		}
		return auth.WithIdentity(ctx, auth.Identity{UserID: user.ID, User: user}), user.ID, nil
	}
}
