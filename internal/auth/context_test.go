package auth

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tkivite/knowledgestore-api/internal/domain"
)

func TestIdentityContext(t *testing.T) {
	_, ok := IdentityFromContext(context.Background())
	assert.False(t, ok)

	u := &domain.User{ID: "user-1"}
	ctx := WithIdentity(context.Background(), Identity{UserID: "user-1", User: u})

	id, ok := IdentityFromContext(ctx)
	require.True(t, ok)
	assert.Equal(t, "user-1", id.UserID)
	assert.Same(t, u, id.User)
}
