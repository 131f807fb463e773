package service

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/tkivite/knowledgestore-api/internal/domain"
	apperrors "github.com/tkivite/knowledgestore-api/pkg/errors"
)

func googleIdentity() domain.ExternalIdentity {
	return domain.ExternalIdentity{
		Provider:   "google",
		ExternalID: "google-sub-1",
		Email:      "Carol@Gmail.com",
		Name:       "Carol",
		Picture:    "https://lh3.googleusercontent.com/c.png",
		Source:     domain.SourceIDToken,
	}
}

func TestGoogleSignIn_CreatesVerifiedUser(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	var created *domain.User
	f.google.On("Verify", ctx, "g-token").Return(googleIdentity(), nil)
	f.users.On("GetByEmail", ctx, "carol@gmail.com").Return(nil, notFound)
	f.users.On("Create", ctx, mock.MatchedBy(func(u *domain.User) bool {
		created = u
		return true
	})).Return(nil)
	f.tokens.On("Create", ctx, mock.Anything).Return(nil)

	session, err := f.svc.GoogleSignIn(ctx, "g-token")
	require.NoError(t, err)

	require.NotNil(t, created)
	assert.True(t, created.IsVerified)
	assert.Nil(t, created.PasswordHash)
	assert.Equal(t, "google-sub-1", *created.ExternalID)
	assert.Equal(t, "https://lh3.googleusercontent.com/c.png", *created.Picture)
	assert.Equal(t, "carol@gmail.com", created.Email)

	assert.Equal(t, created.ID, session.User.ID)
	assert.NotEmpty(t, session.Tokens.AccessToken)
	assert.NotEmpty(t, session.Tokens.RefreshToken)
	f.notifier.AssertNotCalled(t, "SendVerificationEmail", mock.Anything, mock.Anything, mock.Anything)
}

func TestGoogleSignIn_LinksExistingAccount(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	existing := f.verifiedUser(t)
	existing.Email = "carol@gmail.com"
	existing.IsVerified = false
	existing.VerificationToken = ptr("pending")

	id := googleIdentity()
	linked := *existing
	linked.IsVerified = true
	linked.ExternalID = &id.ExternalID

	f.google.On("Verify", ctx, "g-token").Return(id, nil)
	f.users.On("GetByEmail", ctx, "carol@gmail.com").Return(existing, nil)
	f.users.On("Update", ctx, existing.ID, domain.UserPatch{
		ExternalID:   ptr("google-sub-1"),
		Picture:      ptr("https://lh3.googleusercontent.com/c.png"),
		IsVerified:   ptr(true),
		Verification: domain.ClearToken,
	}).Return(&linked, nil)
	f.tokens.On("Create", ctx, mock.Anything).Return(nil)

	session, err := f.svc.GoogleSignIn(ctx, "g-token")
	require.NoError(t, err)
	assert.Equal(t, existing.ID, session.User.ID)
	assert.True(t, session.User.IsVerified)
	f.users.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestGoogleSignIn_RepeatDoesNotDuplicate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := googleIdentity()
	user := &domain.User{
		ID:         "user-9",
		Email:      "carol@gmail.com",
		Name:       "Carol",
		IsVerified: true,
		ExternalID: ptr(id.ExternalID),
		Picture:    ptr(id.Picture),
	}

	f.google.On("Verify", ctx, "g-token").Return(id, nil).Twice()
	f.users.On("GetByEmail", ctx, "carol@gmail.com").Return(user, nil).Twice()
	f.tokens.On("Create", ctx, mock.Anything).Return(nil).Twice()

	for range 2 {
		session, err := f.svc.GoogleSignIn(ctx, "g-token")
		require.NoError(t, err)
		assert.Equal(t, "user-9", session.User.ID)
	}
	f.users.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
	f.users.AssertNotCalled(t, "Update", mock.Anything, mock.Anything, mock.Anything)
}

func TestGoogleSignIn_NewExternalIDIsStored(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	user := &domain.User{ID: "user-9", Email: "carol@gmail.com", IsVerified: true, ExternalID: ptr("old-sub")}
	id := googleIdentity()
	id.Picture = ""

	f.google.On("Verify", ctx, "g-token").Return(id, nil)
	f.users.On("GetByEmail", ctx, "carol@gmail.com").Return(user, nil)
	f.users.On("Update", ctx, "user-9", domain.UserPatch{ExternalID: ptr("google-sub-1")}).Return(user, nil)
	f.tokens.On("Create", ctx, mock.Anything).Return(nil)

	_, err := f.svc.GoogleSignIn(ctx, "g-token")
	require.NoError(t, err)
}

func TestGoogleSignIn_ConcurrentCreate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := googleIdentity()
	winner := &domain.User{ID: "user-7", Email: "carol@gmail.com", IsVerified: true, ExternalID: ptr(id.ExternalID), Picture: ptr(id.Picture)}

	f.google.On("Verify", ctx, "g-token").Return(id, nil)
	f.users.On("GetByEmail", ctx, "carol@gmail.com").Return(nil, notFound).Once()
	f.users.On("Create", ctx, mock.Anything).Return(apperrors.AlreadyExists("user", "email", "carol@gmail.com"))
	f.users.On("GetByEmail", ctx, "carol@gmail.com").Return(winner, nil).Once()
	f.tokens.On("Create", ctx, mock.Anything).Return(nil)

	session, err := f.svc.GoogleSignIn(ctx, "g-token")
	require.NoError(t, err)
	assert.Equal(t, "user-7", session.User.ID)
}

func TestGoogleSignIn_Rejections(t *testing.T) {
	noEmail := googleIdentity()
	noEmail.Email = ""

	tests := []struct {
		name    string
		token   string
		setup   func(f *fixture)
		message string
	}{
		{"missing token", "", nil, "Google token required"},
		{"provider rejects", "bad", func(f *fixture) {
			f.google.On("Verify", mock.Anything, "bad").Return(domain.ExternalIdentity{}, errors.New("invalid provider token"))
		}, "Invalid provider token"},
		{"no email", "g-token", func(f *fixture) {
			f.google.On("Verify", mock.Anything, "g-token").Return(noEmail, nil)
		}, "Email not available from provider"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			if tt.setup != nil {
				tt.setup(f)
			}

			_, err := f.svc.GoogleSignIn(context.Background(), tt.token)
			assert.Equal(t, http.StatusUnauthorized, apperrors.HTTPStatus(err))
			assert.Contains(t, err.Error(), tt.message)
			f.users.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
			f.tokens.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
		})
	}
}

func TestGoogleSignIn_NotConfigured(t *testing.T) {
	f := newFixture(t)
	svc := NewAuthService(f.users, f.tokens, f.hasher, f.codec, f.notifier, newTestLogger())

	_, err := svc.GoogleSignIn(context.Background(), "g-token")
	assert.Equal(t, http.StatusUnauthorized, apperrors.HTTPStatus(err))
}

func TestGoogleCallback(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := googleIdentity()
	id.Name = ""
	id.Source = domain.SourceAccessToken

	var created *domain.User
	f.google.On("Exchange", ctx, "auth-code").Return(id, nil)
	f.users.On("GetByEmail", ctx, "carol@gmail.com").Return(nil, notFound)
	f.users.On("Create", ctx, mock.MatchedBy(func(u *domain.User) bool {
		created = u
		return true
	})).Return(nil)
	f.tokens.On("Create", ctx, mock.Anything).Return(nil)

	_, err := f.svc.GoogleCallback(ctx, "auth-code")
	require.NoError(t, err)
	assert.Equal(t, "carol", created.Name)
}

func TestGoogleCallback_ExchangeFails(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.google.On("Exchange", ctx, "bad-code").Return(domain.ExternalIdentity{}, errors.New("invalid_grant"))

	_, err := f.svc.GoogleCallback(ctx, "bad-code")
	assert.Equal(t, http.StatusUnauthorized, apperrors.HTTPStatus(err))
	assert.Contains(t, err.Error(), "Invalid authorization code")
}
