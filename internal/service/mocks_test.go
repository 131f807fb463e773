package service

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"golang.org/x/crypto/bcrypt"

	"github.com/tkivite/knowledgestore-api/internal/auth"
	"github.com/tkivite/knowledgestore-api/internal/domain"
	"github.com/tkivite/knowledgestore-api/internal/event"
	"github.com/tkivite/knowledgestore-api/internal/repository"
	apperrors "github.com/tkivite/knowledgestore-api/pkg/errors"
)

// --- Mock User Repository ---

type mockUserRepository struct {
	mock.Mock
}

func (m *mockUserRepository) Create(ctx context.Context, u *domain.User) error {
	return m.Called(ctx, u).Error(0)
}

func (m *mockUserRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	return userResult(m.Called(ctx, id))
}

func (m *mockUserRepository) GetVerifiedByID(ctx context.Context, id string) (*domain.User, error) {
	return userResult(m.Called(ctx, id))
}

func (m *mockUserRepository) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	return userResult(m.Called(ctx, email))
}

func (m *mockUserRepository) GetByVerificationToken(ctx context.Context, token string, now time.Time) (*domain.User, error) {
	return userResult(m.Called(ctx, token, now))
}

func (m *mockUserRepository) GetByResetToken(ctx context.Context, token string, now time.Time) (*domain.User, error) {
	return userResult(m.Called(ctx, token, now))
}

func (m *mockUserRepository) Update(ctx context.Context, id string, patch domain.UserPatch) (*domain.User, error) {
	return userResult(m.Called(ctx, id, patch))
}

func userResult(args mock.Arguments) (*domain.User, error) {
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.User), args.Error(1)
}

// --- Mock Refresh Token Repository ---

type mockRefreshTokenRepository struct {
	mock.Mock
}

func (m *mockRefreshTokenRepository) Create(ctx context.Context, rt *domain.RefreshToken) error {
	return m.Called(ctx, rt).Error(0)
}

func (m *mockRefreshTokenRepository) Find(ctx context.Context, tokenHash, userID string, now time.Time) (*domain.RefreshToken, error) {
	args := m.Called(ctx, tokenHash, userID, now)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.RefreshToken), args.Error(1)
}

func (m *mockRefreshTokenRepository) Delete(ctx context.Context, tokenHash string) error {
	return m.Called(ctx, tokenHash).Error(0)
}

func (m *mockRefreshTokenRepository) DeleteByUserID(ctx context.Context, userID string) (int64, error) {
	args := m.Called(ctx, userID)
	return args.Get(0).(int64), args.Error(1)
}

func (m *mockRefreshTokenRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	args := m.Called(ctx, now)
	return args.Get(0).(int64), args.Error(1)
}

// --- Mock Notifier ---

type mockNotifier struct {
	mock.Mock
}

func (m *mockNotifier) SendVerificationEmail(ctx context.Context, to event.Recipient, token string) error {
	return m.Called(ctx, to, token).Error(0)
}

func (m *mockNotifier) SendPasswordResetEmail(ctx context.Context, to event.Recipient, token string) error {
	return m.Called(ctx, to, token).Error(0)
}

func (m *mockNotifier) SendPasswordChangeNotification(ctx context.Context, to event.Recipient) error {
	return m.Called(ctx, to).Error(0)
}

// --- Mock Identity Verifier ---

type mockVerifier struct {
	mock.Mock
}

func (m *mockVerifier) Verify(ctx context.Context, token string) (domain.ExternalIdentity, error) {
	args := m.Called(ctx, token)
	return args.Get(0).(domain.ExternalIdentity), args.Error(1)
}

func (m *mockVerifier) Exchange(ctx context.Context, code string) (domain.ExternalIdentity, error) {
	args := m.Called(ctx, code)
	return args.Get(0).(domain.ExternalIdentity), args.Error(1)
}

// --- In-memory refresh token store ---

// memTokens is a RefreshTokenRepository for flows that span several calls.
type memTokens struct {
	mu   sync.Mutex
	rows map[string]*domain.RefreshToken
}

func newMemTokens() *memTokens {
	return &memTokens{rows: make(map[string]*domain.RefreshToken)}
}

func (m *memTokens) Create(_ context.Context, rt *domain.RefreshToken) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cpy := *rt
	m.rows[rt.TokenHash] = &cpy
	return nil
}

func (m *memTokens) Find(_ context.Context, tokenHash, userID string, now time.Time) (*domain.RefreshToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rt, ok := m.rows[tokenHash]
	if !ok || rt.UserID != userID || !rt.ExpiresAt.After(now) {
		return nil, apperrors.NotFoundMessage("refresh token not found")
	}
	cpy := *rt
	return &cpy, nil
}

func (m *memTokens) Delete(_ context.Context, tokenHash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.rows, tokenHash)
	return nil
}

func (m *memTokens) DeleteByUserID(_ context.Context, userID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for k, rt := range m.rows {
		if rt.UserID == userID {
			delete(m.rows, k)
			n++
		}
	}
	return n, nil
}

func (m *memTokens) DeleteExpired(_ context.Context, now time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for k, rt := range m.rows {
		if !rt.ExpiresAt.After(now) {
			delete(m.rows, k)
			n++
		}
	}
	return n, nil
}

func (m *memTokens) len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.rows)
}

// --- Test Helpers ---

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

const (
	testSecret   = "test-secret-key-for-testing-only-32b"
	testPassword = "Valid123!"
)

type fixture struct {
	users    *mockUserRepository
	tokens   *mockRefreshTokenRepository
	notifier *mockNotifier
	google   *mockVerifier
	hasher   *auth.PasswordHasher
	codec    *auth.TokenCodec
	svc      *AuthService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		users:    new(mockUserRepository),
		tokens:   new(mockRefreshTokenRepository),
		notifier: new(mockNotifier),
		google:   new(mockVerifier),
		hasher:   auth.NewPasswordHasher(bcrypt.MinCost),
		codec:    newTestCodec(),
	}
	f.svc = f.build(f.tokens)
	t.Cleanup(func() {
		f.users.AssertExpectations(t)
		f.tokens.AssertExpectations(t)
		f.notifier.AssertExpectations(t)
		f.google.AssertExpectations(t)
	})
	return f
}

// build wires a service over the fixture's mocks and the given token store.
func (f *fixture) build(tokens repository.RefreshTokenRepository) *AuthService {
	return NewAuthService(f.users, tokens, f.hasher, f.codec, f.notifier, newTestLogger(),
		WithClock(func() time.Time { return testNow }),
		WithIdentityVerifier(f.google),
	)
}

func newTestCodec() *auth.TokenCodec {
	return auth.NewTokenCodec(testSecret, 15*time.Minute, 7*24*time.Hour,
		auth.WithClock(func() time.Time { return testNow }))
}

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func ptr[T any](v T) *T { return &v }

func (f *fixture) verifiedUser(t *testing.T) *domain.User {
	t.Helper()
	digest, err := f.hasher.Hash(testPassword)
	if err != nil {
		t.Fatal(err)
	}
	return &domain.User{
		ID:           "user-1",
		Email:        "alice@example.com",
		Name:         "Alice",
		PasswordHash: &digest,
		IsVerified:   true,
		CreatedAt:    testNow.Add(-48 * time.Hour),
		UpdatedAt:    testNow.Add(-48 * time.Hour),
	}
}

var notFound = apperrors.NotFoundMessage("user not found")
