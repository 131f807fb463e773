package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/tkivite/knowledgestore-api/pkg/errors"
	"github.com/tkivite/knowledgestore-api/pkg/httputil"
)

type ctxTag struct{}

func stubResolver(valid string) Resolver {
	return func(ctx context.Context, token string) (context.Context, string, error) {
		if token != valid {
			return nil, "", apperrors.Unauthorized("Invalid or expired token")
		}
		return context.WithValue(ctx, ctxTag{}, "resolved"), "user-1", nil
	}
}

func captureHandler(called *bool, tag *any, uid *string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*called = true
		*tag = r.Context().Value(ctxTag{})
		*uid = UserIDFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	})
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) httputil.ErrorResponse {
	t.Helper()
	var resp httputil.Response
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	require.NotNil(t, resp.Error)
	return *resp.Error
}

func TestBearerToken(t *testing.T) {
	tests := []struct {
		header string
		token  string
		ok     bool
	}{
		{"Bearer abc.def", "abc.def", true},
		{"Bearer   abc  ", "abc", true},
		{"Bearer ", "", false},
		{"bearer abc", "", false},
		{"Basic abc", "", false},
		{"abc", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.header, func(t *testing.T) {
			token, ok := BearerToken(tt.header)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.token, token)
		})
	}
}

func TestAuth_MissingHeader(t *testing.T) {
	var called bool
	var tag any
	var uid string
	h := Auth(stubResolver("good"), nil)(captureHandler(&called, &tag, &uid))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/me", nil))

	assert.False(t, called)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "Access token required", errorCode(t, rec).Message)
}

func TestAuth_MalformedHeader(t *testing.T) {
	var called bool
	var tag any
	var uid string
	h := Auth(stubResolver("good"), nil)(captureHandler(&called, &tag, &uid))

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Token good")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.False(t, called)
	assert.Equal(t, "Access token required", errorCode(t, rec).Message)
}

func TestAuth_ResolverRejects(t *testing.T) {
	var called bool
	var tag any
	var uid string
	h := Auth(stubResolver("good"), nil)(captureHandler(&called, &tag, &uid))

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer bad")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.False(t, called)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "Invalid or expired token", errorCode(t, rec).Message)
}

func TestAuth_Success(t *testing.T) {
	var called bool
	var tag any
	var uid string
	h := Auth(stubResolver("good"), nil)(captureHandler(&called, &tag, &uid))

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer good")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.True(t, called)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "resolved", tag)
	assert.Equal(t, "user-1", uid)
}

func TestOptionalAuth(t *testing.T) {
	tests := []struct {
		name    string
		header  string
		wantTag any
		wantUID string
	}{
		{"no header", "", nil, ""},
		{"malformed", "Basic x", nil, ""},
		{"invalid token", "Bearer bad", nil, ""},
		{"valid token", "Bearer good", "resolved", "user-1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var called bool
			var tag any
			var uid string
			h := OptionalAuth(stubResolver("good"))(captureHandler(&called, &tag, &uid))

			req := httptest.NewRequest(http.MethodGet, "/session", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			assert.True(t, called)
			assert.Equal(t, http.StatusOK, rec.Code)
			assert.Equal(t, tt.wantTag, tag)
			assert.Equal(t, tt.wantUID, uid)
		})
	}
}
