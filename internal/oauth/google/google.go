// Package google verifies Google-issued credentials and turns them into
// external identities.
package google

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/MicahParks/keyfunc/v2"
	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/oauth2"
	googleendpoint "golang.org/x/oauth2/google"

	"github.com/tkivite/knowledgestore-api/internal/domain"
	"github.com/tkivite/knowledgestore-api/pkg/httpclient"
)

// ProviderName is stored alongside identities resolved by this package.
const ProviderName = "google"

const (
	defaultJWKSURL     = "https://www.googleapis.com/oauth2/v3/certs"
	defaultUserInfoURL = "https://www.googleapis.com/oauth2/v3/userinfo"
)

var validIssuers = map[string]bool{
	"accounts.google.com":         true,
	"https://accounts.google.com": true,
}

var (
	// ErrInvalidProviderToken is returned when a token fails both the
	// identity token check and the userinfo lookup.
	ErrInvalidProviderToken = errors.New("invalid provider token")

	// ErrCodeExchange is returned when an authorization code cannot be redeemed.
	ErrCodeExchange = errors.New("authorization code exchange failed")
)

// Config holds Google OAuth client settings.
type Config struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string

	JWKSURL     string
	UserInfoURL string
	TokenURL    string
}

// Getter is implemented by *httpclient.CircuitBreakerClient.
type Getter interface {
	Get(ctx context.Context, url string, header http.Header) (*http.Response, error)
}

// Option customises a Verifier.
type Option func(*Verifier)

// WithKeyfunc replaces the JWKS-backed key lookup for identity tokens.
func WithKeyfunc(kf jwt.Keyfunc) Option {
	return func(v *Verifier) { v.keyfunc = kf }
}

// WithClock sets the time source used for token expiry checks.
func WithClock(now func() time.Time) Option {
	return func(v *Verifier) { v.now = now }
}

// WithExchangeClient sets the HTTP client used for authorization code exchange.
func WithExchangeClient(c *http.Client) Option {
	return func(v *Verifier) { v.exchangeClient = c }
}

// Verifier resolves Google credentials to an ExternalIdentity. It first
// treats a token as a signed identity token and falls back to calling the
// userinfo endpoint with it as an access token.
type Verifier struct {
	clientID       string
	userInfoURL    string
	userInfo       Getter
	oauth          *oauth2.Config
	exchangeClient *http.Client
	now            func() time.Time
	logger         *slog.Logger

	keyfunc jwt.Keyfunc
	jwksURL string
	jwksMu  sync.Mutex
	jwks    *keyfunc.JWKS
}

// NewVerifier creates a Verifier. userInfo is usually a circuit breaker
// client so a failing Google endpoint does not stall every sign-in.
func NewVerifier(cfg Config, userInfo Getter, logger *slog.Logger, opts ...Option) *Verifier {
	if cfg.JWKSURL == "" {
		cfg.JWKSURL = defaultJWKSURL
	}
	if cfg.UserInfoURL == "" {
		cfg.UserInfoURL = defaultUserInfoURL
	}
	endpoint := googleendpoint.Endpoint
	if cfg.TokenURL != "" {
		endpoint.TokenURL = cfg.TokenURL
	}

	v := &Verifier{
		clientID:    cfg.ClientID,
		userInfoURL: cfg.UserInfoURL,
		userInfo:    userInfo,
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Endpoint:     endpoint,
			Scopes:       []string{"openid", "email", "profile"},
		},
		exchangeClient: &http.Client{Timeout: 10 * time.Second},
		now:            time.Now,
		logger:         logger,
		jwksURL:        cfg.JWKSURL,
	}
	for _, opt := range opts {
		opt(v)
	}
	if v.keyfunc == nil {
		v.keyfunc = v.jwksKeyfunc
	}
	return v
}

// Verify resolves a token posted by a client, which may be either an
// identity token or an access token.
func (v *Verifier) Verify(ctx context.Context, token string) (domain.ExternalIdentity, error) {
	return v.resolve(ctx, token, token)
}

// Exchange redeems an authorization code and resolves the identity behind it.
func (v *Verifier) Exchange(ctx context.Context, code string) (domain.ExternalIdentity, error) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, v.exchangeClient)
	tok, err := v.oauth.Exchange(ctx, code)
	if err != nil {
		v.logger.WarnContext(ctx, "google code exchange failed", slog.String("error", err.Error()))
		return domain.ExternalIdentity{}, fmt.Errorf("%w: %v", ErrCodeExchange, err)
	}
	idToken, _ := tok.Extra("id_token").(string)
	return v.resolve(ctx, idToken, tok.AccessToken)
}

// Close stops the background JWKS refresh, if one was started.
func (v *Verifier) Close() {
	v.jwksMu.Lock()
	defer v.jwksMu.Unlock()
	if v.jwks != nil {
		v.jwks.EndBackground()
		v.jwks = nil
	}
}

func (v *Verifier) resolve(ctx context.Context, idToken, accessToken string) (domain.ExternalIdentity, error) {
	var attempts []error

	if idToken != "" {
		id, err := v.fromIDToken(idToken)
		if err == nil {
			return id, nil
		}
		attempts = append(attempts, fmt.Errorf("id token: %w", err))
	}
	if accessToken != "" {
		id, err := v.fromUserInfo(ctx, accessToken)
		if err == nil {
			return id, nil
		}
		attempts = append(attempts, fmt.Errorf("userinfo: %w", err))
	}

	v.logger.DebugContext(ctx, "google token rejected", slog.String("error", errors.Join(attempts...).Error()))
	return domain.ExternalIdentity{}, ErrInvalidProviderToken
}

type idTokenClaims struct {
	Email         string `json:"email"`
	EmailVerified *bool  `json:"email_verified,omitempty"`
	Name          string `json:"name"`
	Picture       string `json:"picture"`
	jwt.RegisteredClaims
}

func (v *Verifier) fromIDToken(raw string) (domain.ExternalIdentity, error) {
	var claims idTokenClaims
	_, err := jwt.ParseWithClaims(raw, &claims, v.keyfunc,
		jwt.WithValidMethods([]string{"RS256"}),
		jwt.WithAudience(v.clientID),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(v.now),
	)
	if err != nil {
		return domain.ExternalIdentity{}, err
	}
	if !validIssuers[claims.Issuer] {
		return domain.ExternalIdentity{}, fmt.Errorf("unexpected issuer %q", claims.Issuer)
	}
	if claims.Subject == "" {
		return domain.ExternalIdentity{}, errors.New("missing subject")
	}

	return identity(claims.Subject, claims.Email, claims.EmailVerified, claims.Name, claims.Picture, domain.SourceIDToken), nil
}

type userInfoResponse struct {
	Sub           string `json:"sub"`
	Email         string `json:"email"`
	EmailVerified *bool  `json:"email_verified,omitempty"`
	Name          string `json:"name"`
	Picture       string `json:"picture"`
}

func (v *Verifier) fromUserInfo(ctx context.Context, accessToken string) (domain.ExternalIdentity, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, v.userInfoURL, http.NoBody)
	if err != nil {
		return domain.ExternalIdentity{}, fmt.Errorf("create userinfo request: %w", err)
	}
	(&oauth2.Token{AccessToken: accessToken, TokenType: "Bearer"}).SetAuthHeader(req)

	resp, err := v.userInfo.Get(ctx, v.userInfoURL, req.Header)
	if err != nil {
		return domain.ExternalIdentity{}, err
	}
	if err := httpclient.CheckResponse(resp); err != nil {
		return domain.ExternalIdentity{}, err
	}
	defer func() { _ = resp.Body.Close() }()

	var info userInfoResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&info); err != nil {
		return domain.ExternalIdentity{}, fmt.Errorf("decode userinfo: %w", err)
	}
	if info.Sub == "" {
		return domain.ExternalIdentity{}, errors.New("userinfo missing subject")
	}

	return identity(info.Sub, info.Email, info.EmailVerified, info.Name, info.Picture, domain.SourceAccessToken), nil
}

// identity drops the email when Google reports it unverified, so it can
// never be used to claim an existing account.
func identity(sub, email string, verified *bool, name, picture string, source domain.IdentitySource) domain.ExternalIdentity {
	if verified != nil && !*verified {
		email = ""
	}
	return domain.ExternalIdentity{
		Provider:   ProviderName,
		ExternalID: sub,
		Email:      email,
		Name:       name,
		Picture:    picture,
		Source:     source,
	}
}

// jwksKeyfunc loads Google's signing keys on first use and keeps them
// refreshed in the background.
func (v *Verifier) jwksKeyfunc(token *jwt.Token) (any, error) {
	v.jwksMu.Lock()
	if v.jwks == nil {
		jwks, err := keyfunc.Get(v.jwksURL, keyfunc.Options{
			RefreshErrorHandler: func(err error) {
				v.logger.Warn("google jwks refresh failed", slog.String("error", err.Error()))
			},
			RefreshInterval:   time.Hour,
			RefreshRateLimit:  5 * time.Minute,
			RefreshTimeout:    10 * time.Second,
			RefreshUnknownKID: true,
		})
		if err != nil {
			v.jwksMu.Unlock()
			return nil, fmt.Errorf("load google jwks: %w", err)
		}
		v.jwks = jwks
	}
	jwks := v.jwks
	v.jwksMu.Unlock()

	return jwks.Keyfunc(token)
}
