package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// TokenKind discriminates access tokens from refresh tokens.
type TokenKind string

const (
	KindAccess  TokenKind = "access"
	KindRefresh TokenKind = "refresh"
)

const issuer = "knowledgestore-auth"

// ErrInvalidToken is returned for every verification failure. Callers cannot
// tell a forged token from an expired or wrong-kind one.
var ErrInvalidToken = errors.New("invalid or expired token")

// Claims is the signed payload of both token kinds.
type Claims struct {
	Kind TokenKind `json:"kind"`
	jwt.RegisteredClaims
}

// IssuedToken is a signed token and its expiry.
type IssuedToken struct {
	Value     string
	ExpiresAt time.Time
}

// TokenCodec signs and verifies HS256 access and refresh tokens with one
// shared secret.
type TokenCodec struct {
	secret     []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
	parser     *jwt.Parser
}

// CodecOption customises a TokenCodec.
type CodecOption func(*TokenCodec)

// WithClock overrides the time source used for issuing and verifying.
func WithClock(now func() time.Time) CodecOption {
	return func(c *TokenCodec) { c.now = now }
}

// NewTokenCodec returns a codec issuing tokens with the given lifetimes.
func NewTokenCodec(secret string, accessTTL, refreshTTL time.Duration, opts ...CodecOption) *TokenCodec {
	c := &TokenCodec{
		secret:     []byte(secret),
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.parser = jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(c.now),
	)
	return c
}

// IssueAccess signs a short-lived access token for userID.
func (c *TokenCodec) IssueAccess(userID string) (IssuedToken, error) {
	return c.issue(userID, KindAccess, c.accessTTL)
}

// IssueRefresh signs a long-lived refresh token for userID.
func (c *TokenCodec) IssueRefresh(userID string) (IssuedToken, error) {
	return c.issue(userID, KindRefresh, c.refreshTTL)
}

func (c *TokenCodec) issue(userID string, kind TokenKind, ttl time.Duration) (IssuedToken, error) {
	now := c.now().UTC()
	exp := now.Add(ttl)
	claims := Claims{
		Kind: kind,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   userID,
			Issuer:    issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.secret)
	if err != nil {
		return IssuedToken{}, fmt.Errorf("sign %s token: %w", kind, err)
	}
	return IssuedToken{Value: signed, ExpiresAt: exp}, nil
}

// Verify checks signature, expiry and kind, and returns the token's user id.
func (c *TokenCodec) Verify(token string, want TokenKind) (string, error) {
	var claims Claims
	parsed, err := c.parser.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return c.secret, nil
	})
	if err != nil || !parsed.Valid {
		return "", ErrInvalidToken
	}
	if claims.Kind != want || claims.Subject == "" {
		return "", ErrInvalidToken
	}
	return claims.Subject, nil
}
