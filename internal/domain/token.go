package domain

import "time"

// RefreshToken is a server-side session row. Only the SHA-256 digest of the
// signed refresh token is stored.
type RefreshToken struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	TokenHash string    `json:"-"`
	ExpiresAt time.Time `json:"expiresAt"`
	CreatedAt time.Time `json:"createdAt"`
}

// TokenPair is returned by every flow that opens a session.
type TokenPair struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

// Session is the result of login and federation.
type Session struct {
	User   *User     `json:"user"`
	Tokens TokenPair `json:"tokens"`
}

// Refreshed is the result of exchanging a refresh token.
type Refreshed struct {
	AccessToken string `json:"accessToken"`
	User        *User  `json:"user"`
}
