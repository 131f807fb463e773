package domain

import "time"

// User is the root identity record. A user authenticates with a password
// (PasswordHash set), through a federated provider (ExternalID set), or both.
type User struct {
	ID           string  `json:"id"`
	Email        string  `json:"email"`
	Name         string  `json:"name"`
	PasswordHash *string `json:"-"`
	IsVerified   bool    `json:"isVerified"`
	ExternalID   *string `json:"-"`
	Picture      *string `json:"picture,omitempty"`

	VerificationToken   *string    `json:"-"`
	VerificationExpires *time.Time `json:"-"`
	ResetToken          *string    `json:"-"`
	ResetExpires        *time.Time `json:"-"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// HasPassword reports whether the user can sign in with a password.
func (u *User) HasPassword() bool {
	return u.PasswordHash != nil && *u.PasswordHash != ""
}

// IsFederated reports whether the user is linked to an external provider.
func (u *User) IsFederated() bool {
	return u.ExternalID != nil && *u.ExternalID != ""
}

// OneTimeToken is a single-use opaque token and its expiry.
type OneTimeToken struct {
	Token     string
	ExpiresAt time.Time
}

// UserPatch is a partial update. Nil fields are left untouched.
//
// Verification and Reset replace the stored one-time token when non-nil; a
// zero OneTimeToken clears it. RequireVerificationToken and RequireResetToken
// make the update conditional on the currently stored token so a token can
// only be consumed once.
type UserPatch struct {
	Name         *string
	PasswordHash *string
	IsVerified   *bool
	ExternalID   *string
	Picture      *string
	Verification *OneTimeToken
	Reset        *OneTimeToken

	RequireVerificationToken string
	RequireResetToken        string
}

// Empty reports whether the patch changes nothing.
func (p UserPatch) Empty() bool {
	return p.Name == nil && p.PasswordHash == nil && p.IsVerified == nil &&
		p.ExternalID == nil && p.Picture == nil && p.Verification == nil && p.Reset == nil
}

// ClearToken is the OneTimeToken value that removes a stored token.
var ClearToken = &OneTimeToken{}
