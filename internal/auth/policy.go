package auth

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// PasswordSpecialChars lists the characters a password needs at least one of.
const PasswordSpecialChars = "@$!%*?&"

const minPasswordLength = 8

// MaxPasswordBytes is the longest input bcrypt accepts.
const MaxPasswordBytes = 72

// PolicyResult is the outcome of CheckPassword. Reason is empty when Valid.
type PolicyResult struct {
	Valid  bool
	Reason string
}

type passwordRule struct {
	ok     func(string) bool
	reason string
}

// Rules run in order and the first failure is reported.
var passwordRules = []passwordRule{
	{func(p string) bool { return utf8.RuneCountInString(p) >= minPasswordLength },
		"Password must be at least 8 characters long"},
	{func(p string) bool { return strings.IndexFunc(p, unicode.IsLower) >= 0 },
		"Password must contain at least one lowercase letter"},
	{func(p string) bool { return strings.IndexFunc(p, unicode.IsUpper) >= 0 },
		"Password must contain at least one uppercase letter"},
	{func(p string) bool { return strings.IndexFunc(p, unicode.IsDigit) >= 0 },
		"Password must contain at least one number"},
	{func(p string) bool { return strings.ContainsAny(p, PasswordSpecialChars) },
		"Password must contain at least one special character (" + PasswordSpecialChars + ")"},
	{func(p string) bool { return len(p) <= MaxPasswordBytes },
		"Password must be at most 72 bytes"},
}

// CheckPassword evaluates the password strength policy.
func CheckPassword(password string) PolicyResult {
	for _, rule := range passwordRules {
		if !rule.ok(password) {
			return PolicyResult{Reason: rule.reason}
		}
	}
	return PolicyResult{Valid: true}
}
