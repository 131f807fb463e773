package auth

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCheckPassword(t *testing.T) {
	tests := []struct {
		password string
		valid    bool
		reason   string
	}{
		{"short1!", false, "at least 8 characters"},
		{"alllower1!", false, "uppercase"},
		{"ALLUPPER1!", false, "lowercase"},
		{"NoDigits!!", false, "number"},
		{"NoSpecial1", false, "special character"},
		{"Valid123!", true, ""},
		{"Aa1@aaaa", true, ""},
	}
	for _, tt := range tests {
		t.Run(tt.password, func(t *testing.T) {
			res := CheckPassword(tt.password)
			assert.Equal(t, tt.valid, res.Valid)
			if tt.valid {
				assert.Empty(t, res.Reason)
			} else {
				assert.Contains(t, res.Reason, tt.reason)
			}
		})
	}
}

func TestCheckPassword_FirstFailureWins(t *testing.T) {
	// Fails every rule; length is reported.
	assert.Contains(t, CheckPassword("").Reason, "at least 8 characters")
	// Long enough but lowercase only; lowercase passes so uppercase is next.
	assert.Contains(t, CheckPassword("abcdefgh").Reason, "uppercase")
}

func TestCheckPassword_MaxBytes(t *testing.T) {
	atLimit := "Valid123!" + strings.Repeat("a", MaxPasswordBytes-len("Valid123!"))
	assert.True(t, CheckPassword(atLimit).Valid)

	res := CheckPassword(atLimit + "a")
	assert.False(t, res.Valid)
	assert.Equal(t, "Password must be at most 72 bytes", res.Reason)

	// Multi-byte runes count by encoded size.
	res = CheckPassword("Valid123!" + strings.Repeat("é", 32))
	assert.False(t, res.Valid)
	assert.Contains(t, res.Reason, "at most 72 bytes")
}
