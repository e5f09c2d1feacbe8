package auth

import (
	"regexp"

	"github.com/google/uuid"
)

var guestTokenPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{16,128}$`)

// ValidGuestToken reports whether s is an acceptable guest session token
func ValidGuestToken(s string) bool {
	return guestTokenPattern.MatchString(s)
}

// NewGuestToken returns a fresh guest session token
func NewGuestToken() string {
	return uuid.NewString()
}
