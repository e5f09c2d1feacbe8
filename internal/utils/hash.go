package utils

import (
	"encoding/hex"

	"golang.org/x/crypto/blake2b"
)

// HashString returns the hex blake2b-256 digest of s.
// Used to derive storage keys from secrets such as guest session tokens.
func HashString(s string) string {
	sum := blake2b.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}
