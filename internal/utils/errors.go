package utils

import (
	"errors"
	"strings"
)

// StatusCoder is implemented by errors that carry an upstream HTTP status.
type StatusCoder interface {
	StatusCode() int
}

// IsRecoverableError reports whether a failed upstream call is worth retrying:
// rate limiting, server-side failures and timeouts.
func IsRecoverableError(err error) bool {
	if err == nil {
		return false
	}

	var sc StatusCoder
	if errors.As(err, &sc) {
		code := sc.StatusCode()
		return code == 429 || code >= 500
	}

	recoverableErrors := []string{
		"upstream returned status 429",
		"upstream returned status 5",
	}
	for _, recoverable := range recoverableErrors {
		if strings.HasPrefix(err.Error(), recoverable) {
			return true
		}
	}

	var timeout interface{ Timeout() bool }
	if errors.As(err, &timeout) && timeout.Timeout() {
		return true
	}
	return false
}
