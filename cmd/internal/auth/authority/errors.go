package authority

import (
	"errors"
	"fmt"
)

var (
	// ErrAuthorizationExpired is returned by DirectLogin when the authority rejects
	// the bearer token as unauthorized (HTTP 401).
	ErrAuthorizationExpired = errors.New("authorization expired")

	// ErrEmptyToken is returned when the authority answers renew-token without a token.
	ErrEmptyToken = errors.New("authority returned empty token")

	// ErrMissingUser is returned when direct-login succeeds without a user id.
	ErrMissingUser = errors.New("authority returned no user")

	// ErrConfig is returned for invalid configuration.
	ErrConfig = errors.New("invalid config")
)

// HTTPError represents a non-2xx HTTP response from the authority.
type HTTPError struct {
	StatusCode int
	Message    string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Message)
}

// IsStatus returns true if err (or any wrapped error) is an HTTPError with the given status code.
func IsStatus(err error, code int) bool {
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.StatusCode == code
	}
	return false
}
