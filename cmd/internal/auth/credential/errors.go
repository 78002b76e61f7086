package credential

import "errors"

var (
	// ErrInvalidUserID is returned when marking a session logged in without a user id.
	ErrInvalidUserID = errors.New("invalid user id")

	// ErrInvalidToken is returned when saving an empty token.
	ErrInvalidToken = errors.New("invalid token")
)
