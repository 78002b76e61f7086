package uibridge

import (
	"time"

	"arcclient/cmd/identity/ids"
)

// NewConnID returns a ULID naming one shell connection.
func NewConnID(now time.Time) (string, error) {
	return ids.NewULID(now)
}

// NewEnvelopeID returns a ULID used as envelope id.
func NewEnvelopeID(now time.Time) (string, error) {
	return ids.NewULID(now)
}
