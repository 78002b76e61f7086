package identity

import (
	"time"

	"arcclient/cmd/identity/ids"
)

// NewTabID returns a ULID naming one tab (the origin of its shared-store writes).
func NewTabID(now time.Time) (string, error) {
	return ids.NewULID(now)
}
