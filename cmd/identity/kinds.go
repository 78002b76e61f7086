package identity

import "errors"

// Sentinel error kinds (stable for errors.Is).
var (
	ErrInvalidInput       = errors.New("invalid_input")
	ErrStorageUnavailable = errors.New("storage_unavailable")
)
