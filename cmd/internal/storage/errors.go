package storage

import "errors"

var (
	// ErrClosed is returned when a handle is used after Close.
	ErrClosed = errors.New("storage closed")

	// ErrInvalidKey is returned for empty keys.
	ErrInvalidKey = errors.New("invalid key")

	// ErrUnsupportedDriver is returned by New for unknown driver names.
	ErrUnsupportedDriver = errors.New("unsupported storage driver")
)
