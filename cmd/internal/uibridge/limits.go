package uibridge

import "time"

const (
	// Max bytes per websocket frame read. Shell commands are tiny.
	maxFrameBytes = 16 << 10

	// Max length of a reported path.
	maxPathChars = 2048
)

const (
	heartbeatInterval = 25 * time.Second
	heartbeatTimeout  = 5 * time.Second

	// Per-connection rate limits (commands per window).
	rateLimitEvents = 60
	rateLimitWindow = 10 * time.Second
)
