package session

import "errors"

var (
	// ErrConfig is returned for invalid configuration.
	ErrConfig = errors.New("invalid config")

	// ErrMissingDependency is returned by NewManager when a required collaborator is nil.
	ErrMissingDependency = errors.New("missing dependency")

	// ErrInvalidLogin is returned by CompleteLogin for a result without token or user id.
	ErrInvalidLogin = errors.New("invalid login result")

	// ErrLoggedOutDuringRestore means a logout landed while an exchange was in flight.
	ErrLoggedOutDuringRestore = errors.New("logged out during restoration")
)

// Failure reasons reported in Result.Reason.
const (
	ReasonMissingSessionData = "missing session data"
	ReasonRestorationError   = "restoration error"
	ReasonRenewalFailed      = "renewal failed"
	ReasonRetryFailed        = "retry failed"
	ReasonLoggedOut          = "logged out during restoration"
	ReasonCanceled           = "canceled"
)
