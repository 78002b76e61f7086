package app

import (
	"errors"

	"arcclient/cmd/security/token"
)

// ValidateSecurityConfig enforces the token-logging policy at startup.
//
// Fail-fast: when keyed fingerprints are required, running with plain SHA-256
// fingerprints would silently weaken what logs reveal about short tokens.
func ValidateSecurityConfig(cfg Config) error {
	if !cfg.RequireTokenHMAC {
		return nil
	}

	// Minimum 32 bytes for an HMAC-SHA256 secret, measured in bytes since the key is used raw.
	if _, err := token.HMACKeyFromEnv(32); err != nil {
		switch {
		case errors.Is(err, token.ErrHMACKeyMissing):
			return errors.New("security policy: ARC_REQUIRE_TOKEN_HMAC=true but ARC_TOKEN_HMAC_KEY is missing")
		case errors.Is(err, token.ErrHMACKeyTooShort):
			return errors.New("security policy: ARC_REQUIRE_TOKEN_HMAC=true but ARC_TOKEN_HMAC_KEY is too short (min 32 bytes)")
		default:
			return err
		}
	}
	return nil
}
