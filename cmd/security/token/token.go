package token

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"os"
	"strings"
)

const (
	// HMACEnvKey is the env var name for the fingerprint HMAC secret.
	// #nosec G101 -- not a credential; it's an environment variable name.
	HMACEnvKey = "ARC_TOKEN_HMAC_KEY"

	// FingerprintLen is the number of hex chars kept in a fingerprint.
	FingerprintLen = 12

	// Empty is the fingerprint reported for an absent token.
	Empty = "none"
)

// HashSHA256Hex returns a SHA-256 hex digest of s.
func HashSHA256Hex(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

// HashHMACSHA256Hex returns an HMAC-SHA256 hex digest of s using key.
func HashHMACSHA256Hex(s string, key []byte) string {
	m := hmac.New(sha256.New, key)
	_, _ = m.Write([]byte(s))
	return hex.EncodeToString(m.Sum(nil))
}

// HMACKeyFromEnv returns the configured HMAC key bytes (trimmed), enforcing a minimum byte length.
func HMACKeyFromEnv(minBytes int) ([]byte, error) {
	raw := strings.TrimSpace(os.Getenv(HMACEnvKey))
	if raw == "" {
		return nil, ErrHMACKeyMissing
	}
	b := []byte(raw)
	if minBytes > 0 && len(b) < minBytes {
		return nil, ErrHMACKeyTooShort
	}
	return b, nil
}

// Fingerprint returns a short digest of tok safe for logs.
// An empty token yields Empty.
func Fingerprint(tok string) string {
	if tok == "" {
		return Empty
	}
	var sum string
	if key := strings.TrimSpace(os.Getenv(HMACEnvKey)); key != "" {
		sum = HashHMACSHA256Hex(tok, []byte(key))
	} else {
		sum = HashSHA256Hex(tok)
	}
	return sum[:FingerprintLen]
}
