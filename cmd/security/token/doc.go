// Package token provides token fingerprinting for arcclient logs.
//
// Bearer tokens are never logged. Call sites log Fingerprint(token) instead, a
// short stable digest that lets operators correlate log lines for the same
// credential without exposing it.
//
// Environment:
//   - ARC_TOKEN_HMAC_KEY: when set, fingerprints are HMAC-SHA256 keyed, so they
//     cannot be brute-forced back to short tokens from logs alone.
package token
