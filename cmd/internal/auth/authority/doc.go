// Package authority is the client side of the remote session authority.
//
// The authority exposes four operations: direct-login (exchange a stored bearer
// token for a fresh session), renew-token, sync-device and logout. Client is the
// collaborator interface the session package depends on; HTTPClient is the
// JSON-over-HTTP implementation.
package authority
