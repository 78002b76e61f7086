package credential

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenKind classifies a stored bearer token for diagnostics.
type TokenKind string

const (
	TokenOpaque TokenKind = "opaque"
	TokenJWT    TokenKind = "jwt"
)

// TokenInfo is what Inspect could learn about a token without verifying it.
type TokenInfo struct {
	Kind      TokenKind
	Subject   string
	ExpiresAt time.Time
}

// Expired reports whether a decoded exp lies before now. Opaque tokens and
// tokens without exp are never reported expired.
func (i TokenInfo) Expired(now time.Time) bool {
	return !i.ExpiresAt.IsZero() && i.ExpiresAt.Before(now)
}

// Inspect decodes a JWT-shaped token WITHOUT verifying its signature. The result
// is for logs only; expiry is decided by the remote authority.
func Inspect(tok string) TokenInfo {
	claims := jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(tok, &claims); err != nil {
		return TokenInfo{Kind: TokenOpaque}
	}
	info := TokenInfo{Kind: TokenJWT, Subject: claims.Subject}
	if claims.ExpiresAt != nil {
		info.ExpiresAt = claims.ExpiresAt.Time
	}
	return info
}
