package auth

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenExpired reports whether tok is a JWT whose exp claim is at or before now.
//
// The signature is not checked: the token was issued by the upstream and is
// only inspected here. Opaque tokens and JWTs without exp never expire.
func TokenExpired(tok string, now time.Time) bool {
	if tok == "" {
		return false
	}
	var claims jwt.RegisteredClaims
	if _, _, err := jwt.NewParser().ParseUnverified(tok, &claims); err != nil {
		return false
	}
	if claims.ExpiresAt == nil {
		return false
	}
	return !claims.ExpiresAt.Time.After(now)
}
