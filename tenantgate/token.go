package tenantgate

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// tokenExpiry reads the exp claim of a JWT access token without verifying
// its signature. The client is not the token's audience; the backend is.
// Opaque tokens report ok=false.
func tokenExpiry(token string) (time.Time, bool) {
	if token == "" {
		return time.Time{}, false
	}

	claims := &jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return time.Time{}, false
	}
	if claims.ExpiresAt == nil {
		return time.Time{}, false
	}

	return claims.ExpiresAt.Time, true
}

// tokenExpiring reports whether token is a JWT that expires within
// expiryLeeway of now.
func tokenExpiring(token string, now time.Time) bool {
	exp, ok := tokenExpiry(token)
	if !ok {
		return false
	}
	return !now.Add(expiryLeeway).Before(exp)
}
