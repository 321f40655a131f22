package cvsdk

import (
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// IsJWT reports whether a credential looks like a JWT. Plain API keys
// have no expiry to check.
func IsJWT(token string) bool {
	return strings.Count(token, ".") == 2
}

// ParseTokenClaims decodes a JWT's claims without verifying its
// signature. The client only needs the expiry; the server does the real
// verification.
func ParseTokenClaims(tokenStr string) (jwt.MapClaims, error) {
	var claims jwt.MapClaims
	parser := new(jwt.Parser)
	_, _, err := parser.ParseUnverified(tokenStr, &claims)
	if err != nil {
		return nil, err
	}
	return claims, nil
}

// TokenExpiry returns the exp claim of a JWT. ok is false when the token
// carries no expiry.
func TokenExpiry(tokenStr string) (expiry time.Time, ok bool, err error) {
	claims, err := ParseTokenClaims(tokenStr)
	if err != nil {
		return time.Time{}, false, err
	}

	switch v := claims["exp"].(type) {
	case float64:
		return time.Unix(int64(v), 0), true, nil
	case int64:
		return time.Unix(v, 0), true, nil
	}
	return time.Time{}, false, nil
}

// IsTokenExpired reports whether a JWT credential expires within leeway.
// Tokens without an exp claim never expire.
func IsTokenExpired(tokenStr string, leeway time.Duration) (bool, error) {
	expiry, ok, err := TokenExpiry(tokenStr)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, nil
	}
	return time.Now().Add(leeway).After(expiry), nil
}
