package session

import (
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

// userIDClaims lists the claim names backends commonly use for the user id,
// in lookup order.
var userIDClaims = []string{"sub", "id", "_id", "userId", "user_id"}

// withClaims fills UserID and ExpiresAt from the token's claims when they are
// missing. Tokens that are not JWTs are returned unchanged. The signature is
// not verified.
func withClaims(s Session) Session {
	if s.Token == "" {
		return s
	}
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(s.Token, claims); err != nil {
		return s
	}

	if s.UserID == "" {
		for _, name := range userIDClaims {
			if v, ok := claims[name]; ok && v != nil {
				if id := fmt.Sprint(v); id != "" {
					s.UserID = id
					break
				}
			}
		}
	}
	if s.ExpiresAt.IsZero() {
		if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
			s.ExpiresAt = exp.Time
		}
	}
	return s
}
