package client

import (
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Credential is the short-lived bearer token presented on every store
// request. A zero ExpiresAt means the expiry is unknown.
type Credential struct {
	Token     string
	ExpiresAt time.Time
}

// Expired reports whether c can no longer be used at now.
func (c Credential) Expired(now time.Time) bool {
	return !c.ExpiresAt.IsZero() && !now.Before(c.ExpiresAt)
}

// ParseCredential wraps token. When token is a JWT its exp claim is read,
// without verifying the signature, to fill ExpiresAt; any other token is
// accepted as is.
func ParseCredential(token string) Credential {
	token = strings.TrimSpace(token)
	c := Credential{Token: token}
	if strings.Count(token, ".") != 2 {
		return c
	}
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return c
	}
	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		c.ExpiresAt = exp.Time
	}
	return c
}
