// Package auth issues and checks the bearer tokens accepted by docstore.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/docsync/internal/common"
	"github.com/golang-jwt/jwt/v5"
)

var ErrInvalidToken = errors.New("invalid token")

// Scope limits what a token may do. A write token may also read.
type Scope string

const (
	ScopeRead  Scope = "read"
	ScopeWrite Scope = "write"
)

func (s Scope) Valid() bool {
	return s == ScopeRead || s == ScopeWrite
}

// Allows reports whether a token with scope s may perform an operation
// that needs want.
func (s Scope) Allows(want Scope) bool {
	if s == ScopeWrite {
		return true
	}
	return s == want
}

// Claims carries the registered claims plus the token scope.
type Claims struct {
	jwt.RegisteredClaims
	Scope Scope `json:"scope"`
}

// GenerateToken signs an HS256 token for subject. A zero validity means the
// token never expires.
func GenerateToken(subject string, scope Scope, secretKey []byte, validityDuration time.Duration) (string, error) {
	if !scope.Valid() {
		return "", fmt.Errorf("unknown scope %q", scope)
	}
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:  subject,
			IssuedAt: jwt.NewNumericDate(time.Now()),
		},
		Scope: scope,
	}
	if validityDuration != 0 {
		claims.ExpiresAt = jwt.NewNumericDate(time.Now().Add(validityDuration))
	}

	tokenString, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secretKey)
	if err != nil {
		return "", err
	}

	return tokenString, nil
}

// ParseToken verifies tokenString and returns its claims. An expired token
// yields common.ErrTokenExpired; any other defect yields ErrInvalidToken.
func ParseToken(tokenString string, secretKey []byte) (*Claims, error) {
	claims := &Claims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		return secretKey, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if errors.Is(err, jwt.ErrTokenExpired) {
		return nil, common.ErrTokenExpired
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	if !token.Valid || !claims.Scope.Valid() {
		return nil, ErrInvalidToken
	}

	return claims, nil
}
