// Package auth validates the platform-issued bearer tokens that identify
// the user taking an attempt. The engine never mints tokens; authentication
// itself is an external collaborator.
package auth

import (
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
	"github.com/quivio/attempt-engine/internal/config"
)

// Common auth errors.
var (
	ErrTokenInvalid = errors.New("token is invalid")
	ErrTokenExpired = errors.New("token has expired")
)

// Claims extends JWT standard claims with the platform user identity.
type Claims struct {
	jwt.RegisteredClaims
	UserID int `json:"user_id"`
}

// Validator verifies HS256 tokens signed with the shared platform secret.
type Validator struct {
	secret []byte
}

// NewValidator creates a Validator from config.
func NewValidator(cfg *config.Config) *Validator {
	return &Validator{secret: []byte(cfg.JWTSecret)}
}

// ValidateToken parses and verifies a bearer token, returning its claims.
func (v *Validator) ValidateToken(tokenStr string) (*Claims, error) {
	claims := &Claims{}

	token, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return v.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrTokenInvalid
	}

	if !token.Valid || claims.UserID == 0 {
		return nil, ErrTokenInvalid
	}
	return claims, nil
}
