package jwtx

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Claims are the claims of a single-use link token. The registered "jti"
// carries the token id and "exp" its expiry; Purpose scopes the link to one
// flow so a reset link cannot confirm an account.
type Claims struct {
	jwt.RegisteredClaims

	Purpose string `json:"pur"`
}

// NewLinkClaims builds claims for a link that expires at expires.
func NewLinkClaims(jti, purpose, issuer string, expires, now time.Time) Claims {
	return Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expires),
			ID:        jti,
		},
		Purpose: purpose,
	}
}

// ValidatePurpose checks the pur claim.
func (c *Claims) ValidatePurpose(expected string) error {
	if expected != "" && c.Purpose != expected {
		return ErrPurpose
	}
	return nil
}
