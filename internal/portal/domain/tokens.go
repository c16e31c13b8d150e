package domain

import (
	"errors"
	"time"

	"github.com/initiumportal/stance/pkg/idx"
)

// TokenPurpose names the flow a security token authorizes.
type TokenPurpose string

const (
	TokenPurposePasswordReset       TokenPurpose = "PasswordReset"
	TokenPurposeAccountConfirmation TokenPurpose = "AccountConfirmation"
)

// ErrInvalidTokenID reports a token id that is not base64url of 16 bytes.
var ErrInvalidTokenID = errors.New("domain: invalid security token id")

// SecurityToken is the opaque, time-boxed handle embedded in an emailed link.
// ID is the base64url form of a 16-byte ULID.
type SecurityToken struct {
	ID          string
	Purpose     TokenPurpose
	WhenExpires time.Time
}

// NewSecurityToken returns a fresh token for purpose expiring at whenExpires.
func NewSecurityToken(purpose TokenPurpose, whenExpires time.Time) SecurityToken {
	return SecurityToken{
		ID:          idx.NewOpaque(),
		Purpose:     purpose,
		WhenExpires: whenExpires.UTC(),
	}
}

// ValidateTokenID checks that id decodes to exactly 16 bytes.
func ValidateTokenID(id string) error {
	if _, err := idx.ParseOpaque(id); err != nil {
		return ErrInvalidTokenID
	}
	return nil
}

// SecurityTokenMapping is the stored side of a SecurityToken.
type SecurityTokenMapping struct {
	ID          string
	Purpose     TokenPurpose
	WhenCreated time.Time
	WhenExpires time.Time
	WhenUsed    *time.Time
}

// IsValid reports whether the mapping is unused and not expired at now.
func (m SecurityTokenMapping) IsValid(now time.Time) bool {
	return m.WhenUsed == nil && !now.After(m.WhenExpires)
}
