package domain

import (
	"bytes"
	"time"
)

// AuthenticatorApp is a TOTP enrollment. A nil WhenRevoked means active.
type AuthenticatorApp struct {
	ID           string
	Key          string // Base32 shared secret
	WhenEnrolled time.Time
	WhenRevoked  *time.Time
}

func (a AuthenticatorApp) IsActive() bool { return a.WhenRevoked == nil }

// AuthenticatorDevice is an enrolled WebAuthn credential.
type AuthenticatorDevice struct {
	ID             string
	CredentialID   []byte
	PublicKey      []byte
	AAGUID         []byte
	Counter        uint32
	Name           string
	CredentialType string
	Transports     []string
	BackupEligible bool
	BackupState    bool
	WhenEnrolled   time.Time
	WhenLastUsed   *time.Time
	IsRevoked      bool
}

func (d AuthenticatorDevice) matches(credentialID []byte) bool {
	return !d.IsRevoked && bytes.Equal(d.CredentialID, credentialID)
}

// counterAccepts implements the WebAuthn signature counter rule: a counter
// of zero on both sides means the authenticator does not count, otherwise
// the asserted value must strictly increase.
func (d AuthenticatorDevice) counterAccepts(counter uint32) bool {
	if counter == 0 && d.Counter == 0 {
		return true
	}
	return counter > d.Counter
}
