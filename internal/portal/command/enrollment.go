package command

import "encoding/json"

type GenerateAuthenticatorAppKey struct{}

// AuthenticatorAppKey is a freshly generated, not yet enrolled TOTP secret.
type AuthenticatorAppKey struct {
	Key string `json:"key"`
	URI string `json:"uri"`
}

type EnrollAuthenticatorApp struct {
	Key  string `json:"key" validate:"required,alphanum,uppercase,min=16"`
	Code string `json:"code" validate:"required,len=6,numeric"`
}

type RevokeAuthenticatorApp struct {
	Password string `json:"password" validate:"required"`
}

type InitiateAuthenticatorDeviceEnrollment struct{}

type EnrollAuthenticatorDevice struct {
	Name                string          `json:"name" validate:"required,max=64"`
	SessionData         string          `json:"-" validate:"required"`
	AttestationResponse json.RawMessage `json:"attestation_response" validate:"required"`
}

type DeviceEnrolled struct {
	DeviceID string `json:"device_id"`
}

type RevokeAuthenticatorDevice struct {
	DeviceID string `json:"-" validate:"required"`
	Password string `json:"password" validate:"required"`
}
