package command

import (
	"encoding/json"

	"github.com/initiumportal/stance/internal/portal/principal"
)

type AuthenticationStatus string

const (
	AuthenticationCompleted   AuthenticationStatus = "completed"
	AuthenticationAwaitingMfa AuthenticationStatus = "awaiting_mfa"
)

type AuthenticateUser struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// AuthenticationResult reports how far sign-in progressed. Principal is what
// the transport should remember for the caller's next request.
type AuthenticationResult struct {
	UserID    string               `json:"user_id"`
	Status    AuthenticationStatus `json:"status"`
	Providers []string             `json:"providers,omitempty"`
	Principal principal.Principal  `json:"-"`
}

type EmailMfaRequested struct{}

type ValidateEmailMfaCode struct {
	Code string `json:"code" validate:"required,len=6,numeric"`
}

type AppMfaRequested struct{}

type ValidateAppMfaCode struct {
	Code string `json:"code" validate:"required,len=6,numeric"`
}

type DeviceMfaRequest struct{}

// DeviceChallenge carries WebAuthn options for the browser and the session
// state the server needs to verify the reply.
type DeviceChallenge struct {
	Options     json.RawMessage `json:"options"`
	SessionData string          `json:"-"`
}

type ValidateDeviceMfa struct {
	SessionData       string          `json:"-" validate:"required"`
	AssertionResponse json.RawMessage `json:"assertion_response" validate:"required"`
}
