// Package fido adapts go-webauthn to the portal's user aggregate.
package fido

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/go-webauthn/webauthn/protocol"
	"github.com/go-webauthn/webauthn/webauthn"
	"github.com/initiumportal/stance/internal/portal/domain"
)

var ErrInvalidSession = errors.New("fido: invalid session data")

// Challenge is a ceremony start: options for navigator.credentials and the
// session state needed to finish it.
type Challenge struct {
	Options     json.RawMessage
	SessionData string
}

// Assertion is the verified outcome of a sign-in ceremony.
type Assertion struct {
	CredentialID []byte
	Counter      uint32
}

// Verifier runs WebAuthn registration and login ceremonies for a user.
type Verifier interface {
	BeginRegistration(u *domain.User) (Challenge, error)
	FinishRegistration(u *domain.User, sessionData string, response []byte) (domain.AuthenticatorDevice, error)
	BeginLogin(u *domain.User) (Challenge, error)
	FinishLogin(u *domain.User, sessionData string, response []byte) (Assertion, error)
}

type Config struct {
	RPID          string
	RPDisplayName string
	RPOrigins     []string
}

type WebAuthn struct {
	wa *webauthn.WebAuthn
}

func New(cfg Config) (*WebAuthn, error) {
	wa, err := webauthn.New(&webauthn.Config{
		RPID:          cfg.RPID,
		RPDisplayName: cfg.RPDisplayName,
		RPOrigins:     cfg.RPOrigins,
	})
	if err != nil {
		return nil, fmt.Errorf("fido: %w", err)
	}
	return &WebAuthn{wa: wa}, nil
}

func (w *WebAuthn) BeginRegistration(u *domain.User) (Challenge, error) {
	wu := newUser(u)

	exclusions := make([]protocol.CredentialDescriptor, 0, len(wu.credentials))
	for _, c := range wu.credentials {
		exclusions = append(exclusions, c.Descriptor())
	}

	creation, session, err := w.wa.BeginRegistration(wu, webauthn.WithExclusions(exclusions))
	if err != nil {
		return Challenge{}, err
	}
	return newChallenge(creation, session)
}

func (w *WebAuthn) FinishRegistration(u *domain.User, sessionData string, response []byte) (domain.AuthenticatorDevice, error) {
	session, err := decodeSession(sessionData)
	if err != nil {
		return domain.AuthenticatorDevice{}, err
	}

	parsed, err := protocol.ParseCredentialCreationResponseBody(bytes.NewReader(response))
	if err != nil {
		return domain.AuthenticatorDevice{}, err
	}

	cred, err := w.wa.CreateCredential(newUser(u), session, parsed)
	if err != nil {
		return domain.AuthenticatorDevice{}, err
	}

	transports := make([]string, 0, len(cred.Transport))
	for _, t := range cred.Transport {
		transports = append(transports, string(t))
	}

	return domain.AuthenticatorDevice{
		CredentialID:   cred.ID,
		PublicKey:      cred.PublicKey,
		AAGUID:         cred.Authenticator.AAGUID,
		Counter:        cred.Authenticator.SignCount,
		CredentialType: cred.AttestationType,
		Transports:     transports,
		BackupEligible: cred.Flags.BackupEligible,
		BackupState:    cred.Flags.BackupState,
	}, nil
}

func (w *WebAuthn) BeginLogin(u *domain.User) (Challenge, error) {
	assertion, session, err := w.wa.BeginLogin(newUser(u))
	if err != nil {
		return Challenge{}, err
	}
	return newChallenge(assertion, session)
}

func (w *WebAuthn) FinishLogin(u *domain.User, sessionData string, response []byte) (Assertion, error) {
	session, err := decodeSession(sessionData)
	if err != nil {
		return Assertion{}, err
	}

	parsed, err := protocol.ParseCredentialRequestResponseBody(bytes.NewReader(response))
	if err != nil {
		return Assertion{}, err
	}

	cred, err := w.wa.ValidateLogin(newUser(u), session, parsed)
	if err != nil {
		return Assertion{}, err
	}
	return Assertion{CredentialID: cred.ID, Counter: cred.Authenticator.SignCount}, nil
}

func newChallenge(options any, session *webauthn.SessionData) (Challenge, error) {
	raw, err := json.Marshal(options)
	if err != nil {
		return Challenge{}, err
	}
	blob, err := json.Marshal(session)
	if err != nil {
		return Challenge{}, err
	}
	return Challenge{Options: raw, SessionData: base64.RawURLEncoding.EncodeToString(blob)}, nil
}

func decodeSession(s string) (webauthn.SessionData, error) {
	var session webauthn.SessionData

	blob, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return session, ErrInvalidSession
	}
	if err := json.Unmarshal(blob, &session); err != nil {
		return session, ErrInvalidSession
	}
	return session, nil
}

// user exposes the aggregate's active devices as WebAuthn credentials.
type user struct {
	u           *domain.User
	credentials []webauthn.Credential
}

func newUser(u *domain.User) *user {
	devices := u.ActiveAuthenticatorDevices()
	creds := make([]webauthn.Credential, 0, len(devices))
	for _, d := range devices {
		transports := make([]protocol.AuthenticatorTransport, 0, len(d.Transports))
		for _, t := range d.Transports {
			transports = append(transports, protocol.AuthenticatorTransport(t))
		}
		creds = append(creds, webauthn.Credential{
			ID:              d.CredentialID,
			PublicKey:       d.PublicKey,
			AttestationType: d.CredentialType,
			Transport:       transports,
			Flags: webauthn.CredentialFlags{
				UserPresent:    true,
				BackupEligible: d.BackupEligible,
				BackupState:    d.BackupState,
			},
			Authenticator: webauthn.Authenticator{
				AAGUID:    d.AAGUID,
				SignCount: d.Counter,
			},
		})
	}
	return &user{u: u, credentials: creds}
}

func (w *user) WebAuthnID() []byte                         { return []byte(w.u.ID) }
func (w *user) WebAuthnName() string                       { return w.u.Email }
func (w *user) WebAuthnCredentials() []webauthn.Credential { return w.credentials }

func (w *user) WebAuthnDisplayName() string {
	name := w.u.Profile.FirstName + " " + w.u.Profile.LastName
	if name == " " {
		return w.u.Email
	}
	return name
}
