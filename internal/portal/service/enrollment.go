package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/initiumportal/stance/internal/portal/command"
	"github.com/initiumportal/stance/internal/portal/domain"
	"github.com/initiumportal/stance/internal/portal/mediator"
	"github.com/initiumportal/stance/internal/portal/principal"
	"github.com/initiumportal/stance/pkg/slogx"
)

type GenerateAuthenticatorAppKeyHandler struct{ *base }

// Handle returns a new secret for the caller to scan. Nothing is stored until
// EnrollAuthenticatorApp proves the app can produce codes for it.
func (h *GenerateAuthenticatorAppKeyHandler) Handle(ctx context.Context, _ command.GenerateAuthenticatorAppKey) (command.AuthenticatorAppKey, error) {
	u, err := h.currentUser(ctx, principal.FullyAuthenticated)
	if err != nil {
		return command.AuthenticatorAppKey{}, err
	}
	if _, ok := u.ActiveAuthenticatorApp(); ok {
		return command.AuthenticatorAppKey{}, domain.ErrAuthenticatorAppAlreadyEnrolled
	}

	key, err := generateAppKey(h.Settings.TOTPIssuer, u.Email)
	if err != nil {
		return command.AuthenticatorAppKey{}, fmt.Errorf("generate totp key: %w", err)
	}
	return command.AuthenticatorAppKey{Key: key.Secret(), URI: key.URL()}, nil
}

// EnrollAuthenticatorAppHandler stores a key once the caller proves their app
// produces codes for it. A user holds at most one active app.
type EnrollAuthenticatorAppHandler struct{ *base }

func (h *EnrollAuthenticatorAppHandler) Handle(ctx context.Context, cmd command.EnrollAuthenticatorApp) (mediator.Empty, error) {
	u, err := h.currentUser(ctx, principal.FullyAuthenticated)
	if err != nil {
		return mediator.Empty{}, err
	}
	if _, ok := u.ActiveAuthenticatorApp(); ok {
		return mediator.Empty{}, domain.ErrAuthenticatorAppAlreadyEnrolled
	}
	if !validateAppCode(cmd.Code, cmd.Key, h.now()) {
		return mediator.Empty{}, domain.ErrFailedVerifyingAuthenticatorCode
	}

	if _, err := u.EnrollAuthenticatorApp(cmd.Key, h.now()); err != nil {
		return mediator.Empty{}, err
	}
	return mediator.Empty{}, h.commit(ctx, u)
}

// RevokeAuthenticatorAppHandler re-confirms the password, then retires the
// active app. Revoked apps stay on record.
type RevokeAuthenticatorAppHandler struct{ *base }

func (h *RevokeAuthenticatorAppHandler) Handle(ctx context.Context, cmd command.RevokeAuthenticatorApp) (mediator.Empty, error) {
	u, err := h.currentUser(ctx, principal.FullyAuthenticated)
	if err != nil {
		return mediator.Empty{}, err
	}
	if err := checkPassword(cmd.Password, u); err != nil {
		return mediator.Empty{}, err
	}

	if err := u.RevokeAuthenticatorApp(h.now()); err != nil {
		return mediator.Empty{}, err
	}
	return mediator.Empty{}, h.commit(ctx, u)
}

// InitiateAuthenticatorDeviceEnrollmentHandler starts a WebAuthn registration
// excluding the user's active credentials.
type InitiateAuthenticatorDeviceEnrollmentHandler struct{ *base }

func (h *InitiateAuthenticatorDeviceEnrollmentHandler) Handle(ctx context.Context, _ command.InitiateAuthenticatorDeviceEnrollment) (command.DeviceChallenge, error) {
	u, err := h.currentUser(ctx, principal.FullyAuthenticated)
	if err != nil {
		return command.DeviceChallenge{}, err
	}

	challenge, err := h.Fido.BeginRegistration(u)
	if err != nil {
		slogx.FromContext(ctx).Warn("starting webauthn registration failed", slog.Any("error", err))
		return command.DeviceChallenge{}, domain.ErrFidoVerificationFailed
	}
	return command.DeviceChallenge{Options: challenge.Options, SessionData: challenge.SessionData}, nil
}

// EnrollAuthenticatorDeviceHandler verifies an attestation and stores the new
// credential. Its id must be unique among the user's active devices.
type EnrollAuthenticatorDeviceHandler struct{ *base }

func (h *EnrollAuthenticatorDeviceHandler) Handle(ctx context.Context, cmd command.EnrollAuthenticatorDevice) (command.DeviceEnrolled, error) {
	u, err := h.currentUser(ctx, principal.FullyAuthenticated)
	if err != nil {
		return command.DeviceEnrolled{}, err
	}

	device, err := h.Fido.FinishRegistration(u, cmd.SessionData, cmd.AttestationResponse)
	if err != nil {
		slogx.FromContext(ctx).Info("webauthn attestation rejected", slog.Any("error", err))
		return command.DeviceEnrolled{}, domain.ErrFidoVerificationFailed
	}
	device.Name = cmd.Name

	enrolled, err := u.EnrollAuthenticatorDevice(device, h.now())
	if err != nil {
		return command.DeviceEnrolled{}, err
	}
	if err := h.commit(ctx, u); err != nil {
		return command.DeviceEnrolled{}, err
	}
	return command.DeviceEnrolled{DeviceID: enrolled.ID}, nil
}

type RevokeAuthenticatorDeviceHandler struct{ *base }

func (h *RevokeAuthenticatorDeviceHandler) Handle(ctx context.Context, cmd command.RevokeAuthenticatorDevice) (mediator.Empty, error) {
	u, err := h.currentUser(ctx, principal.FullyAuthenticated)
	if err != nil {
		return mediator.Empty{}, err
	}
	if err := checkPassword(cmd.Password, u); err != nil {
		return mediator.Empty{}, err
	}

	if err := u.RevokeAuthenticatorDevice(cmd.DeviceID); err != nil {
		return mediator.Empty{}, err
	}
	return mediator.Empty{}, h.commit(ctx, u)
}
