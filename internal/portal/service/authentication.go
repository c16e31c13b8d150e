package service

import (
	"context"
	"errors"
	"log/slog"

	"github.com/initiumportal/stance/internal/portal/command"
	"github.com/initiumportal/stance/internal/portal/domain"
	"github.com/initiumportal/stance/internal/portal/mediator"
	"github.com/initiumportal/stance/internal/portal/principal"
	"github.com/initiumportal/stance/pkg/cryptox"
	"github.com/initiumportal/stance/pkg/slogx"
)

// AuthenticateUserHandler checks an email and password. A wrong password is
// reported as AuthenticationFailed and leaves the user untouched; only second
// factor failures count towards lockout.
type AuthenticateUserHandler struct{ *base }

func (h *AuthenticateUserHandler) Handle(ctx context.Context, cmd command.AuthenticateUser) (command.AuthenticationResult, error) {
	u, err := h.loadUserByEmail(ctx, cmd.Email)
	if err != nil {
		return command.AuthenticationResult{}, err
	}

	if err := cryptox.VerifyPassword(cmd.Password, u.PasswordHash); err != nil {
		if !errors.Is(err, cryptox.ErrPasswordMismatch) {
			slogx.FromContext(ctx).Error("verifying password failed",
				slog.String("user_id", u.ID),
				slog.Any("error", err),
			)
		}
		return command.AuthenticationResult{}, domain.ErrAuthenticationFailed
	}
	// Legacy bcrypt hashes keep working; they are replaced on the next password change.
	if cryptox.NeedsRehash(u.PasswordHash) {
		slogx.FromContext(ctx).Info("user signed in with a legacy password hash", slog.String("user_id", u.ID))
	}

	providers, err := u.AcceptPassword(h.Settings.EmailMfaEnforced, h.now())
	if err != nil {
		return command.AuthenticationResult{}, err
	}
	if err := h.commit(ctx, u); err != nil {
		return command.AuthenticationResult{}, err
	}

	if providers == domain.MfaProviderNone {
		return command.AuthenticationResult{
			UserID:    u.ID,
			Status:    command.AuthenticationCompleted,
			Principal: authenticated(u, providers),
		}, nil
	}
	return command.AuthenticationResult{
		UserID:    u.ID,
		Status:    command.AuthenticationAwaitingMfa,
		Providers: providers.Names(),
		Principal: principal.FromUser(u, principal.PartiallyAuthenticated, providers),
	}, nil
}

// EmailMfaRequestedHandler mails a code derived from the security stamp to a
// partially authenticated user.
type EmailMfaRequestedHandler struct{ *base }

func (h *EmailMfaRequestedHandler) Handle(ctx context.Context, _ command.EmailMfaRequested) (mediator.Empty, error) {
	u, err := h.currentUser(ctx, principal.PartiallyAuthenticated)
	if err != nil {
		return mediator.Empty{}, err
	}

	code, err := generateEmailCode(u.SecurityStamp, h.now())
	if err != nil {
		return mediator.Empty{}, err
	}
	if err := u.RequestEmailMfa(code, h.now()); err != nil {
		return mediator.Empty{}, err
	}
	return mediator.Empty{}, h.commit(ctx, u)
}

// ValidateEmailMfaCodeHandler accepts an emailed code within three steps either
// side of now. A rejected code is stored as a failure, which may lock the user.
type ValidateEmailMfaCodeHandler struct{ *base }

func (h *ValidateEmailMfaCodeHandler) Handle(ctx context.Context, cmd command.ValidateEmailMfaCode) (command.AuthenticationResult, error) {
	u, err := h.currentUser(ctx, principal.PartiallyAuthenticated)
	if err != nil {
		return command.AuthenticationResult{}, err
	}

	if !validateEmailCode(cmd.Code, u.SecurityStamp, h.now()) {
		// The failure is committed even though the call errors.
		return command.AuthenticationResult{}, h.recordMfaFailure(ctx, u, domain.HistoryEmailMfaFailed, domain.ErrMfaCodeNotValid)
	}
	return h.complete(ctx, u)
}

type AppMfaRequestedHandler struct{ *base }

func (h *AppMfaRequestedHandler) Handle(ctx context.Context, _ command.AppMfaRequested) (mediator.Empty, error) {
	u, err := h.currentUser(ctx, principal.PartiallyAuthenticated)
	if err != nil {
		return mediator.Empty{}, err
	}
	if err := u.RequestAppMfa(h.now()); err != nil {
		return mediator.Empty{}, err
	}
	return mediator.Empty{}, h.commit(ctx, u)
}

// ValidateAppMfaCodeHandler checks a code from the enrolled authenticator app.
type ValidateAppMfaCodeHandler struct{ *base }

func (h *ValidateAppMfaCodeHandler) Handle(ctx context.Context, cmd command.ValidateAppMfaCode) (command.AuthenticationResult, error) {
	u, err := h.currentUser(ctx, principal.PartiallyAuthenticated)
	if err != nil {
		return command.AuthenticationResult{}, err
	}

	app, ok := u.ActiveAuthenticatorApp()
	if !ok {
		return command.AuthenticationResult{}, domain.ErrNoAuthenticatorAppEnrolled
	}
	if !validateAppCode(cmd.Code, app.Key, h.now()) {
		return command.AuthenticationResult{}, h.recordMfaFailure(ctx, u, domain.HistoryAppMfaFailed, domain.ErrMfaCodeNotValid)
	}
	return h.complete(ctx, u)
}

// DeviceMfaRequestHandler starts a WebAuthn assertion. The returned session
// data must come back unchanged with the assertion.
type DeviceMfaRequestHandler struct{ *base }

func (h *DeviceMfaRequestHandler) Handle(ctx context.Context, _ command.DeviceMfaRequest) (command.DeviceChallenge, error) {
	u, err := h.currentUser(ctx, principal.PartiallyAuthenticated)
	if err != nil {
		return command.DeviceChallenge{}, err
	}
	if err := u.RequestDeviceMfa(h.now()); err != nil {
		return command.DeviceChallenge{}, err
	}

	challenge, err := h.Fido.BeginLogin(u)
	if err != nil {
		slogx.FromContext(ctx).Warn("starting webauthn login failed", slog.Any("error", err))
		return command.DeviceChallenge{}, domain.ErrFidoVerificationFailed
	}
	if err := h.commit(ctx, u); err != nil {
		return command.DeviceChallenge{}, err
	}
	return command.DeviceChallenge{Options: challenge.Options, SessionData: challenge.SessionData}, nil
}

// ValidateDeviceMfaHandler verifies a WebAuthn assertion and advances the
// device counter. A counter that does not move forward fails the sign-in.
type ValidateDeviceMfaHandler struct{ *base }

func (h *ValidateDeviceMfaHandler) Handle(ctx context.Context, cmd command.ValidateDeviceMfa) (command.AuthenticationResult, error) {
	u, err := h.currentUser(ctx, principal.PartiallyAuthenticated)
	if err != nil {
		return command.AuthenticationResult{}, err
	}
	if len(u.ActiveAuthenticatorDevices()) == 0 {
		return command.AuthenticationResult{}, domain.ErrDeviceNotFound
	}

	assertion, err := h.Fido.FinishLogin(u, cmd.SessionData, cmd.AssertionResponse)
	if err != nil {
		slogx.FromContext(ctx).Info("webauthn assertion rejected", slog.Any("error", err))
		return command.AuthenticationResult{}, h.recordMfaFailure(ctx, u, domain.HistoryDeviceMfaFailed, domain.ErrFidoVerificationFailed)
	}

	err = u.CompleteDeviceAuthentication(assertion.CredentialID, assertion.Counter, h.Settings.Lockout, h.now())
	if errors.Is(err, domain.ErrFidoVerificationFailed) {
		// The aggregate recorded the failed attempt; keep it.
		if cerr := h.commit(ctx, u); cerr != nil {
			return command.AuthenticationResult{}, cerr
		}
		return command.AuthenticationResult{}, err
	}
	if err != nil {
		return command.AuthenticationResult{}, err
	}

	if err := h.commit(ctx, u); err != nil {
		return command.AuthenticationResult{}, err
	}
	return completed(u, h.Settings.EmailMfaEnforced), nil
}

// complete finishes a sign-in after a verified code.
func (b *base) complete(ctx context.Context, u *domain.User) (command.AuthenticationResult, error) {
	if err := u.CompleteMfaAuthentication(b.now()); err != nil {
		return command.AuthenticationResult{}, err
	}
	if err := b.commit(ctx, u); err != nil {
		return command.AuthenticationResult{}, err
	}
	return completed(u, b.Settings.EmailMfaEnforced), nil
}

func completed(u *domain.User, emailEnforced bool) command.AuthenticationResult {
	return command.AuthenticationResult{
		UserID:    u.ID,
		Status:    command.AuthenticationCompleted,
		Principal: authenticated(u, u.MfaProviders(emailEnforced)),
	}
}
