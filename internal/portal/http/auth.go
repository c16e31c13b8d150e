package http

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/initiumportal/stance/internal/portal/command"
	"github.com/initiumportal/stance/internal/portal/domain"
	"github.com/initiumportal/stance/internal/portal/mediator"
	"github.com/initiumportal/stance/internal/portal/service"
	"github.com/initiumportal/stance/pkg/httpx"
	"github.com/initiumportal/stance/pkg/slogx"
)

// AuthHandler serves the sign-in steps that change the session principal.
type AuthHandler struct {
	Handlers *service.Handlers
	Sessions *Sessions
}

// HandleSignIn handles POST /v1/auth/sign-in. An unknown email reads as a
// wrong password.
func (h *AuthHandler) HandleSignIn(w http.ResponseWriter, r *http.Request) {
	cmd, ok := decode[command.AuthenticateUser](w, r, nil)
	if !ok {
		return
	}

	res, err := h.Handlers.AuthenticateUser.Handle(r.Context(), cmd)
	if errors.Is(err, domain.ErrUserNotFound) {
		err = domain.ErrAuthenticationFailed
	}
	h.signIn(w, r, res, err)
}

// HandleSignOut handles POST /v1/auth/sign-out.
func (h *AuthHandler) HandleSignOut(w http.ResponseWriter, r *http.Request) {
	if err := h.Sessions.SignOut(w, r); err != nil {
		writeError(w, r, err)
		return
	}
	respond(w, http.StatusNoContent, nil)
}

// HandleEmailCode handles POST /v1/auth/mfa/email/verify.
func (h *AuthHandler) HandleEmailCode(w http.ResponseWriter, r *http.Request) {
	completeWith(h, w, r, h.Handlers.ValidateEmailMfaCode)
}

// HandleAppCode handles POST /v1/auth/mfa/app/verify.
func (h *AuthHandler) HandleAppCode(w http.ResponseWriter, r *http.Request) {
	completeWith(h, w, r, h.Handlers.ValidateAppMfaCode)
}

// HandleDeviceChallenge handles POST /v1/auth/mfa/device.
func (h *AuthHandler) HandleDeviceChallenge(w http.ResponseWriter, r *http.Request) {
	h.challenge(w, r, func(ctx context.Context) (command.DeviceChallenge, error) {
		return h.Handlers.DeviceMfaRequest.Handle(ctx, command.DeviceMfaRequest{})
	})
}

// HandleDeviceAssertion handles POST /v1/auth/mfa/device/verify.
func (h *AuthHandler) HandleDeviceAssertion(w http.ResponseWriter, r *http.Request) {
	cmd, ok := decode[command.ValidateDeviceMfa](w, r, nil)
	if !ok {
		return
	}
	data, err := h.Sessions.TakeCeremony(w, r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	cmd.SessionData = data

	res, err := h.Handlers.ValidateDeviceMfa.Handle(r.Context(), cmd)
	h.signIn(w, r, res, err)
}

// HandleDeviceEnrollmentChallenge handles POST /v1/me/devices/challenge.
func (h *AuthHandler) HandleDeviceEnrollmentChallenge(w http.ResponseWriter, r *http.Request) {
	h.challenge(w, r, func(ctx context.Context) (command.DeviceChallenge, error) {
		return h.Handlers.InitiateAuthenticatorDeviceEnrollment.Handle(ctx, command.InitiateAuthenticatorDeviceEnrollment{})
	})
}

// HandleDeviceEnrollment handles POST /v1/me/devices.
func (h *AuthHandler) HandleDeviceEnrollment(w http.ResponseWriter, r *http.Request) {
	cmd, ok := decode[command.EnrollAuthenticatorDevice](w, r, nil)
	if !ok {
		return
	}
	data, err := h.Sessions.TakeCeremony(w, r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	cmd.SessionData = data

	res, err := h.Handlers.EnrollAuthenticatorDevice.Handle(r.Context(), cmd)
	if err != nil {
		writeError(w, r, err)
		return
	}
	respond(w, http.StatusCreated, res)
}

func completeWith[C any](h *AuthHandler, w http.ResponseWriter, r *http.Request, handler mediator.Handler[C, command.AuthenticationResult]) {
	cmd, ok := decode[C](w, r, nil)
	if !ok {
		return
	}
	res, err := handler.Handle(r.Context(), cmd)
	h.signIn(w, r, res, err)
}

// signIn stores the principal of a successful sign-in step and writes res.
func (h *AuthHandler) signIn(w http.ResponseWriter, r *http.Request, res command.AuthenticationResult, err error) {
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := h.Sessions.SignIn(w, r, res.Principal); err != nil {
		writeError(w, r, err)
		return
	}

	slogx.FromContext(r.Context()).Info("sign-in step completed",
		slog.String("user_id", res.UserID),
		slog.String("status", string(res.Status)),
	)
	httpx.NoCache(w)
	httpx.WriteJSON(w, http.StatusOK, res)
}

// challenge starts a WebAuthn ceremony and keeps its session data
// server-side.
func (h *AuthHandler) challenge(w http.ResponseWriter, r *http.Request, begin func(context.Context) (command.DeviceChallenge, error)) {
	ch, err := begin(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := h.Sessions.PutCeremony(w, r, ch.SessionData); err != nil {
		writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, ch)
}

// maskNotFound answers 202 whether or not the email is known so the endpoint
// cannot be used to probe for accounts.
func maskNotFound[C any](h mediator.Handler[C, mediator.Empty]) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		cmd, ok := decode[C](w, r, nil)
		if !ok {
			return
		}
		_, err := h.Handle(r.Context(), cmd)
		if err != nil && !errors.Is(err, domain.ErrUserNotFound) && !errors.Is(err, domain.ErrUserIsAlreadyVerified) {
			writeError(w, r, err)
			return
		}
		respond(w, http.StatusAccepted, nil)
	}
}
