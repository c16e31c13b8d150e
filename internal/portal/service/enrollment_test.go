package service

import (
	"testing"

	"github.com/initiumportal/stance/internal/portal/command"
	"github.com/initiumportal/stance/internal/portal/domain"
	"github.com/initiumportal/stance/internal/portal/principal"
	"github.com/stretchr/testify/require"
)

func TestAuthenticatorAppEnrollment(t *testing.T) {
	f := newFixture(t)
	u := f.seedUser("ada@example.com", "correct horse", false)
	full := f.as(u, principal.FullyAuthenticated)

	key, err := f.h.GenerateAuthenticatorAppKey.Handle(full, command.GenerateAuthenticatorAppKey{})
	require.NoError(t, err)
	require.NotEmpty(t, key.Key)
	require.Contains(t, key.URI, "otpauth://totp/")
	require.Contains(t, key.URI, "issuer=Stance")
	require.Empty(t, f.reload(u.ID).AuthenticatorApps, "generating a key stores nothing")

	t.Run("wrong code", func(t *testing.T) {
		_, err := f.h.EnrollAuthenticatorApp.Handle(full, command.EnrollAuthenticatorApp{Key: key.Key, Code: wrongCode(f.appCode(key.Key))})
		requireCode(t, err, domain.CodeFailedVerifyingAuthenticatorCode)
	})

	_, err = f.h.EnrollAuthenticatorApp.Handle(full, command.EnrollAuthenticatorApp{Key: key.Key, Code: f.appCode(key.Key)})
	require.NoError(t, err)

	app, ok := f.reload(u.ID).ActiveAuthenticatorApp()
	require.True(t, ok)
	require.Equal(t, key.Key, app.Key)

	t.Run("second enrollment", func(t *testing.T) {
		other := "JBSWY3DPEHPK3PXP"
		_, err := f.h.EnrollAuthenticatorApp.Handle(full, command.EnrollAuthenticatorApp{Key: other, Code: f.appCode(other)})
		requireCode(t, err, domain.CodeAuthenticatorAppAlreadyEnrolled)

		_, err = f.h.GenerateAuthenticatorAppKey.Handle(full, command.GenerateAuthenticatorAppKey{})
		requireCode(t, err, domain.CodeAuthenticatorAppAlreadyEnrolled)

		_, err = f.h.EnrollAuthenticatorApp.Handle(full, command.EnrollAuthenticatorApp{Key: other, Code: wrongCode(f.appCode(other))})
		requireCode(t, err, domain.CodeAuthenticatorAppAlreadyEnrolled)
	})

	t.Run("revoke", func(t *testing.T) {
		_, err := f.h.RevokeAuthenticatorApp.Handle(full, command.RevokeAuthenticatorApp{Password: "wrong guess"})
		requireCode(t, err, domain.CodePasswordNotCorrect)

		_, err = f.h.RevokeAuthenticatorApp.Handle(full, command.RevokeAuthenticatorApp{Password: "correct horse"})
		require.NoError(t, err)

		got := f.reload(u.ID)
		_, ok := got.ActiveAuthenticatorApp()
		require.False(t, ok)
		require.Len(t, got.AuthenticatorApps, 1, "revoked apps are kept")

		_, err = f.h.RevokeAuthenticatorApp.Handle(full, command.RevokeAuthenticatorApp{Password: "correct horse"})
		requireCode(t, err, domain.CodeNoAuthenticatorAppEnrolled)
	})

	t.Run("re-enroll after revoke", func(t *testing.T) {
		other := "JBSWY3DPEHPK3PXP"
		_, err := f.h.EnrollAuthenticatorApp.Handle(full, command.EnrollAuthenticatorApp{Key: other, Code: f.appCode(other)})
		require.NoError(t, err)
	})
}

func TestAuthenticatorDeviceEnrollment(t *testing.T) {
	f := newFixture(t)
	u := f.seedUser("ada@example.com", "correct horse", false)
	full := f.as(u, principal.FullyAuthenticated)

	challenge, err := f.h.InitiateAuthenticatorDeviceEnrollment.Handle(full, command.InitiateAuthenticatorDeviceEnrollment{})
	require.NoError(t, err)
	require.Equal(t, "registration", challenge.SessionData)

	f.fido.device = domain.AuthenticatorDevice{
		CredentialID: []byte("cred-1"),
		PublicKey:    []byte("pk"),
		Counter:      0,
		Transports:   []string{"usb"},
	}
	enroll := command.EnrollAuthenticatorDevice{
		Name:                "YubiKey",
		SessionData:         challenge.SessionData,
		AttestationResponse: []byte(`{}`),
	}

	enrolled, err := f.h.EnrollAuthenticatorDevice.Handle(full, enroll)
	require.NoError(t, err)
	require.NotEmpty(t, enrolled.DeviceID)

	devices, err := f.h.GetAuthenticatorDevices.Handle(full, command.GetAuthenticatorDevices{})
	require.NoError(t, err)
	require.Len(t, devices, 1)
	require.Equal(t, "YubiKey", devices[0].Name)
	require.Equal(t, enrolled.DeviceID, devices[0].ID)

	t.Run("duplicate credential", func(t *testing.T) {
		_, err := f.h.EnrollAuthenticatorDevice.Handle(full, enroll)
		requireCode(t, err, domain.CodeFidoVerificationFailed)
	})

	t.Run("bad session", func(t *testing.T) {
		bad := enroll
		bad.SessionData = "forged"
		_, err := f.h.EnrollAuthenticatorDevice.Handle(full, bad)
		requireCode(t, err, domain.CodeFidoVerificationFailed)
	})

	t.Run("revoke", func(t *testing.T) {
		_, err := f.h.RevokeAuthenticatorDevice.Handle(full, command.RevokeAuthenticatorDevice{DeviceID: enrolled.DeviceID, Password: "wrong guess"})
		requireCode(t, err, domain.CodePasswordNotCorrect)

		_, err = f.h.RevokeAuthenticatorDevice.Handle(full, command.RevokeAuthenticatorDevice{DeviceID: "missing", Password: "correct horse"})
		requireCode(t, err, domain.CodeDeviceNotFound)

		_, err = f.h.RevokeAuthenticatorDevice.Handle(full, command.RevokeAuthenticatorDevice{DeviceID: enrolled.DeviceID, Password: "correct horse"})
		require.NoError(t, err)

		devices, err := f.h.GetAuthenticatorDevices.Handle(full, command.GetAuthenticatorDevices{})
		require.NoError(t, err)
		require.Empty(t, devices)
	})

	t.Run("re-enroll revoked credential", func(t *testing.T) {
		_, err := f.h.EnrollAuthenticatorDevice.Handle(full, enroll)
		require.NoError(t, err)
	})
}
