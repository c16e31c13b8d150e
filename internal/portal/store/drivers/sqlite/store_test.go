package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/initiumportal/stance/internal/portal/domain"
	"github.com/initiumportal/stance/internal/portal/store"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

func newTestStore(t *testing.T) *Store {
	t.Helper()

	s, err := NewStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	require.NoError(t, s.ApplyMigrations())
	return s
}

func createUser(t *testing.T, s *Store, email string) *domain.User {
	t.Helper()

	u := domain.NewUser(email, "hash", domain.Profile{FirstName: "Ada", LastName: "Lovelace"}, false, true, t0)
	require.NoError(t, s.Users().CreateUser(context.Background(), u))
	return u
}

func TestMigrationsAreIdempotent(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.ApplyMigrations())
	require.NoError(t, s.Ping(context.Background()))
}

func TestCreateAndLoadUser(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	empty, err := s.Users().IsEmpty(ctx)
	require.NoError(t, err)
	require.True(t, empty)

	u := createUser(t, s, "Ada@Example.com")
	require.Equal(t, int64(1), u.Version)

	got, err := s.Users().GetUserByEmail(ctx, "ADA@example.com")
	require.NoError(t, err)
	require.Equal(t, u.ID, got.ID)
	require.Equal(t, "ada@example.com", got.Email)
	require.Equal(t, "Ada", got.Profile.FirstName)
	require.True(t, got.IsLockable)
	require.False(t, got.IsAdmin)
	require.Equal(t, t0, got.WhenCreated)
	require.Nil(t, got.WhenLocked)

	empty, err = s.Users().IsEmpty(ctx)
	require.NoError(t, err)
	require.False(t, empty)
}

func TestCreateUserDuplicateEmail(t *testing.T) {
	s := newTestStore(t)
	createUser(t, s, "ada@example.com")

	dup := domain.NewUser("ada@example.com", "hash", domain.Profile{}, false, false, t0)
	err := s.Users().CreateUser(context.Background(), dup)
	require.ErrorIs(t, err, store.ErrAlreadyExists)
}

func TestGetUserNotFound(t *testing.T) {
	s := newTestStore(t)

	_, err := s.Users().GetUserByID(context.Background(), "missing")
	require.ErrorIs(t, err, store.ErrNotFound)

	_, err = s.Users().GetUserByEmail(context.Background(), "missing@example.com")
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestSaveUserPersistsChildren(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	u := createUser(t, s, "ada@example.com")

	role := domain.NewRole("Support", []string{domain.ResourceUserRead}, t0)
	require.NoError(t, s.Roles().CreateRole(ctx, role))

	_, err := u.EnrollAuthenticatorApp("JBSWY3DPEHPK3PXP", t0)
	require.NoError(t, err)
	_, err = u.EnrollAuthenticatorDevice(domain.AuthenticatorDevice{
		CredentialID: []byte{1, 2, 3},
		PublicKey:    []byte{4, 5, 6},
		Counter:      7,
		Name:         "YubiKey",
		Transports:   []string{"usb", "nfc"},
	}, t0)
	require.NoError(t, err)
	_, err = u.AcceptPassword(true, t0)
	require.NoError(t, err)
	u.UpdateSystemAccessDetails(u.Email, u.Profile, false, true, []string{role.ID})

	require.NoError(t, s.Users().SaveUser(ctx, u))
	require.Equal(t, int64(2), u.Version)

	got, err := s.Users().GetUserByID(ctx, u.ID)
	require.NoError(t, err)
	require.Equal(t, int64(2), got.Version)
	require.Equal(t, []string{role.ID}, got.RoleIDs)

	app, ok := got.ActiveAuthenticatorApp()
	require.True(t, ok)
	require.Equal(t, "JBSWY3DPEHPK3PXP", app.Key)

	devices := got.ActiveAuthenticatorDevices()
	require.Len(t, devices, 1)
	require.Equal(t, []byte{1, 2, 3}, devices[0].CredentialID)
	require.Equal(t, uint32(7), devices[0].Counter)
	require.Equal(t, []string{"usb", "nfc"}, devices[0].Transports)

	require.Len(t, got.AuthenticationHistories, 1)
	require.Equal(t, domain.HistoryPasswordAccepted, got.AuthenticationHistories[0].Type)
}

func TestSaveUserVersionConflict(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	u := createUser(t, s, "ada@example.com")

	first, err := s.Users().GetUserByID(ctx, u.ID)
	require.NoError(t, err)
	second, err := s.Users().GetUserByID(ctx, u.ID)
	require.NoError(t, err)

	first.UpdateProfile(domain.Profile{FirstName: "First"})
	require.NoError(t, s.Users().SaveUser(ctx, first))

	second.UpdateProfile(domain.Profile{FirstName: "Second"})
	require.ErrorIs(t, s.Users().SaveUser(ctx, second), store.ErrConflict)

	got, err := s.Users().GetUserByID(ctx, u.ID)
	require.NoError(t, err)
	require.Equal(t, "First", got.Profile.FirstName)
}

func TestReplaceAuthenticatorApp(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	u := createUser(t, s, "ada@example.com")

	_, err := u.EnrollAuthenticatorApp("FIRSTKEY", t0)
	require.NoError(t, err)
	require.NoError(t, s.Users().SaveUser(ctx, u))

	require.NoError(t, u.RevokeAuthenticatorApp(t0.Add(time.Hour)))
	_, err = u.EnrollAuthenticatorApp("SECONDKEY", t0.Add(time.Hour))
	require.NoError(t, err)
	require.NoError(t, s.Users().SaveUser(ctx, u))

	got, err := s.Users().GetUserByID(ctx, u.ID)
	require.NoError(t, err)
	require.Len(t, got.AuthenticatorApps, 2)

	app, ok := got.ActiveAuthenticatorApp()
	require.True(t, ok)
	require.Equal(t, "SECONDKEY", app.Key)
}

func TestSecurityTokenLookup(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	u := createUser(t, s, "ada@example.com")

	token := domain.NewSecurityToken(domain.TokenPurposePasswordReset, t0.Add(24*time.Hour))
	u.GenerateNewPasswordResetToken(token, "link", t0)
	require.NoError(t, s.Users().SaveUser(ctx, u))

	got, err := s.Users().GetUserBySecurityToken(ctx, token.ID, domain.TokenPurposePasswordReset, t0.Add(time.Hour))
	require.NoError(t, err)
	require.Equal(t, u.ID, got.ID)
	require.Len(t, got.SecurityTokenMappings, 1)

	t.Run("wrong purpose", func(t *testing.T) {
		_, err := s.Users().GetUserBySecurityToken(ctx, token.ID, domain.TokenPurposeAccountConfirmation, t0)
		require.ErrorIs(t, err, store.ErrNotFound)
	})

	t.Run("expired", func(t *testing.T) {
		_, err := s.Users().GetUserBySecurityToken(ctx, token.ID, domain.TokenPurposePasswordReset, t0.Add(25*time.Hour))
		require.ErrorIs(t, err, store.ErrNotFound)
	})

	t.Run("used", func(t *testing.T) {
		require.NoError(t, got.ResetPassword(token.ID, "new-hash", t0.Add(2*time.Hour)))
		require.NoError(t, s.Users().SaveUser(ctx, got))

		_, err := s.Users().GetUserBySecurityToken(ctx, token.ID, domain.TokenPurposePasswordReset, t0.Add(3*time.Hour))
		require.ErrorIs(t, err, store.ErrNotFound)
	})
}

func TestWithTxRollsBack(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	u := domain.NewUser("ada@example.com", "hash", domain.Profile{}, false, false, t0)
	err := s.WithTx(ctx, func(tx store.Tx) error {
		require.NoError(t, tx.Users().CreateUser(ctx, u))
		return store.ErrConflict
	})
	require.ErrorIs(t, err, store.ErrConflict)

	_, err = s.Users().GetUserByID(ctx, u.ID)
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestHousekeepingDeletes(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	u := createUser(t, s, "ada@example.com")

	expired := domain.NewSecurityToken(domain.TokenPurposePasswordReset, t0.Add(time.Hour))
	u.GenerateNewPasswordResetToken(expired, "link", t0)
	_, err := u.AcceptPassword(false, t0)
	require.NoError(t, err)
	require.NoError(t, s.Users().SaveUser(ctx, u))

	n, err := s.Users().DeleteSpentSecurityTokens(ctx, t0.Add(2*time.Hour))
	require.NoError(t, err)
	require.Equal(t, int64(1), n)

	n, err = s.Users().DeleteAuthenticationHistoryBefore(ctx, t0.Add(time.Minute))
	require.NoError(t, err)
	require.Equal(t, int64(2), n) // PasswordAccepted and Success

	got, err := s.Users().GetUserByID(ctx, u.ID)
	require.NoError(t, err)
	require.Empty(t, got.SecurityTokenMappings)
	require.Empty(t, got.AuthenticationHistories)
}

func TestRoles(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	role := domain.NewRole("Support", []string{domain.ResourceUserWrite, domain.ResourceUserRead}, t0)
	require.NoError(t, s.Roles().CreateRole(ctx, role))
	require.ErrorIs(t, s.Roles().CreateRole(ctx, domain.NewRole("Support", nil, t0)), store.ErrAlreadyExists)

	got, err := s.Roles().GetRoleByName(ctx, "Support")
	require.NoError(t, err)
	require.Equal(t, []string{domain.ResourceUserRead, domain.ResourceUserWrite}, got.Resources)

	stale := got
	got.Update("Helpdesk", []string{domain.ResourceRoleRead})
	require.NoError(t, s.Roles().UpdateRole(ctx, &got))
	require.Equal(t, int64(2), got.Version)
	require.ErrorIs(t, s.Roles().UpdateRole(ctx, &stale), store.ErrConflict)

	u := createUser(t, s, "ada@example.com")
	u.UpdateSystemAccessDetails(u.Email, u.Profile, false, true, []string{role.ID})
	require.NoError(t, s.Users().SaveUser(ctx, u))

	require.NoError(t, s.Roles().DeleteRole(ctx, role.ID))
	require.ErrorIs(t, s.Roles().DeleteRole(ctx, role.ID), store.ErrNotFound)

	loaded, err := s.Users().GetUserByID(ctx, u.ID)
	require.NoError(t, err)
	require.Empty(t, loaded.RoleIDs)

	roles, err := s.Roles().ListRoles(ctx)
	require.NoError(t, err)
	require.Empty(t, roles)
}
