package service

import (
	"context"
	"testing"
	"time"

	"github.com/initiumportal/stance/internal/portal/command"
	"github.com/initiumportal/stance/internal/portal/domain"
	"github.com/initiumportal/stance/internal/portal/principal"
	"github.com/stretchr/testify/require"
)

func TestCreateInitialUser(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	cmd := command.CreateInitialUser{
		Email:     "Root@Example.com",
		Password:  "correct horse",
		FirstName: "Grace",
		LastName:  "Hopper",
	}
	created, err := f.h.CreateInitialUser.Handle(ctx, cmd)
	require.NoError(t, err)

	u := f.reload(created.UserID)
	require.Equal(t, "root@example.com", u.Email)
	require.True(t, u.IsAdmin)
	require.True(t, u.IsVerified)
	require.False(t, u.IsLockable)

	_, err = f.h.CreateInitialUser.Handle(ctx, cmd)
	requireCode(t, err, domain.CodeSystemIsAlreadySetup)

	cmd.Email = "other@example.com"
	_, err = f.h.CreateInitialUser.Handle(ctx, cmd)
	requireCode(t, err, domain.CodeSystemIsAlreadySetup)

	result, err := f.h.AuthenticateUser.Handle(ctx, command.AuthenticateUser{Email: "root@example.com", Password: "correct horse"})
	require.NoError(t, err)
	require.Equal(t, command.AuthenticationAwaitingMfa, result.Status)
}

func TestCreateUser(t *testing.T) {
	f := newFixture(t)
	admin := f.seedUser("admin@example.com", "correct horse", true)
	ctx := f.as(admin, principal.FullyAuthenticated)

	role := domain.NewRole("support", []string{domain.ResourceUserRead}, t0)
	require.NoError(t, f.store.Roles().CreateRole(context.Background(), role))

	created, err := f.h.CreateUser.Handle(ctx, command.CreateUser{
		Email:      "new@example.com",
		FirstName:  "New",
		LastName:   "Starter",
		IsLockable: true,
		RoleIDs:    []string{role.ID},
	})
	require.NoError(t, err)

	u := f.reload(created.UserID)
	require.False(t, u.IsVerified)
	require.False(t, u.IsAdmin)
	require.Equal(t, []string{role.ID}, u.RoleIDs)
	require.Len(t, u.SecurityTokenMappings, 1)

	confirm := last[domain.AccountConfirmationTokenGeneratedEvent](t, f.events)
	require.Equal(t, "new@example.com", confirm.Email)
	require.Equal(t, t0.Add(f.settings.AccountConfirmationTokenLifetime), confirm.WhenExpires)

	t.Run("duplicate email", func(t *testing.T) {
		_, err := f.h.CreateUser.Handle(ctx, command.CreateUser{Email: "NEW@example.com", FirstName: "A", LastName: "B"})
		requireCode(t, err, domain.CodeUserAlreadyExists)
	})

	t.Run("unknown role", func(t *testing.T) {
		_, err := f.h.CreateUser.Handle(ctx, command.CreateUser{Email: "x@example.com", FirstName: "A", LastName: "B", RoleIDs: []string{"missing"}})
		requireCode(t, err, domain.CodeRoleNotFound)
	})

	t.Run("not an administrator", func(t *testing.T) {
		_, err := f.h.CreateUser.Handle(f.as(u, principal.FullyAuthenticated), command.CreateUser{Email: "y@example.com", FirstName: "A", LastName: "B"})
		requireCode(t, err, domain.CodeUnauthorized)
	})

	t.Run("partially authenticated", func(t *testing.T) {
		_, err := f.h.CreateUser.Handle(f.as(admin, principal.PartiallyAuthenticated), command.CreateUser{Email: "y@example.com", FirstName: "A", LastName: "B"})
		requireCode(t, err, domain.CodeUserNotFound)
	})

	t.Run("granted through a role", func(t *testing.T) {
		writer := domain.NewRole("writers", []string{domain.ResourceUserWrite}, t0)
		require.NoError(t, f.store.Roles().CreateRole(context.Background(), writer))

		holder := f.seedUser("holder@example.com", "correct horse", false)
		holder.AssignRoles([]string{writer.ID})
		require.NoError(t, f.store.Users().SaveUser(context.Background(), holder))

		_, err := f.h.CreateUser.Handle(f.as(holder, principal.FullyAuthenticated), command.CreateUser{Email: "z@example.com", FirstName: "A", LastName: "B"})
		require.NoError(t, err)
	})
}

func TestUpdateUser(t *testing.T) {
	f := newFixture(t)
	admin := f.seedUser("admin@example.com", "correct horse", true)
	other := f.seedUser("other@example.com", "correct horse", false)
	target := f.seedUser("target@example.com", "correct horse", false)
	ctx := f.as(admin, principal.FullyAuthenticated)

	_, err := f.h.UpdateUser.Handle(ctx, command.UpdateUser{
		UserID:    target.ID,
		Email:     "renamed@example.com",
		FirstName: "Re",
		LastName:  "Named",
		IsAdmin:   true,
	})
	require.NoError(t, err)

	got := f.reload(target.ID)
	require.Equal(t, "renamed@example.com", got.Email)
	require.Equal(t, "Re", got.Profile.FirstName)
	require.True(t, got.IsAdmin)
	require.False(t, got.IsLockable)

	_, err = f.h.UpdateUser.Handle(ctx, command.UpdateUser{UserID: target.ID, Email: other.Email, FirstName: "A", LastName: "B"})
	requireCode(t, err, domain.CodeUserAlreadyExists)

	_, err = f.h.UpdateUser.Handle(ctx, command.UpdateUser{UserID: "missing", Email: "m@example.com", FirstName: "A", LastName: "B"})
	requireCode(t, err, domain.CodeUserNotFound)
}

func TestDisableAndEnableAccount(t *testing.T) {
	f := newFixture(t)
	admin := f.seedUser("admin@example.com", "correct horse", true)
	u := f.seedUser("ada@example.com", "correct horse", false)
	ctx := f.as(admin, principal.FullyAuthenticated)

	_, err := f.h.DisableAccount.Handle(ctx, command.DisableAccount{UserID: u.ID})
	require.NoError(t, err)
	disabled := last[domain.UserDisabledEvent](t, f.events)
	require.Equal(t, u.ID, disabled.UserID)
	require.Equal(t, t0, disabled.WhenDisabled)

	_, err = f.h.DisableAccount.Handle(ctx, command.DisableAccount{UserID: u.ID})
	requireCode(t, err, domain.CodeUserAlreadyDisabled)

	_, err = f.h.AuthenticateUser.Handle(context.Background(), command.AuthenticateUser{Email: u.Email, Password: "correct horse"})
	requireCode(t, err, domain.CodeUserIsDisabled)

	t.Run("disabled actor", func(t *testing.T) {
		_, err := f.h.DisableAccount.Handle(f.as(u, principal.FullyAuthenticated), command.DisableAccount{UserID: admin.ID})
		requireCode(t, err, domain.CodeUserIsDisabled)
	})

	_, err = f.h.EnableAccount.Handle(ctx, command.EnableAccount{UserID: u.ID})
	require.NoError(t, err)
	last[domain.UserEnabledEvent](t, f.events)
	reset := last[domain.PasswordResetTokenGeneratedEvent](t, f.events)
	require.Equal(t, u.ID, reset.UserID)

	_, err = f.h.EnableAccount.Handle(ctx, command.EnableAccount{UserID: u.ID})
	requireCode(t, err, domain.CodeUserNotDisabled)

	got := f.reload(u.ID)
	require.False(t, got.IsDisabled)
	require.Nil(t, got.WhenDisabled)
}

func TestLockAndUnlockAccount(t *testing.T) {
	f := newFixture(t)
	admin := f.seedUser("admin@example.com", "correct horse", true)
	u := f.seedUser("ada@example.com", "correct horse", false)
	ctx := f.as(admin, principal.FullyAuthenticated)

	_, err := f.h.LockAccount.Handle(ctx, command.LockAccount{UserID: u.ID})
	require.NoError(t, err)
	require.True(t, f.reload(u.ID).IsLocked())

	f.clock.Advance(time.Hour)
	_, err = f.h.LockAccount.Handle(ctx, command.LockAccount{UserID: u.ID})
	require.NoError(t, err)
	require.Equal(t, t0, *f.reload(u.ID).WhenLocked, "relocking keeps the original time")

	_, err = f.h.AuthenticateUser.Handle(context.Background(), command.AuthenticateUser{Email: u.Email, Password: "correct horse"})
	requireCode(t, err, domain.CodeUserIsLocked)

	_, err = f.h.UnlockAccount.Handle(ctx, command.UnlockAccount{UserID: u.ID})
	require.NoError(t, err)
	require.False(t, f.reload(u.ID).IsLocked())

	reset := last[domain.PasswordResetTokenGeneratedEvent](t, f.events)
	require.Equal(t, u.ID, reset.UserID)
	require.Equal(t, f.clock.Now().Add(f.settings.PasswordTokenLifetime), reset.WhenExpires)

	_, err = f.h.PasswordReset.Handle(context.Background(), command.PasswordReset{Token: reset.Token, NewPassword: "brand new secret"})
	require.NoError(t, err)

	t.Run("unlocking an unlocked user", func(t *testing.T) {
		published := f.events.count()
		_, err := f.h.UnlockAccount.Handle(ctx, command.UnlockAccount{UserID: u.ID})
		requireCode(t, err, domain.CodeUserNotLocked)
		require.Len(t, f.events.all(), published)
	})
}

func TestSessionsOfDisabledOrLockedUsersStopWorking(t *testing.T) {
	f := newFixture(t)
	admin := f.seedUser("admin@example.com", "correct horse", true)
	adminCtx := f.as(admin, principal.FullyAuthenticated)

	cases := []struct {
		name  string
		email string
		apply func(id string) error
		code  domain.ErrorCode
	}{
		{"disabled", "ada@example.com", func(id string) error {
			_, err := f.h.DisableAccount.Handle(adminCtx, command.DisableAccount{UserID: id})
			return err
		}, domain.CodeUserIsDisabled},
		{"locked", "grace@example.com", func(id string) error {
			_, err := f.h.LockAccount.Handle(adminCtx, command.LockAccount{UserID: id})
			return err
		}, domain.CodeUserIsLocked},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			u := f.seedUser(tc.email, "correct horse", false)
			full := f.as(u, principal.FullyAuthenticated)
			require.NoError(t, tc.apply(u.ID))

			_, err := f.h.ChangePassword.Handle(full, command.ChangePassword{CurrentPassword: "correct horse", NewPassword: "another secret"})
			requireCode(t, err, tc.code)

			_, err = f.h.GenerateAuthenticatorAppKey.Handle(full, command.GenerateAuthenticatorAppKey{})
			requireCode(t, err, tc.code)

			_, err = f.h.GetCurrentUserDetails.Handle(full, command.GetCurrentUserDetails{})
			requireCode(t, err, tc.code)

			require.Equal(t, u.PasswordHash, f.reload(u.ID).PasswordHash)
		})
	}
}
