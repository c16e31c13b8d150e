package service

import (
	"context"
	"fmt"

	"github.com/initiumportal/stance/internal/portal/command"
	"github.com/initiumportal/stance/internal/portal/domain"
	"github.com/initiumportal/stance/internal/portal/principal"
)

type GetCurrentUserDetailsHandler struct{ *base }

func (h *GetCurrentUserDetailsHandler) Handle(ctx context.Context, _ command.GetCurrentUserDetails) (command.UserDetails, error) {
	u, err := h.currentUser(ctx, principal.FullyAuthenticated)
	if err != nil {
		return command.UserDetails{}, err
	}
	return h.details(u), nil
}

type GetUserByIDHandler struct{ *base }

func (h *GetUserByIDHandler) Handle(ctx context.Context, q command.GetUserByID) (command.UserDetails, error) {
	if _, err := h.authorize(ctx, domain.ResourceUserRead); err != nil {
		return command.UserDetails{}, err
	}

	u, err := h.loadUser(ctx, q.UserID)
	if err != nil {
		return command.UserDetails{}, err
	}
	return h.details(u), nil
}

type ListUsersHandler struct{ *base }

// Handle lists users without their MFA enrollments.
func (h *ListUsersHandler) Handle(ctx context.Context, _ command.ListUsers) ([]command.UserDetails, error) {
	if _, err := h.authorize(ctx, domain.ResourceUserRead); err != nil {
		return nil, err
	}

	users, err := h.Store.Users().ListUsers(ctx)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}

	out := make([]command.UserDetails, 0, len(users))
	for i := range users {
		d := h.details(&users[i])
		d.MfaProviders = nil
		out = append(out, d)
	}
	return out, nil
}

type ListRolesHandler struct{ *base }

func (h *ListRolesHandler) Handle(ctx context.Context, _ command.ListRoles) ([]command.RoleDetails, error) {
	if _, err := h.authorize(ctx, domain.ResourceRoleRead); err != nil {
		return nil, err
	}

	roles, err := h.Store.Roles().ListRoles(ctx)
	if err != nil {
		return nil, fmt.Errorf("list roles: %w", err)
	}

	out := make([]command.RoleDetails, 0, len(roles))
	for _, r := range roles {
		out = append(out, command.RoleDetails{ID: r.ID, Name: r.Name, Resources: r.Resources})
	}
	return out, nil
}

type GetAuthenticatorDevicesHandler struct{ *base }

func (h *GetAuthenticatorDevicesHandler) Handle(ctx context.Context, _ command.GetAuthenticatorDevices) ([]command.DeviceDetails, error) {
	u, err := h.currentUser(ctx, principal.FullyAuthenticated)
	if err != nil {
		return nil, err
	}

	devices := u.ActiveAuthenticatorDevices()
	out := make([]command.DeviceDetails, 0, len(devices))
	for _, d := range devices {
		out = append(out, command.DeviceDetails{
			ID:           d.ID,
			Name:         d.Name,
			WhenEnrolled: d.WhenEnrolled,
			WhenLastUsed: d.WhenLastUsed,
		})
	}
	return out, nil
}

func (b *base) details(u *domain.User) command.UserDetails {
	return command.UserDetails{
		ID:                    u.ID,
		Email:                 u.Email,
		FirstName:             u.Profile.FirstName,
		LastName:              u.Profile.LastName,
		IsAdmin:               u.IsAdmin,
		IsLockable:            u.IsLockable,
		IsLocked:              u.IsLocked(),
		IsDisabled:            u.IsDisabled,
		IsVerified:            u.IsVerified,
		WhenCreated:           u.WhenCreated,
		WhenLastAuthenticated: u.WhenLastAuthenticated,
		RoleIDs:               u.RoleIDs,
		MfaProviders:          u.MfaProviders(b.Settings.EmailMfaEnforced).Names(),
	}
}
