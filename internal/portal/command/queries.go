package command

import "time"

type GetCurrentUserDetails struct{}

type GetUserByID struct {
	UserID string `json:"-" validate:"required"`
}

type ListUsers struct{}

type ListRoles struct{}

type GetAuthenticatorDevices struct{}

type UserDetails struct {
	ID                    string     `json:"id"`
	Email                 string     `json:"email"`
	FirstName             string     `json:"first_name"`
	LastName              string     `json:"last_name"`
	IsAdmin               bool       `json:"is_admin"`
	IsLockable            bool       `json:"is_lockable"`
	IsLocked              bool       `json:"is_locked"`
	IsDisabled            bool       `json:"is_disabled"`
	IsVerified            bool       `json:"is_verified"`
	WhenCreated           time.Time  `json:"when_created"`
	WhenLastAuthenticated *time.Time `json:"when_last_authenticated,omitempty"`
	RoleIDs               []string   `json:"role_ids,omitempty"`
	MfaProviders          []string   `json:"mfa_providers,omitempty"`
}

type RoleDetails struct {
	ID        string   `json:"id"`
	Name      string   `json:"name"`
	Resources []string `json:"resources"`
}

type DeviceDetails struct {
	ID           string     `json:"id"`
	Name         string     `json:"name"`
	WhenEnrolled time.Time  `json:"when_enrolled"`
	WhenLastUsed *time.Time `json:"when_last_used,omitempty"`
}
