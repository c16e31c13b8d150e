package service

import (
	"github.com/initiumportal/stance/internal/portal/command"
	"github.com/initiumportal/stance/internal/portal/mediator"
)

// Handlers exposes every use case wrapped in the mediator pipeline.
type Handlers struct {
	AuthenticateUser     mediator.Handler[command.AuthenticateUser, command.AuthenticationResult]
	EmailMfaRequested    mediator.Handler[command.EmailMfaRequested, mediator.Empty]
	ValidateEmailMfaCode mediator.Handler[command.ValidateEmailMfaCode, command.AuthenticationResult]
	AppMfaRequested      mediator.Handler[command.AppMfaRequested, mediator.Empty]
	ValidateAppMfaCode   mediator.Handler[command.ValidateAppMfaCode, command.AuthenticationResult]
	DeviceMfaRequest     mediator.Handler[command.DeviceMfaRequest, command.DeviceChallenge]
	ValidateDeviceMfa    mediator.Handler[command.ValidateDeviceMfa, command.AuthenticationResult]

	RequestPasswordReset        mediator.Handler[command.RequestPasswordReset, mediator.Empty]
	PasswordReset               mediator.Handler[command.PasswordReset, mediator.Empty]
	RequestAccountVerification  mediator.Handler[command.RequestAccountVerification, mediator.Empty]
	VerifyAccountAndSetPassword mediator.Handler[command.VerifyAccountAndSetPassword, mediator.Empty]
	ChangePassword              mediator.Handler[command.ChangePassword, mediator.Empty]
	UpdateProfile               mediator.Handler[command.UpdateProfile, mediator.Empty]

	GenerateAuthenticatorAppKey           mediator.Handler[command.GenerateAuthenticatorAppKey, command.AuthenticatorAppKey]
	EnrollAuthenticatorApp                mediator.Handler[command.EnrollAuthenticatorApp, mediator.Empty]
	RevokeAuthenticatorApp                mediator.Handler[command.RevokeAuthenticatorApp, mediator.Empty]
	InitiateAuthenticatorDeviceEnrollment mediator.Handler[command.InitiateAuthenticatorDeviceEnrollment, command.DeviceChallenge]
	EnrollAuthenticatorDevice             mediator.Handler[command.EnrollAuthenticatorDevice, command.DeviceEnrolled]
	RevokeAuthenticatorDevice             mediator.Handler[command.RevokeAuthenticatorDevice, mediator.Empty]

	CreateInitialUser mediator.Handler[command.CreateInitialUser, command.UserCreated]
	CreateUser        mediator.Handler[command.CreateUser, command.UserCreated]
	UpdateUser        mediator.Handler[command.UpdateUser, mediator.Empty]
	DisableAccount    mediator.Handler[command.DisableAccount, mediator.Empty]
	EnableAccount     mediator.Handler[command.EnableAccount, mediator.Empty]
	LockAccount       mediator.Handler[command.LockAccount, mediator.Empty]
	UnlockAccount     mediator.Handler[command.UnlockAccount, mediator.Empty]

	CreateRole mediator.Handler[command.CreateRole, command.RoleCreated]
	UpdateRole mediator.Handler[command.UpdateRole, mediator.Empty]
	DeleteRole mediator.Handler[command.DeleteRole, mediator.Empty]

	GetCurrentUserDetails   mediator.Handler[command.GetCurrentUserDetails, command.UserDetails]
	GetUserByID             mediator.Handler[command.GetUserByID, command.UserDetails]
	ListUsers               mediator.Handler[command.ListUsers, []command.UserDetails]
	ListRoles               mediator.Handler[command.ListRoles, []command.RoleDetails]
	GetAuthenticatorDevices mediator.Handler[command.GetAuthenticatorDevices, []command.DeviceDetails]
}

// NewHandlers builds every handler over deps. It panics when a collaborator
// is missing.
func NewHandlers(deps Deps, p *mediator.Pipeline) *Handlers {
	b := newBase(deps)

	return &Handlers{
		AuthenticateUser:     mediator.WrapFunc(p, "AuthenticateUser", (&AuthenticateUserHandler{b}).Handle),
		EmailMfaRequested:    mediator.WrapFunc(p, "EmailMfaRequested", (&EmailMfaRequestedHandler{b}).Handle),
		ValidateEmailMfaCode: mediator.WrapFunc(p, "ValidateEmailMfaCode", (&ValidateEmailMfaCodeHandler{b}).Handle),
		AppMfaRequested:      mediator.WrapFunc(p, "AppMfaRequested", (&AppMfaRequestedHandler{b}).Handle),
		ValidateAppMfaCode:   mediator.WrapFunc(p, "ValidateAppMfaCode", (&ValidateAppMfaCodeHandler{b}).Handle),
		DeviceMfaRequest:     mediator.WrapFunc(p, "DeviceMfaRequest", (&DeviceMfaRequestHandler{b}).Handle),
		ValidateDeviceMfa:    mediator.WrapFunc(p, "ValidateDeviceMfa", (&ValidateDeviceMfaHandler{b}).Handle),

		RequestPasswordReset:        mediator.WrapFunc(p, "RequestPasswordReset", (&RequestPasswordResetHandler{b}).Handle),
		PasswordReset:               mediator.WrapFunc(p, "PasswordReset", (&PasswordResetHandler{b}).Handle),
		RequestAccountVerification:  mediator.WrapFunc(p, "RequestAccountVerification", (&RequestAccountVerificationHandler{b}).Handle),
		VerifyAccountAndSetPassword: mediator.WrapFunc(p, "VerifyAccountAndSetPassword", (&VerifyAccountAndSetPasswordHandler{b}).Handle),
		ChangePassword:              mediator.WrapFunc(p, "ChangePassword", (&ChangePasswordHandler{b}).Handle),
		UpdateProfile:               mediator.WrapFunc(p, "UpdateProfile", (&UpdateProfileHandler{b}).Handle),

		GenerateAuthenticatorAppKey:           mediator.WrapFunc(p, "GenerateAuthenticatorAppKey", (&GenerateAuthenticatorAppKeyHandler{b}).Handle),
		EnrollAuthenticatorApp:                mediator.WrapFunc(p, "EnrollAuthenticatorApp", (&EnrollAuthenticatorAppHandler{b}).Handle),
		RevokeAuthenticatorApp:                mediator.WrapFunc(p, "RevokeAuthenticatorApp", (&RevokeAuthenticatorAppHandler{b}).Handle),
		InitiateAuthenticatorDeviceEnrollment: mediator.WrapFunc(p, "InitiateAuthenticatorDeviceEnrollment", (&InitiateAuthenticatorDeviceEnrollmentHandler{b}).Handle),
		EnrollAuthenticatorDevice:             mediator.WrapFunc(p, "EnrollAuthenticatorDevice", (&EnrollAuthenticatorDeviceHandler{b}).Handle),
		RevokeAuthenticatorDevice:             mediator.WrapFunc(p, "RevokeAuthenticatorDevice", (&RevokeAuthenticatorDeviceHandler{b}).Handle),

		CreateInitialUser: mediator.WrapFunc(p, "CreateInitialUser", (&CreateInitialUserHandler{b}).Handle),
		CreateUser:        mediator.WrapFunc(p, "CreateUser", (&CreateUserHandler{b}).Handle),
		UpdateUser:        mediator.WrapFunc(p, "UpdateUser", (&UpdateUserHandler{b}).Handle),
		DisableAccount:    mediator.WrapFunc(p, "DisableAccount", (&DisableAccountHandler{b}).Handle),
		EnableAccount:     mediator.WrapFunc(p, "EnableAccount", (&EnableAccountHandler{b}).Handle),
		LockAccount:       mediator.WrapFunc(p, "LockAccount", (&LockAccountHandler{b}).Handle),
		UnlockAccount:     mediator.WrapFunc(p, "UnlockAccount", (&UnlockAccountHandler{b}).Handle),

		CreateRole: mediator.WrapFunc(p, "CreateRole", (&CreateRoleHandler{b}).Handle),
		UpdateRole: mediator.WrapFunc(p, "UpdateRole", (&UpdateRoleHandler{b}).Handle),
		DeleteRole: mediator.WrapFunc(p, "DeleteRole", (&DeleteRoleHandler{b}).Handle),

		GetCurrentUserDetails:   mediator.WrapFunc(p, "GetCurrentUserDetails", (&GetCurrentUserDetailsHandler{b}).Handle),
		GetUserByID:             mediator.WrapFunc(p, "GetUserByID", (&GetUserByIDHandler{b}).Handle),
		ListUsers:               mediator.WrapFunc(p, "ListUsers", (&ListUsersHandler{b}).Handle),
		ListRoles:               mediator.WrapFunc(p, "ListRoles", (&ListRolesHandler{b}).Handle),
		GetAuthenticatorDevices: mediator.WrapFunc(p, "GetAuthenticatorDevices", (&GetAuthenticatorDevicesHandler{b}).Handle),
	}
}
