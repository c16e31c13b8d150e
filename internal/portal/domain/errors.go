package domain

import "errors"

// ErrorCode is the closed set of business failure codes a command can return.
type ErrorCode string

const (
	CodeUserNotFound                     ErrorCode = "user_not_found"
	CodeAuthenticationFailed             ErrorCode = "authentication_failed"
	CodePasswordNotCorrect               ErrorCode = "password_not_correct"
	CodeUserAlreadyExists                ErrorCode = "user_already_exists"
	CodeSystemIsAlreadySetup             ErrorCode = "system_is_already_setup"
	CodeUserAlreadyDisabled              ErrorCode = "user_already_disabled"
	CodeUserNotDisabled                  ErrorCode = "user_not_disabled"
	CodeUserNotLocked                    ErrorCode = "user_not_locked"
	CodeUserIsAlreadyVerified            ErrorCode = "user_is_already_verified"
	CodeAuthenticatorAppAlreadyEnrolled  ErrorCode = "authenticator_app_already_enrolled"
	CodeNoAuthenticatorAppEnrolled       ErrorCode = "no_authenticator_app_enrolled"
	CodeFailedVerifyingAuthenticatorCode ErrorCode = "failed_verifying_authenticator_code"
	CodeMfaCodeNotValid                  ErrorCode = "mfa_code_not_valid"
	CodeFidoVerificationFailed           ErrorCode = "fido_verification_failed"
	CodeDeviceNotFound                   ErrorCode = "device_not_found"
	CodeSavingChanges                    ErrorCode = "saving_changes"

	CodeValidationFailed  ErrorCode = "validation_failed"
	CodeUserIsLocked      ErrorCode = "user_is_locked"
	CodeUserIsDisabled    ErrorCode = "user_is_disabled"
	CodeRoleNotFound      ErrorCode = "role_not_found"
	CodeRoleAlreadyExists ErrorCode = "role_already_exists"
	CodeUnauthorized      ErrorCode = "unauthorized"
)

// ErrorData is the single failure a command handler returns for an expected
// business outcome. Two ErrorData values match under errors.Is when their
// codes are equal, so callers compare against the Err* values below.
type ErrorData struct {
	Code    ErrorCode
	Message string
}

func (e *ErrorData) Error() string {
	if e.Message == "" {
		return string(e.Code)
	}
	return string(e.Code) + ": " + e.Message
}

func (e *ErrorData) Is(target error) bool {
	t, ok := target.(*ErrorData)
	return ok && t.Code == e.Code
}

// WithMessage returns a copy of e carrying msg.
func (e *ErrorData) WithMessage(msg string) *ErrorData {
	return &ErrorData{Code: e.Code, Message: msg}
}

var (
	ErrUserNotFound                     = &ErrorData{Code: CodeUserNotFound}
	ErrAuthenticationFailed             = &ErrorData{Code: CodeAuthenticationFailed}
	ErrPasswordNotCorrect               = &ErrorData{Code: CodePasswordNotCorrect}
	ErrUserAlreadyExists                = &ErrorData{Code: CodeUserAlreadyExists}
	ErrSystemIsAlreadySetup             = &ErrorData{Code: CodeSystemIsAlreadySetup}
	ErrUserAlreadyDisabled              = &ErrorData{Code: CodeUserAlreadyDisabled}
	ErrUserNotDisabled                  = &ErrorData{Code: CodeUserNotDisabled}
	ErrUserNotLocked                    = &ErrorData{Code: CodeUserNotLocked}
	ErrUserIsAlreadyVerified            = &ErrorData{Code: CodeUserIsAlreadyVerified}
	ErrAuthenticatorAppAlreadyEnrolled  = &ErrorData{Code: CodeAuthenticatorAppAlreadyEnrolled}
	ErrNoAuthenticatorAppEnrolled       = &ErrorData{Code: CodeNoAuthenticatorAppEnrolled}
	ErrFailedVerifyingAuthenticatorCode = &ErrorData{Code: CodeFailedVerifyingAuthenticatorCode}
	ErrMfaCodeNotValid                  = &ErrorData{Code: CodeMfaCodeNotValid}
	ErrFidoVerificationFailed           = &ErrorData{Code: CodeFidoVerificationFailed}
	ErrDeviceNotFound                   = &ErrorData{Code: CodeDeviceNotFound}
	ErrSavingChanges                    = &ErrorData{Code: CodeSavingChanges}

	ErrValidationFailed  = &ErrorData{Code: CodeValidationFailed}
	ErrUserIsLocked      = &ErrorData{Code: CodeUserIsLocked}
	ErrUserIsDisabled    = &ErrorData{Code: CodeUserIsDisabled}
	ErrRoleNotFound      = &ErrorData{Code: CodeRoleNotFound}
	ErrRoleAlreadyExists = &ErrorData{Code: CodeRoleAlreadyExists}
	ErrUnauthorized      = &ErrorData{Code: CodeUnauthorized}
)

// CodeOf extracts the ErrorCode from err, if it wraps an *ErrorData.
func CodeOf(err error) (ErrorCode, bool) {
	var ed *ErrorData
	if errors.As(err, &ed) {
		return ed.Code, true
	}
	return "", false
}
