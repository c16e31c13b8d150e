package http

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/initiumportal/stance/internal/portal/domain"
	"github.com/initiumportal/stance/pkg/httpx"
	"github.com/initiumportal/stance/pkg/slogx"
)

var statusByCode = map[domain.ErrorCode]int{
	domain.CodeValidationFailed:                 http.StatusBadRequest,
	domain.CodeFailedVerifyingAuthenticatorCode: http.StatusBadRequest,
	domain.CodeFidoVerificationFailed:           http.StatusBadRequest,

	domain.CodeAuthenticationFailed: http.StatusUnauthorized,
	domain.CodeMfaCodeNotValid:      http.StatusUnauthorized,

	domain.CodePasswordNotCorrect: http.StatusForbidden,
	domain.CodeUnauthorized:       http.StatusForbidden,
	domain.CodeUserIsLocked:       http.StatusForbidden,
	domain.CodeUserIsDisabled:     http.StatusForbidden,

	domain.CodeUserNotFound:   http.StatusNotFound,
	domain.CodeRoleNotFound:   http.StatusNotFound,
	domain.CodeDeviceNotFound: http.StatusNotFound,

	domain.CodeUserAlreadyExists:               http.StatusConflict,
	domain.CodeSystemIsAlreadySetup:            http.StatusConflict,
	domain.CodeUserAlreadyDisabled:             http.StatusConflict,
	domain.CodeUserNotDisabled:                 http.StatusConflict,
	domain.CodeUserNotLocked:                   http.StatusConflict,
	domain.CodeUserIsAlreadyVerified:           http.StatusConflict,
	domain.CodeAuthenticatorAppAlreadyEnrolled: http.StatusConflict,
	domain.CodeNoAuthenticatorAppEnrolled:      http.StatusConflict,
	domain.CodeRoleAlreadyExists:               http.StatusConflict,
	domain.CodeSavingChanges:                   http.StatusConflict,
}

// writeError renders a command failure. Error codes become their mapped
// status; anything else is an internal error.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	var ed *domain.ErrorData
	if errors.As(err, &ed) {
		status, ok := statusByCode[ed.Code]
		if !ok {
			status = http.StatusBadRequest
		}
		httpx.WriteError(w, status, string(ed.Code), ed.Message)
		return
	}

	slogx.FromContext(r.Context()).Error("request failed", slog.Any("error", err))
	httpx.WriteError(w, http.StatusInternalServerError, "internal_error", "Internal server error")
}
