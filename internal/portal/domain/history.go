package domain

import "time"

// AuthenticationHistoryType tags one step of a sign-in, or an administrative
// unlock that restarts lockout counting.
type AuthenticationHistoryType string

const (
	HistoryPasswordAccepted   AuthenticationHistoryType = "PasswordAccepted"
	HistoryEmailMfaRequested  AuthenticationHistoryType = "EmailMfaRequested"
	HistoryEmailMfaFailed     AuthenticationHistoryType = "EmailMfaFailed"
	HistoryAppMfaRequested    AuthenticationHistoryType = "AppMfaRequested"
	HistoryAppMfaFailed       AuthenticationHistoryType = "AppMfaFailed"
	HistoryDeviceMfaRequested AuthenticationHistoryType = "DeviceMfaRequested"
	HistoryDeviceMfaFailed    AuthenticationHistoryType = "DeviceMfaFailed"
	HistorySuccess            AuthenticationHistoryType = "Success"
	HistoryUnlocked           AuthenticationHistoryType = "Unlocked"
)

// IsFailure reports whether t counts towards the lockout threshold.
func (t AuthenticationHistoryType) IsFailure() bool {
	switch t {
	case HistoryEmailMfaFailed, HistoryAppMfaFailed, HistoryDeviceMfaFailed:
		return true
	default:
		return false
	}
}

// AuthenticationHistory is an append-only record of an authentication step.
type AuthenticationHistory struct {
	ID   string
	Type AuthenticationHistoryType
	When time.Time
}

// LockoutPolicy locks a lockable user after MaxAttempts failed second-factor
// attempts within Window since the last successful sign-in or unlock. A zero value
// disables lockout.
type LockoutPolicy struct {
	MaxAttempts int
	Window      time.Duration
}

func (p LockoutPolicy) enabled() bool {
	return p.MaxAttempts > 0 && p.Window > 0
}
