package domain

import (
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/initiumportal/stance/pkg/idx"
)

type Profile struct {
	FirstName string
	LastName  string
}

// User is the aggregate root of an account. Handlers read its fields but
// change it only through its methods; the repository persists it whole.
type User struct {
	ID           string
	Email        string // lower-cased
	PasswordHash string
	Profile      Profile

	IsLockable bool
	IsAdmin    bool
	IsDisabled bool
	IsVerified bool

	WhenCreated           time.Time
	WhenLastAuthenticated *time.Time
	WhenLocked            *time.Time
	WhenDisabled          *time.Time
	WhenVerified          *time.Time

	// SecurityStamp seeds the email MFA secret. It rotates with the password.
	SecurityStamp string
	Version       int64

	RoleIDs                 []string
	AuthenticatorApps       []AuthenticatorApp
	AuthenticatorDevices    []AuthenticatorDevice
	SecurityTokenMappings   []SecurityTokenMapping
	AuthenticationHistories []AuthenticationHistory

	events []Event
}

// NormalizeEmail lower-cases and trims an address for storage and lookup.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// NewUser creates an unverified account.
func NewUser(email, passwordHash string, profile Profile, isAdmin, isLockable bool, now time.Time) *User {
	return &User{
		ID:            idx.New().String(),
		Email:         NormalizeEmail(email),
		PasswordHash:  passwordHash,
		Profile:       profile,
		IsAdmin:       isAdmin,
		IsLockable:    isLockable,
		WhenCreated:   now.UTC(),
		SecurityStamp: uuid.NewString(),
	}
}

// NewInitialUser creates the verified administrator of a fresh system.
func NewInitialUser(email, passwordHash string, profile Profile, now time.Time) *User {
	u := NewUser(email, passwordHash, profile, true, false, now)
	u.IsVerified = true
	u.WhenVerified = timePtr(now)
	return u
}

func (u *User) IsLocked() bool { return u.WhenLocked != nil }

func (u *User) recipient() Recipient {
	return Recipient{
		UserID:    u.ID,
		Email:     u.Email,
		FirstName: u.Profile.FirstName,
		LastName:  u.Profile.LastName,
	}
}

func (u *User) record(e Event) { u.events = append(u.events, e) }

// PullEvents returns the recorded events and clears them.
func (u *User) PullEvents() []Event {
	events := u.events
	u.events = nil
	return events
}

// canAuthenticate reports why the user may not sign in, if anything.
func (u *User) canAuthenticate() error {
	switch {
	case u.IsDisabled:
		return ErrUserIsDisabled
	case u.IsLocked():
		return ErrUserIsLocked
	default:
		return nil
	}
}

// ActiveAuthenticatorApp returns the non-revoked app, if any.
func (u *User) ActiveAuthenticatorApp() (AuthenticatorApp, bool) {
	for _, a := range u.AuthenticatorApps {
		if a.IsActive() {
			return a, true
		}
	}
	return AuthenticatorApp{}, false
}

// ActiveAuthenticatorDevices returns the non-revoked devices.
func (u *User) ActiveAuthenticatorDevices() []AuthenticatorDevice {
	var out []AuthenticatorDevice
	for _, d := range u.AuthenticatorDevices {
		if !d.IsRevoked {
			out = append(out, d)
		}
	}
	return out
}

// MfaProviders lists the second factors the user can complete sign-in with.
// Email is offered whenever any factor is required; with emailEnforced it is
// required even for users without an app or device.
func (u *User) MfaProviders(emailEnforced bool) MfaProvider {
	p := MfaProviderNone
	if _, ok := u.ActiveAuthenticatorApp(); ok {
		p |= MfaProviderApp
	}
	if len(u.ActiveAuthenticatorDevices()) > 0 {
		p |= MfaProviderDevice
	}
	if p != MfaProviderNone || emailEnforced {
		p |= MfaProviderEmail
	}
	return p
}

// HasResource reports whether the user's roles grant resource. Admins hold
// every resource.
func (u *User) HasResource(resource string, roles map[string]Role) bool {
	if u.IsAdmin {
		return true
	}
	for _, id := range u.RoleIDs {
		if r, ok := roles[id]; ok && r.Grants(resource) {
			return true
		}
	}
	return false
}

func (u *User) addHistory(t AuthenticationHistoryType, now time.Time) {
	u.AuthenticationHistories = append(u.AuthenticationHistories, AuthenticationHistory{
		ID:   idx.New().String(),
		Type: t,
		When: now.UTC(),
	})
}

// AcceptPassword records a verified password. When no second factor is needed
// the sign-in completes immediately. It returns the factors still required.
func (u *User) AcceptPassword(emailEnforced bool, now time.Time) (MfaProvider, error) {
	if err := u.canAuthenticate(); err != nil {
		return MfaProviderNone, err
	}

	u.addHistory(HistoryPasswordAccepted, now)
	providers := u.MfaProviders(emailEnforced)
	if providers == MfaProviderNone {
		u.completeAuthentication(now)
	}
	return providers, nil
}

func (u *User) completeAuthentication(now time.Time) {
	u.WhenLastAuthenticated = timePtr(now)
	u.addHistory(HistorySuccess, now)
}

// RequestEmailMfa records an email code request and emits the code for delivery.
func (u *User) RequestEmailMfa(code string, now time.Time) error {
	if err := u.canAuthenticate(); err != nil {
		return err
	}

	u.addHistory(HistoryEmailMfaRequested, now)
	u.record(EmailMfaTokenGeneratedEvent{Recipient: u.recipient(), Token: code})
	return nil
}

// RequestAppMfa records that the user chose the authenticator app.
func (u *User) RequestAppMfa(now time.Time) error {
	if err := u.canAuthenticate(); err != nil {
		return err
	}
	if _, ok := u.ActiveAuthenticatorApp(); !ok {
		return ErrNoAuthenticatorAppEnrolled
	}

	u.addHistory(HistoryAppMfaRequested, now)
	return nil
}

// RequestDeviceMfa records that the user chose a security key.
func (u *User) RequestDeviceMfa(now time.Time) error {
	if err := u.canAuthenticate(); err != nil {
		return err
	}
	if len(u.ActiveAuthenticatorDevices()) == 0 {
		return ErrDeviceNotFound
	}

	u.addHistory(HistoryDeviceMfaRequested, now)
	return nil
}

// CompleteMfaAuthentication finishes a sign-in after a verified second factor.
func (u *User) CompleteMfaAuthentication(now time.Time) error {
	if err := u.canAuthenticate(); err != nil {
		return err
	}
	u.completeAuthentication(now)
	return nil
}

// RecordFailedMfaAttempt appends a failure and locks a lockable user once
// the policy threshold is reached. It reports whether the user is now locked.
func (u *User) RecordFailedMfaAttempt(t AuthenticationHistoryType, policy LockoutPolicy, now time.Time) bool {
	u.addHistory(t, now)

	if !u.IsLockable || u.IsLocked() || !policy.enabled() {
		return u.IsLocked()
	}
	if u.recentFailures(policy.Window, now) >= policy.MaxAttempts {
		u.WhenLocked = timePtr(now)
	}
	return u.IsLocked()
}

func (u *User) recentFailures(window time.Duration, now time.Time) int {
	since := now.Add(-window)
	for _, h := range u.AuthenticationHistories {
		if (h.Type == HistorySuccess || h.Type == HistoryUnlocked) && h.When.After(since) {
			since = h.When
		}
	}

	n := 0
	for _, h := range u.AuthenticationHistories {
		if h.Type.IsFailure() && h.When.After(since) {
			n++
		}
	}
	return n
}

// CompleteDeviceAuthentication finishes a sign-in with a verified WebAuthn
// assertion. A signature counter that does not advance is treated as a cloned
// authenticator: the attempt is recorded as failed and the stored counter kept.
func (u *User) CompleteDeviceAuthentication(credentialID []byte, counter uint32, policy LockoutPolicy, now time.Time) error {
	if err := u.canAuthenticate(); err != nil {
		return err
	}

	i := slices.IndexFunc(u.AuthenticatorDevices, func(d AuthenticatorDevice) bool {
		return d.matches(credentialID)
	})
	if i < 0 {
		return ErrDeviceNotFound
	}

	d := &u.AuthenticatorDevices[i]
	if !d.counterAccepts(counter) {
		u.RecordFailedMfaAttempt(HistoryDeviceMfaFailed, policy, now)
		return ErrFidoVerificationFailed.WithMessage("signature counter did not increase")
	}

	d.Counter = counter
	d.WhenLastUsed = timePtr(now)
	u.completeAuthentication(now)
	return nil
}

// GenerateNewPasswordResetToken stores token, invalidates any outstanding
// reset token and emits link for delivery.
func (u *User) GenerateNewPasswordResetToken(token SecurityToken, link string, now time.Time) {
	u.issueToken(token, TokenPurposePasswordReset, now)
	u.record(PasswordResetTokenGeneratedEvent{
		Recipient:   u.recipient(),
		Token:       link,
		WhenExpires: token.WhenExpires,
	})
}

// GenerateNewAccountConfirmationToken is the confirmation counterpart of
// GenerateNewPasswordResetToken.
func (u *User) GenerateNewAccountConfirmationToken(token SecurityToken, link string, now time.Time) error {
	if u.IsVerified {
		return ErrUserIsAlreadyVerified
	}

	u.issueToken(token, TokenPurposeAccountConfirmation, now)
	u.record(AccountConfirmationTokenGeneratedEvent{
		Recipient:   u.recipient(),
		Token:       link,
		WhenExpires: token.WhenExpires,
	})
	return nil
}

func (u *User) issueToken(token SecurityToken, purpose TokenPurpose, now time.Time) {
	for i := range u.SecurityTokenMappings {
		m := &u.SecurityTokenMappings[i]
		if m.Purpose == purpose && m.WhenUsed == nil {
			m.WhenUsed = timePtr(now)
		}
	}

	u.SecurityTokenMappings = append(u.SecurityTokenMappings, SecurityTokenMapping{
		ID:          token.ID,
		Purpose:     purpose,
		WhenCreated: now.UTC(),
		WhenExpires: token.WhenExpires,
	})
}

// completeTokenLifecycle marks a valid token of purpose as used.
func (u *User) completeTokenLifecycle(tokenID string, purpose TokenPurpose, now time.Time) error {
	for i := range u.SecurityTokenMappings {
		m := &u.SecurityTokenMappings[i]
		if m.ID == tokenID && m.Purpose == purpose {
			if !m.IsValid(now) {
				return ErrUserNotFound
			}
			m.WhenUsed = timePtr(now)
			return nil
		}
	}
	return ErrUserNotFound
}

// ResetPassword consumes a reset token and sets a new password hash.
func (u *User) ResetPassword(tokenID, passwordHash string, now time.Time) error {
	if err := u.completeTokenLifecycle(tokenID, TokenPurposePasswordReset, now); err != nil {
		return err
	}
	u.setPassword(passwordHash)
	return nil
}

// VerifyAccountAndSetPassword consumes a confirmation token, marks the
// account verified and sets its first password.
func (u *User) VerifyAccountAndSetPassword(tokenID, passwordHash string, now time.Time) error {
	if u.IsVerified {
		return ErrUserIsAlreadyVerified
	}
	if err := u.completeTokenLifecycle(tokenID, TokenPurposeAccountConfirmation, now); err != nil {
		return err
	}
	u.IsVerified = true
	u.WhenVerified = timePtr(now)
	u.setPassword(passwordHash)
	return nil
}

// ChangePassword replaces the password hash of a signed-in user.
func (u *User) ChangePassword(passwordHash string) {
	u.setPassword(passwordHash)
}

func (u *User) setPassword(passwordHash string) {
	u.PasswordHash = passwordHash
	u.SecurityStamp = uuid.NewString()
}

// UpdateProfile changes the user's own display details.
func (u *User) UpdateProfile(profile Profile) {
	u.Profile = profile
}

// UpdateSystemAccessDetails applies an administrator's edit of the account.
func (u *User) UpdateSystemAccessDetails(email string, profile Profile, isAdmin, isLockable bool, roleIDs []string) {
	u.Email = NormalizeEmail(email)
	u.Profile = profile
	u.IsAdmin = isAdmin
	u.IsLockable = isLockable
	u.AssignRoles(roleIDs)
}

// AssignRoles replaces the user's role ids.
func (u *User) AssignRoles(roleIDs []string) {
	u.RoleIDs = slices.Compact(slices.Sorted(slices.Values(roleIDs)))
}

// EnrollAuthenticatorApp adds an app with an already verified key.
func (u *User) EnrollAuthenticatorApp(key string, now time.Time) (AuthenticatorApp, error) {
	if _, ok := u.ActiveAuthenticatorApp(); ok {
		return AuthenticatorApp{}, ErrAuthenticatorAppAlreadyEnrolled
	}

	app := AuthenticatorApp{
		ID:           idx.New().String(),
		Key:          key,
		WhenEnrolled: now.UTC(),
	}
	u.AuthenticatorApps = append(u.AuthenticatorApps, app)
	return app, nil
}

// RevokeAuthenticatorApp revokes the active app, keeping it for audit.
func (u *User) RevokeAuthenticatorApp(now time.Time) error {
	for i := range u.AuthenticatorApps {
		if u.AuthenticatorApps[i].IsActive() {
			u.AuthenticatorApps[i].WhenRevoked = timePtr(now)
			return nil
		}
	}
	return ErrNoAuthenticatorAppEnrolled
}

// EnrollAuthenticatorDevice adds a verified WebAuthn credential. The
// credential id must not belong to another active device of this user.
func (u *User) EnrollAuthenticatorDevice(d AuthenticatorDevice, now time.Time) (AuthenticatorDevice, error) {
	for _, existing := range u.AuthenticatorDevices {
		if existing.matches(d.CredentialID) {
			return AuthenticatorDevice{}, ErrFidoVerificationFailed.WithMessage("credential already enrolled")
		}
	}

	d.ID = idx.New().String()
	d.WhenEnrolled = now.UTC()
	d.WhenLastUsed = nil
	d.IsRevoked = false
	u.AuthenticatorDevices = append(u.AuthenticatorDevices, d)
	return d, nil
}

// RevokeAuthenticatorDevice revokes an active device by id.
func (u *User) RevokeAuthenticatorDevice(deviceID string) error {
	for i := range u.AuthenticatorDevices {
		d := &u.AuthenticatorDevices[i]
		if d.ID == deviceID && !d.IsRevoked {
			d.IsRevoked = true
			return nil
		}
	}
	return ErrDeviceNotFound
}

// Disable soft-deletes the account.
func (u *User) Disable(now time.Time) error {
	if u.IsDisabled {
		return ErrUserAlreadyDisabled
	}

	u.IsDisabled = true
	u.WhenDisabled = timePtr(now)
	u.record(UserDisabledEvent{Recipient: u.recipient(), WhenDisabled: now.UTC()})
	return nil
}

// Enable re-activates a disabled account and forces a password reset through
// token.
func (u *User) Enable(token SecurityToken, link string, now time.Time) error {
	if !u.IsDisabled {
		return ErrUserNotDisabled
	}

	u.IsDisabled = false
	u.WhenDisabled = nil
	u.record(UserEnabledEvent{Recipient: u.recipient()})
	u.GenerateNewPasswordResetToken(token, link, now)
	return nil
}

// Lock prevents sign-in until Unlock. Locking a locked user keeps the
// original lock time.
func (u *User) Lock(now time.Time) {
	if u.WhenLocked == nil {
		u.WhenLocked = timePtr(now)
	}
}

// Unlock clears the lock and issues a password reset through token. Failures
// recorded before the unlock no longer count towards the next lockout.
func (u *User) Unlock(token SecurityToken, link string, now time.Time) error {
	if !u.IsLocked() {
		return ErrUserNotLocked
	}

	u.WhenLocked = nil
	u.addHistory(HistoryUnlocked, now)
	u.GenerateNewPasswordResetToken(token, link, now)
	return nil
}

func timePtr(t time.Time) *time.Time {
	t = t.UTC()
	return &t
}
