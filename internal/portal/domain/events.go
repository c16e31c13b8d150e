package domain

import "time"

// Event is a fact recorded by the aggregate and published after commit.
type Event interface {
	EventName() string
}

// Recipient is the notification target carried by every user event.
type Recipient struct {
	UserID    string `json:"user_id"`
	Email     string `json:"email"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

type UserDisabledEvent struct {
	Recipient
	WhenDisabled time.Time `json:"when_disabled"`
}

type UserEnabledEvent struct {
	Recipient
}

type PasswordResetTokenGeneratedEvent struct {
	Recipient
	Token       string    `json:"token"`
	WhenExpires time.Time `json:"when_expires"`
}

type AccountConfirmationTokenGeneratedEvent struct {
	Recipient
	Token       string    `json:"token"`
	WhenExpires time.Time `json:"when_expires"`
}

type EmailMfaTokenGeneratedEvent struct {
	Recipient
	Token string `json:"token"`
}

func (UserDisabledEvent) EventName() string                      { return "user.disabled" }
func (UserEnabledEvent) EventName() string                       { return "user.enabled" }
func (PasswordResetTokenGeneratedEvent) EventName() string       { return "user.password_reset_token_generated" }
func (AccountConfirmationTokenGeneratedEvent) EventName() string { return "user.account_confirmation_token_generated" }
func (EmailMfaTokenGeneratedEvent) EventName() string            { return "user.email_mfa_token_generated" }
