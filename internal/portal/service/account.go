package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/initiumportal/stance/internal/portal/command"
	"github.com/initiumportal/stance/internal/portal/domain"
	"github.com/initiumportal/stance/internal/portal/mediator"
	"github.com/initiumportal/stance/internal/portal/principal"
	"github.com/initiumportal/stance/pkg/cryptox"
)

// RequestPasswordResetHandler issues a reset link. UserNotFound is returned
// as is; the HTTP layer hides it from the caller.
type RequestPasswordResetHandler struct{ *base }

func (h *RequestPasswordResetHandler) Handle(ctx context.Context, cmd command.RequestPasswordReset) (mediator.Empty, error) {
	u, err := h.loadUserByEmail(ctx, cmd.Email)
	if err != nil {
		return mediator.Empty{}, err
	}

	token, link, err := h.issueToken(domain.TokenPurposePasswordReset, h.Settings.PasswordTokenLifetime)
	if err != nil {
		return mediator.Empty{}, err
	}
	u.GenerateNewPasswordResetToken(token, link, h.now())
	return mediator.Empty{}, h.commit(ctx, u)
}

// PasswordResetHandler sets a new password through a reset link and consumes
// its token. A used or expired link resolves to UserNotFound.
type PasswordResetHandler struct{ *base }

func (h *PasswordResetHandler) Handle(ctx context.Context, cmd command.PasswordReset) (mediator.Empty, error) {
	// Resolves through the stored mapping, so a spent token finds no user.
	u, token, err := h.userByLink(ctx, cmd.Token, domain.TokenPurposePasswordReset)
	if err != nil {
		return mediator.Empty{}, err
	}

	hash, err := cryptox.HashPassword(cmd.NewPassword)
	if err != nil {
		return mediator.Empty{}, fmt.Errorf("hash password: %w", err)
	}
	if err := u.ResetPassword(token.ID, hash, h.now()); err != nil {
		return mediator.Empty{}, err
	}
	return mediator.Empty{}, h.commit(ctx, u)
}

// RequestAccountVerificationHandler re-sends an account confirmation link to
// an unverified user.
type RequestAccountVerificationHandler struct{ *base }

func (h *RequestAccountVerificationHandler) Handle(ctx context.Context, cmd command.RequestAccountVerification) (mediator.Empty, error) {
	u, err := h.loadUserByEmail(ctx, cmd.Email)
	if err != nil {
		return mediator.Empty{}, err
	}

	token, link, err := h.issueToken(domain.TokenPurposeAccountConfirmation, h.Settings.AccountConfirmationTokenLifetime)
	if err != nil {
		return mediator.Empty{}, err
	}
	if err := u.GenerateNewAccountConfirmationToken(token, link, h.now()); err != nil {
		return mediator.Empty{}, err
	}
	return mediator.Empty{}, h.commit(ctx, u)
}

// VerifyAccountAndSetPasswordHandler marks the account verified, sets its first
// password and consumes the confirmation token in one commit.
type VerifyAccountAndSetPasswordHandler struct{ *base }

func (h *VerifyAccountAndSetPasswordHandler) Handle(ctx context.Context, cmd command.VerifyAccountAndSetPassword) (mediator.Empty, error) {
	u, token, err := h.userByLink(ctx, cmd.Token, domain.TokenPurposeAccountConfirmation)
	if err != nil {
		return mediator.Empty{}, err
	}

	hash, err := cryptox.HashPassword(cmd.NewPassword)
	if err != nil {
		return mediator.Empty{}, fmt.Errorf("hash password: %w", err)
	}
	if err := u.VerifyAccountAndSetPassword(token.ID, hash, h.now()); err != nil {
		return mediator.Empty{}, err
	}
	return mediator.Empty{}, h.commit(ctx, u)
}

// ChangePasswordHandler requires the current password before replacing it.
type ChangePasswordHandler struct{ *base }

func (h *ChangePasswordHandler) Handle(ctx context.Context, cmd command.ChangePassword) (mediator.Empty, error) {
	u, err := h.currentUser(ctx, principal.FullyAuthenticated)
	if err != nil {
		return mediator.Empty{}, err
	}
	if err := checkPassword(cmd.CurrentPassword, u); err != nil {
		return mediator.Empty{}, err
	}

	hash, err := cryptox.HashPassword(cmd.NewPassword)
	if err != nil {
		return mediator.Empty{}, fmt.Errorf("hash password: %w", err)
	}
	u.ChangePassword(hash)
	return mediator.Empty{}, h.commit(ctx, u)
}

type UpdateProfileHandler struct{ *base }

func (h *UpdateProfileHandler) Handle(ctx context.Context, cmd command.UpdateProfile) (mediator.Empty, error) {
	u, err := h.currentUser(ctx, principal.FullyAuthenticated)
	if err != nil {
		return mediator.Empty{}, err
	}

	u.UpdateProfile(domain.Profile{FirstName: cmd.FirstName, LastName: cmd.LastName})
	return mediator.Empty{}, h.commit(ctx, u)
}

// checkPassword re-confirms a signed-in user's password before a sensitive
// change.
func checkPassword(password string, u *domain.User) error {
	err := cryptox.VerifyPassword(password, u.PasswordHash)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, cryptox.ErrPasswordMismatch):
		return domain.ErrPasswordNotCorrect
	default:
		return fmt.Errorf("verify password: %w", err)
	}
}
