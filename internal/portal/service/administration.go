package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/initiumportal/stance/internal/portal/command"
	"github.com/initiumportal/stance/internal/portal/domain"
	"github.com/initiumportal/stance/internal/portal/mediator"
	"github.com/initiumportal/stance/internal/portal/store"
	"github.com/initiumportal/stance/pkg/cryptox"
)

type CreateInitialUserHandler struct{ *base }

// Handle creates the first administrator. It needs no principal and only
// succeeds while the user table is empty.
func (h *CreateInitialUserHandler) Handle(ctx context.Context, cmd command.CreateInitialUser) (command.UserCreated, error) {
	empty, err := h.Store.Users().IsEmpty(ctx)
	if err != nil {
		return command.UserCreated{}, fmt.Errorf("check users: %w", err)
	}
	if !empty {
		return command.UserCreated{}, domain.ErrSystemIsAlreadySetup
	}

	hash, err := cryptox.HashPassword(cmd.Password)
	if err != nil {
		return command.UserCreated{}, fmt.Errorf("hash password: %w", err)
	}

	u := domain.NewInitialUser(cmd.Email, hash, domain.Profile{FirstName: cmd.FirstName, LastName: cmd.LastName}, h.now())
	err = h.commitNew(ctx, u, func(tx store.Tx) error {
		// Re-check inside the transaction so two racing setups cannot both win.
		empty, err := tx.Users().IsEmpty(ctx)
		if err != nil {
			return err
		}
		if !empty {
			return domain.ErrSystemIsAlreadySetup
		}
		return nil
	})
	if err != nil {
		return command.UserCreated{}, err
	}
	return command.UserCreated{UserID: u.ID}, nil
}

// CreateUserHandler adds an unverified user and mails them a confirmation
// link. Requires user:write.
type CreateUserHandler struct{ *base }

func (h *CreateUserHandler) Handle(ctx context.Context, cmd command.CreateUser) (command.UserCreated, error) {
	if _, err := h.authorize(ctx, domain.ResourceUserWrite); err != nil {
		return command.UserCreated{}, err
	}
	if err := h.ensureEmailFree(ctx, cmd.Email, ""); err != nil {
		return command.UserCreated{}, err
	}
	if err := h.validateRoles(ctx, cmd.RoleIDs); err != nil {
		return command.UserCreated{}, err
	}

	// The account gets an unguessable password until the user confirms it
	// and picks their own.
	placeholder, err := cryptox.GeneratePassword()
	if err != nil {
		return command.UserCreated{}, fmt.Errorf("generate password: %w", err)
	}
	hash, err := cryptox.HashPassword(placeholder)
	if err != nil {
		return command.UserCreated{}, fmt.Errorf("hash password: %w", err)
	}

	token, link, err := h.issueToken(domain.TokenPurposeAccountConfirmation, h.Settings.AccountConfirmationTokenLifetime)
	if err != nil {
		return command.UserCreated{}, err
	}

	u := domain.NewUser(cmd.Email, hash, domain.Profile{FirstName: cmd.FirstName, LastName: cmd.LastName}, cmd.IsAdmin, cmd.IsLockable, h.now())
	u.AssignRoles(cmd.RoleIDs)
	if err := u.GenerateNewAccountConfirmationToken(token, link, h.now()); err != nil {
		return command.UserCreated{}, err
	}

	if err := h.commitNew(ctx, u, nil); err != nil {
		return command.UserCreated{}, err
	}
	return command.UserCreated{UserID: u.ID}, nil
}

// UpdateUserHandler replaces profile, flags and roles of another user.
type UpdateUserHandler struct{ *base }

func (h *UpdateUserHandler) Handle(ctx context.Context, cmd command.UpdateUser) (mediator.Empty, error) {
	if _, err := h.authorize(ctx, domain.ResourceUserWrite); err != nil {
		return mediator.Empty{}, err
	}

	u, err := h.loadUser(ctx, cmd.UserID)
	if err != nil {
		return mediator.Empty{}, err
	}
	if err := h.ensureEmailFree(ctx, cmd.Email, u.ID); err != nil {
		return mediator.Empty{}, err
	}
	if err := h.validateRoles(ctx, cmd.RoleIDs); err != nil {
		return mediator.Empty{}, err
	}

	u.UpdateSystemAccessDetails(cmd.Email, domain.Profile{FirstName: cmd.FirstName, LastName: cmd.LastName}, cmd.IsAdmin, cmd.IsLockable, cmd.RoleIDs)
	return mediator.Empty{}, h.commit(ctx, u)
}

// ensureEmailFree fails with UserAlreadyExists when email belongs to a user
// other than ownerID.
func (b *base) ensureEmailFree(ctx context.Context, email, ownerID string) error {
	existing, err := b.Store.Users().GetUserByEmail(ctx, email)
	switch {
	case errors.Is(err, store.ErrNotFound):
		return nil
	case err != nil:
		return fmt.Errorf("load user by email: %w", err)
	case existing.ID != ownerID:
		return domain.ErrUserAlreadyExists
	default:
		return nil
	}
}

// DisableAccountHandler soft deletes a user. Their open sessions stop working
// on the next request.
type DisableAccountHandler struct{ *base }

func (h *DisableAccountHandler) Handle(ctx context.Context, cmd command.DisableAccount) (mediator.Empty, error) {
	u, err := h.target(ctx, cmd.UserID)
	if err != nil {
		return mediator.Empty{}, err
	}
	if err := u.Disable(h.now()); err != nil {
		return mediator.Empty{}, err
	}
	return mediator.Empty{}, h.commit(ctx, u)
}

// EnableAccountHandler re-activates a disabled user and forces a new password
// through a reset link.
type EnableAccountHandler struct{ *base }

func (h *EnableAccountHandler) Handle(ctx context.Context, cmd command.EnableAccount) (mediator.Empty, error) {
	u, err := h.target(ctx, cmd.UserID)
	if err != nil {
		return mediator.Empty{}, err
	}

	token, link, err := h.issueToken(domain.TokenPurposePasswordReset, h.Settings.PasswordTokenLifetime)
	if err != nil {
		return mediator.Empty{}, err
	}
	if err := u.Enable(token, link, h.now()); err != nil {
		return mediator.Empty{}, err
	}
	return mediator.Empty{}, h.commit(ctx, u)
}

// LockAccountHandler blocks sign-in and open sessions until an unlock.
type LockAccountHandler struct{ *base }

func (h *LockAccountHandler) Handle(ctx context.Context, cmd command.LockAccount) (mediator.Empty, error) {
	u, err := h.target(ctx, cmd.UserID)
	if err != nil {
		return mediator.Empty{}, err
	}
	u.Lock(h.now())
	return mediator.Empty{}, h.commit(ctx, u)
}

// UnlockAccountHandler clears a lock and mails a reset link. Failures recorded
// before the unlock no longer count towards lockout. Unlocking a user that is
// not locked returns UserNotLocked and sends nothing.
type UnlockAccountHandler struct{ *base }

func (h *UnlockAccountHandler) Handle(ctx context.Context, cmd command.UnlockAccount) (mediator.Empty, error) {
	u, err := h.target(ctx, cmd.UserID)
	if err != nil {
		return mediator.Empty{}, err
	}

	// Same lifetime as every other reset link.
	token, link, err := h.issueToken(domain.TokenPurposePasswordReset, h.Settings.PasswordTokenLifetime)
	if err != nil {
		return mediator.Empty{}, err
	}
	if err := u.Unlock(token, link, h.now()); err != nil {
		return mediator.Empty{}, err
	}
	return mediator.Empty{}, h.commit(ctx, u)
}

// target authorizes a user:write administrator and loads the user they act on.
func (b *base) target(ctx context.Context, userID string) (*domain.User, error) {
	if _, err := b.authorize(ctx, domain.ResourceUserWrite); err != nil {
		return nil, err
	}
	return b.loadUser(ctx, userID)
}
