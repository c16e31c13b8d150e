package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/initiumportal/stance/internal/portal/command"
	"github.com/initiumportal/stance/internal/portal/domain"
	"github.com/initiumportal/stance/internal/portal/mediator"
	"github.com/initiumportal/stance/internal/portal/store"
	"github.com/initiumportal/stance/pkg/slogx"
)

type CreateRoleHandler struct{ *base }

func (h *CreateRoleHandler) Handle(ctx context.Context, cmd command.CreateRole) (command.RoleCreated, error) {
	if _, err := h.authorize(ctx, domain.ResourceRoleWrite); err != nil {
		return command.RoleCreated{}, err
	}

	role := domain.NewRole(cmd.Name, cmd.Resources, h.now())
	err := h.Store.WithTx(ctx, func(tx store.Tx) error {
		return tx.Roles().CreateRole(ctx, role)
	})
	if err := roleError(ctx, err); err != nil {
		return command.RoleCreated{}, err
	}
	return command.RoleCreated{RoleID: role.ID}, nil
}

type UpdateRoleHandler struct{ *base }

func (h *UpdateRoleHandler) Handle(ctx context.Context, cmd command.UpdateRole) (mediator.Empty, error) {
	if _, err := h.authorize(ctx, domain.ResourceRoleWrite); err != nil {
		return mediator.Empty{}, err
	}

	role, err := h.Store.Roles().GetRoleByID(ctx, cmd.RoleID)
	if errors.Is(err, store.ErrNotFound) {
		return mediator.Empty{}, domain.ErrRoleNotFound
	}
	if err != nil {
		return mediator.Empty{}, fmt.Errorf("load role: %w", err)
	}

	role.Update(cmd.Name, cmd.Resources)
	err = h.Store.WithTx(ctx, func(tx store.Tx) error {
		return tx.Roles().UpdateRole(ctx, &role)
	})
	return mediator.Empty{}, roleError(ctx, err)
}

type DeleteRoleHandler struct{ *base }

func (h *DeleteRoleHandler) Handle(ctx context.Context, cmd command.DeleteRole) (mediator.Empty, error) {
	if _, err := h.authorize(ctx, domain.ResourceRoleWrite); err != nil {
		return mediator.Empty{}, err
	}

	err := h.Store.WithTx(ctx, func(tx store.Tx) error {
		return tx.Roles().DeleteRole(ctx, cmd.RoleID)
	})
	return mediator.Empty{}, roleError(ctx, err)
}

// roleError maps store failures of a role write to error codes.
func roleError(ctx context.Context, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, store.ErrNotFound):
		return domain.ErrRoleNotFound
	case errors.Is(err, store.ErrAlreadyExists):
		return domain.ErrRoleAlreadyExists
	default:
		slogx.FromContext(ctx).Error("saving role failed", slog.Any("error", err))
		return domain.ErrSavingChanges
	}
}
