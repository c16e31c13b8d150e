// Package service implements the portal's use cases. Every command handler
// loads the user aggregate, makes one call on it and commits the result
// through the store's unit of work before publishing the recorded events.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"time"

	"github.com/initiumportal/stance/internal/portal/domain"
	"github.com/initiumportal/stance/internal/portal/events"
	"github.com/initiumportal/stance/internal/portal/fido"
	"github.com/initiumportal/stance/internal/portal/metrics"
	"github.com/initiumportal/stance/internal/portal/principal"
	"github.com/initiumportal/stance/internal/portal/store"
	"github.com/initiumportal/stance/pkg/slogx"
)

// Settings are the tunables shared by the handlers.
type Settings struct {
	PasswordTokenLifetime            time.Duration
	AccountConfirmationTokenLifetime time.Duration

	// EmailMfaEnforced requires an email code from users without an app or
	// device enrolled.
	EmailMfaEnforced bool

	Lockout    domain.LockoutPolicy
	TOTPIssuer string
}

func DefaultSettings() Settings {
	return Settings{
		PasswordTokenLifetime:            24 * time.Hour,
		AccountConfirmationTokenLifetime: 72 * time.Hour,
		EmailMfaEnforced:                 true,
		Lockout:                          domain.LockoutPolicy{MaxAttempts: 5, Window: 15 * time.Minute},
		TOTPIssuer:                       "Stance",
	}
}

// Deps are the collaborators every handler shares.
type Deps struct {
	Store     store.Store
	Principal principal.Provider
	Events    events.Publisher
	Links     LinkSerializer
	Fido      fido.Verifier
	Settings  Settings

	// Clock defaults to time.Now.
	Clock func() time.Time
}

// base holds the plumbing common to all handlers.
type base struct {
	Deps
}

func newBase(deps Deps) *base {
	mustNotNil("Store", deps.Store)
	mustNotNil("Principal", deps.Principal)
	mustNotNil("Events", deps.Events)
	mustNotNil("Links", deps.Links)
	mustNotNil("Fido", deps.Fido)

	if deps.Clock == nil {
		deps.Clock = time.Now
	}
	return &base{Deps: deps}
}

func mustNotNil(name string, v any) {
	if v == nil {
		panic("service: nil " + name)
	}
	if rv := reflect.ValueOf(v); rv.Kind() == reflect.Pointer && rv.IsNil() {
		panic("service: nil " + name)
	}
}

func (b *base) now() time.Time { return b.Clock().UTC() }

// loadUser reads a user, reporting a missing one as UserNotFound.
func (b *base) loadUser(ctx context.Context, id string) (*domain.User, error) {
	u, err := b.Store.Users().GetUserByID(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, domain.ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load user: %w", err)
	}
	return u, nil
}

func (b *base) loadUserByEmail(ctx context.Context, email string) (*domain.User, error) {
	u, err := b.Store.Users().GetUserByEmail(ctx, email)
	if errors.Is(err, store.ErrNotFound) {
		return nil, domain.ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load user by email: %w", err)
	}
	return u, nil
}

// currentUser loads the aggregate of the acting principal, which must have
// reached stage. A session opened before the account was disabled or locked
// stops working for fully authenticated calls.
func (b *base) currentUser(ctx context.Context, stage principal.Stage) (*domain.User, error) {
	p := b.Principal.Current(ctx)
	if !p.AtLeast(stage) {
		return nil, domain.ErrUserNotFound
	}

	u, err := b.loadUser(ctx, p.UserID)
	if err != nil {
		return nil, err
	}
	if stage == principal.FullyAuthenticated {
		switch {
		case u.IsDisabled:
			return nil, domain.ErrUserIsDisabled
		case u.IsLocked():
			return nil, domain.ErrUserIsLocked
		}
	}
	return u, nil
}

// authorize checks that the fully authenticated principal holds resource.
func (b *base) authorize(ctx context.Context, resource string) (*domain.User, error) {
	actor, err := b.currentUser(ctx, principal.FullyAuthenticated)
	if err != nil {
		return nil, err
	}
	if actor.IsAdmin {
		return actor, nil
	}

	roles, err := b.Store.Roles().ListRoles(ctx)
	if err != nil {
		return nil, fmt.Errorf("list roles: %w", err)
	}
	byID := make(map[string]domain.Role, len(roles))
	for _, r := range roles {
		byID[r.ID] = r
	}

	if !actor.HasResource(resource, byID) {
		return nil, domain.ErrUnauthorized.WithMessage("missing " + resource)
	}
	return actor, nil
}

// commit saves u and publishes its events. Any store failure is reported as
// SavingChanges.
func (b *base) commit(ctx context.Context, u *domain.User) error {
	err := b.Store.WithTx(ctx, func(tx store.Tx) error {
		return tx.Users().SaveUser(ctx, u)
	})
	return b.afterCommit(ctx, u, err)
}

// commitNew inserts u and publishes its events. A taken email is
// UserAlreadyExists.
func (b *base) commitNew(ctx context.Context, u *domain.User, guard func(tx store.Tx) error) error {
	err := b.Store.WithTx(ctx, func(tx store.Tx) error {
		if guard != nil {
			if err := guard(tx); err != nil {
				return err
			}
		}
		return tx.Users().CreateUser(ctx, u)
	})
	return b.afterCommit(ctx, u, err)
}

func (b *base) afterCommit(ctx context.Context, u *domain.User, err error) error {
	pending := u.PullEvents()

	var ed *domain.ErrorData
	switch {
	case err == nil:
	case errors.As(err, &ed):
		return ed
	case errors.Is(err, store.ErrAlreadyExists):
		return domain.ErrUserAlreadyExists
	default:
		slogx.FromContext(ctx).Error("saving user failed",
			slog.String("user_id", u.ID),
			slog.Any("error", err),
		)
		return domain.ErrSavingChanges
	}

	b.publish(ctx, pending...)
	return nil
}

// publish hands events to the publisher. Delivery failures are logged only:
// the state change is already committed.
func (b *base) publish(ctx context.Context, pending ...domain.Event) {
	if len(pending) == 0 {
		return
	}
	if err := b.Events.Publish(ctx, pending...); err != nil {
		slogx.FromContext(ctx).Error("publishing events failed", slog.Any("error", err))
	}
}

// issueToken creates a token for purpose and its signed link.
func (b *base) issueToken(purpose domain.TokenPurpose, lifetime time.Duration) (domain.SecurityToken, string, error) {
	token := domain.NewSecurityToken(purpose, b.now().Add(lifetime))
	link, err := b.Links.Serialize(token)
	if err != nil {
		return domain.SecurityToken{}, "", fmt.Errorf("serialize %s token: %w", purpose, err)
	}
	return token, link, nil
}

// userByLink resolves the owner of a valid link for purpose. Any defect in
// the link or token reads as UserNotFound.
func (b *base) userByLink(ctx context.Context, link string, purpose domain.TokenPurpose) (*domain.User, domain.SecurityToken, error) {
	token, err := b.Links.Deserialize(link, purpose)
	if err != nil {
		slogx.FromContext(ctx).Debug("rejected security link", slog.Any("error", err))
		return nil, domain.SecurityToken{}, domain.ErrUserNotFound
	}

	u, err := b.Store.Users().GetUserBySecurityToken(ctx, token.ID, purpose, b.now())
	if errors.Is(err, store.ErrNotFound) {
		return nil, domain.SecurityToken{}, domain.ErrUserNotFound
	}
	if err != nil {
		return nil, domain.SecurityToken{}, fmt.Errorf("load user by token: %w", err)
	}
	return u, token, nil
}

// recordMfaFailure appends a failed attempt, commits it and returns failure.
func (b *base) recordMfaFailure(ctx context.Context, u *domain.User, t domain.AuthenticationHistoryType, failure error) error {
	wasLocked := u.IsLocked()
	if u.RecordFailedMfaAttempt(t, b.Settings.Lockout, b.now()) && !wasLocked {
		metrics.AccountsLockedTotal.Inc()
		slogx.FromContext(ctx).Warn("user locked after failed mfa attempts", slog.String("user_id", u.ID))
	}
	if err := b.commit(ctx, u); err != nil {
		return err
	}
	return failure
}

// validateRoles checks every id names an existing role.
func (b *base) validateRoles(ctx context.Context, ids []string) error {
	for _, id := range ids {
		if _, err := b.Store.Roles().GetRoleByID(ctx, id); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return domain.ErrRoleNotFound.WithMessage(id)
			}
			return fmt.Errorf("load role: %w", err)
		}
	}
	return nil
}

func authenticated(u *domain.User, providers domain.MfaProvider) principal.Principal {
	return principal.FromUser(u, principal.FullyAuthenticated, providers)
}
