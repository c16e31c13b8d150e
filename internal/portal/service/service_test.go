package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/initiumportal/stance/internal/portal/command"
	"github.com/initiumportal/stance/internal/portal/domain"
	"github.com/initiumportal/stance/internal/portal/mediator"
	"github.com/initiumportal/stance/internal/portal/metrics"
	"github.com/initiumportal/stance/internal/portal/principal"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestConcurrentUpdateIsSavingChanges(t *testing.T) {
	f := newFixture(t)
	u := f.seedUser("ada@example.com", "correct horse", false)
	ctx := f.as(u, principal.FullyAuthenticated)

	// A competing writer saves the user between our load and our commit.
	f.store.beforeTx = func() {
		f.store.beforeTx = nil
		other := f.reload(u.ID)
		other.UpdateProfile(domain.Profile{FirstName: "Other", LastName: "Writer"})
		require.NoError(t, f.store.Users().SaveUser(context.Background(), other))
	}

	_, err := f.h.UpdateProfile.Handle(ctx, command.UpdateProfile{FirstName: "Lost", LastName: "Update"})
	requireCode(t, err, domain.CodeSavingChanges)
	require.Equal(t, "Other", f.reload(u.ID).Profile.FirstName)
}

func TestPublishFailureIsNotSurfaced(t *testing.T) {
	f := newFixture(t)
	f.seedUser("ada@example.com", "correct horse", false)
	f.events.err = errors.New("broker down")

	_, err := f.h.RequestPasswordReset.Handle(context.Background(), command.RequestPasswordReset{Email: "ada@example.com"})
	require.NoError(t, err)
	require.Equal(t, 1, f.events.count())
}

func TestEventsNotPublishedOnFailedCommit(t *testing.T) {
	f := newFixture(t)
	admin := f.seedUser("admin@example.com", "correct horse", true)
	u := f.seedUser("ada@example.com", "correct horse", false)

	f.store.beforeTx = func() {
		f.store.beforeTx = nil
		other := f.reload(u.ID)
		other.UpdateProfile(domain.Profile{FirstName: "Other", LastName: "Writer"})
		require.NoError(t, f.store.Users().SaveUser(context.Background(), other))
	}

	_, err := f.h.DisableAccount.Handle(f.as(admin, principal.FullyAuthenticated), command.DisableAccount{UserID: u.ID})
	requireCode(t, err, domain.CodeSavingChanges)
	require.Zero(t, f.events.count())
}

func TestNewHandlersRequiresDependencies(t *testing.T) {
	require.PanicsWithValue(t, "service: nil Store", func() {
		NewHandlers(Deps{}, mediator.Default())
	})
}

func TestJWTLinks(t *testing.T) {
	f := newFixture(t)
	links := f.links

	token := domain.NewSecurityToken(domain.TokenPurposePasswordReset, t0.Add(time.Hour))
	link, err := links.Serialize(token)
	require.NoError(t, err)

	got, err := links.Deserialize(link, domain.TokenPurposePasswordReset)
	require.NoError(t, err)
	require.Equal(t, token, got)

	_, err = links.Deserialize(link, domain.TokenPurposeAccountConfirmation)
	require.Error(t, err)

	_, err = links.Deserialize(link[:len(link)-4]+"AAAA", domain.TokenPurposePasswordReset)
	require.Error(t, err)

	f.clock.Advance(2 * time.Hour)
	_, err = links.Deserialize(link, domain.TokenPurposePasswordReset)
	require.Error(t, err)
}

func TestHousekeepingCleanup(t *testing.T) {
	f := newFixture(t)
	f.seedUser("ada@example.com", "correct horse", false)
	ctx := context.Background()

	// Spend one token and leave a second to expire.
	_, err := f.h.RequestPasswordReset.Handle(ctx, command.RequestPasswordReset{Email: "ada@example.com"})
	require.NoError(t, err)
	issued := last[domain.PasswordResetTokenGeneratedEvent](t, f.events)
	_, err = f.h.PasswordReset.Handle(ctx, command.PasswordReset{Token: issued.Token, NewPassword: "brand new secret"})
	require.NoError(t, err)
	_, err = f.h.RequestPasswordReset.Handle(ctx, command.RequestPasswordReset{Email: "ada@example.com"})
	require.NoError(t, err)

	tokens := metrics.HousekeepingDeletedTotal.WithLabelValues("security_tokens")
	before := testutil.ToFloat64(tokens)

	hk := NewHousekeepingService(f.store, slog.New(slog.NewTextHandler(io.Discard, nil)), time.Minute)
	hk.now = func() time.Time { return t0.Add(24 * time.Hour) }
	hk.Cleanup(ctx)
	require.Equal(t, before, testutil.ToFloat64(tokens), "nothing is past retention yet")

	hk.now = func() time.Time { return t0.Add(9 * 24 * time.Hour) }
	hk.Cleanup(ctx)
	require.Equal(t, before+2, testutil.ToFloat64(tokens))
}

func TestHousekeepingStartStop(t *testing.T) {
	f := newFixture(t)

	hk := NewHousekeepingService(f.store, slog.New(slog.NewTextHandler(io.Discard, nil)), time.Hour)
	hk.Start()
	hk.Stop()
}
