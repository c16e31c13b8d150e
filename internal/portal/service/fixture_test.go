package service

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/initiumportal/stance/internal/portal/domain"
	"github.com/initiumportal/stance/internal/portal/fido"
	"github.com/initiumportal/stance/internal/portal/mediator"
	"github.com/initiumportal/stance/internal/portal/principal"
	"github.com/initiumportal/stance/internal/portal/store"
	"github.com/initiumportal/stance/internal/portal/store/drivers/sqlite"
	"github.com/initiumportal/stance/pkg/cryptox"
	"github.com/initiumportal/stance/pkg/jwtx"
	"github.com/pquerna/otp/totp"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

func TestMain(m *testing.M) {
	dir, err := os.MkdirTemp("", "service")
	if err != nil {
		panic(err)
	}
	cryptox.SetPepperPath(filepath.Join(dir, "pepper"))

	code := m.Run()
	_ = os.RemoveAll(dir)
	os.Exit(code)
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type recorder struct {
	mu     sync.Mutex
	events []domain.Event
	err    error
}

func (r *recorder) Publish(ctx context.Context, events ...domain.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, events...)
	return r.err
}

// last returns the most recent event of type E.
func last[E domain.Event](t *testing.T, r *recorder) E {
	t.Helper()
	r.mu.Lock()
	defer r.mu.Unlock()

	for i := len(r.events) - 1; i >= 0; i-- {
		if e, ok := r.events[i].(E); ok {
			return e
		}
	}
	var zero E
	t.Fatalf("no %T published", zero)
	return zero
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

func (r *recorder) all() []domain.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.Event(nil), r.events...)
}

var errFakeCeremony = errors.New("fake ceremony failed")

// fakeFido stands in for the WebAuthn ceremonies, returning canned results.
type fakeFido struct {
	device    domain.AuthenticatorDevice
	assertion fido.Assertion
	loginErr  error
}

func (f *fakeFido) BeginRegistration(u *domain.User) (fido.Challenge, error) {
	return fido.Challenge{Options: json.RawMessage(`{"publicKey":{}}`), SessionData: "registration"}, nil
}

func (f *fakeFido) FinishRegistration(u *domain.User, sessionData string, response []byte) (domain.AuthenticatorDevice, error) {
	if sessionData != "registration" {
		return domain.AuthenticatorDevice{}, errFakeCeremony
	}
	return f.device, nil
}

func (f *fakeFido) BeginLogin(u *domain.User) (fido.Challenge, error) {
	if len(u.ActiveAuthenticatorDevices()) == 0 {
		return fido.Challenge{}, errFakeCeremony
	}
	return fido.Challenge{Options: json.RawMessage(`{"publicKey":{}}`), SessionData: "login"}, nil
}

func (f *fakeFido) FinishLogin(u *domain.User, sessionData string, response []byte) (fido.Assertion, error) {
	if sessionData != "login" || f.loginErr != nil {
		return fido.Assertion{}, errors.Join(errFakeCeremony, f.loginErr)
	}
	return f.assertion, nil
}

// hookStore runs beforeTx ahead of every transaction.
type hookStore struct {
	*sqlite.Store
	beforeTx func()
}

func (s *hookStore) WithTx(ctx context.Context, fn func(tx store.Tx) error) error {
	if s.beforeTx != nil {
		s.beforeTx()
	}
	return s.Store.WithTx(ctx, fn)
}

type fixture struct {
	t        *testing.T
	store    *hookStore
	events   *recorder
	fido     *fakeFido
	clock    *testClock
	links    *JWTLinks
	settings Settings
	h        *Handlers
}

func newFixture(t *testing.T, opts ...func(*Settings)) *fixture {
	t.Helper()

	db, err := sqlite.NewStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, db.ApplyMigrations())

	pem, err := cryptox.GenerateEd25519Key()
	require.NoError(t, err)
	signer, err := jwtx.NewSignerEdDSA("test", pem)
	require.NoError(t, err)
	keys := jwtx.NewKeySet()
	keys.AddSigner(signer)

	clock := &testClock{now: t0}
	settings := DefaultSettings()
	for _, opt := range opts {
		opt(&settings)
	}

	verifier := jwtx.NewVerifierEdDSA(keys, "stance").WithClock(clock.Now)
	links := NewJWTLinks(signer, verifier, "stance").WithClock(clock.Now)

	f := &fixture{
		t:        t,
		store:    &hookStore{Store: db},
		events:   &recorder{},
		fido:     &fakeFido{},
		clock:    clock,
		links:    links,
		settings: settings,
	}
	f.h = NewHandlers(Deps{
		Store:     f.store,
		Principal: principal.ContextProvider{},
		Events:    f.events,
		Links:     f.links,
		Fido:      f.fido,
		Settings:  settings,
		Clock:     clock.Now,
	}, mediator.Default())
	return f
}

// seedUser stores a verified, lockable user with password.
func (f *fixture) seedUser(email, password string, isAdmin bool) *domain.User {
	f.t.Helper()

	hash, err := cryptox.HashPassword(password)
	require.NoError(f.t, err)

	u := domain.NewUser(email, hash, domain.Profile{FirstName: "Ada", LastName: "Lovelace"}, isAdmin, true, t0)
	u.IsVerified = true
	require.NoError(f.t, f.store.Users().CreateUser(context.Background(), u))
	return u
}

func (f *fixture) reload(id string) *domain.User {
	f.t.Helper()
	u, err := f.store.Users().GetUserByID(context.Background(), id)
	require.NoError(f.t, err)
	return u
}

func (f *fixture) as(u *domain.User, stage principal.Stage) context.Context {
	return principal.WithContext(context.Background(), principal.FromUser(u, stage, domain.MfaProviderNone))
}

func (f *fixture) appCode(key string) string {
	f.t.Helper()
	code, err := totp.GenerateCodeCustom(key, f.clock.Now(), appCodeOpts)
	require.NoError(f.t, err)
	return code
}

func requireCode(t *testing.T, err error, code domain.ErrorCode) {
	t.Helper()
	got, ok := domain.CodeOf(err)
	require.Truef(t, ok, "expected %s, got %v", code, err)
	require.Equal(t, code, got)
}

// wrongCode returns a six digit code that differs from code in every digit.
func wrongCode(code string) string {
	out := []byte(code)
	for i, c := range out {
		out[i] = '0' + (c-'0'+5)%10
	}
	return string(out)
}
