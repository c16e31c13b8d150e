package app

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/initiumportal/stance/pkg/httpx"
	"github.com/sethvargo/go-envconfig"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := loadConfig(context.Background(), envconfig.MapLookuper(map[string]string{}))
	require.NoError(t, err)

	require.Equal(t, 8080, cfg.Port)
	require.Equal(t, "stance", cfg.Issuer)
	require.Equal(t, 24*time.Hour, cfg.PasswordTokenLifetime)
	require.Equal(t, 72*time.Hour, cfg.AccountConfirmationTokenLifetime)
	require.True(t, cfg.EmailMfaEnforced)
	require.Equal(t, 5, cfg.LockoutMaxAttempts)
	require.Equal(t, 15*time.Minute, cfg.LockoutWindow)
	require.Empty(t, cfg.Redis.Addr)
	require.Equal(t, "stance:events", cfg.Redis.Stream)
	require.True(t, cfg.Session.Secure)
	require.False(t, cfg.StrictLimit.Valid())
}

func TestLoadConfigOverrides(t *testing.T) {
	cfg, err := loadConfig(context.Background(), envconfig.MapLookuper(map[string]string{
		"PORT":                       "9090",
		"LOCKOUT_MAX_ATTEMPTS":       "3",
		"PASSWORD_TOKEN_LIFETIME":    "2h",
		"WEBAUTHN_RP_ORIGINS":        "https://a.example,https://b.example",
		"RATE_LIMIT_STRICT_REQUESTS": "10",
		"RATE_LIMIT_STRICT_WINDOW":   "30s",
		"RATE_LIMIT_STRICT_BURST":    "2",
	}))
	require.NoError(t, err)

	require.Equal(t, 9090, cfg.Port)
	require.Equal(t, 3, cfg.LockoutMaxAttempts)
	require.Equal(t, 2*time.Hour, cfg.PasswordTokenLifetime)
	require.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.WebAuthn.RPOrigins)
	require.Equal(t, httpx.RateLimitConfig{RequestsPerWindow: 10, Window: 30 * time.Second, Burst: 2}, cfg.StrictLimit)
}

func TestLoadConfigRejectsMalformedValues(t *testing.T) {
	_, err := loadConfig(context.Background(), envconfig.MapLookuper(map[string]string{"PORT": "eighty"}))
	require.Error(t, err)
}

func testConfig(t *testing.T) Config {
	t.Helper()

	cfg, err := loadConfig(context.Background(), envconfig.MapLookuper(map[string]string{}))
	require.NoError(t, err)

	dir := t.TempDir()
	cfg.DatabaseFile = filepath.Join(dir, "stance.db")
	cfg.PepperFile = filepath.Join(dir, "pepper")
	cfg.TokenKeyFile = filepath.Join(dir, "keys", "token.pem")
	cfg.SessionKeyFile = filepath.Join(dir, "keys", "session.key")
	cfg.LogLevel = "error"
	return cfg
}

func TestNewServesHealth(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := testConfig(t)
	cfg.Redis.Addr = mr.Addr()

	app, err := New(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = app.closeResources() })
	require.NotNil(t, app.redis)

	for _, path := range []string{"/livez", "/readyz"} {
		rec := httptest.NewRecorder()
		app.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		require.Equal(t, http.StatusOK, rec.Code, path)
	}
}

func TestKeysPersistAcrossStarts(t *testing.T) {
	cfg := testConfig(t)

	first, err := InitLinkKeys(cfg, discard())
	require.NoError(t, err)
	second, err := InitLinkKeys(cfg, discard())
	require.NoError(t, err)
	require.Equal(t, first.Signer.Public(), second.Signer.Public())

	hash, block, err := InitSessionKeys(cfg)
	require.NoError(t, err)
	require.Len(t, hash, 32)
	require.Len(t, block, 32)

	require.NoError(t, os.WriteFile(cfg.SessionKeyFile, []byte("short"), 0600))
	_, _, err = InitSessionKeys(cfg)
	require.Error(t, err)
}

func TestNewFailsWithoutRedis(t *testing.T) {
	cfg := testConfig(t)
	cfg.Redis.Addr = "127.0.0.1:1"
	cfg.Redis.Timeout = 200 * time.Millisecond

	_, err := New(context.Background(), cfg)
	require.Error(t, err)
}

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
