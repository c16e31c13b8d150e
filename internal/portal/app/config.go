package app

import (
	"context"
	"fmt"
	"time"

	"github.com/initiumportal/stance/pkg/httpx"
	"github.com/sethvargo/go-envconfig"
)

type Config struct {
	Issuer    string `env:"STANCE_ISSUER, default=stance"`
	Env       string `env:"ENV, default=dev"`
	LogLevel  string `env:"LOG_LEVEL, default=info"`
	LogFormat string `env:"LOG_FORMAT, default=json"`
	Port      int    `env:"PORT, default=8080"`

	DatabaseFile string `env:"STANCE_DATABASE_FILE, default=stance.db"`
	PepperFile   string `env:"STANCE_PEPPER_FILE, default=pepper"`
	// TokenKeyFile holds the PKCS8 Ed25519 key that signs emailed links.
	TokenKeyFile string `env:"STANCE_TOKEN_KEY_FILE, default=token.pem"`
	// SessionKeyFile holds the cookie signing and encryption keys.
	SessionKeyFile string `env:"STANCE_SESSION_KEY_FILE, default=session.key"`

	PasswordTokenLifetime            time.Duration `env:"PASSWORD_TOKEN_LIFETIME, default=24h"`
	AccountConfirmationTokenLifetime time.Duration `env:"ACCOUNT_CONFIRMATION_TOKEN_LIFETIME, default=72h"`
	EmailMfaEnforced                 bool          `env:"EMAIL_MFA_ENFORCED, default=true"`
	LockoutMaxAttempts               int           `env:"LOCKOUT_MAX_ATTEMPTS, default=5"`
	LockoutWindow                    time.Duration `env:"LOCKOUT_WINDOW, default=15m"`

	Session  SessionConfig
	WebAuthn WebAuthnConfig
	Redis    RedisConfig

	StrictLimit   httpx.RateLimitConfig `env:", prefix=RATE_LIMIT_STRICT_"`
	ModerateLimit httpx.RateLimitConfig `env:", prefix=RATE_LIMIT_MODERATE_"`
	LenientLimit  httpx.RateLimitConfig `env:", prefix=RATE_LIMIT_LENIENT_"`

	ShutdownGracePeriod  time.Duration `env:"SHUTDOWN_GRACE_PERIOD, default=10s"`
	HousekeepingInterval time.Duration `env:"HOUSEKEEPING_INTERVAL, default=1h"`
}

type SessionConfig struct {
	Name   string        `env:"SESSION_COOKIE_NAME, default=stance_session"`
	MaxAge time.Duration `env:"SESSION_MAX_AGE, default=12h"`
	Secure bool          `env:"SESSION_COOKIE_SECURE, default=true"`
}

type WebAuthnConfig struct {
	RPID          string   `env:"WEBAUTHN_RP_ID, default=localhost"`
	RPDisplayName string   `env:"WEBAUTHN_RP_NAME, default=Stance"`
	RPOrigins     []string `env:"WEBAUTHN_RP_ORIGINS, default=http://localhost:8080"`
}

// RedisConfig enables the Redis stream publisher when Addr is set.
type RedisConfig struct {
	Addr         string        `env:"REDIS_ADDR"`
	DB           int           `env:"REDIS_DB, default=0"`
	Timeout      time.Duration `env:"REDIS_TIMEOUT, default=5s"`
	Stream       string        `env:"EVENTS_STREAM, default=stance:events"`
	StreamMaxLen int64         `env:"EVENTS_STREAM_MAX_LEN, default=10000"`
}

// LoadConfig reads the configuration from the environment.
func LoadConfig(ctx context.Context) (Config, error) {
	return loadConfig(ctx, envconfig.OsLookuper())
}

func loadConfig(ctx context.Context, lookuper envconfig.Lookuper) (Config, error) {
	var cfg Config
	if err := envconfig.ProcessWith(ctx, &envconfig.Config{
		Target:   &cfg,
		Lookuper: lookuper,
	}); err != nil {
		return Config{}, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}
