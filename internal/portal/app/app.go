package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/initiumportal/stance/internal/portal/domain"
	"github.com/initiumportal/stance/internal/portal/events"
	"github.com/initiumportal/stance/internal/portal/fido"
	httpapi "github.com/initiumportal/stance/internal/portal/http"
	"github.com/initiumportal/stance/internal/portal/mediator"
	"github.com/initiumportal/stance/internal/portal/principal"
	"github.com/initiumportal/stance/internal/portal/service"
	"github.com/initiumportal/stance/internal/portal/store"
	"github.com/initiumportal/stance/internal/portal/store/drivers/sqlite"
	"github.com/initiumportal/stance/pkg/cryptox"
	"github.com/initiumportal/stance/pkg/httpx"
	"github.com/initiumportal/stance/pkg/slogx"
	"github.com/redis/go-redis/v9"
)

// BuildVersion is overridden at build time via ldflags.
var BuildVersion = "v0.1.0"

// Application owns the portal's dependencies and HTTP server.
type Application struct {
	cfg    Config
	logger *slog.Logger

	db       store.Store
	keys     *LinkKeys
	redis    *redis.Client
	handlers *service.Handlers

	housekeepingService *service.HousekeepingService

	server *http.Server
	router *httpapi.Router
}

// New creates an Application with every dependency initialised.
func New(ctx context.Context, cfg Config) (*Application, error) {
	app := &Application{
		cfg: cfg,
		logger: slogx.New(slogx.Config{
			Service: "stance-portal",
			Version: BuildVersion,
			Env:     cfg.Env,
			Level:   cfg.LogLevel,
			Format:  cfg.LogFormat,
		}),
	}

	cryptox.SetPepperPath(cfg.PepperFile)
	applyRateLimits(cfg)

	if err := app.initDatabase(); err != nil {
		return nil, err
	}

	keys, err := InitLinkKeys(cfg, app.logger)
	if err != nil {
		_ = app.db.Close()
		return nil, err
	}
	app.keys = keys

	publisher, err := app.initEvents(ctx)
	if err != nil {
		_ = app.db.Close()
		return nil, err
	}

	if err := app.initServices(publisher); err != nil {
		app.closeResources()
		return nil, err
	}
	if err := app.initHTTP(); err != nil {
		app.closeResources()
		return nil, err
	}
	return app, nil
}

// Handler exposes the HTTP handler, mainly for tests.
func (app *Application) Handler() http.Handler { return app.router }

// Run starts the application and blocks until shutdown is requested.
func (app *Application) Run() error {
	app.housekeepingService.Start()

	app.logger.Info("portal starting", "port", app.cfg.Port, "version", BuildVersion)

	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- app.server.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		app.housekeepingService.Stop()
		app.closeResources()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
	case sig := <-shutdown:
		app.logger.Info("shutdown signal received", "signal", sig)
		if err := app.Shutdown(); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
	}
	return nil
}

// Shutdown drains the HTTP server, stops background work and closes
// connections.
func (app *Application) Shutdown() error {
	app.logger.Info("shutting down portal...")

	ctx, cancel := context.WithTimeout(context.Background(), app.cfg.ShutdownGracePeriod)
	defer cancel()

	if err := app.server.Shutdown(ctx); err != nil {
		app.logger.Error("graceful server shutdown failed", "error", err)
		if err := app.server.Close(); err != nil {
			app.logger.Error("error closing server", "error", err)
		}
	}

	app.housekeepingService.Stop()

	if err := app.closeResources(); err != nil {
		return err
	}
	app.logger.Info("portal stopped")
	return nil
}

func (app *Application) closeResources() error {
	if app.redis != nil {
		if err := app.redis.Close(); err != nil {
			app.logger.Error("error closing redis", "error", err)
		}
	}
	if err := app.db.Close(); err != nil {
		app.logger.Error("error closing database", "error", err)
		return err
	}
	return nil
}

func (app *Application) initDatabase() error {
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", app.cfg.DatabaseFile)
	db, err := sqlite.NewStore(dsn)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	app.db = db

	if err := db.ApplyMigrations(); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to apply database migrations: %w", err)
	}

	app.logger.Info("database migrations applied successfully")
	return nil
}

// initEvents always logs events and also appends them to a Redis stream when
// REDIS_ADDR is set.
func (app *Application) initEvents(ctx context.Context) (events.Publisher, error) {
	publishers := events.Multi{events.LogPublisher{}}
	if app.cfg.Redis.Addr == "" {
		return publishers, nil
	}

	client, err := events.ConnectRedis(ctx, events.RedisConfig{
		Addr:    app.cfg.Redis.Addr,
		DB:      app.cfg.Redis.DB,
		Timeout: app.cfg.Redis.Timeout,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	app.redis = client

	app.logger.Info("publishing events to redis stream", "addr", app.cfg.Redis.Addr, "stream", app.cfg.Redis.Stream)
	return append(publishers, events.NewRedisPublisher(client, app.cfg.Redis.Stream, app.cfg.Redis.StreamMaxLen)), nil
}

func (app *Application) initServices(publisher events.Publisher) error {
	verifier, err := fido.New(fido.Config{
		RPID:          app.cfg.WebAuthn.RPID,
		RPDisplayName: app.cfg.WebAuthn.RPDisplayName,
		RPOrigins:     app.cfg.WebAuthn.RPOrigins,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize webauthn: %w", err)
	}

	app.handlers = service.NewHandlers(service.Deps{
		Store:     app.db,
		Principal: principal.ContextProvider{},
		Events:    publisher,
		Links:     service.NewJWTLinks(app.keys.Signer, app.keys.Verifier, app.cfg.Issuer),
		Fido:      verifier,
		Settings: service.Settings{
			PasswordTokenLifetime:            app.cfg.PasswordTokenLifetime,
			AccountConfirmationTokenLifetime: app.cfg.AccountConfirmationTokenLifetime,
			EmailMfaEnforced:                 app.cfg.EmailMfaEnforced,
			Lockout: domain.LockoutPolicy{
				MaxAttempts: app.cfg.LockoutMaxAttempts,
				Window:      app.cfg.LockoutWindow,
			},
			TOTPIssuer: app.cfg.Issuer,
		},
	}, mediator.Default())

	app.housekeepingService = service.NewHousekeepingService(
		app.db,
		app.logger,
		app.cfg.HousekeepingInterval,
	)
	return nil
}

func (app *Application) initHTTP() error {
	hashKey, blockKey, err := InitSessionKeys(app.cfg)
	if err != nil {
		return err
	}
	sessions := httpapi.NewSessions(httpapi.SessionConfig{
		Name:     app.cfg.Session.Name,
		HashKey:  hashKey,
		BlockKey: blockKey,
		MaxAge:   int(app.cfg.Session.MaxAge / time.Second),
		Secure:   app.cfg.Session.Secure,
	})

	router := httpapi.NewRouter(
		app.handlers,
		sessions,
		app.db,
		app.keys.KeySet,
		BuildVersion,
		app.logger,
	)
	router.ApplyRoutes()
	app.router = router

	app.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", app.cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 3 * time.Second,
	}
	return nil
}

// applyRateLimits replaces the default rate limit profiles with any fully
// configured ones.
func applyRateLimits(cfg Config) {
	if cfg.StrictLimit.Valid() {
		httpx.StrictLimit = cfg.StrictLimit
	}
	if cfg.ModerateLimit.Valid() {
		httpx.ModerateLimit = cfg.ModerateLimit
	}
	if cfg.LenientLimit.Valid() {
		httpx.LenientLimit = cfg.LenientLimit
	}
}
