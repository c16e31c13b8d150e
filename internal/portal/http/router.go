package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/initiumportal/stance/internal/portal/command"
	"github.com/initiumportal/stance/internal/portal/principal"
	"github.com/initiumportal/stance/internal/portal/service"
	"github.com/initiumportal/stance/internal/portal/store"
	"github.com/initiumportal/stance/pkg/httpx"
	"github.com/initiumportal/stance/pkg/jwtx"
	"github.com/initiumportal/stance/pkg/slogx"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Router holds shared dependencies for HTTP handlers.
type Router struct {
	Mux         *http.ServeMux
	middlewares []httpx.Middleware

	handlers     *service.Handlers
	sessions     *Sessions
	store        store.Store
	keys         *jwtx.KeySet
	buildVersion string
	startTime    time.Time
	logger       *slog.Logger
}

func NewRouter(
	handlers *service.Handlers,
	sessions *Sessions,
	st store.Store,
	keys *jwtx.KeySet,
	buildVersion string,
	logger *slog.Logger,
) *Router {
	r := &Router{
		Mux:          http.NewServeMux(),
		handlers:     handlers,
		sessions:     sessions,
		store:        st,
		keys:         keys,
		buildVersion: buildVersion,
		startTime:    time.Now(),
		logger:       logger,
	}

	r.middlewares = []httpx.Middleware{
		slogx.HTTPMiddleware(r.logger),
		httpx.Recoverer(),
		sessions.Middleware(),
	}
	return r
}

func (r *Router) ApplyRoutes() {
	r.registerAuth()
	r.registerAccount()
	r.registerMe()
	r.registerUsers()
	r.registerRoles()
	r.registerSystem()
}

// ServeHTTP implements http.Handler for Router and applies the global middleware chain.
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	httpx.Chain(r.Mux, r.middlewares...).ServeHTTP(w, req)
}

// partial guards the second-factor steps of sign-in.
func partial(h http.Handler, limit httpx.RateLimitConfig) http.Handler {
	return httpx.Chain(h,
		RequireStage(principal.PartiallyAuthenticated),
		httpx.RateLimitMiddleware(limit, userKey),
	)
}

// full guards everything that needs a completed sign-in.
func full(h http.Handler, limit httpx.RateLimitConfig) http.Handler {
	return httpx.Chain(h,
		RequireStage(principal.FullyAuthenticated),
		httpx.RateLimitMiddleware(limit, userKey),
	)
}

func pathValue(name string) func(r *http.Request) string {
	return func(r *http.Request) string { return r.PathValue(name) }
}

func (r *Router) registerAuth() {
	h := &AuthHandler{Handlers: r.handlers, Sessions: r.sessions}

	// Password attempts are limited per address and submitted email.
	r.Mux.Handle("POST /v1/auth/sign-in",
		httpx.Chain(http.HandlerFunc(h.HandleSignIn),
			httpx.RateLimitByIPAndJSONField(httpx.StrictLimit, "email"),
		),
	)
	r.Mux.HandleFunc("POST /v1/auth/sign-out", h.HandleSignOut)

	r.Mux.Handle("POST /v1/auth/mfa/email",
		partial(endpoint(r.handlers.EmailMfaRequested, http.StatusAccepted, nil), httpx.StrictLimit))
	r.Mux.Handle("POST /v1/auth/mfa/email/verify",
		partial(http.HandlerFunc(h.HandleEmailCode), httpx.StrictLimit))
	r.Mux.Handle("POST /v1/auth/mfa/app",
		partial(endpoint(r.handlers.AppMfaRequested, http.StatusNoContent, nil), httpx.StrictLimit))
	r.Mux.Handle("POST /v1/auth/mfa/app/verify",
		partial(http.HandlerFunc(h.HandleAppCode), httpx.StrictLimit))
	r.Mux.Handle("POST /v1/auth/mfa/device",
		partial(http.HandlerFunc(h.HandleDeviceChallenge), httpx.StrictLimit))
	r.Mux.Handle("POST /v1/auth/mfa/device/verify",
		partial(http.HandlerFunc(h.HandleDeviceAssertion), httpx.StrictLimit))
}

func (r *Router) registerAccount() {
	byIP := func(h http.Handler) http.Handler {
		return httpx.Chain(h, httpx.RateLimitByIP(httpx.StrictLimit))
	}

	r.Mux.Handle("POST /v1/setup",
		byIP(endpoint(r.handlers.CreateInitialUser, http.StatusCreated, nil)))

	r.Mux.Handle("POST /v1/account/password-reset",
		httpx.Chain(maskNotFound(r.handlers.RequestPasswordReset),
			httpx.RateLimitByIPAndJSONField(httpx.StrictLimit, "email"),
		),
	)
	r.Mux.Handle("POST /v1/account/password-reset/confirm",
		byIP(endpoint(r.handlers.PasswordReset, http.StatusNoContent, nil)))
	r.Mux.Handle("POST /v1/account/verification",
		httpx.Chain(maskNotFound(r.handlers.RequestAccountVerification),
			httpx.RateLimitByIPAndJSONField(httpx.StrictLimit, "email"),
		),
	)
	r.Mux.Handle("POST /v1/account/verification/confirm",
		byIP(endpoint(r.handlers.VerifyAccountAndSetPassword, http.StatusNoContent, nil)))
}

func (r *Router) registerMe() {
	h := &AuthHandler{Handlers: r.handlers, Sessions: r.sessions}
	moderate := httpx.ModerateLimit

	r.Mux.Handle("GET /v1/me", full(endpoint(r.handlers.GetCurrentUserDetails, http.StatusOK, nil), moderate))
	r.Mux.Handle("PUT /v1/me/profile", full(endpoint(r.handlers.UpdateProfile, http.StatusNoContent, nil), moderate))
	r.Mux.Handle("PUT /v1/me/password", full(endpoint(r.handlers.ChangePassword, http.StatusNoContent, nil), httpx.StrictLimit))

	r.Mux.Handle("POST /v1/me/authenticator-app/key",
		full(endpoint(r.handlers.GenerateAuthenticatorAppKey, http.StatusOK, nil), moderate))
	r.Mux.Handle("POST /v1/me/authenticator-app",
		full(endpoint(r.handlers.EnrollAuthenticatorApp, http.StatusNoContent, nil), httpx.StrictLimit))
	r.Mux.Handle("DELETE /v1/me/authenticator-app",
		full(endpoint(r.handlers.RevokeAuthenticatorApp, http.StatusNoContent, nil), httpx.StrictLimit))

	r.Mux.Handle("GET /v1/me/devices",
		full(endpoint(r.handlers.GetAuthenticatorDevices, http.StatusOK, nil), moderate))
	r.Mux.Handle("POST /v1/me/devices/challenge",
		full(http.HandlerFunc(h.HandleDeviceEnrollmentChallenge), moderate))
	r.Mux.Handle("POST /v1/me/devices",
		full(http.HandlerFunc(h.HandleDeviceEnrollment), moderate))
	r.Mux.Handle("DELETE /v1/me/devices/{id}",
		full(endpoint(r.handlers.RevokeAuthenticatorDevice, http.StatusNoContent,
			func(r *http.Request, cmd *command.RevokeAuthenticatorDevice) { cmd.DeviceID = r.PathValue("id") },
		), httpx.StrictLimit))
}

func (r *Router) registerUsers() {
	lenient := httpx.LenientLimit
	id := pathValue("id")

	r.Mux.Handle("GET /v1/users", full(endpoint(r.handlers.ListUsers, http.StatusOK, nil), lenient))
	r.Mux.Handle("POST /v1/users", full(endpoint(r.handlers.CreateUser, http.StatusCreated, nil), lenient))
	r.Mux.Handle("GET /v1/users/{id}", full(endpoint(r.handlers.GetUserByID, http.StatusOK,
		func(r *http.Request, q *command.GetUserByID) { q.UserID = id(r) },
	), lenient))
	r.Mux.Handle("PUT /v1/users/{id}", full(endpoint(r.handlers.UpdateUser, http.StatusNoContent,
		func(r *http.Request, cmd *command.UpdateUser) { cmd.UserID = id(r) },
	), lenient))

	r.Mux.Handle("POST /v1/users/{id}/disable", full(endpoint(r.handlers.DisableAccount, http.StatusNoContent,
		func(r *http.Request, cmd *command.DisableAccount) { cmd.UserID = id(r) },
	), lenient))
	r.Mux.Handle("POST /v1/users/{id}/enable", full(endpoint(r.handlers.EnableAccount, http.StatusNoContent,
		func(r *http.Request, cmd *command.EnableAccount) { cmd.UserID = id(r) },
	), lenient))
	r.Mux.Handle("POST /v1/users/{id}/lock", full(endpoint(r.handlers.LockAccount, http.StatusNoContent,
		func(r *http.Request, cmd *command.LockAccount) { cmd.UserID = id(r) },
	), lenient))
	r.Mux.Handle("POST /v1/users/{id}/unlock", full(endpoint(r.handlers.UnlockAccount, http.StatusNoContent,
		func(r *http.Request, cmd *command.UnlockAccount) { cmd.UserID = id(r) },
	), lenient))
}

func (r *Router) registerRoles() {
	lenient := httpx.LenientLimit
	id := pathValue("id")

	r.Mux.Handle("GET /v1/roles", full(endpoint(r.handlers.ListRoles, http.StatusOK, nil), lenient))
	r.Mux.Handle("POST /v1/roles", full(endpoint(r.handlers.CreateRole, http.StatusCreated, nil), lenient))
	r.Mux.Handle("PUT /v1/roles/{id}", full(endpoint(r.handlers.UpdateRole, http.StatusNoContent,
		func(r *http.Request, cmd *command.UpdateRole) { cmd.RoleID = id(r) },
	), lenient))
	r.Mux.Handle("DELETE /v1/roles/{id}", full(endpoint(r.handlers.DeleteRole, http.StatusNoContent,
		func(r *http.Request, cmd *command.DeleteRole) { cmd.RoleID = id(r) },
	), lenient))
}

func (r *Router) registerSystem() {
	r.Mux.Handle("GET /livez",
		httpx.Chain(LivezHandler(r.startTime, r.buildVersion),
			httpx.RateLimitByIP(httpx.LenientLimit),
		),
	)
	r.Mux.Handle("GET /readyz",
		httpx.Chain(ReadyzHandler(r.startTime, r.buildVersion, r.store, r.keys),
			httpx.RateLimitByIP(httpx.LenientLimit),
		),
	)
	r.Mux.Handle("GET /metrics", promhttp.Handler())
}
