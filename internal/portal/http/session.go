package http

import (
	"log/slog"
	"net/http"

	"github.com/gorilla/sessions"
	"github.com/initiumportal/stance/internal/portal/domain"
	"github.com/initiumportal/stance/internal/portal/principal"
	"github.com/initiumportal/stance/pkg/httpx"
	"github.com/initiumportal/stance/pkg/slogx"
)

// Session value keys.
const (
	keyUserID    = "uid"
	keyStage     = "stage"
	keyProviders = "providers"
	keyCeremony  = "webauthn"
)

// Sessions keeps the caller's principal and any pending WebAuthn ceremony in
// a signed cookie.
type Sessions struct {
	store sessions.Store
	name  string
}

// SessionConfig configures the session cookie.
type SessionConfig struct {
	Name    string
	HashKey []byte
	// BlockKey enables encryption of the cookie contents when set.
	BlockKey []byte
	MaxAge   int
	Secure   bool
}

// NewSessions creates a cookie-backed session store.
func NewSessions(cfg SessionConfig) *Sessions {
	var store *sessions.CookieStore
	if len(cfg.BlockKey) > 0 {
		store = sessions.NewCookieStore(cfg.HashKey, cfg.BlockKey)
	} else {
		store = sessions.NewCookieStore(cfg.HashKey)
	}
	store.Options = &sessions.Options{
		Path:     "/",
		MaxAge:   cfg.MaxAge,
		Secure:   cfg.Secure,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	}

	name := cfg.Name
	if name == "" {
		name = "stance_session"
	}
	return &Sessions{store: store, name: name}
}

// session returns the request's session. A cookie that fails to decode is
// replaced by a fresh session.
func (s *Sessions) session(r *http.Request) *sessions.Session {
	sess, err := s.store.Get(r, s.name)
	if err != nil {
		slogx.FromContext(r.Context()).Debug("discarding unreadable session", slog.Any("error", err))
	}
	return sess
}

// Middleware restores the principal from the session into the request
// context.
func (s *Sessions) Middleware() httpx.Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p := s.principal(r)

			ctx := principal.WithContext(r.Context(), p)
			if p.UserID != "" {
				ctx = slogx.With(ctx, slog.String("user_id", p.UserID), slog.String("stage", p.Stage.String()))
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func (s *Sessions) principal(r *http.Request) principal.Principal {
	sess := s.session(r)

	userID, _ := sess.Values[keyUserID].(string)
	stage, _ := sess.Values[keyStage].(int)
	providers, _ := sess.Values[keyProviders].(int)
	if userID == "" {
		return principal.Anonymous
	}
	return principal.Principal{
		Stage:     principal.Stage(stage),
		UserID:    userID,
		Providers: domain.MfaProvider(providers),
	}
}

// SignIn stores p as the session principal. Any pending ceremony is dropped.
func (s *Sessions) SignIn(w http.ResponseWriter, r *http.Request, p principal.Principal) error {
	sess := s.session(r)
	sess.Values = map[any]any{
		keyUserID:    p.UserID,
		keyStage:     int(p.Stage),
		keyProviders: int(p.Providers),
	}
	return sess.Save(r, w)
}

// SignOut expires the session cookie.
func (s *Sessions) SignOut(w http.ResponseWriter, r *http.Request) error {
	sess := s.session(r)
	sess.Values = map[any]any{}
	sess.Options.MaxAge = -1
	return sess.Save(r, w)
}

// PutCeremony remembers the server half of a WebAuthn ceremony.
func (s *Sessions) PutCeremony(w http.ResponseWriter, r *http.Request, data string) error {
	sess := s.session(r)
	sess.Values[keyCeremony] = data
	return sess.Save(r, w)
}

// TakeCeremony returns and forgets the pending ceremony, so each challenge
// is answered at most once.
func (s *Sessions) TakeCeremony(w http.ResponseWriter, r *http.Request) (string, error) {
	sess := s.session(r)
	data, _ := sess.Values[keyCeremony].(string)
	if data == "" {
		return "", nil
	}
	delete(sess.Values, keyCeremony)
	return data, sess.Save(r, w)
}

// RequireStage rejects requests whose principal has not reached stage.
func RequireStage(stage principal.Stage) httpx.Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !principal.FromContext(r.Context()).AtLeast(stage) {
				httpx.WriteError(w, http.StatusUnauthorized, "unauthenticated", "Sign in to continue")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// userKey buckets rate limits by the signed-in user.
func userKey(r *http.Request) string {
	return principal.FromContext(r.Context()).UserID
}
