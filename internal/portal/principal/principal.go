// Package principal carries the identity acting on a request.
package principal

import (
	"context"

	"github.com/initiumportal/stance/internal/portal/domain"
)

// Stage is how far through sign-in the principal has progressed.
type Stage int

const (
	Unauthenticated Stage = iota
	// PartiallyAuthenticated principals passed the password check and still
	// owe a second factor.
	PartiallyAuthenticated
	FullyAuthenticated
)

func (s Stage) String() string {
	switch s {
	case PartiallyAuthenticated:
		return "partial"
	case FullyAuthenticated:
		return "full"
	default:
		return "anonymous"
	}
}

type Principal struct {
	Stage     Stage
	UserID    string
	Providers domain.MfaProvider
	Email     string
	FirstName string
	LastName  string
	IsAdmin   bool
}

// Anonymous is the principal of an unauthenticated request.
var Anonymous = Principal{Stage: Unauthenticated}

// FromUser builds a principal for u at stage.
func FromUser(u *domain.User, stage Stage, providers domain.MfaProvider) Principal {
	return Principal{
		Stage:     stage,
		UserID:    u.ID,
		Providers: providers,
		Email:     u.Email,
		FirstName: u.Profile.FirstName,
		LastName:  u.Profile.LastName,
		IsAdmin:   u.IsAdmin,
	}
}

// AtLeast reports whether the principal reached stage.
func (p Principal) AtLeast(stage Stage) bool {
	return p.UserID != "" && p.Stage >= stage
}

type ctxKey struct{}

func WithContext(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, ctxKey{}, p)
}

// FromContext returns the request's principal or Anonymous.
func FromContext(ctx context.Context) Principal {
	p, ok := ctx.Value(ctxKey{}).(Principal)
	if !ok {
		return Anonymous
	}
	return p
}

// Provider resolves the principal a command acts as.
type Provider interface {
	Current(ctx context.Context) Principal
}

// ContextProvider reads the principal stored by WithContext.
type ContextProvider struct{}

func (ContextProvider) Current(ctx context.Context) Principal { return FromContext(ctx) }
