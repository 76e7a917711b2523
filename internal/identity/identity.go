package identity

import (
	"context"
	"errors"
	"net/http"
	"time"
)

var (
	ErrUnauthorized = errors.New("unauthorized")
	// ErrUpstream marks a provider failure where the trust boundary could not
	// be verified, as opposed to a definite authentication failure.
	ErrUpstream = errors.New("identity provider unavailable")
)

// Principal is an authenticated actor recognized by the identity provider.
type Principal struct {
	ID         string
	Email      string
	Superadmin bool
}

// Session is the live session backing a request. Token is the opaque value
// the client presented; the pipeline forwards it for rate-limit keying.
type Session struct {
	Token       string
	PrincipalID string
	ExpiresAt   time.Time
}

// Provider is the surface the request pipeline consumes. Implementations are
// supplied by the surrounding platform.
type Provider interface {
	// CurrentPrincipal resolves the authenticated principal and session for
	// the request, or ErrUnauthorized when the request carries no valid
	// session.
	CurrentPrincipal(ctx context.Context, r *http.Request) (Principal, Session, error)
	// GetPrincipal looks up a principal row by id.
	GetPrincipal(ctx context.Context, principalID string) (Principal, error)
}

type principalContextKey struct{}

func WithPrincipal(ctx context.Context, principal Principal) context.Context {
	return context.WithValue(ctx, principalContextKey{}, principal)
}

func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	principal, ok := ctx.Value(principalContextKey{}).(Principal)
	return principal, ok
}
