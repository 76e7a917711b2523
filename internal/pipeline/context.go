package pipeline

import (
	"context"
	"net/http"
)

// RequestContext is the per-request bundle of resolved identity, tenant, and
// role facts. It lives only for the duration of one request; the header
// contract is its serialized form for downstream handlers.
type RequestContext struct {
	RequestID       string
	UserID          string
	EffectiveUserID string
	SessionToken    string
	OrgID           string
	OrgSlug         string
	Role            string
	Superadmin      bool
	Impersonating   bool
}

type requestContextKey struct{}

func WithRequestContext(ctx context.Context, rc *RequestContext) context.Context {
	return context.WithValue(ctx, requestContextKey{}, rc)
}

func RequestContextFrom(ctx context.Context) (*RequestContext, bool) {
	rc, ok := ctx.Value(requestContextKey{}).(*RequestContext)
	return rc, ok
}

// ApplyIdentity mirrors the session-stage fields onto the request headers.
func (rc *RequestContext) ApplyIdentity(r *http.Request) {
	r.Header.Set(HeaderUserID, rc.UserID)
	r.Header.Set(HeaderRequestID, rc.RequestID)
	if rc.SessionToken != "" {
		r.Header.Set(HeaderSessionToken, rc.SessionToken)
	}
}

// ApplyImpersonation mirrors an active impersonation grant onto the request
// headers.
func (rc *RequestContext) ApplyImpersonation(r *http.Request) {
	r.Header.Set(HeaderImpersonating, rc.EffectiveUserID)
	r.Header.Set(HeaderRealUserID, rc.UserID)
}

// ApplyTenant mirrors the resolved organization and role onto the request
// headers.
func (rc *RequestContext) ApplyTenant(r *http.Request) {
	r.Header.Set(HeaderOrgID, rc.OrgID)
	r.Header.Set(HeaderOrgSlug, rc.OrgSlug)
	if rc.Role != "" {
		r.Header.Set(HeaderUserRole, rc.Role)
	}
}

// ApplyRole mirrors the final role decision onto the request headers.
func (rc *RequestContext) ApplyRole(r *http.Request) {
	r.Header.Set(HeaderUserRole, rc.Role)
	if rc.Superadmin {
		r.Header.Set(HeaderSuperadmin, "true")
	}
}
