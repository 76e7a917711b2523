package pipeline

import "net/http"

// Header contract with downstream page/API handlers. These are set only by
// the pipeline; any client-supplied values are stripped before resolution
// begins.
const (
	HeaderUserID        = "x-user-id"
	HeaderSessionToken  = "x-session-token"
	HeaderRequestID     = "x-request-id"
	HeaderImpersonating = "x-impersonating-id"
	HeaderRealUserID    = "x-real-user-id"
	HeaderOrgID         = "x-organization-id"
	HeaderOrgSlug       = "x-organization-slug"
	HeaderUserRole      = "x-user-role"
	HeaderSuperadmin    = "x-is-superadmin"
)

var contractHeaders = []string{
	HeaderUserID,
	HeaderSessionToken,
	HeaderRequestID,
	HeaderImpersonating,
	HeaderRealUserID,
	HeaderOrgID,
	HeaderOrgSlug,
	HeaderUserRole,
	HeaderSuperadmin,
}

// StripContractHeaders removes every pipeline-owned header from an inbound
// request so a client can never pre-seed resolved identity.
func StripContractHeaders(r *http.Request) {
	for _, name := range contractHeaders {
		r.Header.Del(name)
	}
}
