package pipeline

import (
	"context"
	"net/http"
	"strings"

	"parishdesk/internal/config"
	"parishdesk/internal/normalize"
	"parishdesk/internal/observability"
	"parishdesk/internal/store"
)

const stageTenant = "tenant"

// TenantSegment is the fixed first path segment under which tenant-scoped
// routes live: /org/<slug>/...
const TenantSegment = "org"

type MembershipLookupFunc func(ctx context.Context, profileID string, slug string) (store.TenantMembership, error)
type OrgLookupFunc func(ctx context.Context, slug string) (store.Organization, error)

// TenantResolver maps the URL-embedded organization slug to an organization
// id plus the principal's role within it. Every failure mode produces the
// same redirect, so a slug's existence cannot be probed. Privileged
// principals resolve the organization directly; membership is not required
// of them.
type TenantResolver struct {
	Config           config.Config
	LookupMembership MembershipLookupFunc
	LookupOrg        OrgLookupFunc
	Observer         observability.Observer
}

func NewTenantResolver(cfg config.Config, st *store.Store, observer observability.Observer) *TenantResolver {
	tr := &TenantResolver{
		Config:   cfg,
		Observer: observer,
	}
	if st != nil {
		tr.LookupMembership = st.LookupMembershipBySlug
		tr.LookupOrg = st.GetOrganizationBySlug
	}
	return tr
}

func (tr *TenantResolver) Stage() Stage {
	return func(w http.ResponseWriter, r *http.Request, next Next) {
		slug := TenantSlug(r.URL.Path)
		if slug == "" {
			// Not a tenant-scoped route; nothing to resolve here.
			next(w, r)
			return
		}

		rc, ok := RequestContextFrom(r.Context())
		if !ok || rc.UserID == "" {
			tr.Observer.StageOutcome(stageTenant, observability.OutcomeSignIn)
			http.Redirect(w, r, tr.Config.Auth.SignInURL, http.StatusFound)
			return
		}

		slug, err := normalize.OrgSlug(slug)
		if err != nil {
			// A malformed slug gets the same answer as an unknown one.
			tr.Observer.StageOutcome(stageTenant, observability.OutcomeDenied)
			http.Redirect(w, r, tr.Config.Auth.AppRootURL, http.StatusFound)
			return
		}

		if rc.Superadmin {
			org, err := tr.LookupOrg(r.Context(), slug)
			if err != nil {
				tr.Observer.StageOutcome(stageTenant, observability.OutcomeDenied)
				http.Redirect(w, r, tr.Config.Auth.AppRootURL, http.StatusFound)
				return
			}
			rc.OrgID = org.ID
			rc.OrgSlug = org.Slug
			rc.ApplyTenant(r)
			tr.Observer.StageOutcome(stageTenant, observability.OutcomeForwarded)
			next(w, r)
			return
		}

		membership, err := tr.LookupMembership(r.Context(), rc.UserID, slug)
		if err != nil {
			// No membership, unknown slug, and a query failure all look the
			// same from outside.
			tr.Observer.StageOutcome(stageTenant, observability.OutcomeDenied)
			http.Redirect(w, r, tr.Config.Auth.AppRootURL, http.StatusFound)
			return
		}

		rc.OrgID = membership.OrgID
		rc.OrgSlug = membership.OrgSlug
		rc.Role = membership.Role
		rc.ApplyTenant(r)
		tr.Observer.StageOutcome(stageTenant, observability.OutcomeForwarded)
		next(w, r)
	}
}

// TenantSlug extracts the organization slug from a tenant-scoped path, or ""
// when the path is not tenant-scoped.
func TenantSlug(path string) string {
	parts := strings.Split(strings.Trim(path, "/"), "/")
	if len(parts) < 2 || parts[0] != TenantSegment {
		return ""
	}
	return parts[1]
}
