package pipeline

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"

	"parishdesk/internal/config"
	"parishdesk/internal/observability"
)

const stageRBAC = "rbac"

// RoleSuperadmin is the synthetic role granted to privileged principals; it
// never appears in the memberships table.
const RoleSuperadmin = "superadmin"

type RoleLookupFunc func(ctx context.Context, profileID string, orgID string) (string, error)

// RBACGate makes the final role decision. It fails closed: without the
// identity and tenant facts from earlier stages no request passes. Privilege
// always precedes and can override membership absence.
type RBACGate struct {
	Config     config.Config
	LookupRole RoleLookupFunc
	Observer   observability.Observer
}

func NewRBACGate(cfg config.Config, lookupRole RoleLookupFunc, observer observability.Observer) *RBACGate {
	return &RBACGate{
		Config:     cfg,
		LookupRole: lookupRole,
		Observer:   observer,
	}
}

func (g *RBACGate) Stage() Stage {
	return func(w http.ResponseWriter, r *http.Request, next Next) {
		rc, ok := RequestContextFrom(r.Context())
		if !ok || rc.UserID == "" || rc.OrgID == "" || r.Header.Get(HeaderUserID) == "" || r.Header.Get(HeaderOrgID) == "" {
			g.Observer.StageOutcome(stageRBAC, observability.OutcomeError)
			writeForbidden(w)
			return
		}

		if rc.Superadmin {
			rc.Role = RoleSuperadmin
			rc.ApplyRole(r)
			g.Observer.StageOutcome(stageRBAC, observability.OutcomeForwarded)
			next(w, r)
			return
		}

		role, err := g.LookupRole(r.Context(), rc.UserID, rc.OrgID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				// Access denied, not unauthenticated; never bounce to
				// sign-in from here.
				g.Observer.StageOutcome(stageRBAC, observability.OutcomeDenied)
				http.Redirect(w, r, g.Config.Auth.AppRootURL, http.StatusFound)
				return
			}
			g.Observer.StageError(stageRBAC, rc.RequestID, err)
			g.Observer.StageOutcome(stageRBAC, observability.OutcomeError)
			http.Redirect(w, r, g.Config.Auth.ErrorURL, http.StatusFound)
			return
		}

		rc.Role = role
		rc.ApplyRole(r)
		g.Observer.StageOutcome(stageRBAC, observability.OutcomeForwarded)
		next(w, r)
	}
}

func writeForbidden(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusForbidden)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"error":   "forbidden",
		"message": "Request context is incomplete.",
	})
}
