package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"parishdesk/internal/config"
	"parishdesk/internal/identity"
	"parishdesk/internal/observability"
	"parishdesk/internal/store"
)

const stageImpersonation = "impersonation"

// grantSchema guards the impersonation metadata read back from the database.
// The column is writable by the surrounding platform, so its shape is
// re-checked before the grant is trusted.
const grantSchema = `{
	"type": "object",
	"required": ["target_id", "started_at"],
	"properties": {
		"target_id": {"type": "string", "minLength": 1},
		"started_at": {"type": "string", "format": "date-time"}
	}
}`

// Grant is the server-side half of an impersonation grant, stored as
// metadata on the grantor's profile row.
type Grant struct {
	TargetID  string `json:"target_id"`
	StartedAt string `json:"started_at"`
}

type MetaLookupFunc func(ctx context.Context, grantorID string) ([]byte, error)
type MetaClearFunc func(ctx context.Context, grantorID string) error

// ImpersonationResolver validates an impersonation marker on every request.
// The grantor's privilege and the target's existence are both re-read each
// time; a cached claim is never enough to keep acting as someone else.
type ImpersonationResolver struct {
	Config    config.Config
	Provider  identity.Provider
	GetMeta   MetaLookupFunc
	ClearMeta MetaClearFunc
	Observer  observability.Observer

	schema *jsonschema.Schema
}

func NewImpersonationResolver(cfg config.Config, provider identity.Provider, st *store.Store, observer observability.Observer) *ImpersonationResolver {
	ir := &ImpersonationResolver{
		Config:   cfg,
		Provider: provider,
		Observer: observer,
		schema:   jsonschema.MustCompileString("grant.json", grantSchema),
	}
	if st != nil {
		ir.GetMeta = st.GetImpersonationMeta
		ir.ClearMeta = st.ClearImpersonationMeta
	}
	return ir
}

func (ir *ImpersonationResolver) Stage() Stage {
	return func(w http.ResponseWriter, r *http.Request, next Next) {
		cookie, err := r.Cookie(ir.Config.Auth.ImpersonationCookie)
		if err != nil || strings.TrimSpace(cookie.Value) == "" {
			next(w, r)
			return
		}
		marker := strings.TrimSpace(cookie.Value)

		rc, ok := RequestContextFrom(r.Context())
		if !ok || rc.UserID == "" {
			ir.clearCookie(w)
			ir.Observer.StageOutcome(stageImpersonation, observability.OutcomeSignIn)
			http.Redirect(w, r, ir.Config.Auth.SignInURL, http.StatusFound)
			return
		}

		grantor, err := ir.Provider.GetPrincipal(r.Context(), rc.UserID)
		if err != nil {
			if errors.Is(err, identity.ErrUnauthorized) {
				ir.clearCookie(w)
				ir.Observer.StageOutcome(stageImpersonation, observability.OutcomeSignIn)
				http.Redirect(w, r, ir.Config.Auth.SignInURL, http.StatusFound)
				return
			}
			ir.Observer.StageError(stageImpersonation, rc.RequestID, err)
			ir.Observer.StageOutcome(stageImpersonation, observability.OutcomeError)
			http.Redirect(w, r, ir.Config.Auth.ErrorURL, http.StatusFound)
			return
		}

		// Privilege may have been revoked after the grant started.
		if !grantor.Superadmin {
			ir.clearCookie(w)
			ir.Observer.StageOutcome(stageImpersonation, observability.OutcomeDenied)
			http.Redirect(w, r, ir.Config.Auth.AppRootURL, http.StatusFound)
			return
		}

		grant, ok := ir.lookupGrant(r.Context(), grantor.ID)
		if !ok || grant.TargetID != marker {
			// Cookie and server metadata disagree; neither side is trusted.
			ir.clearCookie(w)
			ir.clearMeta(r.Context(), grantor.ID, rc.RequestID)
			next(w, r)
			return
		}

		target, err := ir.Provider.GetPrincipal(r.Context(), grant.TargetID)
		if err != nil {
			if errors.Is(err, identity.ErrUnauthorized) {
				// Target no longer exists; the grant dies with it.
				ir.clearCookie(w)
				ir.clearMeta(r.Context(), grantor.ID, rc.RequestID)
				next(w, r)
				return
			}
			ir.Observer.StageError(stageImpersonation, rc.RequestID, err)
			ir.Observer.StageOutcome(stageImpersonation, observability.OutcomeError)
			http.Redirect(w, r, ir.Config.Auth.ErrorURL, http.StatusFound)
			return
		}

		rc.EffectiveUserID = target.ID
		rc.Impersonating = true
		rc.ApplyImpersonation(r)
		ir.Observer.StageOutcome(stageImpersonation, observability.OutcomeForwarded)
		next(w, r)
	}
}

// lookupGrant reads and validates the server-side grant metadata. Anything
// malformed counts as no grant.
func (ir *ImpersonationResolver) lookupGrant(ctx context.Context, grantorID string) (Grant, bool) {
	if ir.GetMeta == nil {
		return Grant{}, false
	}
	raw, err := ir.GetMeta(ctx, grantorID)
	if err != nil || len(raw) == 0 {
		return Grant{}, false
	}

	var decoded any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return Grant{}, false
	}
	if err := ir.schema.Validate(decoded); err != nil {
		return Grant{}, false
	}

	var grant Grant
	if err := json.Unmarshal(raw, &grant); err != nil {
		return Grant{}, false
	}
	return grant, true
}

func (ir *ImpersonationResolver) clearMeta(ctx context.Context, grantorID string, requestID string) {
	if ir.ClearMeta == nil {
		return
	}
	if err := ir.ClearMeta(ctx, grantorID); err != nil {
		ir.Observer.StageError(stageImpersonation, requestID, err)
	}
}

func (ir *ImpersonationResolver) clearCookie(w http.ResponseWriter) {
	http.SetCookie(w, ExpiredImpersonationCookie(ir.Config))
}

// ImpersonationCookie builds the marker cookie carrying the target id.
func ImpersonationCookie(cfg config.Config, targetID string) *http.Cookie {
	return &http.Cookie{
		Name:     cfg.Auth.ImpersonationCookie,
		Value:    targetID,
		Path:     "/",
		HttpOnly: true,
		Secure:   !cfg.Dev.Mode,
		SameSite: http.SameSiteLaxMode,
	}
}

// ExpiredImpersonationCookie builds the deletion form of the marker cookie.
func ExpiredImpersonationCookie(cfg config.Config) *http.Cookie {
	cookie := ImpersonationCookie(cfg, "")
	cookie.MaxAge = -1
	return cookie
}
