package pipeline

import (
	"errors"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"parishdesk/internal/config"
	"parishdesk/internal/identity"
	"parishdesk/internal/observability"
)

const stageSession = "session"

// SessionVerifier confirms the request carries a live principal before any
// later stage runs. Public paths pass through untouched.
type SessionVerifier struct {
	Config   config.Config
	Provider identity.Provider
	Observer observability.Observer
}

func NewSessionVerifier(cfg config.Config, provider identity.Provider, observer observability.Observer) *SessionVerifier {
	return &SessionVerifier{
		Config:   cfg,
		Provider: provider,
		Observer: observer,
	}
}

func (sv *SessionVerifier) Stage() Stage {
	return func(w http.ResponseWriter, r *http.Request, next Next) {
		if isPublicPath(r.URL.Path, sv.Config.Auth.PublicPaths) {
			next(w, r)
			return
		}

		principal, session, err := sv.Provider.CurrentPrincipal(r.Context(), r)
		if err != nil {
			// A provider outage is indistinguishable from a dead session at
			// this boundary; both end at sign-in.
			if !errors.Is(err, identity.ErrUnauthorized) {
				sv.Observer.StageError(stageSession, requestID(r), err)
			}
			sv.Observer.StageOutcome(stageSession, observability.OutcomeSignIn)
			http.Redirect(w, r, sv.Config.Auth.SignInURL, http.StatusFound)
			return
		}

		// A principal without a session means a revoked-but-cached login.
		if session.Token == "" || session.PrincipalID != principal.ID {
			sv.Observer.StageOutcome(stageSession, observability.OutcomeSignIn)
			http.Redirect(w, r, sv.Config.Auth.SignInURL, http.StatusFound)
			return
		}

		rc, ok := RequestContextFrom(r.Context())
		if !ok {
			rc = &RequestContext{}
			r = r.WithContext(WithRequestContext(r.Context(), rc))
		}
		if rc.RequestID == "" {
			rc.RequestID = uuid.NewString()
		}
		rc.UserID = principal.ID
		rc.EffectiveUserID = principal.ID
		rc.SessionToken = session.Token
		rc.Superadmin = principal.Superadmin
		rc.ApplyIdentity(r)

		r = r.WithContext(identity.WithPrincipal(r.Context(), principal))
		sv.Observer.StageOutcome(stageSession, observability.OutcomeForwarded)
		next(w, r)
	}
}

func isPublicPath(path string, public []string) bool {
	for _, p := range public {
		if p == "" {
			continue
		}
		if path == p {
			return true
		}
		if strings.HasSuffix(p, "/") && strings.HasPrefix(path, p) {
			return true
		}
	}
	return false
}

func requestID(r *http.Request) string {
	return r.Header.Get(HeaderRequestID)
}
