package impersonation

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"parishdesk/internal/config"
	"parishdesk/internal/identity"
	"parishdesk/internal/store"
)

var (
	ErrForbidden     = errors.New("forbidden")
	ErrTargetMissing = errors.New("impersonation target not found")
	ErrSelfTarget    = errors.New("cannot impersonate yourself")
)

type MetaWriteFunc func(ctx context.Context, grantorID string, raw []byte) error
type MetaClearFunc func(ctx context.Context, grantorID string) error
type AuditFunc func(ctx context.Context, actorID string, targetID string, action string, detail string) error

// Service owns the explicit start/stop actions. The per-request pipeline only
// validates grants; it never creates them.
type Service struct {
	Config    config.Config
	Provider  identity.Provider
	SetMeta   MetaWriteFunc
	ClearMeta MetaClearFunc
	Audit     AuditFunc
	Now       func() time.Time
}

func NewService(cfg config.Config, provider identity.Provider, st *store.Store) *Service {
	svc := &Service{
		Config:   cfg,
		Provider: provider,
		Now:      func() time.Time { return time.Now().UTC() },
	}
	if st != nil {
		svc.SetMeta = st.SetImpersonationMeta
		svc.ClearMeta = st.ClearImpersonationMeta
		svc.Audit = st.RecordAudit
	}
	return svc
}

type grantMeta struct {
	TargetID  string `json:"target_id"`
	StartedAt string `json:"started_at"`
}

// Start grants the privileged grantor the target's identity. Both the grant
// metadata and an audit row are written; the caller is responsible for
// setting the client-side marker cookie.
func (s *Service) Start(ctx context.Context, grantor identity.Principal, targetID string) error {
	if !grantor.Superadmin {
		return ErrForbidden
	}
	if targetID == grantor.ID {
		return ErrSelfTarget
	}
	target, err := s.Provider.GetPrincipal(ctx, targetID)
	if err != nil {
		if errors.Is(err, identity.ErrUnauthorized) {
			return ErrTargetMissing
		}
		return err
	}

	raw, err := json.Marshal(grantMeta{
		TargetID:  target.ID,
		StartedAt: s.Now().Format(time.RFC3339),
	})
	if err != nil {
		return err
	}
	if err := s.SetMeta(ctx, grantor.ID, raw); err != nil {
		return err
	}
	if err := s.Audit(ctx, grantor.ID, target.ID, "impersonation.start", target.Email); err != nil {
		return err
	}
	return nil
}

// Stop clears the grant metadata and records the stop action. Stopping
// without an active grant is not an error; the result is the same.
func (s *Service) Stop(ctx context.Context, grantor identity.Principal) error {
	if err := s.ClearMeta(ctx, grantor.ID); err != nil {
		return err
	}
	if err := s.Audit(ctx, grantor.ID, "", "impersonation.stop", ""); err != nil {
		return err
	}
	return nil
}
