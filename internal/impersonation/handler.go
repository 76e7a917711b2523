package impersonation

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"parishdesk/internal/config"
	"parishdesk/internal/identity"
	"parishdesk/internal/pipeline"
)

// Handler exposes the privileged start/stop actions. These endpoints sit
// outside the tenant pipeline; they authenticate with the identity provider
// directly.
type Handler struct {
	Config   config.Config
	Provider identity.Provider
	Service  *Service
}

func NewHandler(cfg config.Config, provider identity.Provider, svc *Service) *Handler {
	return &Handler{
		Config:   cfg,
		Provider: provider,
		Service:  svc,
	}
}

func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/admin/impersonation/start", h.handleStart)
	mux.HandleFunc("/admin/impersonation/stop", h.handleStop)
}

func (h *Handler) handleStart(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	grantor, err := h.requireSuperadmin(r)
	if err != nil {
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}

	var req struct {
		TargetID string `json:"target_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	req.TargetID = strings.TrimSpace(req.TargetID)
	if req.TargetID == "" {
		http.Error(w, "missing target_id", http.StatusBadRequest)
		return
	}

	if err := h.Service.Start(r.Context(), grantor, req.TargetID); err != nil {
		switch {
		case errors.Is(err, ErrForbidden):
			http.Error(w, "forbidden", http.StatusForbidden)
		case errors.Is(err, ErrTargetMissing):
			http.Error(w, "target not found", http.StatusNotFound)
		case errors.Is(err, ErrSelfTarget):
			http.Error(w, "cannot impersonate yourself", http.StatusBadRequest)
		default:
			http.Error(w, "impersonation start failed", http.StatusInternalServerError)
		}
		return
	}

	http.SetCookie(w, pipeline.ImpersonationCookie(h.Config, req.TargetID))
	writeJSON(w, http.StatusOK, map[string]any{"impersonating": req.TargetID})
}

func (h *Handler) handleStop(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	grantor, err := h.requireSuperadmin(r)
	if err != nil {
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}

	if err := h.Service.Stop(r.Context(), grantor); err != nil {
		http.Error(w, "impersonation stop failed", http.StatusInternalServerError)
		return
	}

	http.SetCookie(w, pipeline.ExpiredImpersonationCookie(h.Config))
	writeJSON(w, http.StatusOK, map[string]any{"impersonating": nil})
}

func (h *Handler) requireSuperadmin(r *http.Request) (identity.Principal, error) {
	principal, _, err := h.Provider.CurrentPrincipal(r.Context(), r)
	if err != nil {
		return identity.Principal{}, err
	}
	if !principal.Superadmin {
		return identity.Principal{}, ErrForbidden
	}
	return principal, nil
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
