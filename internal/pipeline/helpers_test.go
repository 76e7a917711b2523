package pipeline

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"parishdesk/internal/config"
	"parishdesk/internal/identity"
	"parishdesk/internal/observability"
)

func testConfig() config.Config {
	cfg := config.Default()
	cfg.Auth.TokenSigningKey = "test-key"
	cfg.Dev.Mode = true
	return cfg
}

// fakeProvider implements identity.Provider from in-memory maps.
type fakeProvider struct {
	cookie     string
	principals map[string]identity.Principal
	sessions   map[string]string // session token -> principal id
	err        error
}

func newFakeProvider(cfg config.Config) *fakeProvider {
	return &fakeProvider{
		cookie:     cfg.Auth.SessionCookie,
		principals: make(map[string]identity.Principal),
		sessions:   make(map[string]string),
	}
}

func (f *fakeProvider) addUser(id, email string, superadmin bool, token string) {
	f.principals[id] = identity.Principal{ID: id, Email: email, Superadmin: superadmin}
	if token != "" {
		f.sessions[token] = id
	}
}

func (f *fakeProvider) CurrentPrincipal(_ context.Context, r *http.Request) (identity.Principal, identity.Session, error) {
	if f.err != nil {
		return identity.Principal{}, identity.Session{}, f.err
	}
	cookie, err := r.Cookie(f.cookie)
	if err != nil || cookie.Value == "" {
		return identity.Principal{}, identity.Session{}, identity.ErrUnauthorized
	}
	id, ok := f.sessions[cookie.Value]
	if !ok {
		return identity.Principal{}, identity.Session{}, identity.ErrUnauthorized
	}
	principal, ok := f.principals[id]
	if !ok {
		return identity.Principal{}, identity.Session{}, identity.ErrUnauthorized
	}
	session := identity.Session{
		Token:       cookie.Value,
		PrincipalID: id,
		ExpiresAt:   time.Now().Add(time.Hour),
	}
	return principal, session, nil
}

func (f *fakeProvider) GetPrincipal(_ context.Context, principalID string) (identity.Principal, error) {
	if f.err != nil {
		return identity.Principal{}, f.err
	}
	principal, ok := f.principals[principalID]
	if !ok {
		return identity.Principal{}, identity.ErrUnauthorized
	}
	return principal, nil
}

// runChain executes stages against req and reports whether the terminal
// handler was reached, along with the request it saw.
func runChain(t *testing.T, stages []Stage, req *http.Request) (*httptest.ResponseRecorder, bool, *http.Request) {
	t.Helper()
	rec := httptest.NewRecorder()
	reached := false
	var finalReq *http.Request
	handler := Chain(stages, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reached = true
		finalReq = r
		w.WriteHeader(http.StatusOK)
	}), observability.Noop{})
	handler.ServeHTTP(rec, req)
	return rec, reached, finalReq
}

func expectRedirect(t *testing.T, rec *httptest.ResponseRecorder, location string) {
	t.Helper()
	if rec.Code != http.StatusFound {
		t.Fatalf("expected 302 redirect, got %d", rec.Code)
	}
	if got := rec.Header().Get("Location"); got != location {
		t.Fatalf("expected redirect to %s, got %s", location, got)
	}
}
