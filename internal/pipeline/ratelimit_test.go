package pipeline

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"parishdesk/internal/observability"
)

func limiterForTest(windows WindowStore) *RateLimiter {
	cfg := testConfig()
	cfg.RateLimit.AuthenticatedLimit = 5
	cfg.RateLimit.UnauthenticatedLimit = 3
	cfg.RateLimit.Window = 60 * time.Second
	return NewRateLimiter(cfg, windows, observability.Noop{})
}

func TestMemoryWindowsMonotonicAndReset(t *testing.T) {
	windows := NewMemoryWindows()
	now := time.Unix(1000, 0)
	windows.now = func() time.Time { return now }

	for i := 1; i <= 4; i++ {
		count, resetAt, err := windows.Incr(context.Background(), "key", 60*time.Second)
		if err != nil {
			t.Fatalf("incr: %v", err)
		}
		if count != i {
			t.Fatalf("expected count %d, got %d", i, count)
		}
		if resetAt != time.Unix(1060, 0) {
			t.Fatalf("unexpected reset time: %v", resetAt)
		}
	}

	now = time.Unix(1061, 0)
	count, resetAt, err := windows.Incr(context.Background(), "key", 60*time.Second)
	if err != nil {
		t.Fatalf("incr after window: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected counter reset to 1, got %d", count)
	}
	if resetAt != time.Unix(1121, 0) {
		t.Fatalf("unexpected reset time after rollover: %v", resetAt)
	}
}

func TestMemoryWindowsSweepEvictsExpired(t *testing.T) {
	windows := NewMemoryWindows()
	now := time.Unix(1000, 0)
	windows.now = func() time.Time { return now }

	if _, _, err := windows.Incr(context.Background(), "stale", 10*time.Second); err != nil {
		t.Fatalf("incr: %v", err)
	}
	if _, _, err := windows.Incr(context.Background(), "fresh", 120*time.Second); err != nil {
		t.Fatalf("incr: %v", err)
	}

	now = time.Unix(1030, 0)
	if removed := windows.Sweep(); removed != 1 {
		t.Fatalf("expected 1 window swept, got %d", removed)
	}
	if windows.Len() != 1 {
		t.Fatalf("expected 1 window remaining, got %d", windows.Len())
	}
}

func TestRateLimiterRejectsOverLimit(t *testing.T) {
	limiter := limiterForTest(NewMemoryWindows())
	stage := limiter.Stage()

	var lastRec *httptest.ResponseRecorder
	forwarded := 0
	for i := 0; i < 4; i++ {
		req := httptest.NewRequest(http.MethodGet, "/org/demo/dashboard", nil)
		req.RemoteAddr = "10.0.0.9:4455"
		rec := httptest.NewRecorder()
		stage(rec, req, func(w http.ResponseWriter, r *http.Request) {
			forwarded++
		})
		lastRec = rec
	}

	if forwarded != 3 {
		t.Fatalf("expected 3 forwarded requests, got %d", forwarded)
	}
	if lastRec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", lastRec.Code)
	}
	retryAfter, err := strconv.Atoi(lastRec.Header().Get("Retry-After"))
	if err != nil || retryAfter < 1 {
		t.Fatalf("expected positive Retry-After, got %q", lastRec.Header().Get("Retry-After"))
	}
	if lastRec.Header().Get("X-RateLimit-Reset") == "" {
		t.Fatalf("expected X-RateLimit-Reset header")
	}
	if body := lastRec.Body.String(); body == "" {
		t.Fatalf("expected a JSON body")
	}
}

func TestRateLimiterAuthenticatedKeyGetsHigherCeiling(t *testing.T) {
	limiter := limiterForTest(NewMemoryWindows())
	stage := limiter.Stage()

	forwarded := 0
	for i := 0; i < 5; i++ {
		req := httptest.NewRequest(http.MethodGet, "/org/demo/dashboard", nil)
		req.RemoteAddr = "10.0.0.9:4455"
		req.AddCookie(&http.Cookie{Name: limiter.Config.Auth.SessionCookie, Value: "session-token"})
		rec := httptest.NewRecorder()
		stage(rec, req, func(w http.ResponseWriter, r *http.Request) {
			forwarded++
		})
		if rec.Code == http.StatusTooManyRequests {
			t.Fatalf("request %d unexpectedly limited", i+1)
		}
	}
	if forwarded != 5 {
		t.Fatalf("expected all 5 authenticated requests forwarded, got %d", forwarded)
	}
}

func TestRateLimiterKeysSeparateClients(t *testing.T) {
	limiter := limiterForTest(NewMemoryWindows())
	stage := limiter.Stage()

	for i := 0; i < 6; i++ {
		req := httptest.NewRequest(http.MethodGet, "/org/demo", nil)
		req.RemoteAddr = fmt.Sprintf("10.0.0.%d:1000", i)
		rec := httptest.NewRecorder()
		stage(rec, req, func(w http.ResponseWriter, r *http.Request) {})
		if rec.Code == http.StatusTooManyRequests {
			t.Fatalf("distinct clients should not share a window")
		}
	}
}

func TestRateLimiterBypassPrefixes(t *testing.T) {
	limiter := limiterForTest(NewMemoryWindows())
	stage := limiter.Stage()

	for i := 0; i < 20; i++ {
		req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
		req.RemoteAddr = "10.0.0.9:4455"
		rec := httptest.NewRecorder()
		forwarded := false
		stage(rec, req, func(w http.ResponseWriter, r *http.Request) {
			forwarded = true
		})
		if !forwarded {
			t.Fatalf("bypass path should never be limited")
		}
	}
}

func TestClientAddrFallbacks(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = ""
	if got := clientAddr(req); got != "unknown" {
		t.Fatalf("expected unknown sentinel, got %q", got)
	}

	req.RemoteAddr = "192.168.1.7:9999"
	if got := clientAddr(req); got != "192.168.1.7" {
		t.Fatalf("expected host from remote addr, got %q", got)
	}

	req.Header.Set("X-Forwarded-For", "203.0.113.4, 10.0.0.1")
	if got := clientAddr(req); got != "203.0.113.4" {
		t.Fatalf("expected first forwarded address, got %q", got)
	}
}

func TestRateLimiterFailsOpenOnStoreError(t *testing.T) {
	limiter := limiterForTest(failingWindows{})
	stage := limiter.Stage()

	req := httptest.NewRequest(http.MethodGet, "/org/demo", nil)
	rec := httptest.NewRecorder()
	forwarded := false
	stage(rec, req, func(w http.ResponseWriter, r *http.Request) {
		forwarded = true
	})
	if !forwarded {
		t.Fatalf("expected store failure to fail open")
	}
}

type failingWindows struct{}

func (failingWindows) Incr(_ context.Context, _ string, _ time.Duration) (int, time.Time, error) {
	return 0, time.Time{}, fmt.Errorf("window store down")
}
