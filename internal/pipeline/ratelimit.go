package pipeline

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"parishdesk/internal/config"
	"parishdesk/internal/observability"
)

const stageRateLimit = "rate_limit"

// WindowStore owns the shared rate-window table. Incr registers one request
// against a key and reports the running count for the current window plus the
// moment the window resets.
type WindowStore interface {
	Incr(ctx context.Context, key string, window time.Duration) (count int, resetAt time.Time, err error)
}

// RateLimiter gatekeeps every other stage with per-key sliding windows.
// Authenticated and unauthenticated traffic get separate ceilings.
type RateLimiter struct {
	Config   config.Config
	Windows  WindowStore
	Observer observability.Observer
	Now      func() time.Time
}

func NewRateLimiter(cfg config.Config, windows WindowStore, observer observability.Observer) *RateLimiter {
	return &RateLimiter{
		Config:   cfg,
		Windows:  windows,
		Observer: observer,
		Now:      func() time.Time { return time.Now().UTC() },
	}
}

func (rl *RateLimiter) Stage() Stage {
	return func(w http.ResponseWriter, r *http.Request, next Next) {
		for _, prefix := range rl.Config.RateLimit.BypassPrefixes {
			if strings.HasPrefix(r.URL.Path, prefix) {
				next(w, r)
				return
			}
		}

		key, limit := rl.keyFor(r)
		count, resetAt, err := rl.Windows.Incr(r.Context(), key, rl.Config.RateLimit.Window)
		if err != nil {
			// The window store is advisory; losing it must not take the
			// whole site down with it.
			rl.Observer.StageError(stageRateLimit, r.Header.Get(HeaderRequestID), err)
			next(w, r)
			return
		}
		if count > limit {
			rl.Observer.StageOutcome(stageRateLimit, observability.OutcomeRateLimited)
			writeRateLimited(w, rl.Now(), resetAt)
			return
		}

		rl.Observer.StageOutcome(stageRateLimit, observability.OutcomeForwarded)
		next(w, r)
	}
}

func (rl *RateLimiter) keyFor(r *http.Request) (string, int) {
	addr := clientAddr(r)
	if cookie, err := r.Cookie(rl.Config.Auth.SessionCookie); err == nil && strings.TrimSpace(cookie.Value) != "" {
		return "auth:" + cookie.Value + ":" + addr, rl.Config.RateLimit.AuthenticatedLimit
	}
	return "unauth:" + addr, rl.Config.RateLimit.UnauthenticatedLimit
}

func clientAddr(r *http.Request) string {
	if fwd := strings.TrimSpace(r.Header.Get("X-Forwarded-For")); fwd != "" {
		if first := strings.TrimSpace(strings.Split(fwd, ",")[0]); first != "" {
			return first
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err == nil && host != "" {
		return host
	}
	if r.RemoteAddr != "" {
		return r.RemoteAddr
	}
	return "unknown"
}

func writeRateLimited(w http.ResponseWriter, now time.Time, resetAt time.Time) {
	retryAfter := int(resetAt.Sub(now).Seconds())
	if retryAfter < 1 {
		retryAfter = 1
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
	w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(resetAt.Unix(), 10))
	w.WriteHeader(http.StatusTooManyRequests)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"error":      "rate_limited",
		"message":    "Too many requests. Please retry later.",
		"retryAfter": retryAfter,
	})
}

type rateWindow struct {
	count   int
	resetAt time.Time
}

// MemoryWindows is the in-process WindowStore. Expired windows are removed by
// a periodic sweep so the table does not grow without bound.
type MemoryWindows struct {
	now     func() time.Time
	mu      sync.Mutex
	windows map[string]*rateWindow
}

func NewMemoryWindows() *MemoryWindows {
	return &MemoryWindows{
		now:     func() time.Time { return time.Now().UTC() },
		windows: make(map[string]*rateWindow),
	}
}

func (m *MemoryWindows) Incr(_ context.Context, key string, window time.Duration) (int, time.Time, error) {
	now := m.now()

	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.windows[key]
	if !ok || !now.Before(entry.resetAt) {
		entry = &rateWindow{count: 1, resetAt: now.Add(window)}
		m.windows[key] = entry
		return entry.count, entry.resetAt, nil
	}
	entry.count++
	return entry.count, entry.resetAt, nil
}

// Sweep drops every window whose reset time has passed and reports how many
// were removed.
func (m *MemoryWindows) Sweep() int {
	now := m.now()

	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	for key, entry := range m.windows {
		if !now.Before(entry.resetAt) {
			delete(m.windows, key)
			removed++
		}
	}
	return removed
}

func (m *MemoryWindows) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.windows)
}

// RunSweeper evicts expired windows on the given interval until ctx is done.
func (m *MemoryWindows) RunSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Sweep()
		}
	}
}
