package app

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"parishdesk/internal/config"
	"parishdesk/internal/identity"
	"parishdesk/internal/impersonation"
	"parishdesk/internal/observability"
	"parishdesk/internal/pipeline"
	"parishdesk/internal/store"
)

type App struct {
	Config   config.Config
	Store    *store.Store
	Identity *identity.Service
	Windows  pipeline.WindowStore
	Observer observability.Observer

	memory *pipeline.MemoryWindows
	redis  *pipeline.RedisWindows
}

func New(ctx context.Context, cfg config.Config) (*App, error) {
	st, err := store.Open(cfg.Database.DSN)
	if err != nil {
		return nil, err
	}
	if err := store.Migrate(ctx, st.DB()); err != nil {
		return nil, err
	}

	a := &App{
		Config:   cfg,
		Store:    st,
		Identity: identity.NewService(cfg, st),
		Observer: observability.Fanout{
			observability.NewLogObserver(nil),
			observability.NewProm("parishdesk"),
		},
	}

	if cfg.Redis.URL != "" {
		rw, err := pipeline.NewRedisWindows(cfg.Redis.URL)
		if err != nil {
			return nil, err
		}
		a.redis = rw
		a.Windows = rw
	} else {
		a.memory = pipeline.NewMemoryWindows()
		a.Windows = a.memory
	}

	return a, nil
}

func (a *App) Close() error {
	var err error
	if a.Store != nil {
		err = a.Store.Close()
	}
	if a.redis != nil {
		_ = a.redis.Close()
	}
	return err
}

// Pipeline chains the resolution stages, in order, in front of final.
func (a *App) Pipeline(final http.Handler) http.Handler {
	stages := []pipeline.Stage{
		pipeline.Recovery(a.Config.Auth.ErrorURL, a.Observer),
		pipeline.NewRateLimiter(a.Config, a.Windows, a.Observer).Stage(),
		pipeline.NewSessionVerifier(a.Config, a.Identity, a.Observer).Stage(),
		pipeline.NewImpersonationResolver(a.Config, a.Identity, a.Store, a.Observer).Stage(),
		pipeline.NewTenantResolver(a.Config, a.Store, a.Observer).Stage(),
		pipeline.NewRBACGate(a.Config, a.Store.GetMembershipRole, a.Observer).Stage(),
	}
	return pipeline.Chain(stages, final, a.Observer)
}

func (a *App) Serve(ctx context.Context) error {
	impSvc := impersonation.NewService(a.Config, a.Identity, a.Store)
	impHandler := impersonation.NewHandler(a.Config, a.Identity, impSvc)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if err := a.Store.Ping(r.Context()); err != nil {
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
			return
		}
		if a.redis != nil {
			if err := a.redis.Ping(r.Context()); err != nil {
				http.Error(w, err.Error(), http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	})
	mux.Handle("/metrics", promhttp.Handler())
	impHandler.RegisterRoutes(mux)
	if a.Config.Dev.Mode {
		mux.HandleFunc("/debug", a.handleDebug)
	}
	mux.Handle("/org/", a.Pipeline(http.HandlerFunc(handleResolved)))

	if a.memory != nil {
		go a.memory.RunSweeper(ctx, a.Config.RateLimit.SweepInterval)
	}

	srv := &http.Server{
		Addr:              a.Config.HTTP.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		_ = srv.Shutdown(context.Background())
	}()
	return srv.ListenAndServe()
}

// handleResolved stands in for the downstream page/API handlers, which only
// ever read the resolved context off the request.
func handleResolved(w http.ResponseWriter, r *http.Request) {
	rc, ok := pipeline.RequestContextFrom(r.Context())
	if !ok {
		http.Error(w, "missing request context", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"request_id":        rc.RequestID,
		"user_id":           rc.UserID,
		"effective_user_id": rc.EffectiveUserID,
		"organization_id":   rc.OrgID,
		"organization_slug": rc.OrgSlug,
		"role":              rc.Role,
		"superadmin":        rc.Superadmin,
		"impersonating":     rc.Impersonating,
	})
}

func (a *App) handleDebug(w http.ResponseWriter, r *http.Request) {
	audit, err := a.Store.ListAudit(r.Context(), 20)
	if err != nil {
		log.Printf("debug audit list failed: %v", err)
	}

	w.Header().Set("Content-Type", "text/html")
	_, _ = fmt.Fprintf(w, "<html><body><h1>Parishdesk Debug</h1>")
	if a.memory != nil {
		_, _ = fmt.Fprintf(w, "<p>Rate windows in memory: %d</p>", a.memory.Len())
	} else {
		_, _ = fmt.Fprintf(w, "<p>Rate windows: redis</p>")
	}
	_, _ = fmt.Fprintf(w, "<h2>Recent audit entries</h2><ul>")
	for _, item := range audit {
		_, _ = fmt.Fprintf(w, "<li>%v</li>", item)
	}
	_, _ = fmt.Fprintf(w, "</ul></body></html>")
}
