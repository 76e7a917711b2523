package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"parishdesk/internal/app"
	"parishdesk/internal/config"
	"parishdesk/internal/store"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		return
	}
	cmd := os.Args[1]
	cfgPath := os.Getenv("PD_CONFIG")
	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	switch cmd {
	case "serve":
		runServe(ctx, cfg)
	case "migrate":
		runMigrate(ctx, cfg)
	case "seed":
		runSeed(ctx, cfg)
	default:
		usage()
	}
}

func runServe(ctx context.Context, cfg config.Config) {
	appInstance, err := app.New(ctx, cfg)
	if err != nil {
		log.Fatalf("app init error: %v", err)
	}
	defer appInstance.Close()

	log.Printf("parishdeskd serving on %s", cfg.HTTP.Addr)
	if err := appInstance.Serve(ctx); err != nil && err != http.ErrServerClosed {
		log.Fatalf("server error: %v", err)
	}
}

func runMigrate(ctx context.Context, cfg config.Config) {
	storeInstance, err := store.Open(cfg.Database.DSN)
	if err != nil {
		log.Fatalf("store error: %v", err)
	}
	defer storeInstance.Close()
	if err := store.Migrate(ctx, storeInstance.DB()); err != nil {
		log.Fatalf("migration error: %v", err)
	}
	log.Println("migrations applied")
}

// runSeed provisions a demo tenant for local development.
func runSeed(ctx context.Context, cfg config.Config) {
	storeInstance, err := store.Open(cfg.Database.DSN)
	if err != nil {
		log.Fatalf("store error: %v", err)
	}
	defer storeInstance.Close()
	if err := store.Migrate(ctx, storeInstance.DB()); err != nil {
		log.Fatalf("migration error: %v", err)
	}

	orgID, err := storeInstance.CreateOrganization(ctx, "Demo Parish", "demo")
	if err != nil {
		log.Fatalf("seed org error: %v", err)
	}
	adminID, err := storeInstance.CreateProfile(ctx, "admin@demo.parishdesk.local", false)
	if err != nil {
		log.Fatalf("seed profile error: %v", err)
	}
	if err := storeInstance.UpsertMembership(ctx, adminID, orgID, "admin"); err != nil {
		log.Fatalf("seed membership error: %v", err)
	}
	superID, err := storeInstance.CreateProfile(ctx, "root@parishdesk.local", true)
	if err != nil {
		log.Fatalf("seed superadmin error: %v", err)
	}
	log.Printf("seeded org=%s admin=%s superadmin=%s", orgID, adminID, superID)
}

func usage() {
	fmt.Println("Usage: parishdeskd <serve|migrate|seed>")
}
