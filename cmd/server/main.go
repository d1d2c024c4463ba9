// Package main is the entry point for the calendar sync engine server.
package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/calendar-sync-manager/backend/internal/api"
	"github.com/calendar-sync-manager/backend/internal/config"
	"github.com/calendar-sync-manager/backend/internal/conflict"
	"github.com/calendar-sync-manager/backend/internal/feed"
	"github.com/calendar-sync-manager/backend/internal/lifecycle"
	"github.com/calendar-sync-manager/backend/internal/notify"
	"github.com/calendar-sync-manager/backend/internal/storage"
	synceng "github.com/calendar-sync-manager/backend/internal/sync"
	"github.com/calendar-sync-manager/backend/internal/websocket"
)

// version is set at build time via -ldflags "-X main.version=x.y.z".
// Defaults to "dev" when not provided.
var version = "dev"

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	addr := flag.String("addr", cfg.Addr, "HTTP server address")
	dataDir := flag.String("data", cfg.DataDir, "Data directory for SQLite database")
	healthCheck := flag.Bool("health-check", false, "Run health check and exit")
	flag.Parse()
	cfg.Addr = *addr
	cfg.DataDir = *dataDir

	// Health check mode for Docker HEALTHCHECK
	if *healthCheck {
		if err := runHealthCheck(cfg.Addr); err != nil {
			log.Fatalf("Health check failed: %v", err)
		}
		os.Exit(0)
	}

	if cfg.Version != "" {
		version = cfg.Version
	}

	log.Printf("Starting calendar sync engine (version: %s)...", version)

	db, err := storage.NewDB(cfg.DBPath())
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer db.Close()

	if err := storage.RunMigrations(db); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}
	log.Println("Database migrations complete")

	// WebSocket hub doubles as the notification sink.
	hub := websocket.NewHub()
	go hub.Run()
	broadcaster := websocket.NewEventBroadcaster(hub)

	connRepo := storage.NewConnectionRepository(db)
	eventRepo := storage.NewEventRepository(db)
	conflictRepo := storage.NewConflictRepository(db)

	feedClient := feed.NewClient(cfg.FeedTimeout)
	engine := conflict.NewEngine(eventRepo, conflictRepo, broadcaster)
	reconciler := synceng.NewReconciler(connRepo, eventRepo, feedClient, engine, broadcaster)
	scheduler := synceng.NewScheduler(reconciler, connRepo)

	orchestrator := lifecycle.NewOrchestrator(
		connRepo, eventRepo, engine, feedClient,
		broadcaster, notify.LogAuditor{},
		scheduler.TriggerConnection,
	)

	if err := scheduler.Start(); err != nil {
		log.Printf("Warning: Failed to start sync scheduler: %v", err)
	}

	router := api.NewRouter(api.Deps{
		DB:           db,
		ConnRepo:     connRepo,
		EventRepo:    eventRepo,
		ConflictRepo: conflictRepo,
		Reconciler:   reconciler,
		Scheduler:    scheduler,
		Engine:       engine,
		Orchestrator: orchestrator,
		Hub:          hub,
		Broadcaster:  broadcaster,
	})

	server := &http.Server{
		Addr:         cfg.Addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 120 * time.Second, // synchronous property syncs fetch remote feeds
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("Server listening on %s", cfg.Addr)
		if err := server.ListenAndServe(); err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	scheduler.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatalf("Server shutdown error: %v", err)
	}

	log.Println("Server stopped")
}

// runHealthCheck performs a health check against the running server.
func runHealthCheck(addr string) error {
	url := "http://localhost" + addr + "/api/health"
	resp, err := http.Get(url)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return http.ErrAbortHandler
	}
	return nil
}
