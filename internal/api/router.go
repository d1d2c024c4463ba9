// Package api provides HTTP routing and handlers for the REST API.
package api

import (
	"github.com/gorilla/mux"

	"github.com/calendar-sync-manager/backend/internal/api/handlers"
	"github.com/calendar-sync-manager/backend/internal/api/middleware"
	"github.com/calendar-sync-manager/backend/internal/conflict"
	"github.com/calendar-sync-manager/backend/internal/lifecycle"
	"github.com/calendar-sync-manager/backend/internal/storage"
	synceng "github.com/calendar-sync-manager/backend/internal/sync"
	"github.com/calendar-sync-manager/backend/internal/websocket"
)

// Deps groups everything the router wires into handlers.
type Deps struct {
	DB           *storage.DB
	ConnRepo     *storage.ConnectionRepository
	EventRepo    *storage.EventRepository
	ConflictRepo *storage.ConflictRepository
	Reconciler   *synceng.Reconciler
	Scheduler    *synceng.Scheduler
	Engine       *conflict.Engine
	Orchestrator *lifecycle.Orchestrator
	Hub          *websocket.Hub
	Broadcaster  *websocket.EventBroadcaster
}

// NewRouter creates and configures the HTTP router with all API routes.
func NewRouter(d Deps) *mux.Router {
	r := mux.NewRouter()

	r.Use(middleware.Logging)
	r.Use(middleware.ErrorRecovery)

	api := r.PathPrefix("/api").Subrouter()

	// Health and status
	api.HandleFunc("/health", handlers.HealthCheck(d.DB)).Methods("GET")
	api.HandleFunc("/status", handlers.Status(d.DB, d.Scheduler, d.Hub)).Methods("GET")

	// Live updates
	api.HandleFunc("/ws", handlers.WebSocketUpgrade(d.Hub)).Methods("GET")

	// Connections
	api.HandleFunc("/connections", handlers.ListConnections(d.ConnRepo)).Methods("GET")
	api.HandleFunc("/connections", handlers.CreateConnection(d.Orchestrator)).Methods("POST")
	api.HandleFunc("/connections/{id}", handlers.GetConnection(d.ConnRepo)).Methods("GET")
	api.HandleFunc("/connections/{id}", handlers.UpdateConnection(d.Orchestrator)).Methods("PUT")
	api.HandleFunc("/connections/{id}", handlers.DeleteConnection(d.Orchestrator)).Methods("DELETE")
	api.HandleFunc("/connections/{id}/deactivate", handlers.DeactivateConnection(d.Orchestrator)).Methods("POST")
	api.HandleFunc("/connections/{id}/test", handlers.TestConnection(d.Orchestrator)).Methods("POST")
	api.HandleFunc("/connections/{id}/sync", handlers.SyncConnection(d.Reconciler, d.Broadcaster)).Methods("POST")

	// Property-scoped operations
	api.HandleFunc("/properties/{id}/sync", handlers.SyncProperty(d.Reconciler, d.Broadcaster)).Methods("POST")
	api.HandleFunc("/properties/{id}/events", handlers.ListEvents(d.EventRepo)).Methods("GET")
	api.HandleFunc("/properties/{id}/conflicts", handlers.ListConflicts(d.ConflictRepo)).Methods("GET")
	api.HandleFunc("/properties/{id}/conflicts/rescan", handlers.RescanConflicts(d.Engine)).Methods("POST")

	// User-scoped operations
	api.HandleFunc("/users/{id}/sync", handlers.SyncUser(d.Reconciler)).Methods("POST")

	// Events
	api.HandleFunc("/events", handlers.CreateEvent(d.EventRepo, d.Engine)).Methods("POST")
	api.HandleFunc("/events/{id}/cancel", handlers.CancelEvent(d.EventRepo)).Methods("POST")

	// Conflicts
	api.HandleFunc("/conflicts/{id}", handlers.GetConflict(d.ConflictRepo)).Methods("GET")
	api.HandleFunc("/conflicts/{id}/acknowledge", handlers.AcknowledgeConflict(d.Engine)).Methods("POST")
	api.HandleFunc("/conflicts/{id}/resolve", handlers.ResolveConflict(d.Engine, d.Broadcaster)).Methods("POST")

	return r
}
