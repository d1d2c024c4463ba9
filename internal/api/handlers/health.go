package handlers

import (
	"net/http"

	synceng "github.com/calendar-sync-manager/backend/internal/sync"
	"github.com/calendar-sync-manager/backend/internal/storage"
	"github.com/calendar-sync-manager/backend/internal/websocket"
)

// HealthResponse represents the health check response.
type HealthResponse struct {
	Status      string `json:"status"`
	DBConnected bool   `json:"db_connected"`
}

// HealthCheck returns a handler that performs a health check.
func HealthCheck(db *storage.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		dbConnected := db.Ping() == nil

		status := "healthy"
		code := http.StatusOK
		if !dbConnected {
			status = "degraded"
			code = http.StatusServiceUnavailable
		}

		writeJSON(w, code, HealthResponse{
			Status:      status,
			DBConnected: dbConnected,
		})
	}
}

// StatusResponse represents the system status response.
type StatusResponse struct {
	Connections      int `json:"connections"`
	ErroredConns     int `json:"errored_connections"`
	ActiveEvents     int `json:"active_events"`
	OpenConflicts    int `json:"open_conflicts"`
	ScheduleTriggers int `json:"schedule_triggers"`
	SyncsInFlight    int `json:"syncs_in_flight"`
	WSClients        int `json:"ws_clients"`
}

// Status returns a handler that reports aggregate engine state.
func Status(db *storage.DB, scheduler *synceng.Scheduler, hub *websocket.Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		var resp StatusResponse
		db.QueryRowContext(ctx, "SELECT COUNT(*) FROM connections").Scan(&resp.Connections)
		db.QueryRowContext(ctx, "SELECT COUNT(*) FROM connections WHERE status = 'error'").Scan(&resp.ErroredConns)
		db.QueryRowContext(ctx, "SELECT COUNT(*) FROM events WHERE is_active = 1").Scan(&resp.ActiveEvents)
		db.QueryRowContext(ctx, "SELECT COUNT(*) FROM conflicts WHERE status != 'resolved'").Scan(&resp.OpenConflicts)

		if scheduler != nil {
			resp.ScheduleTriggers = scheduler.TriggerCount()
			resp.SyncsInFlight = scheduler.InFlightCount()
		}
		if hub != nil {
			resp.WSClients = hub.ClientCount()
		}

		writeJSON(w, http.StatusOK, resp)
	}
}
