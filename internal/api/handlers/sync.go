package handlers

import (
	"net/http"

	"github.com/gorilla/mux"

	synceng "github.com/calendar-sync-manager/backend/internal/sync"
	"github.com/calendar-sync-manager/backend/internal/websocket"
)

// SyncConnection runs a synchronous sync for one connection and returns
// the structured result. The per-connection routine is the same one the
// scheduler uses.
func SyncConnection(reconciler *synceng.Reconciler, broadcaster *websocket.EventBroadcaster) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		result, err := reconciler.SyncConnection(r.Context(), mux.Vars(r)["id"])
		if err != nil && result == nil {
			writeDomainError(w, err)
			return
		}

		if broadcaster != nil {
			if result.Error != nil {
				broadcaster.BroadcastSyncError(result.ConnectionID, result.ConnectionName, result.Error)
			} else {
				broadcaster.BroadcastSyncCompleted(*result)
			}
		}

		// A failed sync still returns the structured result; the error
		// is recorded per connection rather than as an HTTP failure.
		writeJSON(w, http.StatusOK, result)
	}
}

// SyncProperty syncs every active connection on a property and returns
// the aggregate report.
func SyncProperty(reconciler *synceng.Reconciler, broadcaster *websocket.EventBroadcaster) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		report, err := reconciler.SyncProperty(r.Context(), mux.Vars(r)["id"])
		if err != nil {
			writeDomainError(w, err)
			return
		}

		if broadcaster != nil {
			for _, res := range report.Results {
				if res.Error != nil {
					broadcaster.BroadcastSyncError(res.ConnectionID, res.ConnectionName, res.Error)
					continue
				}
				broadcaster.BroadcastSyncCompleted(res)
			}
		}

		writeJSON(w, http.StatusOK, report)
	}
}

// SyncUser syncs every active connection belonging to a user.
func SyncUser(reconciler *synceng.Reconciler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		report, err := reconciler.SyncUser(r.Context(), mux.Vars(r)["id"])
		if err != nil {
			writeDomainError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, report)
	}
}
