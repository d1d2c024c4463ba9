package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/calendar-sync-manager/backend/internal/api/middleware"
	"github.com/calendar-sync-manager/backend/internal/conflict"
	"github.com/calendar-sync-manager/backend/internal/storage"
	"github.com/calendar-sync-manager/backend/internal/websocket"
)

// ListConflicts returns conflicts for a property. ?open=true filters to
// unresolved ones.
func ListConflicts(conflictRepo *storage.ConflictRepository) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		propertyID := mux.Vars(r)["id"]

		var (
			conflicts any
			err       error
		)
		if r.URL.Query().Get("open") == "true" {
			conflicts, err = conflictRepo.ListOpenByProperty(r.Context(), propertyID)
		} else {
			conflicts, err = conflictRepo.ListByProperty(r.Context(), propertyID)
		}
		if err != nil {
			writeDomainError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, conflicts)
	}
}

// GetConflict returns a single conflict by ID.
func GetConflict(conflictRepo *storage.ConflictRepository) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c, err := conflictRepo.GetByID(r.Context(), mux.Vars(r)["id"])
		if err != nil {
			writeDomainError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, c)
	}
}

// ResolveConflictRequest selects a resolution strategy. Manual requires
// keep_event_ids; automatic ignores it.
type ResolveConflictRequest struct {
	Strategy     string   `json:"strategy"`
	KeepEventIDs []string `json:"keep_event_ids,omitempty"`
	HardDelete   bool     `json:"hard_delete"`
}

// ResolveConflict applies a manual or automatic resolution.
func ResolveConflict(engine *conflict.Engine, broadcaster *websocket.EventBroadcaster) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := mux.Vars(r)["id"]

		var req ResolveConflictRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			middleware.WriteError(w, http.StatusBadRequest, middleware.ErrBadRequest, "Invalid request body")
			return
		}

		var (
			res *conflict.Resolution
			err error
		)
		switch req.Strategy {
		case conflict.StrategyManual:
			if len(req.KeepEventIDs) == 0 {
				middleware.WriteError(w, http.StatusBadRequest, middleware.ErrValidation, "keep_event_ids is required for manual resolution")
				return
			}
			res, err = engine.ResolveManual(r.Context(), id, req.KeepEventIDs, req.HardDelete)
		case conflict.StrategyAutomatic:
			res, err = engine.ResolveAutomatic(r.Context(), id, req.HardDelete)
		default:
			middleware.WriteError(w, http.StatusBadRequest, middleware.ErrValidation, "strategy must be manual or automatic")
			return
		}
		if err != nil {
			writeDomainError(w, err)
			return
		}

		if broadcaster != nil {
			broadcaster.BroadcastConflictResolved(res.ConflictID, res.Strategy)
		}

		writeJSON(w, http.StatusOK, res)
	}
}

// AcknowledgeConflict marks a conflict as seen by an operator.
func AcknowledgeConflict(engine *conflict.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := engine.Acknowledge(r.Context(), mux.Vars(r)["id"]); err != nil {
			writeDomainError(w, err)
			return
		}

		w.WriteHeader(http.StatusNoContent)
	}
}

// RescanConflicts rebuilds the conflict set for a property from its
// current events.
func RescanConflicts(engine *conflict.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		count, err := engine.RescanProperty(r.Context(), mux.Vars(r)["id"])
		if err != nil {
			writeDomainError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, map[string]int{"conflicts_found": count})
	}
}
