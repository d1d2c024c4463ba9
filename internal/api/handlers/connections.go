package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/calendar-sync-manager/backend/internal/api/middleware"
	"github.com/calendar-sync-manager/backend/internal/lifecycle"
	"github.com/calendar-sync-manager/backend/internal/storage"
)

// ListConnections returns all feed connections, optionally filtered by
// property or user via query parameters.
func ListConnections(connRepo *storage.ConnectionRepository) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		var (
			conns any
			err   error
		)
		switch {
		case r.URL.Query().Get("property_id") != "":
			conns, err = connRepo.ListByProperty(ctx, r.URL.Query().Get("property_id"))
		case r.URL.Query().Get("user_id") != "":
			conns, err = connRepo.ListByUser(ctx, r.URL.Query().Get("user_id"))
		default:
			conns, err = connRepo.List(ctx)
		}
		if err != nil {
			writeDomainError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, conns)
	}
}

// GetConnection returns a single connection by ID.
func GetConnection(connRepo *storage.ConnectionRepository) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := connRepo.GetByID(r.Context(), mux.Vars(r)["id"])
		if err != nil {
			writeDomainError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, conn)
	}
}

// CreateConnection registers a new feed connection. The feed is
// validated before anything is persisted.
func CreateConnection(orch *lifecycle.Orchestrator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var in lifecycle.RegisterInput
		if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
			middleware.WriteError(w, http.StatusBadRequest, middleware.ErrBadRequest, "Invalid request body")
			return
		}

		conn, err := orch.Register(r.Context(), in)
		if err != nil {
			writeDomainError(w, err)
			return
		}

		writeJSON(w, http.StatusCreated, conn)
	}
}

// UpdateConnection edits an existing connection.
func UpdateConnection(orch *lifecycle.Orchestrator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var in lifecycle.UpdateInput
		if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
			middleware.WriteError(w, http.StatusBadRequest, middleware.ErrBadRequest, "Invalid request body")
			return
		}

		conn, err := orch.Update(r.Context(), mux.Vars(r)["id"], in)
		if err != nil {
			writeDomainError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, conn)
	}
}

// TestConnection fetches and parses the connection's feed without side
// effects, reporting whether it is usable.
func TestConnection(orch *lifecycle.Orchestrator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		res, err := orch.Test(r.Context(), mux.Vars(r)["id"])
		if err != nil {
			writeDomainError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, res)
	}
}

// dispositionFrom reads the event disposition policy from the query
// string, defaulting to deactivate (the history-preserving choice).
func dispositionFrom(r *http.Request) string {
	if d := r.URL.Query().Get("disposition"); d != "" {
		return d
	}
	return lifecycle.DispositionDeactivate
}

// DeleteConnection removes a connection and applies the chosen event
// disposition (?disposition=delete|deactivate|convert|keep).
func DeleteConnection(orch *lifecycle.Orchestrator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := orch.Remove(r.Context(), mux.Vars(r)["id"], dispositionFrom(r)); err != nil {
			writeDomainError(w, err)
			return
		}

		w.WriteHeader(http.StatusNoContent)
	}
}

// DeactivateConnection stops syncing a connection without deleting it,
// applying the chosen event disposition.
func DeactivateConnection(orch *lifecycle.Orchestrator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := orch.Deactivate(r.Context(), mux.Vars(r)["id"], dispositionFrom(r)); err != nil {
			writeDomainError(w, err)
			return
		}

		w.WriteHeader(http.StatusNoContent)
	}
}
