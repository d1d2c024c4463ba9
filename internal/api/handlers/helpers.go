// Package handlers provides HTTP request handlers for the API endpoints.
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/calendar-sync-manager/backend/internal/api/middleware"
	"github.com/calendar-sync-manager/backend/internal/conflict"
	"github.com/calendar-sync-manager/backend/internal/lifecycle"
	"github.com/calendar-sync-manager/backend/internal/storage"
	synceng "github.com/calendar-sync-manager/backend/internal/sync"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeDomainError maps domain errors onto the API error envelope.
func writeDomainError(w http.ResponseWriter, err error) {
	var validationErr *lifecycle.ValidationError

	switch {
	case errors.Is(err, storage.ErrNotFound):
		middleware.WriteError(w, http.StatusNotFound, middleware.ErrNotFound, err.Error())
	case errors.As(err, &validationErr):
		middleware.WriteError(w, http.StatusBadRequest, middleware.ErrValidation, validationErr.Msg)
	case errors.Is(err, conflict.ErrAlreadyResolved):
		middleware.WriteError(w, http.StatusConflict, middleware.ErrConflict, err.Error())
	case errors.Is(err, synceng.ErrSyncInProgress):
		middleware.WriteError(w, http.StatusConflict, middleware.ErrConflict, err.Error())
	default:
		middleware.WriteError(w, http.StatusInternalServerError, middleware.ErrInternalError, err.Error())
	}
}
