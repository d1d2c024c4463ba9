package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/calendar-sync-manager/backend/internal/api/middleware"
	"github.com/calendar-sync-manager/backend/internal/conflict"
	"github.com/calendar-sync-manager/backend/internal/storage"
	"github.com/calendar-sync-manager/backend/internal/storage/models"
)

// ListEvents returns active events for a property.
func ListEvents(eventRepo *storage.EventRepository) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		events, err := eventRepo.ListActiveByProperty(r.Context(), mux.Vars(r)["id"])
		if err != nil {
			writeDomainError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, events)
	}
}

// CreateEventRequest is a manual event entry. Manual events carry no
// external UID and are never touched by feed reconciliation.
type CreateEventRequest struct {
	PropertyID  string    `json:"property_id"`
	Summary     string    `json:"summary"`
	Description string    `json:"description"`
	EventType   string    `json:"event_type"`
	StartDate   time.Time `json:"start_date"`
	EndDate     time.Time `json:"end_date"`
}

// CreateEvent creates a manual event and runs targeted conflict
// detection against the property's other confirmed events.
func CreateEvent(eventRepo *storage.EventRepository, engine *conflict.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CreateEventRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			middleware.WriteError(w, http.StatusBadRequest, middleware.ErrBadRequest, "Invalid request body")
			return
		}

		if req.PropertyID == "" {
			middleware.WriteError(w, http.StatusBadRequest, middleware.ErrValidation, "property_id is required")
			return
		}
		if !req.StartDate.Before(req.EndDate) {
			middleware.WriteError(w, http.StatusBadRequest, middleware.ErrValidation, "start_date must be before end_date")
			return
		}

		event := &models.Event{
			PropertyID:  req.PropertyID,
			Summary:     req.Summary,
			Description: req.Description,
			EventType:   req.EventType,
			Status:      models.EventStatusConfirmed,
			Source:      models.EventSourceManual,
			StartDate:   req.StartDate,
			EndDate:     req.EndDate,
			IsActive:    true,
		}
		if err := eventRepo.Create(r.Context(), event); err != nil {
			writeDomainError(w, err)
			return
		}

		detected, err := engine.CheckEvent(r.Context(), event)
		if err != nil {
			// The event exists; report it with the detection failure noted.
			writeJSON(w, http.StatusCreated, map[string]any{
				"event":          event,
				"conflict_error": err.Error(),
			})
			return
		}

		writeJSON(w, http.StatusCreated, map[string]any{
			"event":    event,
			"conflict": detected,
		})
	}
}

// CancelEvent marks an event cancelled.
func CancelEvent(eventRepo *storage.EventRepository) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := eventRepo.Cancel(r.Context(), mux.Vars(r)["id"]); err != nil {
			writeDomainError(w, err)
			return
		}

		w.WriteHeader(http.StatusNoContent)
	}
}
