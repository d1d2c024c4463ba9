package models

import (
	"time"
)

// SyncResult contains the outcome of syncing one connection.
type SyncResult struct {
	ConnectionID   string    `json:"connection_id"`
	ConnectionName string    `json:"connection_name"`
	Platform       string    `json:"platform"`
	EventsFound    int       `json:"events_found"`
	EventsCreated  int       `json:"events_created"`
	EventsUpdated  int       `json:"events_updated"`
	EventsCanceled int       `json:"events_cancelled"`
	ConflictsFound int       `json:"conflicts_found"`
	Error          error     `json:"-"`
	ErrorMessage   string    `json:"error,omitempty"`
	SyncedAt       time.Time `json:"synced_at"`
}

// SyncReport aggregates per-connection results for a multi-connection
// sync (one property, or all of a user's properties).
type SyncReport struct {
	Results        []SyncResult `json:"results"`
	Succeeded      int          `json:"succeeded"`
	Failed         int          `json:"failed"`
	EventsCreated  int          `json:"events_created"`
	EventsUpdated  int          `json:"events_updated"`
	EventsCanceled int          `json:"events_cancelled"`
	ConflictsFound int          `json:"conflicts_found"`
}

// Add folds a single connection result into the report totals.
func (r *SyncReport) Add(res SyncResult) {
	r.Results = append(r.Results, res)
	if res.Error != nil {
		r.Failed++
		return
	}
	r.Succeeded++
	r.EventsCreated += res.EventsCreated
	r.EventsUpdated += res.EventsUpdated
	r.EventsCanceled += res.EventsCanceled
	r.ConflictsFound += res.ConflictsFound
}
