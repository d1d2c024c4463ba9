package models

import (
	"time"
)

// Event represents a single booking, block or maintenance window on a
// property's calendar. Feed-owned events carry the feed's stable UID;
// manual events do not.
type Event struct {
	ID           string    `json:"id"`
	PropertyID   string    `json:"property_id"`
	ConnectionID *string   `json:"connection_id,omitempty"`
	ExternalUID  *string   `json:"external_uid,omitempty"`
	Summary      string    `json:"summary"`
	Description  string    `json:"description,omitempty"`
	EventType    string    `json:"event_type"`
	Status       string    `json:"status"`
	Source       string    `json:"source"`
	StartDate    time.Time `json:"start_date"`
	EndDate      time.Time `json:"end_date"`
	IsActive     bool      `json:"is_active"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Event type constants
const (
	EventTypeBooking     = "booking"
	EventTypeBlocked     = "blocked"
	EventTypeMaintenance = "maintenance"
)

// Event status constants
const (
	EventStatusConfirmed = "confirmed"
	EventStatusCancelled = "cancelled"
	EventStatusTentative = "tentative"
)

// Event source constants
const (
	EventSourceFeed   = "feed"
	EventSourceManual = "manual"
)

// Overlaps reports whether two events share at least one night, using
// half-open interval semantics: [start, end).
func (e *Event) Overlaps(other *Event) bool {
	return e.StartDate.Before(other.EndDate) && other.StartDate.Before(e.EndDate)
}

// SameDayTurnover reports whether one event ends on the exact day the
// other starts. Not an overlap, but operationally significant.
func (e *Event) SameDayTurnover(other *Event) bool {
	return sameDay(e.EndDate, other.StartDate) || sameDay(other.EndDate, e.StartDate)
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

// DurationDays returns the event's length in whole days, minimum 1.
func (e *Event) DurationDays() int {
	days := int(e.EndDate.Sub(e.StartDate).Hours() / 24)
	if days < 1 {
		days = 1
	}
	return days
}
