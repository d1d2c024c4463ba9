package models

import (
	"time"
)

// Conflict is a derived aggregate grouping two or more events whose
// date ranges overlap, or that form a same-day turnover pair. It is
// recomputed eventually, not enforced continuously: a full rescan is
// the authority on which conflicts exist.
type Conflict struct {
	ID           string     `json:"id"`
	PropertyID   string     `json:"property_id"`
	EventIDs     []string   `json:"event_ids"`
	ConflictType string     `json:"conflict_type"`
	Severity     string     `json:"severity"`
	Status       string     `json:"status"`
	StartDate    time.Time  `json:"start_date"`
	EndDate      time.Time  `json:"end_date"`
	DetectedAt   time.Time  `json:"detected_at"`
	ResolvedAt   *time.Time `json:"resolved_at,omitempty"`
	Resolution   *string    `json:"resolution,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// Conflict type constants
const (
	ConflictTypeOverlap  = "overlap"
	ConflictTypeTurnover = "turnover"
)

// Conflict severity constants
const (
	ConflictSeverityHigh   = "high"
	ConflictSeverityMedium = "medium"
)

// Conflict status constants
const (
	ConflictStatusNew          = "new"
	ConflictStatusAcknowledged = "acknowledged"
	ConflictStatusResolved     = "resolved"
)

// IsOpen reports whether the conflict still needs attention.
func (c *Conflict) IsOpen() bool {
	return c.Status != ConflictStatusResolved
}

// HasEvent reports whether the given event is a member of this conflict.
func (c *Conflict) HasEvent(eventID string) bool {
	for _, id := range c.EventIDs {
		if id == eventID {
			return true
		}
	}
	return false
}
