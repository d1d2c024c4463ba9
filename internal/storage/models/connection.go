// Package models contains the domain models for the application.
package models

import (
	"time"
)

// Connection represents a feed subscription linking one property to one
// distribution platform's iCal calendar.
type Connection struct {
	ID              string     `json:"id"`
	PropertyID      string     `json:"property_id"`
	UserID          string     `json:"user_id"`
	Platform        string     `json:"platform"`
	Name            string     `json:"name"`
	URL             string     `json:"url"`
	SyncIntervalMin int        `json:"sync_interval_min"`
	Status          string     `json:"status"`
	SyncError       *string    `json:"sync_error,omitempty"`
	LastSyncAt      *time.Time `json:"last_sync_at,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// Connection status constants
const (
	ConnectionStatusActive   = "active"
	ConnectionStatusError    = "error"
	ConnectionStatusInactive = "inactive"
)

// Platform identifiers. Platforms outside this list are accepted but get
// only the generic normalization rules.
const (
	PlatformAirbnb     = "airbnb"
	PlatformVrbo       = "vrbo"
	PlatformBookingCom = "booking.com"
	PlatformOther      = "other"
)

// IsDue reports whether the connection should be synced now given its
// own configured interval.
func (c *Connection) IsDue(now time.Time) bool {
	if c.Status == ConnectionStatusInactive {
		return false
	}
	if c.LastSyncAt == nil {
		return true
	}
	interval := time.Duration(c.SyncIntervalMin) * time.Minute
	if interval <= 0 {
		interval = 60 * time.Minute
	}
	return now.Sub(*c.LastSyncAt) >= interval
}
