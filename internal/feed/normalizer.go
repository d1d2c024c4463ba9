package feed

import (
	"strings"
	"time"

	"github.com/calendar-sync-manager/backend/internal/storage/models"
)

// NormalizedEvent is the canonical form of a feed entry: closed enums
// for status and category, ready for reconciliation. Internal code
// never re-parses free text after this point.
type NormalizedEvent struct {
	ExternalUID string
	Summary     string
	Description string
	Status      string
	EventType   string
	Start       time.Time
	End         time.Time
}

// categoryRule maps a summary keyword to an event category. Platform
// rules run before generic rules; first match wins.
type categoryRule struct {
	platform string // empty means any platform
	keyword  string // matched case-insensitively against the summary
	category string
}

// categoryRules is ordered: platform-specific entries first, generic
// fallbacks last. Platform exceptions are added here without touching
// the normalization loop.
var categoryRules = []categoryRule{
	{models.PlatformAirbnb, "reserved", models.EventTypeBooking},
	{models.PlatformAirbnb, "not available", models.EventTypeBlocked},
	{models.PlatformVrbo, "reserved", models.EventTypeBooking},
	{models.PlatformVrbo, "blocked", models.EventTypeBlocked},
	{models.PlatformBookingCom, "closed", models.EventTypeBlocked},

	{"", "book", models.EventTypeBooking},
	{"", "reservation", models.EventTypeBooking},
	{"", "block", models.EventTypeBlocked},
	{"", "unavailable", models.EventTypeBlocked},
	{"", "maintenance", models.EventTypeMaintenance},
}

// Normalize converts raw feed entries into canonical event records for
// the given platform. Order is preserved.
func Normalize(entries []RawEntry, platform string) []NormalizedEvent {
	out := make([]NormalizedEvent, 0, len(entries))
	for _, e := range entries {
		out = append(out, NormalizedEvent{
			ExternalUID: e.UID,
			Summary:     e.Summary,
			Description: e.Description,
			Status:      NormalizeStatus(e.Status),
			EventType:   InferEventType(e.Summary, platform),
			Start:       e.Start,
			End:         e.End,
		})
	}
	return out
}

// NormalizeStatus canonicalizes the free-text STATUS value. Anything
// unrecognized defaults to confirmed, matching how rental platforms
// publish firm bookings without a STATUS line.
func NormalizeStatus(raw string) string {
	s := strings.ToLower(raw)
	switch {
	case strings.Contains(s, "cancel"):
		return models.EventStatusCancelled
	case strings.Contains(s, "tentative"):
		return models.EventStatusTentative
	default:
		return models.EventStatusConfirmed
	}
}

// InferEventType classifies an entry as booking, blocked or maintenance
// from its summary text. Best-effort heuristics; booking is the default
// because misclassifying a real booking as a block would hide conflicts.
func InferEventType(summary, platform string) string {
	s := strings.ToLower(summary)
	for _, rule := range categoryRules {
		if rule.platform != "" && rule.platform != platform {
			continue
		}
		if strings.Contains(s, rule.keyword) {
			return rule.category
		}
	}
	return models.EventTypeBooking
}
