// Package notify defines the outbound notification and audit contracts.
// Both are best-effort: callers log failures and move on.
package notify

import (
	"context"
	"log"
	"time"
)

// Notification severity levels
const (
	SeverityInfo     = "info"
	SeverityWarning  = "warning"
	SeverityCritical = "critical"
)

// Notification types
const (
	TypeNewBooking        = "new_booking"
	TypeBookingModified   = "booking_modified"
	TypeBookingCancelled  = "booking_cancelled"
	TypeSyncFailed        = "sync_failed"
	TypeConflictDetected  = "conflict_detected"
	TypeConnectionRemoved = "connection_removed"
)

// Notification is one user-facing message about a property.
type Notification struct {
	PropertyID string `json:"property_id"`
	UserID     string `json:"user_id"`
	Type       string `json:"type"`
	Title      string `json:"title"`
	Message    string `json:"message"`
	Severity   string `json:"severity"`
}

// Sink delivers notifications. Implementations must be safe for
// concurrent use; delivery failure is non-fatal to the caller.
type Sink interface {
	Send(ctx context.Context, n Notification) error
}

// AuditEntry records one state-changing action for later review.
type AuditEntry struct {
	Action     string    `json:"action"`
	EntityType string    `json:"entity_type"`
	EntityID   string    `json:"entity_id"`
	ActorID    string    `json:"actor_id"`
	PropertyID string    `json:"property_id"`
	Details    string    `json:"details,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

// Auditor records audit entries. Best-effort.
type Auditor interface {
	Record(ctx context.Context, e AuditEntry) error
}

// LogSink writes notifications to the process log. Used as a fallback
// when no websocket hub is wired up, and in tests.
type LogSink struct{}

// Send implements Sink.
func (LogSink) Send(_ context.Context, n Notification) error {
	log.Printf("notification [%s/%s] property=%s user=%s: %s: %s",
		n.Type, n.Severity, n.PropertyID, n.UserID, n.Title, n.Message)
	return nil
}

// LogAuditor writes audit entries to the process log. Durable audit
// storage is an external collaborator; this adapter keeps the call
// contract exercised.
type LogAuditor struct{}

// Record implements Auditor.
func (LogAuditor) Record(_ context.Context, e AuditEntry) error {
	log.Printf("audit %s %s/%s actor=%s property=%s %s",
		e.Action, e.EntityType, e.EntityID, e.ActorID, e.PropertyID, e.Details)
	return nil
}
