package websocket

import (
	"encoding/json"
	"time"
)

// Message types pushed to connected clients.
const (
	TypeSyncCompleted     = "sync.completed"
	TypeSyncError         = "sync.error"
	TypeConflictDetected  = "conflict.detected"
	TypeConflictResolved  = "conflict.resolved"
	TypeConnectionRemoved = "connection.removed"
	TypeNotification      = "notification"
)

// Message is the envelope for every WebSocket push.
type Message struct {
	Type      string    `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Payload   any       `json:"payload"`
}

// NewMessage creates a message with the current timestamp.
func NewMessage(msgType string, payload any) Message {
	return Message{
		Type:      msgType,
		Timestamp: time.Now().UTC(),
		Payload:   payload,
	}
}

// JSON encodes the message for the wire.
func (m Message) JSON() ([]byte, error) {
	return json.Marshal(m)
}

// SyncPayload describes a completed connection sync.
type SyncPayload struct {
	ConnectionID   string `json:"connection_id"`
	ConnectionName string `json:"connection_name"`
	Platform       string `json:"platform"`
	Status         string `json:"status"`
	EventsFound    int    `json:"events_found"`
	EventsCreated  int    `json:"events_created"`
	EventsUpdated  int    `json:"events_updated"`
	EventsCanceled int    `json:"events_cancelled"`
	ConflictsFound int    `json:"conflicts_found"`
}

// SyncErrorPayload describes a failed connection sync.
type SyncErrorPayload struct {
	ConnectionID   string `json:"connection_id"`
	ConnectionName string `json:"connection_name"`
	Error          string `json:"error"`
	Message        string `json:"message"`
}

// NotificationPayload carries a user-facing notification.
type NotificationPayload struct {
	PropertyID string `json:"property_id"`
	UserID     string `json:"user_id"`
	Type       string `json:"notification_type"`
	Title      string `json:"title"`
	Message    string `json:"message"`
	Severity   string `json:"severity"`
}
