package websocket

import (
	"context"
	"log"

	"github.com/calendar-sync-manager/backend/internal/notify"
	"github.com/calendar-sync-manager/backend/internal/storage/models"
)

// EventBroadcaster pushes domain events to all connected clients.
// It also implements notify.Sink so the reconciler and conflict engine
// can deliver user notifications through the live channel.
type EventBroadcaster struct {
	hub *Hub
}

// NewEventBroadcaster creates a new event broadcaster.
func NewEventBroadcaster(hub *Hub) *EventBroadcaster {
	return &EventBroadcaster{hub: hub}
}

// Send implements notify.Sink by broadcasting the notification.
// Conflict and connection-removal notifications keep their own message
// types so dashboard clients can route them without inspecting the
// payload; everything else goes out as a plain notification.
func (b *EventBroadcaster) Send(_ context.Context, n notify.Notification) error {
	b.send(NewMessage(messageTypeFor(n.Type), NotificationPayload{
		PropertyID: n.PropertyID,
		UserID:     n.UserID,
		Type:       n.Type,
		Title:      n.Title,
		Message:    n.Message,
		Severity:   n.Severity,
	}))
	return nil
}

func messageTypeFor(notifyType string) string {
	switch notifyType {
	case notify.TypeConflictDetected:
		return TypeConflictDetected
	case notify.TypeConnectionRemoved:
		return TypeConnectionRemoved
	default:
		return TypeNotification
	}
}

// BroadcastSyncCompleted announces a finished connection sync.
func (b *EventBroadcaster) BroadcastSyncCompleted(result models.SyncResult) {
	payload := SyncPayload{
		ConnectionID:   result.ConnectionID,
		ConnectionName: result.ConnectionName,
		Platform:       result.Platform,
		Status:         "success",
		EventsFound:    result.EventsFound,
		EventsCreated:  result.EventsCreated,
		EventsUpdated:  result.EventsUpdated,
		EventsCanceled: result.EventsCanceled,
		ConflictsFound: result.ConflictsFound,
	}
	if result.Error != nil {
		payload.Status = "error"
	}

	b.send(NewMessage(TypeSyncCompleted, payload))
}

// BroadcastSyncError announces a failed connection sync.
func (b *EventBroadcaster) BroadcastSyncError(connectionID, connectionName string, err error) {
	b.send(NewMessage(TypeSyncError, SyncErrorPayload{
		ConnectionID:   connectionID,
		ConnectionName: connectionName,
		Error:          "sync_error",
		Message:        err.Error(),
	}))
}

// BroadcastConflictResolved announces a resolved conflict.
func (b *EventBroadcaster) BroadcastConflictResolved(conflictID, strategy string) {
	b.send(NewMessage(TypeConflictResolved, map[string]string{
		"conflict_id": conflictID,
		"strategy":    strategy,
	}))
}

func (b *EventBroadcaster) send(msg Message) {
	data, err := msg.JSON()
	if err != nil {
		log.Printf("Error encoding WebSocket message: %v", err)
		return
	}
	b.hub.Broadcast(data)
}
