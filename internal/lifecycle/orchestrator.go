// Package lifecycle coordinates what happens to a connection's events
// and conflicts when the connection is registered, tested, deactivated
// or removed.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/url"
	"time"

	"github.com/calendar-sync-manager/backend/internal/conflict"
	"github.com/calendar-sync-manager/backend/internal/feed"
	"github.com/calendar-sync-manager/backend/internal/notify"
	"github.com/calendar-sync-manager/backend/internal/storage"
	"github.com/calendar-sync-manager/backend/internal/storage/models"
)

// ValidationError reports rejected input: an unreachable feed, a bad
// interval, or a duplicate platform registration.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string {
	return e.Msg
}

// Event disposition policies applied to a connection's events on
// deactivation or removal.
const (
	DispositionDelete     = "delete"     // hard-delete the events
	DispositionDeactivate = "deactivate" // keep rows, cancelled + inactive
	DispositionConvert    = "convert"    // detach to manual ownership
	DispositionKeep       = "keep"       // leave untouched (may go stale)
)

// Orchestrator sequences connection state changes with their cascading
// event and conflict effects. Notification and audit failures are
// logged and swallowed; committed connection/event changes stand.
type Orchestrator struct {
	connRepo   *storage.ConnectionRepository
	eventRepo  *storage.EventRepository
	engine     *conflict.Engine
	feedClient *feed.Client
	notifier   notify.Sink
	auditor    notify.Auditor

	// syncTrigger starts an initial background sync for a freshly
	// registered connection. Optional.
	syncTrigger func(connectionID string)
}

// NewOrchestrator creates a lifecycle orchestrator. notifier, auditor
// and syncTrigger may be nil.
func NewOrchestrator(
	connRepo *storage.ConnectionRepository,
	eventRepo *storage.EventRepository,
	engine *conflict.Engine,
	feedClient *feed.Client,
	notifier notify.Sink,
	auditor notify.Auditor,
	syncTrigger func(connectionID string),
) *Orchestrator {
	return &Orchestrator{
		connRepo:    connRepo,
		eventRepo:   eventRepo,
		engine:      engine,
		feedClient:  feedClient,
		notifier:    notifier,
		auditor:     auditor,
		syncTrigger: syncTrigger,
	}
}

// RegisterInput is the caller's request to connect a feed.
type RegisterInput struct {
	PropertyID      string `json:"property_id"`
	UserID          string `json:"user_id"`
	Platform        string `json:"platform"`
	Name            string `json:"name"`
	URL             string `json:"url"`
	SyncIntervalMin int    `json:"sync_interval_min"`
}

// Register validates and creates a feed connection, then kicks off its
// first sync. The feed must fetch and parse; at most one active
// connection may exist per (property, platform).
func (o *Orchestrator) Register(ctx context.Context, in RegisterInput) (*models.Connection, error) {
	if in.PropertyID == "" || in.UserID == "" || in.URL == "" {
		return nil, &ValidationError{Msg: "property_id, user_id and url are required"}
	}
	if u, err := url.Parse(in.URL); err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return nil, &ValidationError{Msg: "url must be a valid http(s) address"}
	}
	if in.Platform == "" {
		in.Platform = models.PlatformOther
	}
	if in.SyncIntervalMin < 15 {
		in.SyncIntervalMin = 60
	}

	exists, err := o.connRepo.ActiveExists(ctx, in.PropertyID, in.Platform, "")
	if err != nil {
		return nil, fmt.Errorf("checking existing connections: %w", err)
	}
	if exists {
		return nil, &ValidationError{Msg: fmt.Sprintf("property already has an active %s connection", in.Platform)}
	}

	if res := o.feedClient.Validate(ctx, in.URL); !res.Valid {
		return nil, &ValidationError{Msg: "feed validation failed: " + res.Error}
	}

	conn := &models.Connection{
		PropertyID:      in.PropertyID,
		UserID:          in.UserID,
		Platform:        in.Platform,
		Name:            in.Name,
		URL:             in.URL,
		SyncIntervalMin: in.SyncIntervalMin,
		Status:          models.ConnectionStatusActive,
	}
	if err := o.connRepo.Create(ctx, conn); err != nil {
		return nil, err
	}

	o.audit(ctx, "connection.registered", conn, fmt.Sprintf("platform=%s url=%s", conn.Platform, feed.RedactURL(conn.URL)))

	if o.syncTrigger != nil {
		o.syncTrigger(conn.ID)
	}

	return conn, nil
}

// UpdateInput carries editable connection fields.
type UpdateInput struct {
	Name            string `json:"name"`
	URL             string `json:"url"`
	Platform        string `json:"platform"`
	SyncIntervalMin int    `json:"sync_interval_min"`
}

// Update edits a connection. A changed URL is re-validated; a changed
// platform is re-checked against the one-active-per-platform rule.
func (o *Orchestrator) Update(ctx context.Context, connectionID string, in UpdateInput) (*models.Connection, error) {
	conn, err := o.connRepo.GetByID(ctx, connectionID)
	if err != nil {
		return nil, err
	}

	if in.URL != "" && in.URL != conn.URL {
		if res := o.feedClient.Validate(ctx, in.URL); !res.Valid {
			return nil, &ValidationError{Msg: "feed validation failed: " + res.Error}
		}
		conn.URL = in.URL
	}
	if in.Platform != "" && in.Platform != conn.Platform {
		exists, err := o.connRepo.ActiveExists(ctx, conn.PropertyID, in.Platform, conn.ID)
		if err != nil {
			return nil, fmt.Errorf("checking existing connections: %w", err)
		}
		if exists {
			return nil, &ValidationError{Msg: fmt.Sprintf("property already has an active %s connection", in.Platform)}
		}
		conn.Platform = in.Platform
	}
	if in.Name != "" {
		conn.Name = in.Name
	}
	if in.SyncIntervalMin >= 15 {
		conn.SyncIntervalMin = in.SyncIntervalMin
	}

	if err := o.connRepo.Update(ctx, conn); err != nil {
		return nil, err
	}

	o.audit(ctx, "connection.updated", conn, fmt.Sprintf("url=%s", feed.RedactURL(conn.URL)))
	return conn, nil
}

// Test fetches and parses the connection's feed without side effects.
func (o *Orchestrator) Test(ctx context.Context, connectionID string) (*feed.ValidationResult, error) {
	conn, err := o.connRepo.GetByID(ctx, connectionID)
	if err != nil {
		return nil, err
	}

	res := o.feedClient.Validate(ctx, conn.URL)
	return &res, nil
}

// Deactivate transitions a connection to inactive and applies the given
// event disposition. The connection row survives for later reactivation
// or inspection.
func (o *Orchestrator) Deactivate(ctx context.Context, connectionID, disposition string) error {
	return o.retire(ctx, connectionID, disposition, false)
}

// Remove hard-deletes a connection and applies the given event
// disposition to the events it owned.
func (o *Orchestrator) Remove(ctx context.Context, connectionID, disposition string) error {
	return o.retire(ctx, connectionID, disposition, true)
}

func (o *Orchestrator) retire(ctx context.Context, connectionID, disposition string, hardDelete bool) error {
	if err := validDisposition(disposition); err != nil {
		return err
	}

	conn, err := o.connRepo.GetByID(ctx, connectionID)
	if err != nil {
		return err
	}

	// Collect owned events before the connection row changes; a hard
	// delete nulls their connection_id via the FK.
	events, err := o.eventRepo.ListByConnection(ctx, connectionID)
	if err != nil {
		return fmt.Errorf("listing connection events: %w", err)
	}

	action := "connection.deactivated"
	if hardDelete {
		action = "connection.removed"
		if err := o.connRepo.Delete(ctx, connectionID); err != nil {
			return err
		}
	} else {
		if err := o.connRepo.UpdateStatus(ctx, connectionID, models.ConnectionStatusInactive, nil); err != nil {
			return err
		}
	}

	affected, dispErr := o.applyDisposition(ctx, events, disposition)

	// The connection change is committed even if the disposition only
	// partially applied; conflicts are reconciled for whatever was
	// actually removed.
	if cleanupErr := o.engine.CleanupAfterRemoval(ctx, conn.PropertyID, affected); cleanupErr != nil {
		log.Printf("Conflict cleanup failed for property %s: %v", conn.PropertyID, cleanupErr)
	}

	o.notifyRetired(ctx, conn, action, disposition, len(events), len(affected))
	o.audit(ctx, action, conn, fmt.Sprintf("disposition=%s events=%d affected=%d", disposition, len(events), len(affected)))

	return dispErr
}

// applyDisposition applies the event policy and returns the ids of
// events that no longer count as active (input to conflict cleanup).
// Converted and kept events stay active, so they are not "affected".
func (o *Orchestrator) applyDisposition(ctx context.Context, events []models.Event, disposition string) ([]string, error) {
	var affected []string
	var firstErr error

	for _, ev := range events {
		var err error
		removed := false

		switch disposition {
		case DispositionDelete:
			err = o.eventRepo.Delete(ctx, ev.ID)
			removed = true
		case DispositionDeactivate:
			err = o.eventRepo.Deactivate(ctx, ev.ID)
			removed = true
		case DispositionConvert:
			err = o.eventRepo.Detach(ctx, ev.ID)
		case DispositionKeep:
			continue
		}

		if errors.Is(err, storage.ErrNotFound) {
			err = nil
		}
		if err != nil {
			log.Printf("Disposition %s failed for event %s: %v", disposition, ev.ID, err)
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		if removed {
			affected = append(affected, ev.ID)
		}
	}

	return affected, firstErr
}

func validDisposition(d string) error {
	switch d {
	case DispositionDelete, DispositionDeactivate, DispositionConvert, DispositionKeep:
		return nil
	default:
		return &ValidationError{Msg: fmt.Sprintf("unknown event disposition %q", d)}
	}
}

func (o *Orchestrator) notifyRetired(ctx context.Context, conn *models.Connection, action, disposition string, total, affected int) {
	if o.notifier == nil {
		return
	}
	err := o.notifier.Send(ctx, notify.Notification{
		PropertyID: conn.PropertyID,
		UserID:     conn.UserID,
		Type:       notify.TypeConnectionRemoved,
		Title:      "Calendar connection " + verb(action),
		Message: fmt.Sprintf("%s (%s): %d events handled with policy %q, %d removed from the calendar",
			conn.Name, conn.Platform, total, disposition, affected),
		Severity: notify.SeverityInfo,
	})
	if err != nil {
		log.Printf("Failed to send %s notification: %v", action, err)
	}
}

func verb(action string) string {
	if action == "connection.removed" {
		return "removed"
	}
	return "deactivated"
}

func (o *Orchestrator) audit(ctx context.Context, action string, conn *models.Connection, details string) {
	if o.auditor == nil {
		return
	}
	err := o.auditor.Record(ctx, notify.AuditEntry{
		Action:     action,
		EntityType: "connection",
		EntityID:   conn.ID,
		ActorID:    conn.UserID,
		PropertyID: conn.PropertyID,
		Details:    details,
		OccurredAt: time.Now().UTC(),
	})
	if err != nil {
		log.Printf("Failed to record audit entry for %s: %v", action, err)
	}
}
