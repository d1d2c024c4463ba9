// Package sync reconciles stored calendar events against external feed
// state, per connection, and keeps connection health current.
package sync

import (
	"context"
	"errors"
	"fmt"
	"log"
	gosync "sync"
	"time"

	"github.com/calendar-sync-manager/backend/internal/feed"
	"github.com/calendar-sync-manager/backend/internal/notify"
	"github.com/calendar-sync-manager/backend/internal/storage"
	"github.com/calendar-sync-manager/backend/internal/storage/models"
)

const (
	// applyBatchSize bounds how many staged changes one batch writes,
	// keeping transactions and memory bounded on large feeds.
	applyBatchSize = 50

	// individualNotifyCap bounds per-booking notifications for one
	// sync; beyond it a single summary is sent instead.
	individualNotifyCap = 5
)

// Fetcher retrieves raw feed entries. *feed.Client satisfies this.
type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]feed.RawEntry, error)
}

// Rescanner rebuilds a property's conflicts. *conflict.Engine satisfies
// this and is always invoked at the end of a sync, success or not.
type Rescanner interface {
	RescanProperty(ctx context.Context, propertyID string) (int, error)
}

// ErrSyncInProgress reports that another caller is already syncing the
// connection. Callers treat it as a skip, not a failure.
var ErrSyncInProgress = errors.New("sync already in progress for connection")

// Reconciler makes the stored event set for a connection match its
// feed's current contents. At most one sync per connection runs at a
// time, whatever the entry point; concurrent attempts get
// ErrSyncInProgress.
type Reconciler struct {
	connRepo  *storage.ConnectionRepository
	eventRepo *storage.EventRepository
	fetcher   Fetcher
	rescanner Rescanner
	notifier  notify.Sink

	inFlightMu gosync.Mutex
	inFlight   map[string]bool
}

// NewReconciler creates a reconciler. notifier may be nil.
func NewReconciler(
	connRepo *storage.ConnectionRepository,
	eventRepo *storage.EventRepository,
	fetcher Fetcher,
	rescanner Rescanner,
	notifier notify.Sink,
) *Reconciler {
	return &Reconciler{
		connRepo:  connRepo,
		eventRepo: eventRepo,
		fetcher:   fetcher,
		rescanner: rescanner,
		notifier:  notifier,
		inFlight:  make(map[string]bool),
	}
}

// claim marks a connection as syncing. Returns false if a sync is
// already in flight for it.
func (r *Reconciler) claim(connectionID string) bool {
	r.inFlightMu.Lock()
	defer r.inFlightMu.Unlock()
	if r.inFlight[connectionID] {
		return false
	}
	r.inFlight[connectionID] = true
	return true
}

// release clears the in-flight mark for a connection.
func (r *Reconciler) release(connectionID string) {
	r.inFlightMu.Lock()
	defer r.inFlightMu.Unlock()
	delete(r.inFlight, connectionID)
}

// InFlightCount reports how many connections are currently syncing.
func (r *Reconciler) InFlightCount() int {
	r.inFlightMu.Lock()
	defer r.inFlightMu.Unlock()
	return len(r.inFlight)
}

// SyncConnection runs the full reconciliation pipeline for one
// connection: fetch, normalize, diff, batched apply, notifications,
// health write-back, conflict rescan. The conflict rescan runs even
// when the fetch fails, because a sync attempt is the only point where
// the event set is known to possibly have changed. Returns
// ErrSyncInProgress when the connection is already mid-sync.
func (r *Reconciler) SyncConnection(ctx context.Context, connectionID string) (*models.SyncResult, error) {
	if !r.claim(connectionID) {
		return nil, ErrSyncInProgress
	}
	defer r.release(connectionID)

	conn, err := r.connRepo.GetByID(ctx, connectionID)
	if err != nil {
		return nil, fmt.Errorf("loading connection: %w", err)
	}

	result := &models.SyncResult{
		ConnectionID:   conn.ID,
		ConnectionName: conn.Name,
		Platform:       conn.Platform,
		SyncedAt:       time.Now().UTC(),
	}

	entries, err := r.fetcher.Fetch(ctx, conn.URL)
	if err != nil && !errors.Is(err, feed.ErrEmptyFeed) {
		r.markError(ctx, conn, err)
		result.Error = err
		result.ErrorMessage = err.Error()
		result.ConflictsFound = r.rescan(ctx, conn.PropertyID)
		return result, err
	}

	remote := feed.Normalize(entries, conn.Platform)
	result.EventsFound = len(remote)

	stored, err := r.eventRepo.ListActiveByConnection(ctx, conn.ID)
	if err != nil {
		r.markError(ctx, conn, err)
		result.Error = err
		result.ErrorMessage = err.Error()
		result.ConflictsFound = r.rescan(ctx, conn.PropertyID)
		return result, err
	}

	cs := BuildChangeSet(remote, stored, startOfToday())
	created := r.apply(ctx, conn, cs, result)

	r.sendSyncNotifications(ctx, conn, created, result)

	if err := r.connRepo.UpdateStatus(ctx, conn.ID, models.ConnectionStatusActive, nil); err != nil {
		log.Printf("Failed to update connection %s status: %v", conn.ID, err)
	}

	result.ConflictsFound = r.rescan(ctx, conn.PropertyID)

	log.Printf("Synced connection %s (%s): %d events, %d created, %d updated, %d cancelled, %d conflicts",
		conn.ID, feed.RedactURL(conn.URL), result.EventsFound,
		result.EventsCreated, result.EventsUpdated, result.EventsCanceled, result.ConflictsFound)

	return result, nil
}

// apply writes the staged changes in fixed-size batches. A failing
// batch is logged and skipped; the remainder of the sync continues.
// Returns the booking-category events that were newly created, for
// notification fan-out.
func (r *Reconciler) apply(ctx context.Context, conn *models.Connection, cs ChangeSet, result *models.SyncResult) []models.Event {
	var createdBookings []models.Event

	for _, batch := range batchCreates(cs.Creates, applyBatchSize) {
		for _, ne := range batch {
			uid := ne.ExternalUID
			event := &models.Event{
				PropertyID:   conn.PropertyID,
				ConnectionID: &conn.ID,
				ExternalUID:  &uid,
				Summary:      ne.Summary,
				Description:  ne.Description,
				EventType:    ne.EventType,
				Status:       ne.Status,
				Source:       models.EventSourceFeed,
				StartDate:    ne.Start,
				EndDate:      ne.End,
				IsActive:     true,
			}
			if err := r.eventRepo.Create(ctx, event); err != nil {
				log.Printf("Failed to create event %s on connection %s: %v", uid, conn.ID, err)
				continue
			}
			result.EventsCreated++
			if event.EventType == models.EventTypeBooking && event.Status == models.EventStatusConfirmed {
				createdBookings = append(createdBookings, *event)
			}
		}
	}

	for _, batch := range batchUpdates(cs.Updates, applyBatchSize) {
		for _, su := range batch {
			if err := r.eventRepo.ApplyPatch(ctx, su.Event.ID, su.Patch); err != nil {
				log.Printf("Failed to update event %s on connection %s: %v", su.Event.ID, conn.ID, err)
				continue
			}
			result.EventsUpdated++
		}
	}

	for _, batch := range batchEvents(cs.Cancels, applyBatchSize) {
		for _, ev := range batch {
			if err := r.eventRepo.Cancel(ctx, ev.ID); err != nil {
				log.Printf("Failed to cancel event %s on connection %s: %v", ev.ID, conn.ID, err)
				continue
			}
			result.EventsCanceled++
		}
	}

	return createdBookings
}

// sendSyncNotifications emits per-booking notifications for new
// bookings up to a cap, then one summary, plus one summary each for the
// modified and cancelled groups. Keeps a big first sync from flooding
// the owner.
func (r *Reconciler) sendSyncNotifications(ctx context.Context, conn *models.Connection, created []models.Event, result *models.SyncResult) {
	if r.notifier == nil {
		return
	}

	if len(created) <= individualNotifyCap {
		for _, ev := range created {
			r.send(ctx, conn, notify.TypeNewBooking, "New booking",
				fmt.Sprintf("%s: %s to %s (%s)", conn.Name,
					ev.StartDate.Format("2006-01-02"), ev.EndDate.Format("2006-01-02"), ev.Summary),
				notify.SeverityInfo)
		}
	} else {
		r.send(ctx, conn, notify.TypeNewBooking, "New bookings",
			fmt.Sprintf("%s: %d new bookings imported", conn.Name, len(created)),
			notify.SeverityInfo)
	}

	if result.EventsUpdated > 0 {
		r.send(ctx, conn, notify.TypeBookingModified, "Bookings updated",
			fmt.Sprintf("%s: %d bookings changed dates or details", conn.Name, result.EventsUpdated),
			notify.SeverityInfo)
	}
	if result.EventsCanceled > 0 {
		r.send(ctx, conn, notify.TypeBookingCancelled, "Bookings cancelled",
			fmt.Sprintf("%s: %d bookings no longer appear in the feed", conn.Name, result.EventsCanceled),
			notify.SeverityWarning)
	}
}

func (r *Reconciler) send(ctx context.Context, conn *models.Connection, ntype, title, message, severity string) {
	err := r.notifier.Send(ctx, notify.Notification{
		PropertyID: conn.PropertyID,
		UserID:     conn.UserID,
		Type:       ntype,
		Title:      title,
		Message:    message,
		Severity:   severity,
	})
	if err != nil {
		log.Printf("Failed to send %s notification: %v", ntype, err)
	}
}

func (r *Reconciler) markError(ctx context.Context, conn *models.Connection, cause error) {
	msg := cause.Error()
	if err := r.connRepo.UpdateStatus(ctx, conn.ID, models.ConnectionStatusError, &msg); err != nil {
		log.Printf("Failed to mark connection %s errored: %v", conn.ID, err)
	}
	if r.notifier != nil {
		r.send(ctx, conn, notify.TypeSyncFailed, "Calendar sync failed",
			fmt.Sprintf("%s: %s", conn.Name, msg), notify.SeverityWarning)
	}
}

func (r *Reconciler) rescan(ctx context.Context, propertyID string) int {
	if r.rescanner == nil {
		return 0
	}
	n, err := r.rescanner.RescanProperty(ctx, propertyID)
	if err != nil {
		log.Printf("Conflict rescan failed for property %s: %v", propertyID, err)
		return 0
	}
	return n
}

// SyncProperty syncs every non-inactive connection on a property using
// the same per-connection routine as the scheduled path. Per-connection
// failures are recorded in the report without stopping the batch.
func (r *Reconciler) SyncProperty(ctx context.Context, propertyID string) (*models.SyncReport, error) {
	conns, err := r.connRepo.ListByProperty(ctx, propertyID)
	if err != nil {
		return nil, fmt.Errorf("listing property connections: %w", err)
	}
	return r.syncAll(ctx, conns), nil
}

// SyncUser syncs every non-inactive connection belonging to a user.
func (r *Reconciler) SyncUser(ctx context.Context, userID string) (*models.SyncReport, error) {
	conns, err := r.connRepo.ListByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("listing user connections: %w", err)
	}
	return r.syncAll(ctx, conns), nil
}

func (r *Reconciler) syncAll(ctx context.Context, conns []models.Connection) *models.SyncReport {
	report := &models.SyncReport{}
	for _, conn := range conns {
		if conn.Status == models.ConnectionStatusInactive {
			continue
		}
		result, err := r.SyncConnection(ctx, conn.ID)
		if errors.Is(err, ErrSyncInProgress) {
			log.Printf("Connection %s already syncing, skipped in batch sync", conn.ID)
			continue
		}
		if err != nil && result == nil {
			result = &models.SyncResult{
				ConnectionID: conn.ID, ConnectionName: conn.Name, Platform: conn.Platform,
				Error: err, ErrorMessage: err.Error(), SyncedAt: time.Now().UTC(),
			}
		}
		report.Add(*result)
	}
	return report
}

// startOfToday returns midnight UTC of the current day, the cutoff for
// the past-event filter.
func startOfToday() time.Time {
	now := time.Now().UTC()
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
}

func batchCreates(items []feed.NormalizedEvent, size int) [][]feed.NormalizedEvent {
	var out [][]feed.NormalizedEvent
	for len(items) > size {
		out = append(out, items[:size])
		items = items[size:]
	}
	if len(items) > 0 {
		out = append(out, items)
	}
	return out
}

func batchUpdates(items []StagedUpdate, size int) [][]StagedUpdate {
	var out [][]StagedUpdate
	for len(items) > size {
		out = append(out, items[:size])
		items = items[size:]
	}
	if len(items) > 0 {
		out = append(out, items)
	}
	return out
}

func batchEvents(items []models.Event, size int) [][]models.Event {
	var out [][]models.Event
	for len(items) > size {
		out = append(out, items[:size])
		items = items[size:]
	}
	if len(items) > 0 {
		out = append(out, items)
	}
	return out
}
