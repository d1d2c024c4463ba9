package sync

import (
	"context"
	"errors"
	"log"
	gosync "sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/calendar-sync-manager/backend/internal/storage"
	"github.com/calendar-sync-manager/backend/internal/storage/models"
)

// triggerIntervals are the fixed periodic triggers. Each firing selects
// the connections due under their own configured interval, so a
// connection preferring hourly syncs is not dragged along by the
// 15-minute trigger unless it is actually due.
var triggerIntervals = []time.Duration{
	15 * time.Minute,
	30 * time.Minute,
	45 * time.Minute,
	60 * time.Minute,
}

// maxParallelSyncs bounds how many connections one trigger firing syncs
// at once, so neither feed hosts nor the store get hammered.
const maxParallelSyncs = 4

// Scheduler drives periodic reconciliation. Triggers may overlap for
// disjoint connection sets; the reconciler's in-flight set keeps a
// connection already mid-sync from being synced twice, no matter which
// trigger or API call got there first.
type Scheduler struct {
	cron       *cron.Cron
	reconciler *Reconciler
	connRepo   *storage.ConnectionRepository
}

// NewScheduler creates a sync scheduler.
func NewScheduler(reconciler *Reconciler, connRepo *storage.ConnectionRepository) *Scheduler {
	return &Scheduler{
		cron:       cron.New(),
		reconciler: reconciler,
		connRepo:   connRepo,
	}
}

// Start registers the periodic triggers and begins firing them.
func (s *Scheduler) Start() error {
	for _, interval := range triggerIntervals {
		interval := interval
		_, err := s.cron.AddFunc("@every "+interval.String(), func() {
			s.runTrigger(context.Background(), interval)
		})
		if err != nil {
			return err
		}
	}

	s.cron.Start()
	log.Printf("Sync scheduler started with %d periodic triggers", len(triggerIntervals))
	return nil
}

// Stop shuts the scheduler down, waiting for running jobs to finish.
func (s *Scheduler) Stop() {
	log.Println("Stopping sync scheduler...")
	ctx := s.cron.Stop()
	<-ctx.Done()
	log.Println("Sync scheduler stopped")
}

// TriggerCount returns the number of registered periodic triggers.
func (s *Scheduler) TriggerCount() int {
	return len(s.cron.Entries())
}

// InFlightCount returns how many connections are currently syncing.
func (s *Scheduler) InFlightCount() int {
	return s.reconciler.InFlightCount()
}

// runTrigger selects due connections and syncs them with bounded
// parallelism. Sync work is I/O-bound; workers keep one slow feed from
// serializing the rest.
func (s *Scheduler) runTrigger(ctx context.Context, interval time.Duration) {
	conns, err := s.connRepo.ListSyncable(ctx)
	if err != nil {
		log.Printf("Trigger %s: failed to list connections: %v", interval, err)
		return
	}

	now := time.Now().UTC()
	var due []models.Connection
	for _, conn := range conns {
		if conn.IsDue(now) {
			due = append(due, conn)
		}
	}
	if len(due) == 0 {
		return
	}

	log.Printf("Trigger %s: %d connections due", interval, len(due))

	sem := make(chan struct{}, maxParallelSyncs)
	var wg gosync.WaitGroup
	for _, conn := range due {
		wg.Add(1)
		sem <- struct{}{}
		go func(connID string) {
			defer wg.Done()
			defer func() { <-sem }()

			_, err := s.reconciler.SyncConnection(ctx, connID)
			switch {
			case errors.Is(err, ErrSyncInProgress):
				log.Printf("Connection %s already syncing, trigger skipped it", connID)
			case err != nil:
				log.Printf("Scheduled sync failed for connection %s: %v", connID, err)
			}
		}(conn.ID)
	}
	wg.Wait()
}

// TriggerConnection runs an immediate sync for one connection in the
// background. The reconciler drops the attempt if one is already in
// flight.
func (s *Scheduler) TriggerConnection(connectionID string) {
	go func() {
		_, err := s.reconciler.SyncConnection(context.Background(), connectionID)
		switch {
		case errors.Is(err, ErrSyncInProgress):
			log.Printf("Connection %s already syncing, manual trigger skipped", connectionID)
		case err != nil:
			log.Printf("Manual sync failed for connection %s: %v", connectionID, err)
		}
	}()
}
