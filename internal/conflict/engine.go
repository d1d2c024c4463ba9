// Package conflict detects and resolves double-booking conflicts
// between calendar events on a property.
package conflict

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/calendar-sync-manager/backend/internal/notify"
	"github.com/calendar-sync-manager/backend/internal/storage"
	"github.com/calendar-sync-manager/backend/internal/storage/models"
)

// ErrAlreadyResolved is returned when resolution is attempted on a
// conflict that is already resolved.
var ErrAlreadyResolved = errors.New("conflict already resolved")

// Engine materializes Conflict aggregates from event overlap state and
// applies resolution strategies.
type Engine struct {
	eventRepo    *storage.EventRepository
	conflictRepo *storage.ConflictRepository
	notifier     notify.Sink
	locks        *propertyLocks
}

// NewEngine creates a conflict engine. notifier may be nil.
func NewEngine(eventRepo *storage.EventRepository, conflictRepo *storage.ConflictRepository, notifier notify.Sink) *Engine {
	return &Engine{
		eventRepo:    eventRepo,
		conflictRepo: conflictRepo,
		notifier:     notifier,
		locks:        newPropertyLocks(),
	}
}

// contenders returns the active confirmed events on a property, in the
// repository's stable (start_date, id) order. Only confirmed events can
// conflict; cancelled and tentative holds do not block the calendar.
func (e *Engine) contenders(ctx context.Context, propertyID string) ([]models.Event, error) {
	events, err := e.eventRepo.ListActiveByProperty(ctx, propertyID)
	if err != nil {
		return nil, err
	}

	confirmed := events[:0]
	for _, ev := range events {
		if ev.Status == models.EventStatusConfirmed {
			confirmed = append(confirmed, ev)
		}
	}
	return confirmed, nil
}

// CheckEvent runs targeted detection after a single event was created
// or updated. If the event overlaps other confirmed events on its
// property, an overlap conflict covering the whole group is recorded.
// An existing open overlap conflict already touching any member is
// updated in place instead of duplicated.
func (e *Engine) CheckEvent(ctx context.Context, event *models.Event) (*models.Conflict, error) {
	if !event.IsActive || event.Status != models.EventStatusConfirmed {
		return nil, nil
	}

	unlock := e.locks.acquire(event.PropertyID)
	defer unlock()

	others, err := e.contenders(ctx, event.PropertyID)
	if err != nil {
		return nil, fmt.Errorf("loading property events: %w", err)
	}

	group := []models.Event{*event}
	for _, other := range others {
		if other.ID == event.ID {
			continue
		}
		if event.Overlaps(&other) {
			group = append(group, other)
		}
	}
	if len(group) < 2 {
		return nil, nil
	}

	start, end := dateSpan(group)
	memberIDs := eventIDs(group)

	// Fold into an existing open overlap conflict touching any member.
	open, err := e.conflictRepo.ListOpenByProperty(ctx, event.PropertyID)
	if err != nil {
		return nil, fmt.Errorf("loading open conflicts: %w", err)
	}
	for i := range open {
		existing := &open[i]
		if existing.ConflictType != models.ConflictTypeOverlap {
			continue
		}
		if !touchesAny(existing, memberIDs) {
			continue
		}
		existing.EventIDs = mergeIDs(existing.EventIDs, memberIDs)
		existing.StartDate = minTime(existing.StartDate, start)
		existing.EndDate = maxTime(existing.EndDate, end)
		if err := e.conflictRepo.UpdateMembers(ctx, existing); err != nil {
			return nil, err
		}
		return existing, nil
	}

	conflict := &models.Conflict{
		PropertyID:   event.PropertyID,
		EventIDs:     memberIDs,
		ConflictType: models.ConflictTypeOverlap,
		Severity:     models.ConflictSeverityHigh,
		Status:       models.ConflictStatusNew,
		StartDate:    start,
		EndDate:      end,
	}
	if err := e.conflictRepo.Create(ctx, conflict); err != nil {
		return nil, err
	}

	e.notifyDetected(ctx, conflict, len(group))
	return conflict, nil
}

// RescanProperty rebuilds the property's conflicts from the current
// event set. Overlapping events are grouped transitively into one
// conflict each; same-day turnover pairs get a medium-severity
// conflict per pair. Pairwise comparison is O(n^2) in active event
// count, which stays small per property.
//
// Rebuilt conflicts that still cover an open conflict's members keep
// that conflict's id, status and detection time, so an acknowledged
// conflict stays acknowledged across rescans and only genuinely new
// conflicts are announced. The delete+rebuild happens in one
// transaction, so readers never see the half-built state. Returns the
// number of conflicts materialized.
func (e *Engine) RescanProperty(ctx context.Context, propertyID string) (int, error) {
	unlock := e.locks.acquire(propertyID)
	defer unlock()

	events, err := e.contenders(ctx, propertyID)
	if err != nil {
		return 0, fmt.Errorf("loading property events: %w", err)
	}

	open, err := e.conflictRepo.ListOpenByProperty(ctx, propertyID)
	if err != nil {
		return 0, fmt.Errorf("loading open conflicts: %w", err)
	}

	conflicts := detect(propertyID, events)
	fresh := carryForward(open, conflicts)

	if err := e.conflictRepo.ReplaceForProperty(ctx, propertyID, conflicts); err != nil {
		return 0, fmt.Errorf("replacing conflicts: %w", err)
	}

	for _, c := range fresh {
		e.notifyDetected(ctx, c, len(c.EventIDs))
	}

	return len(conflicts), nil
}

// carryForward matches rebuilt conflicts against the open conflicts
// they replace, preserving id, status and detection time. Rescans run
// after every sync; without the match an operator's acknowledgment
// would be wiped and the same standing conflict re-announced every
// interval. A rebuilt conflict absorbs an open conflict of the same
// type whose members it still covers; each open conflict is absorbed
// at most once. Returns the conflicts with no predecessor, the only
// ones worth announcing.
func carryForward(open, rebuilt []models.Conflict) []*models.Conflict {
	claimed := make([]bool, len(open))
	var fresh []*models.Conflict

	for i := range rebuilt {
		c := &rebuilt[i]
		matched := false
		for j := range open {
			prev := &open[j]
			if claimed[j] || prev.ConflictType != c.ConflictType || !coversAll(c, prev.EventIDs) {
				continue
			}
			claimed[j] = true
			c.ID = prev.ID
			c.Status = prev.Status
			c.DetectedAt = prev.DetectedAt
			matched = true
			break
		}
		if !matched {
			fresh = append(fresh, c)
		}
	}

	return fresh
}

func coversAll(c *models.Conflict, ids []string) bool {
	for _, id := range ids {
		if !c.HasEvent(id) {
			return false
		}
	}
	return true
}

// detect computes the full conflict set for an event list. Events must
// be in stable order; group membership and spans are deterministic.
func detect(propertyID string, events []models.Event) []models.Conflict {
	n := len(events)
	if n < 2 {
		return nil
	}

	// Union-find over overlap pairs: transitively overlapping events
	// collapse into a single conflict spanning the union of dates.
	parent := make([]int, n)
	for i := range parent {
		parent[i] = i
	}
	var find func(int) int
	find = func(i int) int {
		if parent[i] != i {
			parent[i] = find(parent[i])
		}
		return parent[i]
	}
	union := func(a, b int) {
		parent[find(a)] = find(b)
	}

	overlapping := make([]bool, n)
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			if events[i].Overlaps(&events[j]) {
				union(i, j)
				overlapping[i], overlapping[j] = true, true
			}
		}
	}

	var conflicts []models.Conflict

	groups := make(map[int][]models.Event)
	order := make([]int, 0, n)
	for i := 0; i < n; i++ {
		if !overlapping[i] {
			continue
		}
		root := find(i)
		if _, seen := groups[root]; !seen {
			order = append(order, root)
		}
		groups[root] = append(groups[root], events[i])
	}
	for _, root := range order {
		group := groups[root]
		start, end := dateSpan(group)
		conflicts = append(conflicts, models.Conflict{
			PropertyID:   propertyID,
			EventIDs:     eventIDs(group),
			ConflictType: models.ConflictTypeOverlap,
			Severity:     models.ConflictSeverityHigh,
			Status:       models.ConflictStatusNew,
			StartDate:    start,
			EndDate:      end,
		})
	}

	// Turnover pairs: touching, not overlapping.
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			if events[i].Overlaps(&events[j]) {
				continue
			}
			if !events[i].SameDayTurnover(&events[j]) {
				continue
			}
			pair := []models.Event{events[i], events[j]}
			start, end := dateSpan(pair)
			conflicts = append(conflicts, models.Conflict{
				PropertyID:   propertyID,
				EventIDs:     eventIDs(pair),
				ConflictType: models.ConflictTypeTurnover,
				Severity:     models.ConflictSeverityMedium,
				Status:       models.ConflictStatusNew,
				StartDate:    start,
				EndDate:      end,
			})
		}
	}

	return conflicts
}

func (e *Engine) notifyDetected(ctx context.Context, c *models.Conflict, memberCount int) {
	if e.notifier == nil {
		return
	}
	severity := notify.SeverityCritical
	if c.ConflictType == models.ConflictTypeTurnover {
		severity = notify.SeverityWarning
	}
	err := e.notifier.Send(ctx, notify.Notification{
		PropertyID: c.PropertyID,
		Type:       notify.TypeConflictDetected,
		Title:      "Calendar conflict detected",
		Message: fmt.Sprintf("%d events form a %s conflict between %s and %s",
			memberCount, c.ConflictType,
			c.StartDate.Format("2006-01-02"), c.EndDate.Format("2006-01-02")),
		Severity: severity,
	})
	if err != nil {
		log.Printf("Failed to send conflict notification: %v", err)
	}
}

// date helpers

func dateSpan(events []models.Event) (time.Time, time.Time) {
	start, end := events[0].StartDate, events[0].EndDate
	for _, ev := range events[1:] {
		start = minTime(start, ev.StartDate)
		end = maxTime(end, ev.EndDate)
	}
	return start, end
}

func eventIDs(events []models.Event) []string {
	ids := make([]string, len(events))
	for i, ev := range events {
		ids[i] = ev.ID
	}
	return ids
}

func touchesAny(c *models.Conflict, ids []string) bool {
	for _, id := range ids {
		if c.HasEvent(id) {
			return true
		}
	}
	return false
}

func mergeIDs(existing, incoming []string) []string {
	seen := make(map[string]bool, len(existing))
	out := append([]string(nil), existing...)
	for _, id := range existing {
		seen[id] = true
	}
	for _, id := range incoming {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}

func minTime(a, b time.Time) time.Time {
	if b.Before(a) {
		return b
	}
	return a
}

func maxTime(a, b time.Time) time.Time {
	if b.After(a) {
		return b
	}
	return a
}
