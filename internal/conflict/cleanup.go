package conflict

import (
	"context"
	"fmt"
	"log"

	"github.com/calendar-sync-manager/backend/internal/storage/models"
)

// CleanupAfterRemoval reconciles a property's open conflicts after the
// given events were removed or deactivated (typically by a connection
// deletion). For each touched conflict the remaining members are
// re-examined: fewer than two left resolves the conflict outright; two
// or more are re-checked for actual overlap and the conflict is either
// recomputed in place or resolved.
func (e *Engine) CleanupAfterRemoval(ctx context.Context, propertyID string, removedEventIDs []string) error {
	if len(removedEventIDs) == 0 {
		return nil
	}

	unlock := e.locks.acquire(propertyID)
	defer unlock()

	removed := make(map[string]bool, len(removedEventIDs))
	for _, id := range removedEventIDs {
		removed[id] = true
	}

	open, err := e.conflictRepo.ListOpenByProperty(ctx, propertyID)
	if err != nil {
		return fmt.Errorf("loading open conflicts: %w", err)
	}

	for i := range open {
		c := &open[i]
		if !touchesAny(c, removedEventIDs) {
			continue
		}
		if err := e.cleanupConflict(ctx, c, removed); err != nil {
			return fmt.Errorf("cleaning up conflict %s: %w", c.ID, err)
		}
	}

	return nil
}

func (e *Engine) cleanupConflict(ctx context.Context, c *models.Conflict, removed map[string]bool) error {
	var survivorIDs []string
	for _, id := range c.EventIDs {
		if !removed[id] {
			survivorIDs = append(survivorIDs, id)
		}
	}

	// Survivors must still exist and be active; an id can be stale if
	// the event was deleted by another path since detection.
	survivors, err := e.eventRepo.ListByIDs(ctx, survivorIDs)
	if err != nil {
		return err
	}
	active := survivors[:0]
	for _, ev := range survivors {
		if ev.IsActive {
			active = append(active, ev)
		}
	}

	if len(active) < 2 {
		log.Printf("Conflict %s has %d active members left, resolving", c.ID, len(active))
		return e.conflictRepo.Resolve(ctx, c.ID, "cleanup: fewer than two members remain")
	}

	if !stillConflicting(c.ConflictType, active) {
		log.Printf("Conflict %s members no longer conflict, resolving", c.ID)
		return e.conflictRepo.Resolve(ctx, c.ID, "cleanup: remaining members no longer conflict")
	}

	c.EventIDs = eventIDs(active)
	c.StartDate, c.EndDate = dateSpan(active)
	return e.conflictRepo.UpdateMembers(ctx, c)
}

// stillConflicting reports whether any pair of the remaining events
// still satisfies the conflict's category predicate.
func stillConflicting(conflictType string, events []models.Event) bool {
	for i := 0; i < len(events); i++ {
		for j := i + 1; j < len(events); j++ {
			switch conflictType {
			case models.ConflictTypeTurnover:
				if events[i].SameDayTurnover(&events[j]) {
					return true
				}
			default:
				if events[i].Overlaps(&events[j]) {
					return true
				}
			}
		}
	}
	return false
}
