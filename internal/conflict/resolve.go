package conflict

import (
	"context"
	"fmt"
	"log"

	"github.com/calendar-sync-manager/backend/internal/storage"
	"github.com/calendar-sync-manager/backend/internal/storage/models"
)

// Resolution describes the outcome of resolving one conflict.
type Resolution struct {
	ConflictID      string   `json:"conflict_id"`
	KeptEventIDs    []string `json:"kept_event_ids"`
	RemovedEventIDs []string `json:"removed_event_ids"`
	Strategy        string   `json:"strategy"`
}

// Resolution strategies
const (
	StrategyManual    = "manual"
	StrategyAutomatic = "automatic"
	StrategyCleanup   = "cleanup"
)

// ResolveManual resolves a conflict by keeping the caller-chosen subset
// of member events and removing the rest. hardDelete controls whether
// losers are deleted outright or soft-deactivated (kept as cancelled
// history).
func (e *Engine) ResolveManual(ctx context.Context, conflictID string, keepEventIDs []string, hardDelete bool) (*Resolution, error) {
	c, err := e.conflictRepo.GetByID(ctx, conflictID)
	if err != nil {
		return nil, err
	}
	if c.Status == models.ConflictStatusResolved {
		return nil, ErrAlreadyResolved
	}

	keep := make(map[string]bool, len(keepEventIDs))
	for _, id := range keepEventIDs {
		if !c.HasEvent(id) {
			return nil, fmt.Errorf("event %s is not a member of conflict %s", id, conflictID)
		}
		keep[id] = true
	}

	unlock := e.locks.acquire(c.PropertyID)
	defer unlock()

	return e.resolve(ctx, c, keep, hardDelete, StrategyManual)
}

// ResolveAutomatic resolves a conflict by keeping the member event with
// the longest duration in days. Ties break deterministically: the first
// event in the stored (start_date, id) order wins.
func (e *Engine) ResolveAutomatic(ctx context.Context, conflictID string, hardDelete bool) (*Resolution, error) {
	c, err := e.conflictRepo.GetByID(ctx, conflictID)
	if err != nil {
		return nil, err
	}
	if c.Status == models.ConflictStatusResolved {
		return nil, ErrAlreadyResolved
	}

	unlock := e.locks.acquire(c.PropertyID)
	defer unlock()

	members, err := e.eventRepo.ListByIDs(ctx, c.EventIDs)
	if err != nil {
		return nil, fmt.Errorf("loading conflict members: %w", err)
	}
	if len(members) == 0 {
		// All members already gone; nothing left to choose between.
		if err := e.conflictRepo.Resolve(ctx, conflictID, "automatic: no members remain"); err != nil {
			return nil, err
		}
		return &Resolution{ConflictID: conflictID, Strategy: StrategyAutomatic}, nil
	}

	winner := members[0]
	for _, m := range members[1:] {
		if m.DurationDays() > winner.DurationDays() {
			winner = m
		}
	}

	return e.resolve(ctx, c, map[string]bool{winner.ID: true}, hardDelete, StrategyAutomatic)
}

// resolve removes the losing members, marks the conflict resolved, and
// reports what happened. Caller holds the property lock.
func (e *Engine) resolve(ctx context.Context, c *models.Conflict, keep map[string]bool, hardDelete bool, strategy string) (*Resolution, error) {
	res := &Resolution{ConflictID: c.ID, Strategy: strategy}

	for _, id := range c.EventIDs {
		if keep[id] {
			res.KeptEventIDs = append(res.KeptEventIDs, id)
			continue
		}

		var err error
		if hardDelete {
			err = e.eventRepo.Delete(ctx, id)
		} else {
			err = e.eventRepo.Deactivate(ctx, id)
		}
		if err == storage.ErrNotFound {
			// Already gone; resolution still stands.
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("removing event %s: %w", id, err)
		}
		res.RemovedEventIDs = append(res.RemovedEventIDs, id)
	}

	note := fmt.Sprintf("%s: kept %d, removed %d", strategy, len(res.KeptEventIDs), len(res.RemovedEventIDs))
	if err := e.conflictRepo.Resolve(ctx, c.ID, note); err != nil {
		return nil, err
	}

	log.Printf("Resolved conflict %s (%s): kept %v", c.ID, strategy, res.KeptEventIDs)
	return res, nil
}

// Acknowledge marks an open conflict as seen by an operator.
func (e *Engine) Acknowledge(ctx context.Context, conflictID string) error {
	c, err := e.conflictRepo.GetByID(ctx, conflictID)
	if err != nil {
		return err
	}
	if c.Status == models.ConflictStatusResolved {
		return ErrAlreadyResolved
	}
	return e.conflictRepo.UpdateStatus(ctx, conflictID, models.ConflictStatusAcknowledged)
}
