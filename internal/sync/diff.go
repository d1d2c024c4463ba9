package sync

import (
	"strings"
	"time"

	"github.com/calendar-sync-manager/backend/internal/feed"
	"github.com/calendar-sync-manager/backend/internal/storage"
	"github.com/calendar-sync-manager/backend/internal/storage/models"
)

// StagedUpdate pairs a stored event with the patch that brings it in
// line with the feed.
type StagedUpdate struct {
	Event models.Event
	Patch storage.EventPatch
}

// ChangeSet is the outcome of diffing a feed's normalized events
// against the stored event set for one connection. Applying it makes
// the stored set match the feed.
type ChangeSet struct {
	Creates []feed.NormalizedEvent
	Updates []StagedUpdate
	Cancels []models.Event
}

// IsEmpty reports whether the diff staged no work. A repeat sync with
// an unchanged feed must produce an empty change set.
func (c *ChangeSet) IsEmpty() bool {
	return len(c.Creates) == 0 && len(c.Updates) == 0 && len(c.Cancels) == 0
}

// BuildChangeSet diffs remote events against the connection's stored
// active events.
//
// Remote events ending strictly before today are discarded: past stays
// are historical noise, and the engine makes no historical-accuracy
// promise (a feed-reported change to a past booking is dropped). The
// cancel sweep mirrors the filter: stored events whose end date is
// before today are never swept, because the feed was never asked about
// them.
func BuildChangeSet(remote []feed.NormalizedEvent, stored []models.Event, today time.Time) ChangeSet {
	var cs ChangeSet

	byUID := make(map[string]models.Event, len(stored))
	for _, ev := range stored {
		if ev.ExternalUID != nil {
			byUID[*ev.ExternalUID] = ev
		}
	}

	seen := make(map[string]bool, len(remote))
	for _, re := range remote {
		if re.End.Before(today) {
			continue
		}
		seen[re.ExternalUID] = true

		existing, ok := byUID[re.ExternalUID]
		if !ok {
			cs.Creates = append(cs.Creates, re)
			continue
		}

		patch := diffEvent(&existing, &re)
		if !patch.IsEmpty() {
			cs.Updates = append(cs.Updates, StagedUpdate{Event: existing, Patch: patch})
		}
	}

	for _, ev := range stored {
		if ev.ExternalUID == nil || seen[*ev.ExternalUID] {
			continue
		}
		if ev.Status == models.EventStatusCancelled {
			continue
		}
		if ev.EndDate.Before(today) {
			continue
		}
		cs.Cancels = append(cs.Cancels, ev)
	}

	return cs
}

// diffEvent compares a stored event against its remote counterpart and
// stages only the changed fields. Text comparisons are
// case-insensitive; platforms re-case summaries between exports.
func diffEvent(stored *models.Event, remote *feed.NormalizedEvent) storage.EventPatch {
	var patch storage.EventPatch

	if !strings.EqualFold(stored.Summary, remote.Summary) {
		patch.Summary = &remote.Summary
	}
	if !strings.EqualFold(stored.Status, remote.Status) {
		patch.Status = &remote.Status
	}
	if !stored.StartDate.Equal(remote.Start) {
		patch.StartDate = &remote.Start
	}
	if !stored.EndDate.Equal(remote.End) {
		patch.EndDate = &remote.End
	}

	return patch
}
