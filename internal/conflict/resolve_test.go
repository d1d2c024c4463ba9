package conflict

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/calendar-sync-manager/backend/internal/storage"
	"github.com/calendar-sync-manager/backend/internal/storage/models"
)

func TestResolveAutomaticKeepsLongestEvent(t *testing.T) {
	engine, eventRepo, conflictRepo := newTestEngine(t)
	ctx := context.Background()

	// Three mutually overlapping stays of 2, 4 and 9 days.
	createEvent(t, eventRepo, "short", "2025-06-01", "2025-06-03")
	createEvent(t, eventRepo, "medium", "2025-06-02", "2025-06-06")
	createEvent(t, eventRepo, "long", "2025-06-02", "2025-06-11")

	n, err := engine.RescanProperty(ctx, "prop-1")
	require.NoError(t, err)
	require.Equal(t, 1, n)

	conflicts, err := conflictRepo.ListOpenByProperty(ctx, "prop-1")
	require.NoError(t, err)
	require.Len(t, conflicts, 1)

	res, err := engine.ResolveAutomatic(ctx, conflicts[0].ID, true)
	require.NoError(t, err)
	assert.Equal(t, StrategyAutomatic, res.Strategy)
	assert.Equal(t, []string{"long"}, res.KeptEventIDs)
	assert.ElementsMatch(t, []string{"short", "medium"}, res.RemovedEventIDs)

	// Losers are hard-deleted, the winner survives.
	_, err = eventRepo.GetByID(ctx, "short")
	assert.ErrorIs(t, err, storage.ErrNotFound)
	_, err = eventRepo.GetByID(ctx, "medium")
	assert.ErrorIs(t, err, storage.ErrNotFound)
	winner, err := eventRepo.GetByID(ctx, "long")
	require.NoError(t, err)
	assert.True(t, winner.IsActive)

	got, err := conflictRepo.GetByID(ctx, conflicts[0].ID)
	require.NoError(t, err)
	assert.Equal(t, models.ConflictStatusResolved, got.Status)

	open, err := conflictRepo.ListOpenByProperty(ctx, "prop-1")
	require.NoError(t, err)
	assert.Empty(t, open, "resolution leaves no open conflicts behind")
}

func TestResolveManual(t *testing.T) {
	engine, eventRepo, conflictRepo := newTestEngine(t)
	ctx := context.Background()

	createEvent(t, eventRepo, "a", "2025-06-01", "2025-06-05")
	createEvent(t, eventRepo, "b", "2025-06-03", "2025-06-07")

	_, err := engine.RescanProperty(ctx, "prop-1")
	require.NoError(t, err)
	conflicts, err := conflictRepo.ListOpenByProperty(ctx, "prop-1")
	require.NoError(t, err)
	require.Len(t, conflicts, 1)
	conflictID := conflicts[0].ID

	// Keeping an event that is not a member is rejected.
	_, err = engine.ResolveManual(ctx, conflictID, []string{"stranger"}, false)
	assert.Error(t, err)

	res, err := engine.ResolveManual(ctx, conflictID, []string{"a"}, false)
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, res.KeptEventIDs)
	assert.Equal(t, []string{"b"}, res.RemovedEventIDs)

	// Soft removal keeps the loser as cancelled history.
	loser, err := eventRepo.GetByID(ctx, "b")
	require.NoError(t, err)
	assert.False(t, loser.IsActive)
	assert.Equal(t, models.EventStatusCancelled, loser.Status)

	// Resolving twice fails.
	_, err = engine.ResolveManual(ctx, conflictID, []string{"a"}, false)
	assert.ErrorIs(t, err, ErrAlreadyResolved)
}

func TestResolveAutomaticNoMembersLeft(t *testing.T) {
	engine, _, conflictRepo := newTestEngine(t)
	ctx := context.Background()

	c := &models.Conflict{
		PropertyID:   "prop-1",
		EventIDs:     []string{"gone-1", "gone-2"},
		ConflictType: models.ConflictTypeOverlap,
		Severity:     models.ConflictSeverityHigh,
		StartDate:    date("2025-06-01"),
		EndDate:      date("2025-06-07"),
	}
	require.NoError(t, conflictRepo.Create(ctx, c))

	res, err := engine.ResolveAutomatic(ctx, c.ID, true)
	require.NoError(t, err)
	assert.Empty(t, res.KeptEventIDs)
	assert.Empty(t, res.RemovedEventIDs)

	got, err := conflictRepo.GetByID(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ConflictStatusResolved, got.Status)
}

func TestAcknowledge(t *testing.T) {
	engine, eventRepo, conflictRepo := newTestEngine(t)
	ctx := context.Background()

	createEvent(t, eventRepo, "a", "2025-06-01", "2025-06-05")
	createEvent(t, eventRepo, "b", "2025-06-03", "2025-06-07")
	_, err := engine.RescanProperty(ctx, "prop-1")
	require.NoError(t, err)

	conflicts, err := conflictRepo.ListOpenByProperty(ctx, "prop-1")
	require.NoError(t, err)
	require.Len(t, conflicts, 1)

	require.NoError(t, engine.Acknowledge(ctx, conflicts[0].ID))
	got, err := conflictRepo.GetByID(ctx, conflicts[0].ID)
	require.NoError(t, err)
	assert.Equal(t, models.ConflictStatusAcknowledged, got.Status)

	// Acknowledged conflicts are still open.
	open, err := conflictRepo.ListOpenByProperty(ctx, "prop-1")
	require.NoError(t, err)
	assert.Len(t, open, 1)

	require.NoError(t, conflictRepo.Resolve(ctx, conflicts[0].ID, "done"))
	assert.ErrorIs(t, engine.Acknowledge(ctx, conflicts[0].ID), ErrAlreadyResolved)
}
