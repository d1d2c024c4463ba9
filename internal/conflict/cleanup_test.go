package conflict

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/calendar-sync-manager/backend/internal/storage/models"
)

func TestCleanupResolvesWhenTooFewMembersRemain(t *testing.T) {
	engine, eventRepo, conflictRepo := newTestEngine(t)
	ctx := context.Background()

	createEvent(t, eventRepo, "a", "2025-06-01", "2025-06-05")
	createEvent(t, eventRepo, "b", "2025-06-03", "2025-06-07")
	createEvent(t, eventRepo, "c", "2025-06-04", "2025-06-09")
	_, err := engine.RescanProperty(ctx, "prop-1")
	require.NoError(t, err)

	require.NoError(t, eventRepo.Delete(ctx, "b"))
	require.NoError(t, eventRepo.Delete(ctx, "c"))

	require.NoError(t, engine.CleanupAfterRemoval(ctx, "prop-1", []string{"b", "c"}))

	open, err := conflictRepo.ListOpenByProperty(ctx, "prop-1")
	require.NoError(t, err)
	assert.Empty(t, open, "a single remaining event cannot conflict with itself")
}

func TestCleanupRecomputesSurvivingConflict(t *testing.T) {
	engine, eventRepo, conflictRepo := newTestEngine(t)
	ctx := context.Background()

	// a-b and b-c overlap; removing a leaves b-c still in conflict.
	createEvent(t, eventRepo, "a", "2025-06-01", "2025-06-05")
	createEvent(t, eventRepo, "b", "2025-06-03", "2025-06-08")
	createEvent(t, eventRepo, "c", "2025-06-06", "2025-06-12")
	_, err := engine.RescanProperty(ctx, "prop-1")
	require.NoError(t, err)

	require.NoError(t, eventRepo.Delete(ctx, "a"))
	require.NoError(t, engine.CleanupAfterRemoval(ctx, "prop-1", []string{"a"}))

	open, err := conflictRepo.ListOpenByProperty(ctx, "prop-1")
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.ElementsMatch(t, []string{"b", "c"}, open[0].EventIDs)
	assert.True(t, open[0].StartDate.Equal(date("2025-06-03")), "span shrinks to the survivors")
	assert.True(t, open[0].EndDate.Equal(date("2025-06-12")))
}

func TestCleanupResolvesWhenSurvivorsNoLongerConflict(t *testing.T) {
	engine, eventRepo, conflictRepo := newTestEngine(t)
	ctx := context.Background()

	// a overlaps both b and c, but b and c are disjoint. Removing a
	// leaves two members that no longer conflict.
	createEvent(t, eventRepo, "a", "2025-06-01", "2025-06-12")
	createEvent(t, eventRepo, "b", "2025-06-02", "2025-06-04")
	createEvent(t, eventRepo, "c", "2025-06-08", "2025-06-10")
	_, err := engine.RescanProperty(ctx, "prop-1")
	require.NoError(t, err)

	require.NoError(t, eventRepo.Delete(ctx, "a"))
	require.NoError(t, engine.CleanupAfterRemoval(ctx, "prop-1", []string{"a"}))

	open, err := conflictRepo.ListOpenByProperty(ctx, "prop-1")
	require.NoError(t, err)
	assert.Empty(t, open)

	resolved, err := conflictRepo.ListByProperty(ctx, "prop-1")
	require.NoError(t, err)
	require.Len(t, resolved, 1)
	assert.Equal(t, models.ConflictStatusResolved, resolved[0].Status)
}

func TestCleanupIgnoresUntouchedConflicts(t *testing.T) {
	engine, eventRepo, conflictRepo := newTestEngine(t)
	ctx := context.Background()

	createEvent(t, eventRepo, "a", "2025-06-01", "2025-06-05")
	createEvent(t, eventRepo, "b", "2025-06-03", "2025-06-07")
	_, err := engine.RescanProperty(ctx, "prop-1")
	require.NoError(t, err)

	require.NoError(t, engine.CleanupAfterRemoval(ctx, "prop-1", []string{"unrelated"}))
	require.NoError(t, engine.CleanupAfterRemoval(ctx, "prop-1", nil))

	open, err := conflictRepo.ListOpenByProperty(ctx, "prop-1")
	require.NoError(t, err)
	assert.Len(t, open, 1)
}
