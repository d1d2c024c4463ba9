package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/calendar-sync-manager/backend/internal/storage/models"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()

	db, err := NewDB(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	require.NoError(t, RunMigrations(db))
	return db
}

func testConnection(propertyID, platform string) *models.Connection {
	return &models.Connection{
		PropertyID:      propertyID,
		UserID:          "user-1",
		Platform:        platform,
		Name:            "Test feed",
		URL:             "https://example.com/feed.ics",
		SyncIntervalMin: 30,
	}
}

func testEvent(propertyID string, connectionID, uid *string, start, end time.Time) *models.Event {
	return &models.Event{
		PropertyID:   propertyID,
		ConnectionID: connectionID,
		ExternalUID:  uid,
		Summary:      "Reserved",
		EventType:    models.EventTypeBooking,
		Status:       models.EventStatusConfirmed,
		Source:       models.EventSourceFeed,
		StartDate:    start,
		EndDate:      end,
		IsActive:     true,
	}
}

func strPtr(s string) *string { return &s }

func TestConnectionCreateAndGet(t *testing.T) {
	repo := NewConnectionRepository(newTestDB(t))
	ctx := context.Background()

	conn := testConnection("prop-1", models.PlatformAirbnb)
	require.NoError(t, repo.Create(ctx, conn))
	require.NotEmpty(t, conn.ID)
	assert.Equal(t, models.ConnectionStatusActive, conn.Status)

	got, err := repo.GetByID(ctx, conn.ID)
	require.NoError(t, err)
	assert.Equal(t, "prop-1", got.PropertyID)
	assert.Equal(t, models.PlatformAirbnb, got.Platform)
	assert.Nil(t, got.LastSyncAt)

	_, err = repo.GetByID(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestConnectionActivePlatformUniqueness(t *testing.T) {
	repo := NewConnectionRepository(newTestDB(t))
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, testConnection("prop-1", models.PlatformAirbnb)))

	// Second active connection on the same (property, platform) pair is rejected.
	err := repo.Create(ctx, testConnection("prop-1", models.PlatformAirbnb))
	assert.Error(t, err)

	// A different platform or property is fine.
	require.NoError(t, repo.Create(ctx, testConnection("prop-1", models.PlatformVrbo)))
	require.NoError(t, repo.Create(ctx, testConnection("prop-2", models.PlatformAirbnb)))

	// Inactive connections do not block the slot.
	inactive := testConnection("prop-3", models.PlatformAirbnb)
	inactive.Status = models.ConnectionStatusInactive
	require.NoError(t, repo.Create(ctx, inactive))
	require.NoError(t, repo.Create(ctx, testConnection("prop-3", models.PlatformAirbnb)))
}

func TestConnectionActiveExists(t *testing.T) {
	repo := NewConnectionRepository(newTestDB(t))
	ctx := context.Background()

	conn := testConnection("prop-1", models.PlatformAirbnb)
	require.NoError(t, repo.Create(ctx, conn))

	exists, err := repo.ActiveExists(ctx, "prop-1", models.PlatformAirbnb, "")
	require.NoError(t, err)
	assert.True(t, exists)

	// Excluding the connection itself, used when editing in place.
	exists, err = repo.ActiveExists(ctx, "prop-1", models.PlatformAirbnb, conn.ID)
	require.NoError(t, err)
	assert.False(t, exists)

	exists, err = repo.ActiveExists(ctx, "prop-1", models.PlatformVrbo, "")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestConnectionUpdateStatus(t *testing.T) {
	repo := NewConnectionRepository(newTestDB(t))
	ctx := context.Background()

	conn := testConnection("prop-1", models.PlatformAirbnb)
	require.NoError(t, repo.Create(ctx, conn))

	// A successful sync stamps last_sync_at and clears the error.
	require.NoError(t, repo.UpdateStatus(ctx, conn.ID, models.ConnectionStatusActive, nil))
	got, err := repo.GetByID(ctx, conn.ID)
	require.NoError(t, err)
	require.NotNil(t, got.LastSyncAt)
	firstSync := *got.LastSyncAt

	// A failure records the error but keeps the last successful sync time.
	require.NoError(t, repo.UpdateStatus(ctx, conn.ID, models.ConnectionStatusError, strPtr("fetch failed")))
	got, err = repo.GetByID(ctx, conn.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ConnectionStatusError, got.Status)
	require.NotNil(t, got.SyncError)
	assert.Equal(t, "fetch failed", *got.SyncError)
	require.NotNil(t, got.LastSyncAt)
	assert.True(t, got.LastSyncAt.Equal(firstSync))

	assert.ErrorIs(t, repo.UpdateStatus(ctx, "missing", models.ConnectionStatusActive, nil), ErrNotFound)
}

func TestConnectionListSyncable(t *testing.T) {
	repo := NewConnectionRepository(newTestDB(t))
	ctx := context.Background()

	never := testConnection("prop-1", models.PlatformAirbnb)
	require.NoError(t, repo.Create(ctx, never))

	synced := testConnection("prop-2", models.PlatformAirbnb)
	require.NoError(t, repo.Create(ctx, synced))
	require.NoError(t, repo.UpdateStatus(ctx, synced.ID, models.ConnectionStatusActive, nil))

	inactive := testConnection("prop-3", models.PlatformAirbnb)
	inactive.Status = models.ConnectionStatusInactive
	require.NoError(t, repo.Create(ctx, inactive))

	conns, err := repo.ListSyncable(ctx)
	require.NoError(t, err)
	require.Len(t, conns, 2)
	// Never-synced connections sort first so they are picked up earliest.
	assert.Equal(t, never.ID, conns[0].ID)
	assert.Equal(t, synced.ID, conns[1].ID)
}

func TestEventUIDUniquePerConnection(t *testing.T) {
	db := newTestDB(t)
	connRepo := NewConnectionRepository(db)
	eventRepo := NewEventRepository(db)
	ctx := context.Background()

	conn := testConnection("prop-1", models.PlatformAirbnb)
	require.NoError(t, connRepo.Create(ctx, conn))

	start := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 0, 4)

	first := testEvent("prop-1", &conn.ID, strPtr("uid-1"), start, end)
	require.NoError(t, eventRepo.Create(ctx, first))

	// Same UID while the first is active is rejected.
	dup := testEvent("prop-1", &conn.ID, strPtr("uid-1"), start, end)
	assert.Error(t, eventRepo.Create(ctx, dup))

	// Once the original is deactivated the UID can be reused.
	require.NoError(t, eventRepo.Deactivate(ctx, first.ID))
	fresh := testEvent("prop-1", &conn.ID, strPtr("uid-1"), start, end)
	assert.NoError(t, eventRepo.Create(ctx, fresh))

	// Manual events have no UID and never collide.
	require.NoError(t, eventRepo.Create(ctx, testEvent("prop-1", nil, nil, start, end)))
	require.NoError(t, eventRepo.Create(ctx, testEvent("prop-1", nil, nil, start, end)))
}

func TestEventApplyPatch(t *testing.T) {
	db := newTestDB(t)
	eventRepo := NewEventRepository(db)
	ctx := context.Background()

	start := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	ev := testEvent("prop-1", nil, nil, start, start.AddDate(0, 0, 4))
	require.NoError(t, eventRepo.Create(ctx, ev))

	newEnd := start.AddDate(0, 0, 7)
	patch := EventPatch{
		Summary: strPtr("Reserved - extended"),
		EndDate: &newEnd,
	}
	require.NoError(t, eventRepo.ApplyPatch(ctx, ev.ID, patch))

	got, err := eventRepo.GetByID(ctx, ev.ID)
	require.NoError(t, err)
	assert.Equal(t, "Reserved - extended", got.Summary)
	assert.True(t, got.EndDate.Equal(newEnd))
	// Untouched fields survive.
	assert.True(t, got.StartDate.Equal(start))
	assert.Equal(t, models.EventStatusConfirmed, got.Status)
}

func TestEventDetach(t *testing.T) {
	db := newTestDB(t)
	connRepo := NewConnectionRepository(db)
	eventRepo := NewEventRepository(db)
	ctx := context.Background()

	conn := testConnection("prop-1", models.PlatformAirbnb)
	require.NoError(t, connRepo.Create(ctx, conn))

	start := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	ev := testEvent("prop-1", &conn.ID, strPtr("uid-1"), start, start.AddDate(0, 0, 4))
	require.NoError(t, eventRepo.Create(ctx, ev))

	require.NoError(t, eventRepo.Detach(ctx, ev.ID))

	got, err := eventRepo.GetByID(ctx, ev.ID)
	require.NoError(t, err)
	assert.Nil(t, got.ConnectionID)
	assert.Nil(t, got.ExternalUID)
	assert.Equal(t, models.EventSourceManual, got.Source)
	assert.True(t, got.IsActive)
}

func TestEventConnectionDeleteSetsNull(t *testing.T) {
	db := newTestDB(t)
	connRepo := NewConnectionRepository(db)
	eventRepo := NewEventRepository(db)
	ctx := context.Background()

	conn := testConnection("prop-1", models.PlatformAirbnb)
	require.NoError(t, connRepo.Create(ctx, conn))

	start := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	ev := testEvent("prop-1", &conn.ID, strPtr("uid-1"), start, start.AddDate(0, 0, 4))
	require.NoError(t, eventRepo.Create(ctx, ev))

	require.NoError(t, connRepo.Delete(ctx, conn.ID))

	got, err := eventRepo.GetByID(ctx, ev.ID)
	require.NoError(t, err)
	assert.Nil(t, got.ConnectionID, "orphaned events lose their connection reference")
}

func TestEventListActiveByPropertyOrder(t *testing.T) {
	db := newTestDB(t)
	eventRepo := NewEventRepository(db)
	ctx := context.Background()

	base := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	late := testEvent("prop-1", nil, nil, base.AddDate(0, 0, 10), base.AddDate(0, 0, 12))
	early := testEvent("prop-1", nil, nil, base, base.AddDate(0, 0, 2))
	gone := testEvent("prop-1", nil, nil, base, base.AddDate(0, 0, 2))
	gone.IsActive = false
	other := testEvent("prop-2", nil, nil, base, base.AddDate(0, 0, 2))

	for _, ev := range []*models.Event{late, early, gone, other} {
		require.NoError(t, eventRepo.Create(ctx, ev))
	}

	events, err := eventRepo.ListActiveByProperty(ctx, "prop-1")
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, early.ID, events[0].ID)
	assert.Equal(t, late.ID, events[1].ID)
}

func TestConflictRoundTrip(t *testing.T) {
	repo := NewConflictRepository(newTestDB(t))
	ctx := context.Background()

	start := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	c := &models.Conflict{
		PropertyID:   "prop-1",
		EventIDs:     []string{"ev-1", "ev-2"},
		ConflictType: models.ConflictTypeOverlap,
		Severity:     models.ConflictSeverityHigh,
		StartDate:    start,
		EndDate:      start.AddDate(0, 0, 6),
	}
	require.NoError(t, repo.Create(ctx, c))

	got, err := repo.GetByID(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"ev-1", "ev-2"}, got.EventIDs)
	assert.Equal(t, models.ConflictStatusNew, got.Status)
	assert.Nil(t, got.ResolvedAt)

	require.NoError(t, repo.Resolve(ctx, c.ID, "manual: kept 1, removed 1"))
	got, err = repo.GetByID(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ConflictStatusResolved, got.Status)
	require.NotNil(t, got.Resolution)
	assert.Equal(t, "manual: kept 1, removed 1", *got.Resolution)
	assert.NotNil(t, got.ResolvedAt)

	open, err := repo.ListOpenByProperty(ctx, "prop-1")
	require.NoError(t, err)
	assert.Empty(t, open)
}

func TestConflictReplaceForProperty(t *testing.T) {
	repo := NewConflictRepository(newTestDB(t))
	ctx := context.Background()

	start := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	old := &models.Conflict{
		PropertyID:   "prop-1",
		EventIDs:     []string{"ev-1", "ev-2"},
		ConflictType: models.ConflictTypeOverlap,
		Severity:     models.ConflictSeverityHigh,
		StartDate:    start,
		EndDate:      start.AddDate(0, 0, 4),
	}
	require.NoError(t, repo.Create(ctx, old))

	keep := &models.Conflict{
		PropertyID:   "prop-2",
		EventIDs:     []string{"ev-8", "ev-9"},
		ConflictType: models.ConflictTypeTurnover,
		Severity:     models.ConflictSeverityMedium,
		StartDate:    start,
		EndDate:      start.AddDate(0, 0, 2),
	}
	require.NoError(t, repo.Create(ctx, keep))

	replacement := models.Conflict{
		PropertyID:   "prop-1",
		EventIDs:     []string{"ev-3", "ev-4"},
		ConflictType: models.ConflictTypeOverlap,
		Severity:     models.ConflictSeverityHigh,
		StartDate:    start,
		EndDate:      start.AddDate(0, 0, 8),
	}
	require.NoError(t, repo.ReplaceForProperty(ctx, "prop-1", []models.Conflict{replacement}))

	conflicts, err := repo.ListByProperty(ctx, "prop-1")
	require.NoError(t, err)
	require.Len(t, conflicts, 1)
	assert.Equal(t, []string{"ev-3", "ev-4"}, conflicts[0].EventIDs)

	// Other properties are untouched.
	others, err := repo.ListByProperty(ctx, "prop-2")
	require.NoError(t, err)
	require.Len(t, others, 1)
	assert.Equal(t, keep.ID, others[0].ID)
}
