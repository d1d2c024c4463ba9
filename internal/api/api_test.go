package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/calendar-sync-manager/backend/internal/conflict"
	"github.com/calendar-sync-manager/backend/internal/feed"
	"github.com/calendar-sync-manager/backend/internal/lifecycle"
	"github.com/calendar-sync-manager/backend/internal/storage"
	"github.com/calendar-sync-manager/backend/internal/storage/models"
	synceng "github.com/calendar-sync-manager/backend/internal/sync"
	"github.com/calendar-sync-manager/backend/internal/websocket"
)

// testServer is the whole stack behind an httptest listener, plus a
// fake feed endpoint it can sync from.
type testServer struct {
	api     *httptest.Server
	feedURL string
}

func feedDocument(uids ...string) string {
	doc := "BEGIN:VCALENDAR\r\nVERSION:2.0\r\nPRODID:-//Test//EN\r\n"
	for i, uid := range uids {
		start := time.Now().UTC().AddDate(0, 0, 7+i*14)
		end := start.AddDate(0, 0, 4)
		doc += fmt.Sprintf("BEGIN:VEVENT\r\nUID:%s\r\nSUMMARY:Reserved\r\nDTSTART:%s\r\nDTEND:%s\r\nEND:VEVENT\r\n",
			uid, start.Format("20060102T150405Z"), end.Format("20060102T150405Z"))
	}
	return doc + "END:VCALENDAR\r\n"
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	db, err := storage.NewDB(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, storage.RunMigrations(db))

	feedSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/calendar")
		w.Write([]byte(feedDocument("uid-1")))
	}))
	t.Cleanup(feedSrv.Close)

	hub := websocket.NewHub()
	go hub.Run()
	broadcaster := websocket.NewEventBroadcaster(hub)

	connRepo := storage.NewConnectionRepository(db)
	eventRepo := storage.NewEventRepository(db)
	conflictRepo := storage.NewConflictRepository(db)

	feedClient := feed.NewClient(5 * time.Second)
	engine := conflict.NewEngine(eventRepo, conflictRepo, broadcaster)
	reconciler := synceng.NewReconciler(connRepo, eventRepo, feedClient, engine, broadcaster)
	scheduler := synceng.NewScheduler(reconciler, connRepo)
	orch := lifecycle.NewOrchestrator(connRepo, eventRepo, engine, feedClient, broadcaster, nil, nil)

	deps := Deps{
		DB:           db,
		ConnRepo:     connRepo,
		EventRepo:    eventRepo,
		ConflictRepo: conflictRepo,
		Reconciler:   reconciler,
		Scheduler:    scheduler,
		Engine:       engine,
		Orchestrator: orch,
		Hub:          hub,
		Broadcaster:  broadcaster,
	}

	apiSrv := httptest.NewServer(NewRouter(deps))
	t.Cleanup(apiSrv.Close)

	return &testServer{api: apiSrv, feedURL: feedSrv.URL}
}

func (ts *testServer) do(t *testing.T, method, path string, body any) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, ts.api.URL+path, &buf)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func TestHealthEndpoint(t *testing.T) {
	ts := newTestServer(t)

	resp := ts.do(t, "GET", "/api/health", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	body := decode[map[string]any](t, resp)
	assert.Equal(t, "healthy", body["status"])
}

func TestConnectionLifecycleOverHTTP(t *testing.T) {
	ts := newTestServer(t)

	// Register.
	resp := ts.do(t, "POST", "/api/connections", lifecycle.RegisterInput{
		PropertyID:      "prop-1",
		UserID:          "user-1",
		Platform:        models.PlatformAirbnb,
		Name:            "Beach house",
		URL:             ts.feedURL,
		SyncIntervalMin: 30,
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	conn := decode[models.Connection](t, resp)
	require.NotEmpty(t, conn.ID)

	// Duplicate platform registration is rejected.
	resp = ts.do(t, "POST", "/api/connections", lifecycle.RegisterInput{
		PropertyID: "prop-1",
		UserID:     "user-1",
		Platform:   models.PlatformAirbnb,
		URL:        ts.feedURL,
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()

	// Fetch it back.
	resp = ts.do(t, "GET", "/api/connections/"+conn.ID, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	got := decode[models.Connection](t, resp)
	assert.Equal(t, "Beach house", got.Name)

	// Unknown id maps to 404.
	resp = ts.do(t, "GET", "/api/connections/missing", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp.Body.Close()

	// Synchronous sync imports the feed's event.
	resp = ts.do(t, "POST", "/api/connections/"+conn.ID+"/sync", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	result := decode[models.SyncResult](t, resp)
	assert.Equal(t, 1, result.EventsFound)
	assert.Equal(t, 1, result.EventsCreated)

	resp = ts.do(t, "GET", "/api/properties/prop-1/events", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	events := decode[[]models.Event](t, resp)
	assert.Len(t, events, 1)

	// Remove with the default disposition; the event is deactivated.
	resp = ts.do(t, "DELETE", "/api/connections/"+conn.ID, nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	resp.Body.Close()

	resp = ts.do(t, "GET", "/api/properties/prop-1/events", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	events = decode[[]models.Event](t, resp)
	assert.Empty(t, events)
}

func TestManualEventAndConflictFlow(t *testing.T) {
	ts := newTestServer(t)

	start := time.Date(2027, 6, 1, 0, 0, 0, 0, time.UTC)

	mkEvent := func(startOffset, nights int) map[string]any {
		s := start.AddDate(0, 0, startOffset)
		return map[string]any{
			"property_id": "prop-1",
			"summary":     "Owner stay",
			"event_type":  models.EventTypeBooking,
			"start_date":  s,
			"end_date":    s.AddDate(0, 0, nights),
		}
	}

	// First event: no conflict.
	resp := ts.do(t, "POST", "/api/events", mkEvent(0, 4))
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	first := decode[map[string]json.RawMessage](t, resp)
	assert.Equal(t, "null", string(first["conflict"]))

	// Overlapping second event: conflict comes back inline.
	resp = ts.do(t, "POST", "/api/events", mkEvent(2, 4))
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	second := decode[map[string]json.RawMessage](t, resp)
	var detected models.Conflict
	require.NoError(t, json.Unmarshal(second["conflict"], &detected))
	require.NotEmpty(t, detected.ID)
	assert.Len(t, detected.EventIDs, 2)

	// It shows up in the property's open conflicts.
	resp = ts.do(t, "GET", "/api/properties/prop-1/conflicts?open=true", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	open := decode[[]models.Conflict](t, resp)
	require.Len(t, open, 1)

	// Acknowledge, then resolve automatically.
	resp = ts.do(t, "POST", "/api/conflicts/"+detected.ID+"/acknowledge", nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	resp.Body.Close()

	resp = ts.do(t, "POST", "/api/conflicts/"+detected.ID+"/resolve", map[string]any{
		"strategy": "automatic",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	res := decode[conflict.Resolution](t, resp)
	assert.Len(t, res.KeptEventIDs, 1)
	assert.Len(t, res.RemovedEventIDs, 1)

	// Resolving again conflicts.
	resp = ts.do(t, "POST", "/api/conflicts/"+detected.ID+"/resolve", map[string]any{
		"strategy": "automatic",
	})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	resp.Body.Close()

	// Rescan confirms the calendar is clean.
	resp = ts.do(t, "POST", "/api/properties/prop-1/conflicts/rescan", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	count := decode[map[string]int](t, resp)
	assert.Equal(t, 0, count["conflicts_found"])
}

func TestCreateEventValidation(t *testing.T) {
	ts := newTestServer(t)

	start := time.Date(2027, 6, 1, 0, 0, 0, 0, time.UTC)

	resp := ts.do(t, "POST", "/api/events", map[string]any{
		"summary":    "No property",
		"start_date": start,
		"end_date":   start.AddDate(0, 0, 2),
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()

	resp = ts.do(t, "POST", "/api/events", map[string]any{
		"property_id": "prop-1",
		"start_date":  start,
		"end_date":    start,
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()
}

func TestResolveConflictBadStrategy(t *testing.T) {
	ts := newTestServer(t)

	resp := ts.do(t, "POST", "/api/conflicts/whatever/resolve", map[string]any{
		"strategy": "coin-flip",
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()
}
