package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/calendar-sync-manager/backend/internal/storage/models"
)

// EventRepository provides data access for calendar events.
type EventRepository struct {
	BaseRepository
}

// NewEventRepository creates a new event repository.
func NewEventRepository(db *DB) *EventRepository {
	return &EventRepository{
		BaseRepository: NewBaseRepository(db),
	}
}

const eventColumns = `id, property_id, connection_id, external_uid, summary,
	description, event_type, status, source, start_date, end_date, is_active,
	created_at, updated_at`

func scanEvent(row interface{ Scan(...any) error }) (*models.Event, error) {
	e := &models.Event{}
	err := row.Scan(
		&e.ID, &e.PropertyID, &e.ConnectionID, &e.ExternalUID, &e.Summary,
		&e.Description, &e.EventType, &e.Status, &e.Source,
		&e.StartDate, &e.EndDate, &e.IsActive, &e.CreatedAt, &e.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return e, nil
}

// Create inserts a new event.
func (r *EventRepository) Create(ctx context.Context, e *models.Event) error {
	if e.ID == "" {
		e.ID = GenerateID()
	}
	e.CreatedAt = r.Now()
	e.UpdatedAt = e.CreatedAt
	if e.Status == "" {
		e.Status = models.EventStatusConfirmed
	}
	if e.EventType == "" {
		e.EventType = models.EventTypeBooking
	}

	_, err := r.DB().ExecContext(ctx, `
		INSERT INTO events (
			id, property_id, connection_id, external_uid, summary, description,
			event_type, status, source, start_date, end_date, is_active,
			created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		e.ID, e.PropertyID, e.ConnectionID, e.ExternalUID, e.Summary, e.Description,
		e.EventType, e.Status, e.Source, e.StartDate, e.EndDate, e.IsActive,
		e.CreatedAt, e.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("inserting event: %w", err)
	}

	return nil
}

// GetByID retrieves an event by its ID.
func (r *EventRepository) GetByID(ctx context.Context, id string) (*models.Event, error) {
	row := r.DB().QueryRowContext(ctx,
		`SELECT `+eventColumns+` FROM events WHERE id = ?`, id)

	e, err := scanEvent(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying event: %w", err)
	}

	return e, nil
}

// ListActiveByConnection retrieves all active events owned by a connection.
func (r *EventRepository) ListActiveByConnection(ctx context.Context, connectionID string) ([]models.Event, error) {
	return r.queryMany(ctx, `
		SELECT `+eventColumns+` FROM events
		WHERE connection_id = ? AND is_active = 1
		ORDER BY start_date ASC, id ASC
	`, connectionID)
}

// ListByConnection retrieves all events owned by a connection, active or not.
func (r *EventRepository) ListByConnection(ctx context.Context, connectionID string) ([]models.Event, error) {
	return r.queryMany(ctx, `
		SELECT `+eventColumns+` FROM events
		WHERE connection_id = ?
		ORDER BY start_date ASC, id ASC
	`, connectionID)
}

// ListActiveByProperty retrieves all active events on a property in a
// stable (start_date, id) order. Conflict detection depends on this
// ordering for deterministic tiebreaks.
func (r *EventRepository) ListActiveByProperty(ctx context.Context, propertyID string) ([]models.Event, error) {
	return r.queryMany(ctx, `
		SELECT `+eventColumns+` FROM events
		WHERE property_id = ? AND is_active = 1
		ORDER BY start_date ASC, id ASC
	`, propertyID)
}

// ListByIDs retrieves events by id. Missing ids are silently skipped.
func (r *EventRepository) ListByIDs(ctx context.Context, ids []string) ([]models.Event, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	placeholders := strings.Repeat("?,", len(ids))
	placeholders = placeholders[:len(placeholders)-1]
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	return r.queryMany(ctx,
		`SELECT `+eventColumns+` FROM events WHERE id IN (`+placeholders+`) ORDER BY start_date ASC, id ASC`,
		args...)
}

func (r *EventRepository) queryMany(ctx context.Context, query string, args ...any) ([]models.Event, error) {
	rows, err := r.DB().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying events: %w", err)
	}
	defer rows.Close()

	var events []models.Event
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning event: %w", err)
		}
		events = append(events, *e)
	}

	return events, rows.Err()
}

// Update rewrites an event's mutable fields.
func (r *EventRepository) Update(ctx context.Context, e *models.Event) error {
	e.UpdatedAt = r.Now()

	result, err := r.DB().ExecContext(ctx, `
		UPDATE events SET
			summary = ?, description = ?, event_type = ?, status = ?,
			start_date = ?, end_date = ?, is_active = ?, updated_at = ?
		WHERE id = ?
	`,
		e.Summary, e.Description, e.EventType, e.Status,
		e.StartDate, e.EndDate, e.IsActive, e.UpdatedAt, e.ID,
	)
	if err != nil {
		return fmt.Errorf("updating event: %w", err)
	}

	return requireRow(result)
}

// EventPatch carries only the fields a reconciliation update changed.
// Nil fields are left untouched.
type EventPatch struct {
	Summary     *string
	Description *string
	Status      *string
	EventType   *string
	StartDate   *time.Time
	EndDate     *time.Time
}

// IsEmpty reports whether the patch changes nothing.
func (p *EventPatch) IsEmpty() bool {
	return p.Summary == nil && p.Description == nil && p.Status == nil &&
		p.EventType == nil && p.StartDate == nil && p.EndDate == nil
}

// ApplyPatch updates only the changed fields of an event, plus its
// updated timestamp.
func (r *EventRepository) ApplyPatch(ctx context.Context, id string, p EventPatch) error {
	sets := []string{"updated_at = ?"}
	args := []any{r.Now()}

	add := func(col string, v any) {
		sets = append(sets, col+" = ?")
		args = append(args, v)
	}
	if p.Summary != nil {
		add("summary", *p.Summary)
	}
	if p.Description != nil {
		add("description", *p.Description)
	}
	if p.Status != nil {
		add("status", *p.Status)
	}
	if p.EventType != nil {
		add("event_type", *p.EventType)
	}
	if p.StartDate != nil {
		add("start_date", *p.StartDate)
	}
	if p.EndDate != nil {
		add("end_date", *p.EndDate)
	}

	args = append(args, id)
	result, err := r.DB().ExecContext(ctx,
		"UPDATE events SET "+strings.Join(sets, ", ")+" WHERE id = ?", args...)
	if err != nil {
		return fmt.Errorf("patching event: %w", err)
	}

	return requireRow(result)
}

// Cancel marks an event cancelled without touching its dates.
func (r *EventRepository) Cancel(ctx context.Context, id string) error {
	result, err := r.DB().ExecContext(ctx, `
		UPDATE events SET status = ?, updated_at = ? WHERE id = ?
	`, models.EventStatusCancelled, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("cancelling event: %w", err)
	}

	return requireRow(result)
}

// Deactivate soft-removes an event: cancelled and no longer active.
func (r *EventRepository) Deactivate(ctx context.Context, id string) error {
	result, err := r.DB().ExecContext(ctx, `
		UPDATE events SET is_active = 0, status = ?, updated_at = ? WHERE id = ?
	`, models.EventStatusCancelled, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("deactivating event: %w", err)
	}

	return requireRow(result)
}

// Detach converts a feed-owned event to manual ownership, clearing the
// connection reference and external UID so future syncs cannot collide
// with it.
func (r *EventRepository) Detach(ctx context.Context, id string) error {
	result, err := r.DB().ExecContext(ctx, `
		UPDATE events SET connection_id = NULL, external_uid = NULL, source = ?, updated_at = ?
		WHERE id = ?
	`, models.EventSourceManual, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("detaching event: %w", err)
	}

	return requireRow(result)
}

// Delete hard-removes an event by ID.
func (r *EventRepository) Delete(ctx context.Context, id string) error {
	result, err := r.DB().ExecContext(ctx, "DELETE FROM events WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("deleting event: %w", err)
	}

	return requireRow(result)
}

func requireRow(result sql.Result) error {
	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
