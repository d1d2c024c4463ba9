package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/calendar-sync-manager/backend/internal/storage/models"
)

// ConflictRepository provides data access for conflict aggregates.
// Member event ids are stored as a JSON array column.
type ConflictRepository struct {
	BaseRepository
}

// NewConflictRepository creates a new conflict repository.
func NewConflictRepository(db *DB) *ConflictRepository {
	return &ConflictRepository{
		BaseRepository: NewBaseRepository(db),
	}
}

const conflictColumns = `id, property_id, event_ids, conflict_type, severity,
	status, start_date, end_date, detected_at, resolved_at, resolution,
	created_at, updated_at`

func scanConflict(row interface{ Scan(...any) error }) (*models.Conflict, error) {
	c := &models.Conflict{}
	var eventIDs string
	err := row.Scan(
		&c.ID, &c.PropertyID, &eventIDs, &c.ConflictType, &c.Severity,
		&c.Status, &c.StartDate, &c.EndDate, &c.DetectedAt, &c.ResolvedAt,
		&c.Resolution, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(eventIDs), &c.EventIDs); err != nil {
		return nil, fmt.Errorf("decoding conflict event ids: %w", err)
	}
	return c, nil
}

// Create inserts a new conflict.
func (r *ConflictRepository) Create(ctx context.Context, c *models.Conflict) error {
	return r.insert(ctx, r.DB(), c)
}

func (r *ConflictRepository) insert(ctx context.Context, q Queryable, c *models.Conflict) error {
	if c.ID == "" {
		c.ID = GenerateID()
	}
	c.CreatedAt = r.Now()
	c.UpdatedAt = c.CreatedAt
	if c.Status == "" {
		c.Status = models.ConflictStatusNew
	}
	if c.DetectedAt.IsZero() {
		c.DetectedAt = c.CreatedAt
	}

	eventIDs, err := json.Marshal(c.EventIDs)
	if err != nil {
		return fmt.Errorf("encoding conflict event ids: %w", err)
	}

	_, err = q.ExecContext(ctx, `
		INSERT INTO conflicts (
			id, property_id, event_ids, conflict_type, severity, status,
			start_date, end_date, detected_at, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		c.ID, c.PropertyID, string(eventIDs), c.ConflictType, c.Severity, c.Status,
		c.StartDate, c.EndDate, c.DetectedAt, c.CreatedAt, c.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("inserting conflict: %w", err)
	}

	return nil
}

// GetByID retrieves a conflict by its ID.
func (r *ConflictRepository) GetByID(ctx context.Context, id string) (*models.Conflict, error) {
	row := r.DB().QueryRowContext(ctx,
		`SELECT `+conflictColumns+` FROM conflicts WHERE id = ?`, id)

	c, err := scanConflict(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying conflict: %w", err)
	}

	return c, nil
}

// ListByProperty retrieves all conflicts for a property, newest first.
func (r *ConflictRepository) ListByProperty(ctx context.Context, propertyID string) ([]models.Conflict, error) {
	return r.queryMany(ctx, `
		SELECT `+conflictColumns+` FROM conflicts
		WHERE property_id = ?
		ORDER BY detected_at DESC, id ASC
	`, propertyID)
}

// ListOpenByProperty retrieves unresolved conflicts for a property.
func (r *ConflictRepository) ListOpenByProperty(ctx context.Context, propertyID string) ([]models.Conflict, error) {
	return r.queryMany(ctx, `
		SELECT `+conflictColumns+` FROM conflicts
		WHERE property_id = ? AND status != ?
		ORDER BY detected_at DESC, id ASC
	`, propertyID, models.ConflictStatusResolved)
}

func (r *ConflictRepository) queryMany(ctx context.Context, query string, args ...any) ([]models.Conflict, error) {
	rows, err := r.DB().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying conflicts: %w", err)
	}
	defer rows.Close()

	var conflicts []models.Conflict
	for rows.Next() {
		c, err := scanConflict(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning conflict: %w", err)
		}
		conflicts = append(conflicts, *c)
	}

	return conflicts, rows.Err()
}

// ReplaceForProperty atomically deletes every conflict on a property and
// inserts the given replacements. Readers never observe the half-built
// state; a full rescan uses this to stay effectively atomic.
func (r *ConflictRepository) ReplaceForProperty(ctx context.Context, propertyID string, conflicts []models.Conflict) error {
	return r.Transaction(func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			"DELETE FROM conflicts WHERE property_id = ?", propertyID); err != nil {
			return fmt.Errorf("clearing conflicts: %w", err)
		}

		for i := range conflicts {
			if err := r.insert(ctx, tx, &conflicts[i]); err != nil {
				return err
			}
		}

		return nil
	})
}

// UpdateMembers rewrites a conflict's member set and date span after a
// cleanup pass removed some of its events.
func (r *ConflictRepository) UpdateMembers(ctx context.Context, c *models.Conflict) error {
	c.UpdatedAt = r.Now()

	eventIDs, err := json.Marshal(c.EventIDs)
	if err != nil {
		return fmt.Errorf("encoding conflict event ids: %w", err)
	}

	result, err := r.DB().ExecContext(ctx, `
		UPDATE conflicts SET
			event_ids = ?, start_date = ?, end_date = ?, updated_at = ?
		WHERE id = ?
	`, string(eventIDs), c.StartDate, c.EndDate, c.UpdatedAt, c.ID)
	if err != nil {
		return fmt.Errorf("updating conflict members: %w", err)
	}

	return requireRow(result)
}

// UpdateStatus transitions a conflict's lifecycle status.
func (r *ConflictRepository) UpdateStatus(ctx context.Context, id, status string) error {
	result, err := r.DB().ExecContext(ctx, `
		UPDATE conflicts SET status = ?, updated_at = ? WHERE id = ?
	`, status, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("updating conflict status: %w", err)
	}

	return requireRow(result)
}

// Resolve marks a conflict resolved with a note describing how.
func (r *ConflictRepository) Resolve(ctx context.Context, id, resolution string) error {
	now := time.Now().UTC()

	result, err := r.DB().ExecContext(ctx, `
		UPDATE conflicts SET status = ?, resolution = ?, resolved_at = ?, updated_at = ?
		WHERE id = ?
	`, models.ConflictStatusResolved, resolution, now, now, id)
	if err != nil {
		return fmt.Errorf("resolving conflict: %w", err)
	}

	return requireRow(result)
}

// Delete hard-removes a conflict by ID.
func (r *ConflictRepository) Delete(ctx context.Context, id string) error {
	result, err := r.DB().ExecContext(ctx, "DELETE FROM conflicts WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("deleting conflict: %w", err)
	}

	return requireRow(result)
}
