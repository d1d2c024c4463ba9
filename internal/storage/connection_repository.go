package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/calendar-sync-manager/backend/internal/storage/models"
)

// ConnectionRepository provides data access for feed connections.
type ConnectionRepository struct {
	BaseRepository
}

// NewConnectionRepository creates a new connection repository.
func NewConnectionRepository(db *DB) *ConnectionRepository {
	return &ConnectionRepository{
		BaseRepository: NewBaseRepository(db),
	}
}

const connectionColumns = `id, property_id, user_id, platform, name, url,
	sync_interval_min, status, sync_error, last_sync_at, created_at, updated_at`

func scanConnection(row interface{ Scan(...any) error }) (*models.Connection, error) {
	c := &models.Connection{}
	err := row.Scan(
		&c.ID, &c.PropertyID, &c.UserID, &c.Platform, &c.Name, &c.URL,
		&c.SyncIntervalMin, &c.Status, &c.SyncError, &c.LastSyncAt,
		&c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return c, nil
}

// Create inserts a new connection. Returns an error if another active
// connection already exists for the same (property, platform) pair;
// the partial unique index enforces the invariant.
func (r *ConnectionRepository) Create(ctx context.Context, c *models.Connection) error {
	if c.ID == "" {
		c.ID = GenerateID()
	}
	c.CreatedAt = r.Now()
	c.UpdatedAt = c.CreatedAt
	if c.Status == "" {
		c.Status = models.ConnectionStatusActive
	}

	_, err := r.DB().ExecContext(ctx, `
		INSERT INTO connections (
			id, property_id, user_id, platform, name, url,
			sync_interval_min, status, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		c.ID, c.PropertyID, c.UserID, c.Platform, c.Name, c.URL,
		c.SyncIntervalMin, c.Status, c.CreatedAt, c.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("inserting connection: %w", err)
	}

	return nil
}

// GetByID retrieves a connection by its ID.
func (r *ConnectionRepository) GetByID(ctx context.Context, id string) (*models.Connection, error) {
	row := r.DB().QueryRowContext(ctx,
		`SELECT `+connectionColumns+` FROM connections WHERE id = ?`, id)

	c, err := scanConnection(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying connection: %w", err)
	}

	return c, nil
}

// ActiveExists reports whether a non-inactive connection exists for the
// given property and platform, excluding excludeID if non-empty.
func (r *ConnectionRepository) ActiveExists(ctx context.Context, propertyID, platform, excludeID string) (bool, error) {
	var count int
	err := r.DB().QueryRowContext(ctx, `
		SELECT COUNT(1) FROM connections
		WHERE property_id = ? AND platform = ? AND status != ? AND id != ?
	`, propertyID, platform, models.ConnectionStatusInactive, excludeID).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("counting connections: %w", err)
	}
	return count > 0, nil
}

// List retrieves all connections, newest first.
func (r *ConnectionRepository) List(ctx context.Context) ([]models.Connection, error) {
	return r.queryMany(ctx,
		`SELECT `+connectionColumns+` FROM connections ORDER BY created_at DESC`)
}

// ListByProperty retrieves all connections for a property.
func (r *ConnectionRepository) ListByProperty(ctx context.Context, propertyID string) ([]models.Connection, error) {
	return r.queryMany(ctx,
		`SELECT `+connectionColumns+` FROM connections WHERE property_id = ? ORDER BY created_at DESC`,
		propertyID)
}

// ListByUser retrieves all connections owned by a user.
func (r *ConnectionRepository) ListByUser(ctx context.Context, userID string) ([]models.Connection, error) {
	return r.queryMany(ctx,
		`SELECT `+connectionColumns+` FROM connections WHERE user_id = ? ORDER BY created_at DESC`,
		userID)
}

// ListSyncable retrieves connections eligible for periodic syncing,
// oldest-synced first so starved connections are picked up earliest.
func (r *ConnectionRepository) ListSyncable(ctx context.Context) ([]models.Connection, error) {
	return r.queryMany(ctx, `
		SELECT `+connectionColumns+` FROM connections
		WHERE status != ?
		ORDER BY last_sync_at ASC NULLS FIRST
	`, models.ConnectionStatusInactive)
}

func (r *ConnectionRepository) queryMany(ctx context.Context, query string, args ...any) ([]models.Connection, error) {
	rows, err := r.DB().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying connections: %w", err)
	}
	defer rows.Close()

	var conns []models.Connection
	for rows.Next() {
		c, err := scanConnection(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning connection: %w", err)
		}
		conns = append(conns, *c)
	}

	return conns, rows.Err()
}

// Update updates a connection's editable fields.
func (r *ConnectionRepository) Update(ctx context.Context, c *models.Connection) error {
	c.UpdatedAt = r.Now()

	result, err := r.DB().ExecContext(ctx, `
		UPDATE connections SET
			name = ?, url = ?, platform = ?, sync_interval_min = ?, updated_at = ?
		WHERE id = ?
	`,
		c.Name, c.URL, c.Platform, c.SyncIntervalMin, c.UpdatedAt, c.ID,
	)
	if err != nil {
		return fmt.Errorf("updating connection: %w", err)
	}

	return requireRow(result)
}

// UpdateStatus transitions a connection's health state. A nil syncErr
// clears any stored error; successful syncs stamp last_sync_at.
func (r *ConnectionRepository) UpdateStatus(ctx context.Context, id, status string, syncErr *string) error {
	now := time.Now().UTC()
	var lastSyncAt *time.Time
	if status == models.ConnectionStatusActive {
		lastSyncAt = &now
	}

	result, err := r.DB().ExecContext(ctx, `
		UPDATE connections SET
			status = ?, sync_error = ?, last_sync_at = COALESCE(?, last_sync_at), updated_at = ?
		WHERE id = ?
	`, status, syncErr, lastSyncAt, now, id)
	if err != nil {
		return fmt.Errorf("updating connection status: %w", err)
	}

	return requireRow(result)
}

// Delete hard-removes a connection by ID.
func (r *ConnectionRepository) Delete(ctx context.Context, id string) error {
	result, err := r.DB().ExecContext(ctx, "DELETE FROM connections WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("deleting connection: %w", err)
	}

	return requireRow(result)
}
