package auth

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// DeviceAccessRepository persists per-user device grants.
type DeviceAccessRepository interface {
	Grant(ctx context.Context, userID, deviceID string) error
	Revoke(ctx context.Context, userID, deviceID string) error
	GetAccessibleDeviceIDs(ctx context.Context, userID string) ([]string, error)
}

// SQLiteDeviceAccessRepository implements DeviceAccessRepository using SQLite.
type SQLiteDeviceAccessRepository struct {
	db *sql.DB
}

// NewDeviceAccessRepository creates a new SQLite-backed grant repository.
func NewDeviceAccessRepository(db *sql.DB) *SQLiteDeviceAccessRepository {
	return &SQLiteDeviceAccessRepository{db: db}
}

// Grant gives userID access to deviceID. Granting twice is a no-op.
// Both rows must exist.
func (r *SQLiteDeviceAccessRepository) Grant(ctx context.Context, userID, deviceID string) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO user_device_access (user_id, device_id, created_at) VALUES (?, ?, ?)`,
		userID, deviceID, time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		if strings.Contains(err.Error(), "FOREIGN KEY constraint failed") {
			return fmt.Errorf("granting device access: unknown user or device")
		}
		return fmt.Errorf("granting device access: %w", err)
	}
	return nil
}

// Revoke removes a grant. Revoking an absent grant is a no-op.
func (r *SQLiteDeviceAccessRepository) Revoke(ctx context.Context, userID, deviceID string) error {
	if _, err := r.db.ExecContext(ctx,
		`DELETE FROM user_device_access WHERE user_id = ? AND device_id = ?`,
		userID, deviceID,
	); err != nil {
		return fmt.Errorf("revoking device access: %w", err)
	}
	return nil
}

// GetAccessibleDeviceIDs returns the device IDs granted to userID, sorted.
// A user with no grants gets an empty, non-nil slice.
func (r *SQLiteDeviceAccessRepository) GetAccessibleDeviceIDs(ctx context.Context, userID string) ([]string, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT device_id FROM user_device_access WHERE user_id = ? ORDER BY device_id`, userID)
	if err != nil {
		return nil, fmt.Errorf("querying device access: %w", err)
	}
	defer rows.Close()

	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning device id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating device access: %w", err)
	}
	return ids, nil
}
