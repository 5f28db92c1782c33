package repository

import (
	"context"
	"database/sql"
)

// PreferenceRepo reads and writes per-user notification delivery
// preferences.  The table stores one row per (user, channel) pair; a
// channel with no row is treated as enabled, so users only accumulate
// rows for channels they have explicitly toggled.
type PreferenceRepo struct {
	db *sql.DB
}

// NewPreferenceRepo returns a new PreferenceRepo bound to the given database.
func NewPreferenceRepo(db *sql.DB) *PreferenceRepo { return &PreferenceRepo{db: db} }

// GetPreferences returns the user's channel preference map.  Channels
// absent from the map have never been toggled and default to enabled;
// the dispatch worker applies that default, not this repository.
func (r *PreferenceRepo) GetPreferences(ctx context.Context, userID uint64) (map[string]bool, error) {
	const q = `SELECT channel, enabled FROM notification_preferences WHERE user_id = ?`
	rows, err := r.db.QueryContext(ctx, q, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	prefs := make(map[string]bool)
	for rows.Next() {
		var channel string
		var enabled bool
		if err := rows.Scan(&channel, &enabled); err != nil {
			return nil, err
		}
		prefs[channel] = enabled
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return prefs, nil
}

// SetPreference upserts a single (user, channel) preference row.
func (r *PreferenceRepo) SetPreference(ctx context.Context, userID uint64, channel string, enabled bool) error {
	const q = `INSERT INTO notification_preferences (user_id, channel, enabled)
               VALUES (?, ?, ?)
               ON DUPLICATE KEY UPDATE enabled = VALUES(enabled)`
	_, err := r.db.ExecContext(ctx, q, userID, channel, enabled)
	return err
}
