package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/moverra/transit-reservation/internal/model"
)

// NotificationRepo provides access to the notification_requests queue
// table.  Any component may insert rows (the queue is multi-producer);
// the dispatch worker is the single consumer and the only writer of the
// status, attempt and schedule columns.  All timestamps are UTC.
type NotificationRepo struct {
	db *sql.DB
}

// NewNotificationRepo returns a new NotificationRepo bound to the given database.
func NewNotificationRepo(db *sql.DB) *NotificationRepo { return &NotificationRepo{db: db} }

// Enqueue inserts a new PENDING notification request due immediately.
// The generated ID is populated on the provided request.
func (r *NotificationRepo) Enqueue(ctx context.Context, req *model.NotificationRequest) error {
	const q = `INSERT INTO notification_requests (user_id, channel, payload, status, attempt_count, next_attempt_at)
               VALUES (?, ?, ?, ?, 0, UTC_TIMESTAMP())`
	result, err := r.db.ExecContext(ctx, q, req.UserID, req.Channel, req.Payload, model.NotificationPending)
	if err != nil {
		return err
	}
	id, err := result.LastInsertId()
	if err != nil {
		return err
	}
	req.ID = uint64(id)
	req.Status = model.NotificationPending
	req.AttemptCount = 0
	return nil
}

// FetchDueBatch returns up to limit PENDING requests whose
// next_attempt_at has passed, oldest first so retries and fresh rows
// are drained in arrival order.
func (r *NotificationRepo) FetchDueBatch(ctx context.Context, limit int) ([]model.NotificationRequest, error) {
	const q = `SELECT id, user_id, channel, payload, status, attempt_count, next_attempt_at, last_error, created_at, updated_at
               FROM notification_requests
               WHERE status = ? AND next_attempt_at <= UTC_TIMESTAMP()
               ORDER BY created_at ASC
               LIMIT ?`
	rows, err := r.db.QueryContext(ctx, q, model.NotificationPending, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	reqs := make([]model.NotificationRequest, 0)
	for rows.Next() {
		var n model.NotificationRequest
		var lastErr sql.NullString
		if err := rows.Scan(
			&n.ID, &n.UserID, &n.Channel, &n.Payload, &n.Status,
			&n.AttemptCount, &n.NextAttemptAt, &lastErr, &n.CreatedAt, &n.UpdatedAt,
		); err != nil {
			return nil, err
		}
		if lastErr.Valid {
			le := lastErr.String
			n.LastError = &le
		}
		reqs = append(reqs, n)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return reqs, nil
}

// UpdateStatus records the outcome of a delivery attempt: the new
// status, the attempt count, the next attempt time (used only when the
// request stays PENDING for a retry) and the most recent error text, if
// any.  Attempt counts must never decrease; the dispatch worker is the
// sole caller and always passes a count >= the stored one.
func (r *NotificationRepo) UpdateStatus(ctx context.Context, id uint64, status string, attemptCount uint32, nextAttemptAt time.Time, lastError *string) error {
	const q = `UPDATE notification_requests
               SET status = ?, attempt_count = ?, next_attempt_at = ?, last_error = ?, updated_at = UTC_TIMESTAMP()
               WHERE id = ?`
	var le sql.NullString
	if lastError != nil {
		le = sql.NullString{String: *lastError, Valid: true}
	}
	_, err := r.db.ExecContext(ctx, q, status, attemptCount, nextAttemptAt.UTC(), le, id)
	return err
}

// CountPending returns the number of requests still waiting for
// delivery, due or not.  Used by the operator surface.
func (r *NotificationRepo) CountPending(ctx context.Context) (int64, error) {
	const q = `SELECT COUNT(*) FROM notification_requests WHERE status = ?`
	var n int64
	err := r.db.QueryRowContext(ctx, q, model.NotificationPending).Scan(&n)
	return n, err
}

// ListByUser returns a user's notification history newest first, up to limit.
func (r *NotificationRepo) ListByUser(ctx context.Context, userID uint64, limit int) ([]model.NotificationRequest, error) {
	const q = `SELECT id, user_id, channel, payload, status, attempt_count, next_attempt_at, last_error, created_at, updated_at
               FROM notification_requests
               WHERE user_id = ?
               ORDER BY created_at DESC
               LIMIT ?`
	rows, err := r.db.QueryContext(ctx, q, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	reqs := make([]model.NotificationRequest, 0)
	for rows.Next() {
		var n model.NotificationRequest
		var lastErr sql.NullString
		if err := rows.Scan(
			&n.ID, &n.UserID, &n.Channel, &n.Payload, &n.Status,
			&n.AttemptCount, &n.NextAttemptAt, &lastErr, &n.CreatedAt, &n.UpdatedAt,
		); err != nil {
			return nil, err
		}
		if lastErr.Valid {
			le := lastErr.String
			n.LastError = &le
		}
		reqs = append(reqs, n)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return reqs, nil
}
