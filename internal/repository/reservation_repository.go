package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/moverra/transit-reservation/internal/model"
)

// ReservationRepo provides the reservation-side data access used by the
// auto-cancellation worker and the operator API.  All timestamp fields
// are stored in UTC.  Status transitions are guarded by the version
// column: a conditional UPDATE that names both the expected status and
// the expected version, incrementing the version on success.  This is
// the only write path for reservation status in this subsystem; the
// payment flow elsewhere uses the same check-and-increment discipline,
// which is what makes a confirm/expire race resolve deterministically.
type ReservationRepo struct {
	db *sql.DB
}

// NewReservationRepo returns a new ReservationRepo bound to the given database.
func NewReservationRepo(db *sql.DB) *ReservationRepo { return &ReservationRepo{db: db} }

// FindPendingOlderThan returns up to limit PENDING reservations created
// before the cutoff, oldest first.  The worker calls this once per tick
// with cutoff = now − timeout; bounding the batch keeps a backlog of
// stale rows from turning one tick into a full-table sweep.
func (r *ReservationRepo) FindPendingOlderThan(ctx context.Context, cutoff time.Time, limit int) ([]model.Reservation, error) {
	const q = `SELECT id, user_id, trip_id, seat_count, status, version, payment_deadline, created_at, updated_at
               FROM reservations
               WHERE status = ? AND created_at < ?
               ORDER BY created_at ASC
               LIMIT ?`
	rows, err := r.db.QueryContext(ctx, q, model.ReservationPending, cutoff.UTC(), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]model.Reservation, 0)
	for rows.Next() {
		var res model.Reservation
		if err := rows.Scan(
			&res.ID, &res.UserID, &res.TripID, &res.SeatCount, &res.Status,
			&res.Version, &res.PaymentDeadline, &res.CreatedAt, &res.UpdatedAt,
		); err != nil {
			return nil, err
		}
		out = append(out, res)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// TryTransition attempts to move a reservation from one status to
// another using its optimistic concurrency token.  It returns true when
// the transition was applied.  False with a nil error means the row no
// longer matched (another process already changed the status or the
// version); callers treat that as a benign race loss and skip the row.
func (r *ReservationRepo) TryTransition(ctx context.Context, id uint64, from, to string, version uint64) (bool, error) {
	const q = `UPDATE reservations
               SET status = ?, version = version + 1, updated_at = UTC_TIMESTAMP()
               WHERE id = ? AND status = ? AND version = ?`
	result, err := r.db.ExecContext(ctx, q, to, id, from, version)
	if err != nil {
		return false, err
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// AppendCancellationLog writes one immutable cancellation audit entry.
// The generated ID and timestamp are populated on the provided entry.
func (r *ReservationRepo) AppendCancellationLog(ctx context.Context, entry *model.CancellationLogEntry) error {
	const q = `INSERT INTO cancellation_log (reservation_id, user_id, reason, actor) VALUES (?, ?, ?, ?)`
	result, err := r.db.ExecContext(ctx, q, entry.ReservationID, entry.UserID, entry.Reason, entry.Actor)
	if err != nil {
		return err
	}
	id, err := result.LastInsertId()
	if err != nil {
		return err
	}
	entry.ID = uint64(id)
	// Query back the stored timestamp so callers see what was persisted
	const sel = `SELECT created_at FROM cancellation_log WHERE id = ?`
	return r.db.QueryRowContext(ctx, sel, entry.ID).Scan(&entry.CreatedAt)
}

// ListCancellationLogs returns cancellation entries newest first, up to
// limit.  When userID is non-zero the result is restricted to that
// user's reservations.
func (r *ReservationRepo) ListCancellationLogs(ctx context.Context, userID uint64, limit int) ([]model.CancellationLogEntry, error) {
	q := `SELECT id, reservation_id, user_id, reason, actor, created_at
          FROM cancellation_log`
	args := make([]interface{}, 0, 2)
	if userID != 0 {
		q += ` WHERE user_id = ?`
		args = append(args, userID)
	}
	q += ` ORDER BY created_at DESC LIMIT ?`
	args = append(args, limit)
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	entries := make([]model.CancellationLogEntry, 0)
	for rows.Next() {
		var e model.CancellationLogEntry
		if err := rows.Scan(&e.ID, &e.ReservationID, &e.UserID, &e.Reason, &e.Actor, &e.CreatedAt); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}
