package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/moverra/transit-reservation/internal/model"
)

// TripRepo provides the trip-side data access used by the dynamic
// pricing worker.  Occupancy is derived at query time from the live
// reservation rows rather than stored counters, so the worker always
// prices against what is actually booked.  All timestamps are UTC.
type TripRepo struct {
	db *sql.DB
}

// NewTripRepo returns a new TripRepo bound to the given database.
func NewTripRepo(db *sql.DB) *TripRepo { return &TripRepo{db: db} }

// FindActiveWithinHorizon returns the pricing state of every trip whose
// departure lies in (now, now+horizon].  Trips already departed or far
// in the future are excluded so recomputation work scales with near-term
// departures, not the whole catalog.  The reserved-seat count sums the
// seats of PENDING and CONFIRMED reservations; cancelled and expired
// ones release their seats.
func (r *TripRepo) FindActiveWithinHorizon(ctx context.Context, horizon time.Duration) ([]model.TripPricingState, error) {
	const q = `SELECT t.id, t.origin, t.destination, t.departs_at, t.capacity,
                      t.base_price_cents, t.current_price_cents, t.occupancy_ratio, t.price_recomputed_at,
                      COALESCE(SUM(CASE WHEN res.status IN ('PENDING','CONFIRMED') THEN res.seat_count ELSE 0 END), 0)
               FROM trips t
               LEFT JOIN reservations res ON res.trip_id = t.id
               WHERE t.departs_at > UTC_TIMESTAMP() AND t.departs_at <= ?
               GROUP BY t.id
               ORDER BY t.departs_at ASC`
	until := time.Now().UTC().Add(horizon)
	rows, err := r.db.QueryContext(ctx, q, until)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	states := make([]model.TripPricingState, 0)
	for rows.Next() {
		var s model.TripPricingState
		var recomputedAt sql.NullTime
		if err := rows.Scan(
			&s.TripID, &s.Origin, &s.Destination, &s.DepartsAt, &s.Capacity,
			&s.BasePriceCents, &s.CurrentPriceCents, &s.OccupancyRatio, &recomputedAt,
			&s.ReservedSeats,
		); err != nil {
			return nil, err
		}
		if recomputedAt.Valid {
			s.RecomputedAt = recomputedAt.Time
		}
		if s.Capacity > 0 {
			s.OccupancyRatio = float64(s.ReservedSeats) / float64(s.Capacity)
		}
		states = append(states, s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return states, nil
}

// GetPricing returns the pricing state of a single trip, with the same
// occupancy derivation as FindActiveWithinHorizon.  Returns ErrNotFound
// when no trip has the given id.
func (r *TripRepo) GetPricing(ctx context.Context, tripID uint64) (model.TripPricingState, error) {
	const q = `SELECT t.id, t.origin, t.destination, t.departs_at, t.capacity,
                      t.base_price_cents, t.current_price_cents, t.occupancy_ratio, t.price_recomputed_at,
                      COALESCE(SUM(CASE WHEN res.status IN ('PENDING','CONFIRMED') THEN res.seat_count ELSE 0 END), 0)
               FROM trips t
               LEFT JOIN reservations res ON res.trip_id = t.id
               WHERE t.id = ?
               GROUP BY t.id`
	var s model.TripPricingState
	var recomputedAt sql.NullTime
	err := r.db.QueryRowContext(ctx, q, tripID).Scan(
		&s.TripID, &s.Origin, &s.Destination, &s.DepartsAt, &s.Capacity,
		&s.BasePriceCents, &s.CurrentPriceCents, &s.OccupancyRatio, &recomputedAt,
		&s.ReservedSeats,
	)
	if err == sql.ErrNoRows {
		return model.TripPricingState{}, ErrNotFound
	}
	if err != nil {
		return model.TripPricingState{}, err
	}
	if recomputedAt.Valid {
		s.RecomputedAt = recomputedAt.Time
	}
	if s.Capacity > 0 {
		s.OccupancyRatio = float64(s.ReservedSeats) / float64(s.Capacity)
	}
	return s, nil
}

// ReplacePricing stores a recomputed pricing snapshot for one trip.  The
// whole snapshot lands in a single UPDATE statement so a concurrent
// reader sees either the old row or the new one, never a mix.
func (r *TripRepo) ReplacePricing(ctx context.Context, state model.TripPricingState) error {
	const q = `UPDATE trips
               SET current_price_cents = ?, occupancy_ratio = ?, price_recomputed_at = ?
               WHERE id = ?`
	// RowsAffected is not checked: MySQL reports 0 when the new values
	// equal the old ones, which is normal for an idempotent recompute.
	_, err := r.db.ExecContext(ctx, q, state.CurrentPriceCents, state.OccupancyRatio, state.RecomputedAt.UTC(), state.TripID)
	return err
}
