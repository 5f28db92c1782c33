package model

import "time"

// TripPricingState is the pricing snapshot of a single trip.  The
// dynamic pricing worker is the only writer; reservation-creation
// requests read it concurrently, so the current price is always
// replaced in a single atomic write and never updated piecemeal.
// CurrentPriceCents is derived deterministically from the base price,
// the occupancy ratio and the time to departure, so a recompute with
// identical inputs is idempotent.
//
// Fields:
//
//	TripID            – trip this state belongs to.
//	Origin            – departure stop, carried for logs and operator output.
//	Destination       – arrival stop.
//	DepartsAt         – scheduled departure time (UTC).
//	Capacity          – total number of sellable seats.
//	ReservedSeats     – seats currently held by active reservations.
//	OccupancyRatio    – ReservedSeats / Capacity at the last recompute.
//	BasePriceCents    – operator-configured base fare in cents.
//	CurrentPriceCents – live fare in cents, bounded by the pricing floor and ceiling.
//	RecomputedAt      – when the pricing worker last recomputed this row.
type TripPricingState struct {
	TripID            uint64    `json:"trip_id"`             // trips.id
	Origin            string    `json:"origin"`              // trips.origin
	Destination       string    `json:"destination"`         // trips.destination
	DepartsAt         time.Time `json:"departs_at"`          // trips.departs_at
	Capacity          uint32    `json:"capacity"`            // trips.capacity
	ReservedSeats     uint32    `json:"reserved_seats"`      // derived: active seats reserved on the trip
	OccupancyRatio    float64   `json:"occupancy_ratio"`     // trips.occupancy_ratio (as of last recompute)
	BasePriceCents    int64     `json:"base_price_cents"`    // trips.base_price_cents
	CurrentPriceCents int64     `json:"current_price_cents"` // trips.current_price_cents
	RecomputedAt      time.Time `json:"recomputed_at"`       // trips.price_recomputed_at
}
