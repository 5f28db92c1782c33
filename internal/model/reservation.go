package model

import "time"

// Reservation status enumeration.  A reservation starts PENDING and is
// moved to CONFIRMED by a successful payment, to CANCELLED by the user
// or an administrator, and to EXPIRED by the auto-cancellation worker
// once its payment deadline has passed.
const (
	ReservationPending   = "PENDING"   // awaiting payment
	ReservationConfirmed = "CONFIRMED" // payment completed
	ReservationCancelled = "CANCELLED" // cancelled by user or admin
	ReservationExpired   = "EXPIRED"   // auto-cancelled after the payment deadline
)

// Reservation records a user's booking of one or more seats on a trip.
// The Version field is an optimistic concurrency token: every status
// transition must check-and-increment it, so a payment confirmation and
// an auto-cancellation racing on the same row resolve deterministically:
// whichever commits first wins and the loser's conditional write affects
// zero rows.
//
// Fields:
//
//	ID              – primary key identifier.
//	UserID          – user who made the reservation.
//	TripID          – trip being reserved.
//	SeatCount       – number of seats held under this reservation.
//	Status          – state of the reservation (see constants above).
//	Version         – optimistic concurrency token, incremented on every write.
//	PaymentDeadline – individual grace deadline; the sweep never expires
//	                  the reservation before it has passed, even when the
//	                  global timeout already has.
//	CreatedAt       – creation timestamp.
//	UpdatedAt       – last update timestamp.
type Reservation struct {
	ID              uint64    // reservations.id
	UserID          uint64    // reservations.user_id
	TripID          uint64    // reservations.trip_id
	SeatCount       uint32    // reservations.seat_count
	Status          string    // reservations.status
	Version         uint64    // reservations.version
	PaymentDeadline time.Time // reservations.payment_deadline
	CreatedAt       time.Time // reservations.created_at
	UpdatedAt       time.Time // reservations.updated_at
}
