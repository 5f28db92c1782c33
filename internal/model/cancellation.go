package model

import "time"

// Cancellation reasons.  AUTO_EXPIRED is written only by the
// auto-cancellation worker; the other two come from explicit user or
// administrator actions routed through the API layer.
const (
	ReasonUserRequested = "USER_REQUESTED" // user cancelled their own reservation
	ReasonAutoExpired   = "AUTO_EXPIRED"   // payment deadline passed without payment
	ReasonAdminForced   = "ADMIN_FORCED"   // administrator cancelled the reservation
)

// CancellationLogEntry is an immutable audit record of a reservation
// cancellation.  Rows are append-only: they are never updated or
// deleted once written.
//
// Fields:
//
//	ID            – primary key identifier.
//	ReservationID – reservation that was cancelled or expired.
//	UserID        – owner of the reservation, kept for per-user queries.
//	Reason        – why the cancellation happened (see constants above).
//	Actor         – who performed it ("system" for the worker, otherwise a user/admin id).
//	CreatedAt     – when the entry was written.
type CancellationLogEntry struct {
	ID            uint64    `json:"id"`             // cancellation_log.id
	ReservationID uint64    `json:"reservation_id"` // cancellation_log.reservation_id
	UserID        uint64    `json:"user_id"`        // cancellation_log.user_id
	Reason        string    `json:"reason"`         // cancellation_log.reason
	Actor         string    `json:"actor"`          // cancellation_log.actor
	CreatedAt     time.Time `json:"created_at"`     // cancellation_log.created_at
}
