package model

import "time"

// Notification delivery channels.  The set is open-ended: the queue and
// preference tables store the channel as a string so new channels can be
// added without a schema change.
const (
	ChannelEmail = "email"
	ChannelSMS   = "sms"
	ChannelPush  = "push"
)

// Notification request statuses.  PENDING is the only non-terminal
// state.  A transient delivery failure puts the row back to PENDING
// with a later next_attempt_at until the attempt budget is exhausted,
// at which point it becomes FAILED.  SUPPRESSED means the user has the
// channel disabled; suppressed requests are never retried.
const (
	NotificationPending    = "PENDING"
	NotificationSent       = "SENT"
	NotificationFailed     = "FAILED"
	NotificationSuppressed = "SUPPRESSED"
)

// NotificationRequest is one queued message to a user.  Any component
// may enqueue rows; only the dispatch worker consumes them and only it
// writes the status, attempt count and schedule columns.  AttemptCount
// only ever increases.
//
// Fields:
//
//	ID            – primary key identifier.
//	UserID        – recipient.
//	Channel       – delivery channel ("email", "sms", ...).
//	Payload       – message body handed to the delivery channel verbatim.
//	Status        – state of the request (see constants above).
//	AttemptCount  – number of delivery attempts made so far.
//	NextAttemptAt – earliest time the dispatch worker may (re)try delivery.
//	LastError     – text of the most recent delivery error, if any.
//	CreatedAt     – creation timestamp.
//	UpdatedAt     – last update timestamp.
type NotificationRequest struct {
	ID            uint64    `json:"id"`                   // notification_requests.id
	UserID        uint64    `json:"user_id"`              // notification_requests.user_id
	Channel       string    `json:"channel"`              // notification_requests.channel
	Payload       string    `json:"payload"`              // notification_requests.payload
	Status        string    `json:"status"`               // notification_requests.status
	AttemptCount  uint32    `json:"attempt_count"`        // notification_requests.attempt_count
	NextAttemptAt time.Time `json:"next_attempt_at"`      // notification_requests.next_attempt_at
	LastError     *string   `json:"last_error,omitempty"` // notification_requests.last_error (nullable)
	CreatedAt     time.Time `json:"created_at"`           // notification_requests.created_at
	UpdatedAt     time.Time `json:"updated_at"`           // notification_requests.updated_at
}
