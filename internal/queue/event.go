// Package queue implements the notification delivery channel on top of
// the message broker.  Dispatch publishes one persistent JSON payload
// per notification to a durable per-channel queue; the actual senders
// (mail relay, SMS gateway, push fan-out) consume those queues outside
// this service.
package queue

import "time"

// NotificationPayload is the message published per delivered
// notification.  It carries enough for a downstream sender to deliver
// without querying the primary database.
type NotificationPayload struct {
	RequestID uint64    `json:"request_id"`
	UserID    uint64    `json:"user_id"`
	Channel   string    `json:"channel"`
	Body      string    `json:"body"`
	Attempt   uint32    `json:"attempt"`
	QueuedAt  time.Time `json:"queued_at"`
}
