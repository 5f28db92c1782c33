package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/moverra/transit-reservation/internal/model"
	"github.com/moverra/transit-reservation/internal/worker"
)

// Publisher delivers notifications by publishing them to the broker.
// It implements worker.DeliveryChannel: broker unavailability and
// publish errors are transient (the dispatch worker retries with
// backoff), while a payload that cannot be marshalled is permanent.
// The connection is dialled lazily and re-dialled after a failure, so a
// broker restart costs one transient attempt and nothing more.
type Publisher struct {
	url string

	mu   sync.Mutex
	conn *amqp.Connection
	ch   *amqp.Channel
}

// NewPublisher returns a Publisher for the given broker URL.  No
// connection is made until the first send.
func NewPublisher(url string) *Publisher {
	return &Publisher{url: url}
}

// queueName maps a delivery channel to its broker queue.
func queueName(channel string) string { return "notify." + channel }

// Send implements worker.DeliveryChannel.
func (p *Publisher) Send(ctx context.Context, req model.NotificationRequest) (worker.Outcome, error) {
	body, err := json.Marshal(NotificationPayload{
		RequestID: req.ID,
		UserID:    req.UserID,
		Channel:   req.Channel,
		Body:      req.Payload,
		Attempt:   req.AttemptCount + 1,
		QueuedAt:  time.Now().UTC(),
	})
	if err != nil {
		// Unmarshallable payload will never succeed; do not retry.
		return worker.OutcomePermanent, fmt.Errorf("marshal payload: %w", err)
	}

	ch, err := p.channel()
	if err != nil {
		return worker.OutcomeTransient, fmt.Errorf("broker unavailable: %w", err)
	}

	name := queueName(req.Channel)
	// Idempotent declare; durable so messages survive broker restarts.
	if _, err := ch.QueueDeclare(name, true, false, false, false, nil); err != nil {
		p.reset()
		return worker.OutcomeTransient, fmt.Errorf("queue declare: %w", err)
	}
	pub := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent, // store on disk
		Timestamp:    time.Now().UTC(),
		Body:         body,
	}
	if err := ch.PublishWithContext(ctx, "", name, false, false, pub); err != nil {
		p.reset()
		return worker.OutcomeTransient, fmt.Errorf("publish: %w", err)
	}
	return worker.OutcomeSuccess, nil
}

// channel returns the open publish channel, dialling the broker if needed.
func (p *Publisher) channel() (*amqp.Channel, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ch != nil && !p.conn.IsClosed() {
		return p.ch, nil
	}
	conn, err := amqp.Dial(p.url)
	if err != nil {
		return nil, err
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	p.conn = conn
	p.ch = ch
	return ch, nil
}

// reset drops the cached connection so the next send re-dials.
func (p *Publisher) reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.conn != nil {
		if err := p.conn.Close(); err != nil {
			log.Printf("notify-publisher: close connection: %v", err)
		}
	}
	p.conn = nil
	p.ch = nil
}

// Close shuts the broker connection down.  Safe to call when no
// connection was ever made.
func (p *Publisher) Close() {
	p.reset()
}
