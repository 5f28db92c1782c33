// Package worker implements the three background workers of the
// reservation lifecycle: auto-cancellation of unpaid reservations,
// dynamic trip pricing, and notification dispatch.  Each worker is a
// scheduler.Job and talks to its stores through small interfaces so the
// live repositories can be swapped for in-memory fakes in tests.
package worker

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/moverra/transit-reservation/internal/model"
)

// ReservationStore is the slice of the reservation repository the
// auto-cancellation worker needs.
type ReservationStore interface {
	FindPendingOlderThan(ctx context.Context, cutoff time.Time, limit int) ([]model.Reservation, error)
	TryTransition(ctx context.Context, id uint64, from, to string, version uint64) (bool, error)
	AppendCancellationLog(ctx context.Context, entry *model.CancellationLogEntry) error
}

// Notifier enqueues notification requests.  Both the auto-cancellation
// worker and the operator API produce through this interface; only the
// dispatch worker consumes.
type Notifier interface {
	Enqueue(ctx context.Context, req *model.NotificationRequest) error
}

// AutoCancelWorker expires reservations left unpaid past a timeout.  On
// each tick it pulls a bounded batch of stale PENDING reservations and,
// per candidate, attempts the conditional PENDING→EXPIRED transition.
// Losing the optimistic race (a payment confirmed the row between the
// query and the write) is silent and expected.  Winning it appends one
// AUTO_EXPIRED cancellation log entry and enqueues one notification to
// the owner.  Every failure is contained to its item: one bad row never
// aborts the batch, and a failed row is simply picked up again next tick.
type AutoCancelWorker struct {
	store     ReservationStore
	notifier  Notifier
	batchSize int
	now       func() time.Time

	mu      sync.RWMutex
	timeout time.Duration
}

// NewAutoCancelWorker constructs the worker.  The timeout is the initial
// value; operators can adjust it at runtime through SetTimeout.
func NewAutoCancelWorker(store ReservationStore, notifier Notifier, timeout time.Duration, batchSize int) *AutoCancelWorker {
	return &AutoCancelWorker{
		store:     store,
		notifier:  notifier,
		batchSize: batchSize,
		timeout:   timeout,
		now:       time.Now,
	}
}

// Name implements scheduler.Job.
func (w *AutoCancelWorker) Name() string { return "auto-cancel" }

// Timeout returns the current cancellation timeout.
func (w *AutoCancelWorker) Timeout() time.Duration {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.timeout
}

// SetTimeout replaces the cancellation timeout.  Takes effect on the
// next tick; the value must be positive.
func (w *AutoCancelWorker) SetTimeout(d time.Duration) error {
	if d <= 0 {
		return fmt.Errorf("cancellation timeout must be positive, got %s", d)
	}
	w.mu.Lock()
	w.timeout = d
	w.mu.Unlock()
	return nil
}

// RunTick implements scheduler.Job.  Errors are logged, never returned:
// a failed tick must not disturb the schedule.
func (w *AutoCancelWorker) RunTick(ctx context.Context) {
	if _, err := w.sweep(ctx, w.Timeout()); err != nil {
		log.Printf("auto-cancel: tick failed: %v", err)
	}
}

// RunNow performs an on-demand sweep for the operator surface.  When
// override is non-nil it is used instead of the configured timeout for
// this sweep only.  It returns the number of reservations expired.
func (w *AutoCancelWorker) RunNow(ctx context.Context, override *time.Duration) (int, error) {
	timeout := w.Timeout()
	if override != nil {
		if *override <= 0 {
			return 0, fmt.Errorf("override timeout must be positive, got %s", *override)
		}
		timeout = *override
	}
	return w.sweep(ctx, timeout)
}

// sweep runs one cancellation pass with the given timeout and returns
// how many reservations it expired.  The returned error covers only the
// candidate query; per-candidate failures are logged and skipped so the
// stale row is retried on the next tick.
func (w *AutoCancelWorker) sweep(ctx context.Context, timeout time.Duration) (int, error) {
	now := w.now().UTC()
	cutoff := now.Add(-timeout)
	candidates, err := w.store.FindPendingOlderThan(ctx, cutoff, w.batchSize)
	if err != nil {
		return 0, fmt.Errorf("fetch pending candidates: %w", err)
	}
	expired := 0
	for _, res := range candidates {
		// Cooperative shutdown: finish the current item, then stop.
		if ctx.Err() != nil {
			break
		}
		// A reservation may carry an individual payment deadline later
		// than created-at + timeout (e.g. an operator extension); it is
		// not expirable until that deadline has also passed.
		if res.PaymentDeadline.After(now) {
			continue
		}
		if w.expireOne(ctx, res) {
			expired++
		}
	}
	return expired, nil
}

// expireOne attempts to expire a single reservation and reports whether
// the transition was applied.
func (w *AutoCancelWorker) expireOne(ctx context.Context, res model.Reservation) bool {
	ok, err := w.store.TryTransition(ctx, res.ID, model.ReservationPending, model.ReservationExpired, res.Version)
	if err != nil {
		log.Printf("auto-cancel: transition reservation %d failed: %v", res.ID, err)
		return false
	}
	if !ok {
		// Benign race: a concurrent payment confirmation (or an explicit
		// cancel) moved the row first.  Not an error, nothing to log.
		return false
	}
	entry := model.CancellationLogEntry{
		ReservationID: res.ID,
		UserID:        res.UserID,
		Reason:        model.ReasonAutoExpired,
		Actor:         "system",
	}
	if err := w.store.AppendCancellationLog(ctx, &entry); err != nil {
		// The reservation is already EXPIRED; the audit row is what
		// failed.  Log loudly so operators can reconcile.
		log.Printf("auto-cancel: log entry for reservation %d failed: %v", res.ID, err)
	}
	notif := model.NotificationRequest{
		UserID:  res.UserID,
		Channel: model.ChannelEmail,
		Payload: fmt.Sprintf("Your reservation %d expired because payment was not received in time.", res.ID),
	}
	if err := w.notifier.Enqueue(ctx, &notif); err != nil {
		log.Printf("auto-cancel: enqueue notification for reservation %d failed: %v", res.ID, err)
	}
	return true
}
