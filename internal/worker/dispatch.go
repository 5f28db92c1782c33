package worker

import (
	"context"
	"log"
	"time"

	"github.com/moverra/transit-reservation/internal/model"
)

// Outcome classifies the result of one delivery attempt.
type Outcome int

const (
	OutcomeSuccess   Outcome = iota // delivered; mark SENT
	OutcomeTransient                // retryable failure; reschedule with backoff
	OutcomePermanent                // non-retryable failure; mark FAILED immediately
)

// NotificationStore is the queue-side interface the dispatch worker
// consumes.  The worker is the single consumer: no other component
// writes status, attempt or schedule columns.
type NotificationStore interface {
	FetchDueBatch(ctx context.Context, limit int) ([]model.NotificationRequest, error)
	UpdateStatus(ctx context.Context, id uint64, status string, attemptCount uint32, nextAttemptAt time.Time, lastError *string) error
	CountPending(ctx context.Context) (int64, error)
}

// PreferenceStore resolves per-user delivery preferences.  Read-only
// from the worker's perspective.
type PreferenceStore interface {
	GetPreferences(ctx context.Context, userID uint64) (map[string]bool, error)
}

// DeliveryChannel sends a notification to the outside world.  The error
// is non-nil only for transient and permanent outcomes and carries the
// cause for the request's last_error column.
type DeliveryChannel interface {
	Send(ctx context.Context, req model.NotificationRequest) (Outcome, error)
}

// DispatchWorker drains due PENDING notification requests.  Per request:
// a channel the user has disabled means SUPPRESSED with no delivery
// attempt and no retry; a successful send means SENT; a transient
// failure increments the attempt count and either reschedules the
// request with exponential backoff or, once the attempt budget is
// spent, marks it FAILED terminally.  Item outcomes are independent;
// one failing request never stops the batch or the schedule.
type DispatchWorker struct {
	store       NotificationStore
	prefs       PreferenceStore
	channel     DeliveryChannel
	batchSize   int
	maxAttempts uint32
	backoffBase time.Duration
	backoffCap  time.Duration
	now         func() time.Time
}

// NewDispatchWorker constructs the worker.
func NewDispatchWorker(store NotificationStore, prefs PreferenceStore, channel DeliveryChannel, batchSize int, maxAttempts int, backoffBase, backoffCap time.Duration) *DispatchWorker {
	return &DispatchWorker{
		store:       store,
		prefs:       prefs,
		channel:     channel,
		batchSize:   batchSize,
		maxAttempts: uint32(maxAttempts),
		backoffBase: backoffBase,
		backoffCap:  backoffCap,
		now:         time.Now,
	}
}

// Name implements scheduler.Job.
func (w *DispatchWorker) Name() string { return "dispatch" }

// PendingCount reports how many requests are still waiting, for the
// operator surface.
func (w *DispatchWorker) PendingCount(ctx context.Context) (int64, error) {
	return w.store.CountPending(ctx)
}

// RunTick implements scheduler.Job.
func (w *DispatchWorker) RunTick(ctx context.Context) {
	batch, err := w.store.FetchDueBatch(ctx, w.batchSize)
	if err != nil {
		log.Printf("dispatch: fetch due batch failed: %v", err)
		return
	}
	for _, req := range batch {
		if ctx.Err() != nil {
			return
		}
		w.dispatchOne(ctx, req)
	}
}

// dispatchOne handles one request end to end.  Store errors are logged
// and the row stays as-is, to be picked up again on a later tick.
func (w *DispatchWorker) dispatchOne(ctx context.Context, req model.NotificationRequest) {
	prefs, err := w.prefs.GetPreferences(ctx, req.UserID)
	if err != nil {
		log.Printf("dispatch: preferences for user %d failed: %v", req.UserID, err)
		return
	}
	if enabled, known := prefs[req.Channel]; known && !enabled {
		// User disabled this channel: terminal, no delivery attempt.
		if err := w.store.UpdateStatus(ctx, req.ID, model.NotificationSuppressed, req.AttemptCount, req.NextAttemptAt, nil); err != nil {
			log.Printf("dispatch: suppress request %d failed: %v", req.ID, err)
		}
		return
	}

	outcome, sendErr := w.channel.Send(ctx, req)
	attempts := req.AttemptCount + 1
	switch outcome {
	case OutcomeSuccess:
		if err := w.store.UpdateStatus(ctx, req.ID, model.NotificationSent, attempts, req.NextAttemptAt, nil); err != nil {
			log.Printf("dispatch: mark request %d sent failed: %v", req.ID, err)
		}
	case OutcomeTransient:
		errText := errString(sendErr)
		if attempts >= w.maxAttempts {
			if err := w.store.UpdateStatus(ctx, req.ID, model.NotificationFailed, attempts, req.NextAttemptAt, errText); err != nil {
				log.Printf("dispatch: mark request %d failed failed: %v", req.ID, err)
			}
			log.Printf("dispatch: request %d exhausted %d attempts, marked failed", req.ID, attempts)
			return
		}
		next := w.now().UTC().Add(w.backoff(attempts))
		if err := w.store.UpdateStatus(ctx, req.ID, model.NotificationPending, attempts, next, errText); err != nil {
			log.Printf("dispatch: reschedule request %d failed: %v", req.ID, err)
		}
	case OutcomePermanent:
		if err := w.store.UpdateStatus(ctx, req.ID, model.NotificationFailed, attempts, req.NextAttemptAt, errString(sendErr)); err != nil {
			log.Printf("dispatch: mark request %d failed failed: %v", req.ID, err)
		}
	}
}

// backoff returns the delay before the next attempt: base doubled per
// completed attempt, capped.  attempts is the count after the failure
// that just happened, so the first retry waits exactly base.
func (w *DispatchWorker) backoff(attempts uint32) time.Duration {
	d := w.backoffBase
	for i := uint32(1); i < attempts; i++ {
		d *= 2
		if d >= w.backoffCap {
			return w.backoffCap
		}
	}
	if d > w.backoffCap {
		return w.backoffCap
	}
	return d
}

func errString(err error) *string {
	if err == nil {
		return nil
	}
	s := err.Error()
	return &s
}
