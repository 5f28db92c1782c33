package worker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/moverra/transit-reservation/internal/model"
)

// fakeNotificationStore is an in-memory NotificationStore.
type fakeNotificationStore struct {
	requests map[uint64]*model.NotificationRequest
	now      func() time.Time
}

func newFakeNotificationStore(now func() time.Time, reqs ...model.NotificationRequest) *fakeNotificationStore {
	s := &fakeNotificationStore{requests: make(map[uint64]*model.NotificationRequest), now: now}
	for i := range reqs {
		r := reqs[i]
		s.requests[r.ID] = &r
	}
	return s
}

func (s *fakeNotificationStore) FetchDueBatch(_ context.Context, limit int) ([]model.NotificationRequest, error) {
	out := make([]model.NotificationRequest, 0)
	for _, r := range s.requests {
		if r.Status == model.NotificationPending && !r.NextAttemptAt.After(s.now()) {
			out = append(out, *r)
		}
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (s *fakeNotificationStore) UpdateStatus(_ context.Context, id uint64, status string, attemptCount uint32, nextAttemptAt time.Time, lastError *string) error {
	r, ok := s.requests[id]
	if !ok {
		return errors.New("no such request")
	}
	r.Status = status
	r.AttemptCount = attemptCount
	r.NextAttemptAt = nextAttemptAt
	r.LastError = lastError
	return nil
}

func (s *fakeNotificationStore) CountPending(_ context.Context) (int64, error) {
	var n int64
	for _, r := range s.requests {
		if r.Status == model.NotificationPending {
			n++
		}
	}
	return n, nil
}

// fakePreferenceStore serves a fixed preference map per user.
type fakePreferenceStore struct {
	prefs map[uint64]map[string]bool
}

func (s *fakePreferenceStore) GetPreferences(_ context.Context, userID uint64) (map[string]bool, error) {
	if p, ok := s.prefs[userID]; ok {
		return p, nil
	}
	return map[string]bool{}, nil
}

// fakeChannel replays scripted outcomes and records every attempt.
type fakeChannel struct {
	outcomes []Outcome // consumed in order; last one repeats
	err      error
	attempts []uint64 // request IDs in attempt order
}

func (c *fakeChannel) Send(_ context.Context, req model.NotificationRequest) (Outcome, error) {
	c.attempts = append(c.attempts, req.ID)
	out := c.outcomes[0]
	if len(c.outcomes) > 1 {
		c.outcomes = c.outcomes[1:]
	}
	if out == OutcomeSuccess {
		return out, nil
	}
	return out, c.err
}

func dueRequest(id, userID uint64, channel string, at time.Time) model.NotificationRequest {
	return model.NotificationRequest{
		ID:            id,
		UserID:        userID,
		Channel:       channel,
		Payload:       "hello",
		Status:        model.NotificationPending,
		NextAttemptAt: at,
		CreatedAt:     at,
	}
}

func newDispatchWorker(store *fakeNotificationStore, prefs *fakePreferenceStore, ch *fakeChannel, now time.Time) *DispatchWorker {
	w := NewDispatchWorker(store, prefs, ch, 50, 3, time.Minute, 30*time.Minute)
	w.now = func() time.Time { return now }
	return w
}

func TestDispatchMarksSent(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	store := newFakeNotificationStore(func() time.Time { return now }, dueRequest(1, 42, model.ChannelEmail, now.Add(-time.Minute)))
	ch := &fakeChannel{outcomes: []Outcome{OutcomeSuccess}}
	w := newDispatchWorker(store, &fakePreferenceStore{}, ch, now)

	w.RunTick(context.Background())

	r := store.requests[1]
	if r.Status != model.NotificationSent {
		t.Fatalf("status = %q, want SENT", r.Status)
	}
	if r.AttemptCount != 1 {
		t.Errorf("attempts = %d, want 1", r.AttemptCount)
	}
}

// Scenario: the user has disabled sms; a pending sms request is marked
// SUPPRESSED without any delivery attempt, and later ticks never touch it.
func TestDispatchSuppressesDisabledChannel(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	store := newFakeNotificationStore(func() time.Time { return now }, dueRequest(1, 42, model.ChannelSMS, now.Add(-time.Minute)))
	prefs := &fakePreferenceStore{prefs: map[uint64]map[string]bool{42: {model.ChannelSMS: false}}}
	ch := &fakeChannel{outcomes: []Outcome{OutcomeSuccess}}
	w := newDispatchWorker(store, prefs, ch, now)

	w.RunTick(context.Background())

	r := store.requests[1]
	if r.Status != model.NotificationSuppressed {
		t.Fatalf("status = %q, want SUPPRESSED", r.Status)
	}
	if len(ch.attempts) != 0 {
		t.Fatalf("delivery attempts = %d, want 0", len(ch.attempts))
	}
	if r.AttemptCount != 0 {
		t.Errorf("attempts = %d, want 0", r.AttemptCount)
	}

	// Suppressed is terminal: further ticks make no attempt.
	w.RunTick(context.Background())
	if len(ch.attempts) != 0 {
		t.Error("suppressed request was retried")
	}
}

// A channel the user never toggled defaults to enabled.
func TestDispatchUnknownChannelDefaultsEnabled(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	store := newFakeNotificationStore(func() time.Time { return now }, dueRequest(1, 42, model.ChannelPush, now.Add(-time.Minute)))
	prefs := &fakePreferenceStore{prefs: map[uint64]map[string]bool{42: {model.ChannelSMS: false}}}
	ch := &fakeChannel{outcomes: []Outcome{OutcomeSuccess}}
	w := newDispatchWorker(store, prefs, ch, now)

	w.RunTick(context.Background())

	if store.requests[1].Status != model.NotificationSent {
		t.Fatalf("status = %q, want SENT", store.requests[1].Status)
	}
}

// Scenario: three transient failures with max=3 and backoff base 1m.
// Retries are scheduled at +1m and +2m; the third failure marks the
// request FAILED and a fourth tick makes no attempt.
func TestDispatchRetryScheduleAndTerminalFailure(t *testing.T) {
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	now := start
	store := newFakeNotificationStore(func() time.Time { return now }, dueRequest(1, 42, model.ChannelEmail, start.Add(-time.Second)))
	ch := &fakeChannel{outcomes: []Outcome{OutcomeTransient}, err: errors.New("gateway timeout")}
	w := NewDispatchWorker(store, &fakePreferenceStore{}, ch, 50, 3, time.Minute, 30*time.Minute)
	w.now = func() time.Time { return now }

	// Attempt 1: transient, rescheduled at +1m.
	w.RunTick(context.Background())
	r := store.requests[1]
	if r.Status != model.NotificationPending || r.AttemptCount != 1 {
		t.Fatalf("after attempt 1: status=%q attempts=%d", r.Status, r.AttemptCount)
	}
	if want := now.Add(time.Minute); !r.NextAttemptAt.Equal(want) {
		t.Fatalf("next attempt %s, want %s", r.NextAttemptAt, want)
	}
	if r.LastError == nil || *r.LastError != "gateway timeout" {
		t.Errorf("last error not recorded: %v", r.LastError)
	}

	// Not yet due: a tick in between attempts nothing.
	now = now.Add(30 * time.Second)
	w.RunTick(context.Background())
	if len(ch.attempts) != 1 {
		t.Fatalf("attempt before schedule: %d attempts", len(ch.attempts))
	}

	// Attempt 2 at +1m: transient, rescheduled at +2m.
	now = start.Add(time.Minute)
	w.RunTick(context.Background())
	r = store.requests[1]
	if r.AttemptCount != 2 || r.Status != model.NotificationPending {
		t.Fatalf("after attempt 2: status=%q attempts=%d", r.Status, r.AttemptCount)
	}
	if want := now.Add(2 * time.Minute); !r.NextAttemptAt.Equal(want) {
		t.Fatalf("next attempt %s, want %s", r.NextAttemptAt, want)
	}

	// Attempt 3: budget exhausted, FAILED exactly at attempts == max.
	now = now.Add(2 * time.Minute)
	w.RunTick(context.Background())
	r = store.requests[1]
	if r.Status != model.NotificationFailed {
		t.Fatalf("after attempt 3: status = %q, want FAILED", r.Status)
	}
	if r.AttemptCount != 3 {
		t.Fatalf("attempts = %d, want 3", r.AttemptCount)
	}

	// Fourth tick: terminal, no further attempt.
	now = now.Add(time.Hour)
	w.RunTick(context.Background())
	if len(ch.attempts) != 3 {
		t.Fatalf("attempts after terminal failure = %d, want 3", len(ch.attempts))
	}
}

// Attempt counts only ever increase across retries.
func TestDispatchAttemptCountMonotone(t *testing.T) {
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	now := start
	store := newFakeNotificationStore(func() time.Time { return now }, dueRequest(1, 42, model.ChannelEmail, start.Add(-time.Second)))
	ch := &fakeChannel{outcomes: []Outcome{OutcomeTransient, OutcomeTransient, OutcomeSuccess}, err: errors.New("flaky")}
	w := newDispatchWorker(store, &fakePreferenceStore{}, ch, now)

	prev := uint32(0)
	for i := 0; i < 3; i++ {
		w.now = func() time.Time { return now }
		w.RunTick(context.Background())
		got := store.requests[1].AttemptCount
		if got < prev {
			t.Fatalf("attempt count decreased: %d -> %d", prev, got)
		}
		prev = got
		now = store.requests[1].NextAttemptAt.Add(time.Second)
	}
	if store.requests[1].Status != model.NotificationSent {
		t.Fatalf("final status = %q, want SENT", store.requests[1].Status)
	}
	if prev != 3 {
		t.Fatalf("final attempts = %d, want 3", prev)
	}
}

// A permanent delivery failure is terminal on the first attempt.
func TestDispatchPermanentFailure(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	store := newFakeNotificationStore(func() time.Time { return now }, dueRequest(1, 42, model.ChannelEmail, now.Add(-time.Minute)))
	ch := &fakeChannel{outcomes: []Outcome{OutcomePermanent}, err: errors.New("unroutable payload")}
	w := newDispatchWorker(store, &fakePreferenceStore{}, ch, now)

	w.RunTick(context.Background())

	r := store.requests[1]
	if r.Status != model.NotificationFailed {
		t.Fatalf("status = %q, want FAILED", r.Status)
	}
	if r.AttemptCount != 1 {
		t.Errorf("attempts = %d, want 1", r.AttemptCount)
	}
}

// One failing request must not stop the rest of the batch.
func TestDispatchItemFailureDoesNotBlockBatch(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	store := newFakeNotificationStore(func() time.Time { return now },
		dueRequest(1, 42, model.ChannelEmail, now.Add(-2*time.Minute)),
		dueRequest(2, 43, model.ChannelEmail, now.Add(-time.Minute)),
	)
	ch := &fakeChannel{outcomes: []Outcome{OutcomeTransient, OutcomeSuccess}, err: errors.New("timeout")}
	w := newDispatchWorker(store, &fakePreferenceStore{}, ch, now)

	w.RunTick(context.Background())

	if len(ch.attempts) != 2 {
		t.Fatalf("attempts = %d, want 2", len(ch.attempts))
	}
	sent, pending := 0, 0
	for _, r := range store.requests {
		switch r.Status {
		case model.NotificationSent:
			sent++
		case model.NotificationPending:
			pending++
		}
	}
	if sent != 1 || pending != 1 {
		t.Fatalf("sent=%d pending=%d, want 1 and 1", sent, pending)
	}
}

func TestDispatchBackoffDoublesAndCaps(t *testing.T) {
	w := NewDispatchWorker(newFakeNotificationStore(time.Now), &fakePreferenceStore{}, &fakeChannel{outcomes: []Outcome{OutcomeSuccess}}, 50, 10, time.Minute, 4*time.Minute)
	cases := []struct {
		attempts uint32
		want     time.Duration
	}{
		{1, time.Minute},
		{2, 2 * time.Minute},
		{3, 4 * time.Minute},
		{4, 4 * time.Minute}, // capped
		{9, 4 * time.Minute}, // still capped, no overflow
	}
	for _, tc := range cases {
		if got := w.backoff(tc.attempts); got != tc.want {
			t.Errorf("backoff(%d) = %s, want %s", tc.attempts, got, tc.want)
		}
	}
}

func TestDispatchPendingCount(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	store := newFakeNotificationStore(func() time.Time { return now },
		dueRequest(1, 42, model.ChannelEmail, now),
		dueRequest(2, 42, model.ChannelEmail, now.Add(time.Hour)), // pending but not yet due
	)
	w := newDispatchWorker(store, &fakePreferenceStore{}, &fakeChannel{outcomes: []Outcome{OutcomeSuccess}}, now)

	n, err := w.PendingCount(context.Background())
	if err != nil {
		t.Fatalf("PendingCount: %v", err)
	}
	if n != 2 {
		t.Fatalf("pending = %d, want 2 (due or not)", n)
	}
}
