// Package scheduler drives the background workers.  Each registered job
// gets its own long-lived goroutine woken by a ticker on its own
// interval, so a slow tick in one worker never delays another.  Ticks
// are serialized within a job: the loop runs a tick to completion
// before listening for the next fire, and a fire that lands while a
// tick is still running is drained and dropped rather than queued, so
// a slow tick can never build an unbounded backlog.
package scheduler

import (
	"context"
	"log"
	"sync"
	"time"
)

// Job is one unit of periodic background work.  RunTick must honour the
// context for cooperative shutdown and must never panic or let a
// per-item failure escape; the scheduler still recovers panics as a
// last line of defence so one bad tick cannot take the process down.
type Job interface {
	Name() string
	RunTick(ctx context.Context)
}

type entry struct {
	job      Job
	interval time.Duration
}

// Scheduler owns the lifecycle of all background jobs.  Register jobs
// before calling Start; Stop cancels the shared context and waits for
// every in-flight tick to finish.
type Scheduler struct {
	entries []entry
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// New returns an empty Scheduler.
func New() *Scheduler { return &Scheduler{} }

// Register adds a job that will be woken every interval once Start is
// called.  Registering after Start has no effect on the running set.
func (s *Scheduler) Register(job Job, interval time.Duration) {
	s.entries = append(s.entries, entry{job: job, interval: interval})
}

// Start launches one goroutine per registered job.  The goroutines run
// until the provided context is cancelled or Stop is called.  Each job
// runs an immediate first tick so the service converges right after
// boot instead of waiting a full interval.
func (s *Scheduler) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)
	for _, e := range s.entries {
		s.wg.Add(1)
		go s.run(ctx, e)
	}
}

// Stop signals every job to finish its current item and exits once all
// in-flight ticks have returned.  Safe to call once after Start.
func (s *Scheduler) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
}

func (s *Scheduler) run(ctx context.Context, e entry) {
	defer s.wg.Done()
	log.Printf("scheduler: %s started (every %s)", e.job.Name(), e.interval)

	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()

	s.tick(ctx, e.job)
	for {
		select {
		case <-ticker.C:
			s.tick(ctx, e.job)
			// Drop a fire that accumulated while the tick ran: a
			// slow tick is skipped, never queued.
			select {
			case <-ticker.C:
			default:
			}
		case <-ctx.Done():
			log.Printf("scheduler: %s stopped", e.job.Name())
			return
		}
	}
}

// tick runs one job tick, recovering panics so a programming error in
// one worker is logged and the schedule proceeds.
func (s *Scheduler) tick(ctx context.Context, job Job) {
	if ctx.Err() != nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			log.Printf("scheduler: %s tick panicked: %v", job.Name(), r)
		}
	}()
	job.RunTick(ctx)
}
