package sched

import (
	"context"
	"errors"
	"sync/atomic"

	"github.com/behrlich/flashkv/internal/cycles"
	"github.com/behrlich/flashkv/internal/driver"
	"github.com/behrlich/flashkv/internal/task"
)

// ErrCompromised is returned by RunOnce and Run once the core's
// Compromised flag has been set by the supervisor, unwinding the
// scheduler loop rather than continuing to step tasks it can no longer
// trust.
var ErrCompromised = errors.New("sched: scheduler marked compromised")

// Scheduler runs one Server Core's cooperative round-robin loop: pop the
// head of the run-queue, step it once, and either tear it down
// (COMPLETED) or push it back onto the tail (YIELDED). Every iteration
// records a fresh watchdog tick before touching the queue, so a stalled
// Step call still leaves a reasonably fresh tick behind it from the
// iteration that preceded it.
type Scheduler struct {
	CoreID      int
	Queue       *RunQueue
	Clock       cycles.Clock
	Compromised *atomic.Bool
	Logger      driver.Logger
	Observer    driver.Observer

	latestTick atomic.Uint64
}

// NewScheduler returns a Scheduler bound to one core's run-queue.
func NewScheduler(coreID int, q *RunQueue, clk cycles.Clock, compromised *atomic.Bool, logger driver.Logger, obs driver.Observer) *Scheduler {
	if obs == nil {
		obs = driver.NoOpObserver{}
	}
	return &Scheduler{
		CoreID:      coreID,
		Queue:       q,
		Clock:       clk,
		Compromised: compromised,
		Logger:      logger,
		Observer:    obs,
	}
}

// LatestTick returns the cycle count observed at the start of the most
// recently begun iteration. Polled by an external watchdog to detect a
// core stuck inside a single Step call.
func (s *Scheduler) LatestTick() uint64 {
	return s.latestTick.Load()
}

// RunOnce executes exactly one scheduling iteration: record the tick,
// check for compromise, pop the head task, step it, and requeue or tear
// it down. Returns ErrCompromised if the core has been marked
// compromised, and nil if the run-queue was empty this iteration (the
// steady state always has at least the Dispatch task present, so an
// empty queue only happens transiently during startup or shutdown).
func (s *Scheduler) RunOnce() error {
	s.latestTick.Store(s.Clock.Now())

	if s.Compromised != nil && s.Compromised.Load() {
		return ErrCompromised
	}

	t, ok := s.Queue.PopFront()
	if !ok {
		return nil
	}

	state, err := t.Step()
	if err != nil && s.Logger != nil {
		s.Logger.Warnf("core %d: task step returned error: %v", s.CoreID, err)
	}

	if state == task.StateCompleted {
		t.Teardown()
		return nil
	}

	s.Queue.PushBack(t)
	return nil
}

// Run calls RunOnce until ctx is cancelled or RunOnce returns an error.
func (s *Scheduler) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		if err := s.RunOnce(); err != nil {
			return err
		}
	}
}
