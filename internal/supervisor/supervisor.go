// Package supervisor owns the Server Core lifecycle: starting each
// core's scheduler loop on its own goroutine (a stand-in for the
// pinned OS thread a real deployment would use) and running a watchdog
// that marks a core compromised if its scheduler stops advancing its
// tick. Sibling wiring for cross-core stealing is done by the caller
// (flashkv.NewServer) before the cores are registered here.
//
// This mirrors, in shape, the control-plane lifecycle state machine the
// teacher drives through ioctl/uring-cmd submissions in its device
// controller: add, start, monitor, stop — except here "starting" a
// core means launching its scheduler loop rather than issuing a kernel
// START_DEV command.
package supervisor

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/behrlich/flashkv/internal/cycles"
	"github.com/behrlich/flashkv/internal/driver"
	"github.com/behrlich/flashkv/internal/sched"
)

// State is the supervisor's own lifecycle state, distinct from any one
// core's scheduler state.
type State int

const (
	StateCreated State = iota
	StateRunning
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateRunning:
		return "running"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// CoreHandle is everything the supervisor needs to run and watch one
// Server Core.
type CoreHandle struct {
	ID          int
	Scheduler   *sched.Scheduler
	Clock       cycles.Clock
	Compromised *atomic.Bool
}

// DefaultWatchdogInterval and DefaultWatchdogThreshold bound how often
// the watchdog polls core ticks and how stale a tick must be before a
// core is declared compromised.
const (
	DefaultWatchdogInterval  = 100 * time.Millisecond
	DefaultWatchdogThreshold = 5 * time.Second
)

// Supervisor starts, monitors, and stops a set of Server Cores.
type Supervisor struct {
	mu    sync.Mutex
	cores []*CoreHandle
	state State

	WatchdogInterval  time.Duration
	WatchdogThreshold time.Duration
	Logger            driver.Logger

	// Pin, if set, is called from inside each core's own goroutine
	// before its scheduler loop starts, so it can runtime.LockOSThread
	// and apply CPU affinity the way the teacher pins each queue's I/O
	// loop to one OS thread.
	Pin func(coreID int)

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New returns a Supervisor with no cores registered yet.
func New(logger driver.Logger) *Supervisor {
	return &Supervisor{
		state:             StateCreated,
		WatchdogInterval:  DefaultWatchdogInterval,
		WatchdogThreshold: DefaultWatchdogThreshold,
		Logger:            logger,
	}
}

// Register adds a core to the set the supervisor will start, watch, and
// stop. Must be called before Start.
func (sv *Supervisor) Register(core *CoreHandle) {
	sv.mu.Lock()
	defer sv.mu.Unlock()
	sv.cores = append(sv.cores, core)
}

// State returns the supervisor's current lifecycle state.
func (sv *Supervisor) State() State {
	sv.mu.Lock()
	defer sv.mu.Unlock()
	return sv.state
}

// Start launches every registered core's scheduler loop plus the
// watchdog, all bound to ctx.
func (sv *Supervisor) Start(ctx context.Context) {
	sv.mu.Lock()
	ctx, cancel := context.WithCancel(ctx)
	sv.cancel = cancel
	sv.state = StateRunning
	cores := append([]*CoreHandle(nil), sv.cores...)
	sv.mu.Unlock()

	for _, c := range cores {
		c := c
		sv.wg.Add(1)
		go func() {
			defer sv.wg.Done()
			if sv.Pin != nil {
				sv.Pin(c.ID)
			}
			if err := c.Scheduler.Run(ctx); err != nil && sv.Logger != nil {
				sv.Logger.Warnf("core %d scheduler stopped: %v", c.ID, err)
			}
		}()
	}

	sv.wg.Add(1)
	go func() {
		defer sv.wg.Done()
		sv.watchdogLoop(ctx, cores)
	}()
}

// Stop cancels every core's scheduler loop and the watchdog, and waits
// for them to return.
func (sv *Supervisor) Stop() {
	sv.mu.Lock()
	cancel := sv.cancel
	sv.state = StateStopped
	sv.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	sv.wg.Wait()
}

func (sv *Supervisor) watchdogLoop(ctx context.Context, cores []*CoreHandle) {
	ticker := time.NewTicker(sv.WatchdogInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			sv.checkCores(cores)
		}
	}
}

func (sv *Supervisor) checkCores(cores []*CoreHandle) {
	for _, c := range cores {
		if c.Compromised.Load() {
			continue
		}
		now := c.Clock.Now()
		last := c.Scheduler.LatestTick()
		if now < last {
			continue
		}
		stale := cycles.ToDuration(c.Clock, now-last)
		if stale > sv.WatchdogThreshold {
			c.Compromised.Store(true)
			if sv.Logger != nil {
				sv.Logger.Errorf("core %d watchdog: no tick in %s, marking compromised", c.ID, stale)
			}
		}
	}
}
