package supervisor

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/behrlich/flashkv/internal/cycles"
	"github.com/behrlich/flashkv/internal/sched"
	"github.com/behrlich/flashkv/internal/task"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type spinTask struct {
	task.Base
}

func (t *spinTask) Step() (task.State, error) {
	t.SetState(task.StateYielded)
	return t.State(), nil
}
func (t *spinTask) Teardown() {}

func newSpinTask() *spinTask {
	t := &spinTask{}
	t.Base = task.NewBase(task.PriorityDispatch)
	return t
}

func TestSupervisorStartStop(t *testing.T) {
	q := sched.NewRunQueue(4)
	q.PushBack(newSpinTask())

	var compromised atomic.Bool
	clk := cycles.NewMonotonicClock()
	s := sched.NewScheduler(0, q, clk, &compromised, nil, nil)

	sv := New(nil)
	sv.Register(&CoreHandle{ID: 0, Scheduler: s, Clock: clk, Compromised: &compromised})

	assert.Equal(t, StateCreated, sv.State())
	sv.Start(context.Background())
	assert.Equal(t, StateRunning, sv.State())

	time.Sleep(20 * time.Millisecond)
	sv.Stop()
	assert.Equal(t, StateStopped, sv.State())
}

func TestStartCallsPinBeforeSchedulerRuns(t *testing.T) {
	q := sched.NewRunQueue(4)
	q.PushBack(newSpinTask())

	var compromised atomic.Bool
	clk := cycles.NewMonotonicClock()
	s := sched.NewScheduler(0, q, clk, &compromised, nil, nil)

	sv := New(nil)
	sv.Register(&CoreHandle{ID: 0, Scheduler: s, Clock: clk, Compromised: &compromised})

	pinned := make(chan int, 1)
	sv.Pin = func(coreID int) { pinned <- coreID }

	sv.Start(context.Background())
	defer sv.Stop()

	select {
	case id := <-pinned:
		assert.Equal(t, 0, id)
	case <-time.After(time.Second):
		t.Fatal("Pin was not called")
	}
}

func TestWatchdogMarksStaleCoreCompromised(t *testing.T) {
	q := sched.NewRunQueue(4)
	q.PushBack(newSpinTask())

	var compromised atomic.Bool
	clk := cycles.NewFakeClock(uint64(time.Second.Nanoseconds()))
	s := sched.NewScheduler(0, q, clk, &compromised, nil, nil)
	require.NoError(t, s.RunOnce())

	clk.Advance(uint64((10 * time.Second).Nanoseconds()))

	sv := New(nil)
	sv.WatchdogThreshold = time.Second
	sv.checkCores([]*CoreHandle{{ID: 0, Scheduler: s, Clock: clk, Compromised: &compromised}})

	assert.True(t, compromised.Load())
}
