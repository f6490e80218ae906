// Package cycles provides a monotonic cycle clock for the Server Core's
// watchdog heartbeat and per-task accounting.
//
// The original implementation (mazharn/splinter's sandstorm/src/cycles.rs
// and db/src/cyclecounter.rs) reads the x86 TSC directly via rdtsc. Go has
// no portable rdtsc intrinsic, so this package abstracts the counter
// behind a small interface backed by the Go runtime's monotonic clock,
// mirroring the teacher's own pattern of tracking monotonic timestamps via
// time.Now() in Metrics.StartTime/StopTime.
package cycles

import (
	"sync/atomic"
	"time"
)

// Clock returns an opaque, monotonically non-decreasing counter value and
// converts counter deltas into wall-clock durations. Implementations must
// be safe for concurrent use; Scheduler.latest_tick() is read by the
// owning core and polled by an external supervisor.
type Clock interface {
	// Now returns the current cycle count.
	Now() uint64

	// CyclesPerSecond returns the calibration factor used to convert a
	// cycle delta into nanoseconds.
	CyclesPerSecond() uint64
}

// monotonicClock implements Clock using time.Now()'s monotonic reading,
// scaled so that one "cycle" is one nanosecond. This keeps
// CyclesPerSecond() == 1e9 regardless of the host, which is sufficient
// for the core's internal accounting (throughput lines, watchdog
// thresholds) without depending on hardware TSC calibration.
type monotonicClock struct {
	epoch time.Time
}

// NewMonotonicClock returns a Clock backed by the Go runtime's monotonic
// clock reading.
func NewMonotonicClock() Clock {
	return &monotonicClock{epoch: time.Now()}
}

func (c *monotonicClock) Now() uint64 {
	return uint64(time.Since(c.epoch).Nanoseconds())
}

func (c *monotonicClock) CyclesPerSecond() uint64 {
	return uint64(time.Second.Nanoseconds())
}

// FakeClock is a manually advanced Clock for deterministic tests of the
// scheduler's watchdog and telemetry logic.
type FakeClock struct {
	cycles atomic.Uint64
	cps    uint64
}

// NewFakeClock returns a FakeClock starting at cycle 0 with the given
// cycles-per-second calibration.
func NewFakeClock(cyclesPerSecond uint64) *FakeClock {
	if cyclesPerSecond == 0 {
		cyclesPerSecond = uint64(time.Second.Nanoseconds())
	}
	return &FakeClock{cps: cyclesPerSecond}
}

// Advance moves the fake clock forward by delta cycles.
func (f *FakeClock) Advance(delta uint64) {
	f.cycles.Add(delta)
}

// Set pins the fake clock to an absolute cycle value.
func (f *FakeClock) Set(cycles uint64) {
	f.cycles.Store(cycles)
}

func (f *FakeClock) Now() uint64 {
	return f.cycles.Load()
}

func (f *FakeClock) CyclesPerSecond() uint64 {
	return f.cps
}

// ToDuration converts a cycle delta to a time.Duration given a clock's
// calibration.
func ToDuration(c Clock, deltaCycles uint64) time.Duration {
	cps := c.CyclesPerSecond()
	if cps == 0 {
		return 0
	}
	nanos := deltaCycles * uint64(time.Second.Nanoseconds()) / cps
	return time.Duration(nanos)
}
