// Package flashkv provides the main API for bringing up a Server Core
// set: a per-core NIC queue, run-queue, and scheduler wired together
// with cross-core packet and task stealing, serving a multi-tenant
// in-memory KV store with tenant-registered extensions.
package flashkv

import (
	"context"
	"fmt"
	"net"
	"runtime"
	"sync/atomic"

	"github.com/behrlich/flashkv/internal/constants"
	"github.com/behrlich/flashkv/internal/core"
	"github.com/behrlich/flashkv/internal/cycles"
	"github.com/behrlich/flashkv/internal/driver"
	"github.com/behrlich/flashkv/internal/response"
	"github.com/behrlich/flashkv/internal/sched"
	"github.com/behrlich/flashkv/internal/service"
	"github.com/behrlich/flashkv/internal/steal"
	"github.com/behrlich/flashkv/internal/store"
	"github.com/behrlich/flashkv/internal/supervisor"
	"golang.org/x/sys/unix"
)

// Params configures a ServerCore set.
type Params struct {
	// Queues provides one driver.Queue per core; len(Queues) is the
	// number of cores brought up. Required.
	Queues []driver.Queue

	// Extensions are registered on the shared KVService before any core
	// starts, so every core sees the same extension set.
	Extensions []service.Extension

	BatchSize     int // per-core NIC receive/transmit burst size
	ContextQuota  int // per-request allocation quota in bytes
	RunQueueDepth int // initial run-queue backing capacity per core

	// OwnIP is this server's bound IPv4 address; the L3 classifier
	// stage drops any frame not addressed to it. Defaults to
	// constants.DefaultOwnIP if unset.
	OwnIP net.IP

	// CPUAffinity, if non-empty, pins core i's scheduler goroutine to
	// OS CPU CPUAffinity[i % len(CPUAffinity)] for the run's lifetime,
	// round-robining like the teacher's per-queue thread pinning.
	CPUAffinity []int

	Logger   driver.Logger
	Observer driver.Observer
}

// DefaultParams returns Params with every tunable at its package
// default and no queues, extensions, or CPU affinity configured; the
// caller must still set Queues.
func DefaultParams() Params {
	return Params{
		BatchSize:     constants.DefaultBatchSize,
		ContextQuota:  constants.DefaultContextAllocQuota,
		RunQueueDepth: constants.DefaultRunQueueCapacity,
		OwnIP:         constants.DefaultOwnIP,
	}
}

// ServerCore is one running core: its scheduler, run-queue, and NIC
// queue, plus the permanent DispatchTask driving its packet pipeline.
type ServerCore struct {
	ID        int
	Queue     driver.Queue
	RunQueue  *sched.RunQueue
	Scheduler *sched.Scheduler
	Dispatch  *core.DispatchTask
}

// Server is a running set of Server Cores sharing one Store and one
// MasterService, coordinated by a Supervisor.
type Server struct {
	Store   *store.Store
	Service *service.KVService
	Cores   []*ServerCore

	supervisor *supervisor.Supervisor
	metrics    *Metrics
}

// NewServer builds (but does not start) a Server from params: one
// ServerCore per queue, each core registered as every other core's
// sibling for both packet and task stealing.
func NewServer(params Params) (*Server, error) {
	if len(params.Queues) == 0 {
		return nil, fmt.Errorf("flashkv: at least one queue is required")
	}
	if params.BatchSize == 0 {
		params.BatchSize = constants.DefaultBatchSize
	}
	if params.ContextQuota == 0 {
		params.ContextQuota = constants.DefaultContextAllocQuota
	}
	if params.RunQueueDepth == 0 {
		params.RunQueueDepth = constants.DefaultRunQueueCapacity
	}
	if params.OwnIP == nil {
		params.OwnIP = constants.DefaultOwnIP
	}

	metrics := NewMetrics()
	obs := params.Observer
	if obs == nil {
		obs = NewMetricsObserver(metrics)
	}

	st := store.NewStore()
	svc := service.NewKVService(st)
	for _, ext := range params.Extensions {
		svc.Register(ext)
	}

	assembler := response.New()
	clk := cycles.NewMonotonicClock()

	n := len(params.Queues)
	runQueues := make([]*sched.RunQueue, n)
	for i := range runQueues {
		runQueues[i] = sched.NewRunQueue(params.RunQueueDepth)
	}

	sv := supervisor.New(params.Logger)
	if len(params.CPUAffinity) > 0 {
		affinity := append([]int(nil), params.CPUAffinity...)
		logger := params.Logger
		sv.Pin = func(coreID int) {
			runtime.LockOSThread()
			pinCurrentThread(affinity, coreID, logger)
		}
	}

	cores := make([]*ServerCore, n)
	for i := 0; i < n; i++ {
		siblingQueues := make([]driver.Queue, 0, n-1)
		siblingRunQueues := make([]*sched.RunQueue, 0, n-1)
		for j := 0; j < n; j++ {
			if j == i {
				continue
			}
			siblingQueues = append(siblingQueues, params.Queues[j])
			siblingRunQueues = append(siblingRunQueues, runQueues[j])
		}

		dispatch := core.NewDispatchTask(core.DispatchTaskConfig{
			CoreID:           i,
			Queue:            params.Queues[i],
			SiblingQueues:    siblingQueues,
			OwnRunQueue:      runQueues[i],
			SiblingRunQueues: siblingRunQueues,
			PacketPolicy:     steal.NewPacketPolicy(int64(i) + 1),
			TaskPolicy:       steal.NewTaskPolicy(),
			Service:          svc,
			Store:            st,
			Quota:            params.ContextQuota,
			Assembler:        assembler,
			Staging:          sched.NewResponseStagingBuffer(),
			Clock:            clk,
			Observer:         obs,
			Logger:           params.Logger,
			OwnIP:            params.OwnIP,
			BatchSize:        params.BatchSize,
		})
		runQueues[i].PushBack(dispatch)

		compromised := &atomic.Bool{}
		scheduler := sched.NewScheduler(i, runQueues[i], clk, compromised, params.Logger, obs)

		cores[i] = &ServerCore{
			ID:        i,
			Queue:     params.Queues[i],
			RunQueue:  runQueues[i],
			Scheduler: scheduler,
			Dispatch:  dispatch,
		}
		sv.Register(&supervisor.CoreHandle{ID: i, Scheduler: scheduler, Clock: clk, Compromised: compromised})
	}

	return &Server{
		Store:      st,
		Service:    svc,
		Cores:      cores,
		supervisor: sv,
		metrics:    metrics,
	}, nil
}

// Start launches every core's scheduler loop plus the supervisor's
// watchdog, bound to ctx.
func (s *Server) Start(ctx context.Context) {
	s.supervisor.Start(ctx)
}

// Stop cancels every core's scheduler loop and the watchdog, and waits
// for them to return.
func (s *Server) Stop() {
	s.supervisor.Stop()
	s.metrics.Stop()
}

// Metrics returns the Server's metrics collector.
func (s *Server) Metrics() *Metrics {
	return s.metrics
}

// MetricsSnapshot returns a point-in-time snapshot of the Server's
// metrics.
func (s *Server) MetricsSnapshot() MetricsSnapshot {
	return s.metrics.Snapshot()
}

// State returns the supervisor's current lifecycle state.
func (s *Server) State() supervisor.State {
	return s.supervisor.State()
}

// pinCurrentThread applies CPU affinity to the calling OS thread,
// round-robining coreID across cpuAffinity the way the teacher assigns
// queue N to CPU cpuAffinity[N % len(cpuAffinity)]. The caller must
// already hold runtime.LockOSThread for the goroutine this is called
// from.
func pinCurrentThread(cpuAffinity []int, coreID int, logger driver.Logger) {
	cpu := cpuAffinity[coreID%len(cpuAffinity)]
	var mask unix.CPUSet
	mask.Set(cpu)
	if err := unix.SchedSetaffinity(0, &mask); err != nil {
		if logger != nil {
			logger.Warnf("core %d: failed to set CPU affinity to %d: %v", coreID, cpu, err)
		}
		return
	}
	if logger != nil {
		logger.Debugf("core %d: pinned to CPU %d", coreID, cpu)
	}
}
