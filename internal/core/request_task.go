// Package core wires the driver, classifier, response, scheduling, and
// service packages together into the two concrete tasks a Server
// Core's run-queue ever holds: the permanent DispatchTask and the
// short-lived RequestTask.
package core

import (
	"github.com/behrlich/flashkv/internal/cycles"
	"github.com/behrlich/flashkv/internal/driver"
	"github.com/behrlich/flashkv/internal/packet"
	"github.com/behrlich/flashkv/internal/response"
	"github.com/behrlich/flashkv/internal/sched"
	"github.com/behrlich/flashkv/internal/service"
	"github.com/behrlich/flashkv/internal/store"
	"github.com/behrlich/flashkv/internal/task"
)

// RequestTask executes one classified request against a MasterService
// and stages its response frame for transmit. Reference extensions are
// expected to run to completion without blocking, so Step always
// finishes the request and returns StateCompleted in one call; a
// Context implementation backed by a genuinely long-running extension
// would instead need this task to track mid-flight state across
// multiple Step calls.
type RequestTask struct {
	task.Base

	pkt       *packet.Packet
	svc       service.MasterService
	store     *store.Store
	quota     int
	assembler *response.Assembler
	staging   *sched.ResponseStagingBuffer
	queue     driver.Queue
	clock     cycles.Clock
	obs       driver.Observer
	logger    driver.Logger
}

// NewRequestTask returns a RequestTask for an already-classified packet.
func NewRequestTask(
	pkt *packet.Packet,
	svc service.MasterService,
	st *store.Store,
	quota int,
	assembler *response.Assembler,
	staging *sched.ResponseStagingBuffer,
	queue driver.Queue,
	clock cycles.Clock,
	obs driver.Observer,
	logger driver.Logger,
) *RequestTask {
	if obs == nil {
		obs = driver.NoOpObserver{}
	}
	t := &RequestTask{
		pkt:       pkt,
		svc:       svc,
		store:     st,
		quota:     quota,
		assembler: assembler,
		staging:   staging,
		queue:     queue,
		clock:     clock,
		obs:       obs,
		logger:    logger,
	}
	t.Base = task.NewBase(task.PriorityRequest)
	return t
}

func (t *RequestTask) Step() (task.State, error) {
	t.SetState(task.StateRunning)

	env := t.pkt.Envelope
	latencyStart := t.pkt.ReceivedAtCycle

	ctx := service.NewRequestContext(env.Opcode, env.TenantID, env.Body, t.store, t.quota)
	result, err := t.svc.Dispatch(ctx)
	latency := t.clock.Now() - latencyStart

	if err != nil {
		t.obs.ObserveRequest(env.TenantID, latency, false)
		if t.logger != nil {
			t.logger.Debugf("request refused (tenant %d opcode %d): %v", env.TenantID, env.Opcode, err)
		}
		t.pkt.Free()
		t.SetState(task.StateCompleted)
		return t.State(), err
	}

	frame, err := t.assembler.Build(t.pkt.Headers, env, result)
	t.pkt.Free()
	if err != nil {
		t.obs.ObserveRequest(env.TenantID, latency, false)
		if t.logger != nil {
			t.logger.Errorf("response assembly failed (tenant %d): %v", env.TenantID, err)
		}
		t.SetState(task.StateCompleted)
		return t.State(), err
	}

	buf := t.queue.Alloc(len(frame))
	copy(buf.Bytes(), frame)
	t.staging.Stage(buf)
	t.obs.ObserveRequest(env.TenantID, latency, true)
	t.SetState(task.StateCompleted)
	return t.State(), nil
}

// Teardown frees the request's packet if Step did not already — for
// example if the scheduler discarded the task without stepping it.
func (t *RequestTask) Teardown() {
	if !t.pkt.Freed() {
		t.pkt.Free()
	}
}
