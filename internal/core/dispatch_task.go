package core

import (
	"net"

	"github.com/behrlich/flashkv/internal/classifier"
	"github.com/behrlich/flashkv/internal/constants"
	"github.com/behrlich/flashkv/internal/cycles"
	"github.com/behrlich/flashkv/internal/driver"
	"github.com/behrlich/flashkv/internal/packet"
	"github.com/behrlich/flashkv/internal/response"
	"github.com/behrlich/flashkv/internal/sched"
	"github.com/behrlich/flashkv/internal/service"
	"github.com/behrlich/flashkv/internal/steal"
	"github.com/behrlich/flashkv/internal/store"
	"github.com/behrlich/flashkv/internal/task"
)

// DispatchTask is the permanent task every Server Core's run-queue
// holds. One Step: poll the local NIC queue (stealing a burst from a
// sibling if the local queue is empty), classify whatever was
// received, enqueue a RequestTask per surviving packet, steal one
// REQUEST task from a sibling if this core's own run-queue would
// otherwise go idle, and flush any staged responses as one transmit
// burst. It never reports StateCompleted.
type DispatchTask struct {
	task.Base

	coreID int

	queue         driver.Queue
	siblingQueues []driver.Queue

	ownRunQueue      *sched.RunQueue
	siblingRunQueues []*sched.RunQueue

	packetPolicy *steal.PacketPolicy
	taskPolicy   *steal.TaskPolicy

	svc       service.MasterService
	store     *store.Store
	quota     int
	assembler *response.Assembler
	staging   *sched.ResponseStagingBuffer

	clock  cycles.Clock
	obs    driver.Observer
	logger driver.Logger
	ownIP  net.IP

	batchSize int

	responsesSent uint64
}

// DispatchTaskConfig groups DispatchTask's construction parameters.
type DispatchTaskConfig struct {
	CoreID           int
	Queue            driver.Queue
	SiblingQueues    []driver.Queue
	OwnRunQueue      *sched.RunQueue
	SiblingRunQueues []*sched.RunQueue
	PacketPolicy     *steal.PacketPolicy
	TaskPolicy       *steal.TaskPolicy
	Service          service.MasterService
	Store            *store.Store
	Quota            int
	Assembler        *response.Assembler
	Staging          *sched.ResponseStagingBuffer
	Clock            cycles.Clock
	Observer         driver.Observer
	Logger           driver.Logger
	OwnIP            net.IP
	BatchSize        int
}

// NewDispatchTask returns a DispatchTask ready to be pushed onto its
// own run-queue as the core's one permanent task.
func NewDispatchTask(cfg DispatchTaskConfig) *DispatchTask {
	if cfg.Observer == nil {
		cfg.Observer = driver.NoOpObserver{}
	}
	if cfg.BatchSize == 0 {
		cfg.BatchSize = constants.DefaultBatchSize
	}
	if cfg.OwnIP == nil {
		cfg.OwnIP = constants.DefaultOwnIP
	}
	d := &DispatchTask{
		coreID:           cfg.CoreID,
		queue:            cfg.Queue,
		siblingQueues:    cfg.SiblingQueues,
		ownRunQueue:      cfg.OwnRunQueue,
		siblingRunQueues: cfg.SiblingRunQueues,
		packetPolicy:     cfg.PacketPolicy,
		taskPolicy:       cfg.TaskPolicy,
		svc:              cfg.Service,
		store:            cfg.Store,
		quota:            cfg.Quota,
		assembler:        cfg.Assembler,
		staging:          cfg.Staging,
		clock:            cfg.Clock,
		obs:              cfg.Observer,
		logger:           cfg.Logger,
		ownIP:            cfg.OwnIP,
		batchSize:        cfg.BatchSize,
	}
	d.Base = task.NewBase(task.PriorityDispatch)
	return d
}

func (d *DispatchTask) Step() (task.State, error) {
	d.SetState(task.StateRunning)

	bufs := d.receiveOrSteal()
	if len(bufs) > 0 {
		d.classifyAndEnqueue(bufs)
	}

	if d.ownRunQueue.Len() == 0 && len(d.siblingRunQueues) > 0 {
		if stolen, ok := d.taskPolicy.StealOne(d.siblingRunQueues); ok {
			d.ownRunQueue.PushBack(stolen)
			d.obs.ObserveSteal("task", 1)
		}
	}

	d.flushResponses()
	d.obs.ObserveQueueDepth(d.coreID, d.queue.Depth().Load())

	d.SetState(task.StateYielded)
	return d.State(), nil
}

func (d *DispatchTask) receiveOrSteal() []driver.Buffer {
	bufs := d.queue.RecvBurst(d.batchSize)
	if len(bufs) > 0 {
		d.queue.Depth().Add(uint32(len(bufs)))
		return bufs
	}
	if len(d.siblingQueues) == 0 || d.packetPolicy == nil {
		return nil
	}
	_, stolen := d.packetPolicy.StealBurst(d.siblingQueues, d.batchSize)
	if len(stolen) > 0 {
		d.queue.Depth().Add(uint32(len(stolen)))
		d.obs.ObserveSteal("packet", len(stolen))
	}
	return stolen
}

func (d *DispatchTask) classifyAndEnqueue(bufs []driver.Buffer) {
	now := d.clock.Now()
	pkts := make([]*packet.Packet, len(bufs))
	for i, b := range bufs {
		p := packet.New(b)
		p.ReceivedAtCycle = now
		pkts[i] = p
	}

	survivors := classifier.Batch(pkts, d.obs, d.logger, d.ownIP)
	for _, p := range survivors {
		rt := NewRequestTask(p, d.svc, d.store, d.quota, d.assembler, d.staging, d.queue, d.clock, d.obs, d.logger)
		d.ownRunQueue.PushBack(rt)
	}
}

func (d *DispatchTask) flushResponses() {
	staged := d.staging.Drain()
	if len(staged) == 0 {
		return
	}

	sent := d.queue.SendBurst(staged)
	d.queue.Depth().Sub(uint32(sent))

	if sent < len(staged) {
		if d.logger != nil {
			d.logger.Warnf("core %d: transmit shortfall, sent %d of %d staged responses", d.coreID, sent, len(staged))
		}
		for _, b := range staged[sent:] {
			b.Free()
		}
	}

	before := d.responsesSent / constants.TelemetryResponseInterval
	d.responsesSent += uint64(sent)
	after := d.responsesSent / constants.TelemetryResponseInterval
	if after > before && d.logger != nil {
		d.logger.Printf("core %d: %d responses transmitted", d.coreID, d.responsesSent)
	}
}

// Teardown is a defensive no-op: the permanent Dispatch task is never
// expected to reach StateCompleted, so the scheduler never calls this
// in steady state.
func (d *DispatchTask) Teardown() {}
