// Package driver defines the interfaces through which a Server Core talks
// to its poll-mode NIC. The NIC itself — burst receive/transmit, the
// per-queue depth counter, and zero-copy buffer handles — is an external
// collaborator referenced only through these interfaces; no concrete
// driver implementation (DPDK, AF_XDP, or otherwise) lives in this core.
package driver

import "sync/atomic"

// Buffer is the opaque owner of one NIC-backed frame. Exactly one owner
// holds a Buffer at a time; Free relinquishes it back to the driver's
// pool. A Buffer obtained from RecvBurst is owned by whichever core
// called RecvBurst (the queue's owner, or a stealer reaching across
// cores) — ownership transfers through the driver's API, never by
// aliasing.
type Buffer interface {
	// Bytes returns the raw frame contents backing this buffer. The
	// slice is valid until Free is called.
	Bytes() []byte

	// Free returns the buffer to the driver's pool. Every Buffer
	// obtained from this package is freed along exactly one code path.
	Free()
}

// QueueDepthCounter is the atomic, lock-free-readable depth counter
// co-located with a NIC queue handle (per the design notes: "queue-depth
// counter is an atomic integer co-located with the port handle").
// Dispatch increments it by the number of packets acquired (whether
// polled locally or stolen from a sibling) and decrements it by the
// number of packets a transmit burst actually sent.
type QueueDepthCounter struct {
	v atomic.Uint32
}

// Add increments the counter by n.
func (c *QueueDepthCounter) Add(n uint32) {
	if n == 0 {
		return
	}
	c.v.Add(n)
}

// Sub decrements the counter by n, saturating at zero.
func (c *QueueDepthCounter) Sub(n uint32) {
	for n > 0 {
		cur := c.v.Load()
		if cur == 0 {
			return
		}
		dec := n
		if dec > cur {
			dec = cur
		}
		if c.v.CompareAndSwap(cur, cur-dec) {
			return
		}
	}
}

// Load reads the current depth. Safe for any core to call without
// locking; this is what the packet-stealing policy compares across
// siblings.
func (c *QueueDepthCounter) Load() uint32 {
	return c.v.Load()
}

// Queue is one NIC receive/transmit queue pair bound to a single Server
// Core, plus its co-located depth counter.
type Queue interface {
	// RecvBurst requests up to n packets. May be called by the owning
	// core (local poll) or by a sibling core (packet steal); the driver
	// itself provides whatever concurrency control a real NIC queue
	// requires. Returns fewer than n (possibly zero) if fewer are
	// available.
	RecvBurst(n int) []Buffer

	// SendBurst submits bufs for transmission in one driver call and
	// returns the number actually accepted. Buffers not accepted remain
	// owned by the driver; the core must not retry them in-core.
	SendBurst(bufs []Buffer) int

	// Alloc returns a fresh, zeroed transmit buffer of at least size
	// bytes, for building a pre-formed response frame.
	Alloc(size int) Buffer

	// Depth returns this queue's co-located depth counter.
	Depth() *QueueDepthCounter
}

// Logger is the minimal logging surface the core needs; kept separate
// from internal/logging.Logger to avoid a dependency from leaf packages
// on the logging package's concrete type, mirroring the teacher's own
// internal/interfaces split.
type Logger interface {
	Printf(format string, args ...interface{})
	Debugf(format string, args ...interface{})
	Warnf(format string, args ...interface{})
	Errorf(format string, args ...interface{})
}

// Observer receives metrics callbacks from the hot path. Implementations
// must be safe for concurrent use: callbacks arrive from whichever core
// currently owns the work, including a stealer.
type Observer interface {
	ObserveRequest(tenantID uint32, latencyNs uint64, success bool)
	ObserveDrop(reason string)
	ObserveSteal(kind string, count int)
	ObserveQueueDepth(coreID int, depth uint32)
}

// NoOpObserver discards every callback.
type NoOpObserver struct{}

func (NoOpObserver) ObserveRequest(uint32, uint64, bool) {}
func (NoOpObserver) ObserveDrop(string)                  {}
func (NoOpObserver) ObserveSteal(string, int)            {}
func (NoOpObserver) ObserveQueueDepth(int, uint32)       {}

var _ Observer = NoOpObserver{}
