// Package packet defines the Packet handle: the single-owner wrapper
// around one NIC buffer as it moves through classification, dispatch,
// and execution.
package packet

import (
	"github.com/behrlich/flashkv/internal/driver"
	"github.com/behrlich/flashkv/internal/wire"
)

// Packet owns exactly one driver.Buffer from the moment it is received
// until Free is called. A Packet that fails classification is freed by
// the classifier; one that reaches a task is freed by the task's
// teardown. Every code path that takes ownership of a Packet frees it
// along exactly one path — never both the original buffer and a
// derived response buffer.
type Packet struct {
	buf   driver.Buffer
	freed bool

	// Headers and Envelope are populated incrementally by the
	// classifier, one layer at a time (L2, then L3, then L4), and by
	// the RPC envelope decode step once L4 has passed.
	Headers  wire.HeaderSet
	Envelope wire.Envelope

	// ReceivedAtCycle is the Dispatch-observed cycle count at the
	// moment this packet was pulled off a burst, used for the
	// per-request latency reported to the Observer.
	ReceivedAtCycle uint64
}

// New wraps buf as a fresh, unclassified Packet.
func New(buf driver.Buffer) *Packet {
	return &Packet{buf: buf}
}

// Data returns the raw frame bytes backing this packet. Valid only
// until Free is called.
func (p *Packet) Data() []byte {
	return p.buf.Bytes()
}

// Free releases the underlying buffer back to the driver. Idempotent:
// a second call is a no-op, so a classifier stage and a later teardown
// path can both call Free defensively without double-freeing the
// driver buffer.
func (p *Packet) Free() {
	if p.freed {
		return
	}
	p.freed = true
	p.buf.Free()
}

// Freed reports whether Free has already been called, for invariant
// assertions in tests and in the classifier's drop paths.
func (p *Packet) Freed() bool {
	return p.freed
}
