// Package steal implements the two cross-core work-stealing policies: a
// power-of-two-choices packet steal over sibling NIC queue depths, and a
// round-robin task steal over sibling run-queues.
package steal

import (
	"math/rand"
	"sync/atomic"

	"github.com/behrlich/flashkv/internal/driver"
	"github.com/behrlich/flashkv/internal/sched"
	"github.com/behrlich/flashkv/internal/task"
)

// PacketPolicy selects a sibling NIC queue to steal a receive burst
// from. Each attempt samples two siblings at random and steals from
// whichever reports the deeper queue, so a core with an accumulating
// backlog is steadily more likely to be relieved of it without any
// sibling needing a global view of every queue's depth.
type PacketPolicy struct {
	rng *rand.Rand
}

// NewPacketPolicy returns a PacketPolicy seeded with seed. Each core
// should own its own PacketPolicy (and therefore its own seed) since
// rand.Rand is not safe for concurrent use.
func NewPacketPolicy(seed int64) *PacketPolicy {
	return &PacketPolicy{rng: rand.New(rand.NewSource(seed))}
}

// ChooseVictim samples two entries from siblings (or returns the lone
// entry if only one is available) and returns the one reporting the
// larger queue depth.
func (p *PacketPolicy) ChooseVictim(siblings []driver.Queue) (driver.Queue, bool) {
	switch len(siblings) {
	case 0:
		return nil, false
	case 1:
		return siblings[0], true
	}

	i := p.rng.Intn(len(siblings))
	j := i
	for j == i {
		j = p.rng.Intn(len(siblings))
	}

	a, b := siblings[i], siblings[j]
	if a.Depth().Load() >= b.Depth().Load() {
		return a, true
	}
	return b, true
}

// StealBurst chooses a victim via ChooseVictim and attempts one
// burstSize receive from it. The caller is responsible for crediting
// the stolen packets to its own queue-depth counter and for eventually
// transmitting the responses through its own queue, which decrements
// that same counter; the victim's counter is not touched.
func (p *PacketPolicy) StealBurst(siblings []driver.Queue, burstSize int) (driver.Queue, []driver.Buffer) {
	victim, ok := p.ChooseVictim(siblings)
	if !ok {
		return nil, nil
	}
	bufs := victim.RecvBurst(burstSize)
	return victim, bufs
}

// TaskPolicy steals one REQUEST task at a time from a sibling's
// run-queue, round-robining the starting sibling across successive
// calls rather than always probing in the same order (which would
// starve later siblings in the list under sustained stealing).
//
// The modulus is len(siblings) on every call — deliberately NOT a fixed
// constant — since the sibling count is a per-deployment topology
// parameter, not a compile-time one.
type TaskPolicy struct {
	next atomic.Uint64
}

// NewTaskPolicy returns a TaskPolicy with its round-robin cursor at zero.
func NewTaskPolicy() *TaskPolicy {
	return &TaskPolicy{}
}

// StealOne tries every sibling run-queue in round-robin order, starting
// from a different sibling on each call, and returns the first
// REQUEST-priority task it manages to lock and pop. Returns false if
// every sibling is either empty, holds only its DISPATCH task, or is
// currently locked by its owner.
func (p *TaskPolicy) StealOne(siblings []*sched.RunQueue) (task.Task, bool) {
	n := len(siblings)
	if n == 0 {
		return nil, false
	}
	start := int(p.next.Add(1)-1) % n
	for i := 0; i < n; i++ {
		idx := (start + i) % n
		if t, ok := siblings[idx].TryStealBack(); ok {
			return t, true
		}
	}
	return nil, false
}
