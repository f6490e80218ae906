package driver

import "sync"

// memBuffer is a trivial in-process Buffer used by this module's unit
// tests to stand in for a real NIC-backed buffer.
type memBuffer struct {
	data []byte
	free func()
}

func (b *memBuffer) Bytes() []byte {
	return b.data
}

func (b *memBuffer) Free() {
	if b.free != nil {
		b.free()
	}
}

// NewMemBuffer wraps a plain byte slice as a Buffer with no backing
// pool; Free is a no-op. Exported for reuse by other internal packages'
// tests, which have no real NIC to allocate frames from.
func NewMemBuffer(data []byte) Buffer {
	return &memBuffer{data: data}
}

// MemQueue is a minimal in-memory Queue standing in for a real
// poll-mode NIC queue in tests.
type MemQueue struct {
	mu   sync.Mutex
	rx   [][]byte
	sent [][]byte

	depth QueueDepthCounter
}

// NewMemQueue returns a MemQueue whose RecvBurst will yield frames, in
// order, up to n per call until exhausted.
func NewMemQueue(frames ...[]byte) *MemQueue {
	return &MemQueue{rx: frames}
}

func (q *MemQueue) RecvBurst(n int) []Buffer {
	q.mu.Lock()
	defer q.mu.Unlock()
	if n > len(q.rx) {
		n = len(q.rx)
	}
	out := make([]Buffer, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, NewMemBuffer(q.rx[i]))
	}
	q.rx = q.rx[n:]
	return out
}

func (q *MemQueue) SendBurst(bufs []Buffer) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, b := range bufs {
		q.sent = append(q.sent, b.Bytes())
	}
	return len(bufs)
}

func (q *MemQueue) Alloc(size int) Buffer {
	return NewMemBuffer(make([]byte, size))
}

func (q *MemQueue) Depth() *QueueDepthCounter {
	return &q.depth
}

var _ Queue = (*MemQueue)(nil)
