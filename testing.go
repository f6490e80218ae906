package flashkv

import (
	"sync"

	"github.com/behrlich/flashkv/internal/driver"
)

// MockBuffer is a Buffer backed by a plain byte slice, tracking whether
// Free has been called so tests can assert on leaked buffers. It
// records only that Free happened, not how many times.
type MockBuffer struct {
	mu     sync.Mutex
	data   []byte
	freed  bool
	onFree func()
}

// NewMockBuffer wraps data as a MockBuffer.
func NewMockBuffer(data []byte) *MockBuffer {
	return &MockBuffer{data: data}
}

func (b *MockBuffer) Bytes() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.data
}

func (b *MockBuffer) Free() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.freed = true
	if b.onFree != nil {
		b.onFree()
	}
}

// Freed reports whether Free has been called on this buffer.
func (b *MockBuffer) Freed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.freed
}

var _ driver.Buffer = (*MockBuffer)(nil)

// MockQueue is a mock implementation of driver.Queue for testing. It
// serves pre-seeded receive frames, records every sent buffer, and
// tracks per-method call counts for verification, in the spirit of the
// teacher's MockBackend.
type MockQueue struct {
	mu     sync.Mutex
	rx     [][]byte
	sent   []driver.Buffer
	closed bool
	depth  driver.QueueDepthCounter

	recvCalls  int
	sendCalls  int
	allocCalls int

	// AllocSize, if non-zero, is the size MockQueue.Alloc actually
	// allocates regardless of the requested size; useful for testing
	// response-size truncation handling.
	AllocSize int
}

// NewMockQueue returns a MockQueue that will yield frames, in order,
// up to n per RecvBurst(n) call until exhausted.
func NewMockQueue(frames ...[]byte) *MockQueue {
	return &MockQueue{rx: frames}
}

func (q *MockQueue) RecvBurst(n int) []driver.Buffer {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.recvCalls++

	if q.closed {
		return nil
	}
	n = min(n, len(q.rx))
	out := make([]driver.Buffer, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, NewMockBuffer(q.rx[i]))
	}
	q.rx = q.rx[n:]
	return out
}

func (q *MockQueue) SendBurst(bufs []driver.Buffer) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.sendCalls++

	if q.closed {
		return 0
	}
	q.sent = append(q.sent, bufs...)
	return len(bufs)
}

func (q *MockQueue) Alloc(size int) driver.Buffer {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.allocCalls++

	if q.AllocSize != 0 {
		size = q.AllocSize
	}
	return NewMockBuffer(make([]byte, size))
}

func (q *MockQueue) Depth() *driver.QueueDepthCounter {
	return &q.depth
}

// Close marks the queue closed; subsequent RecvBurst/SendBurst calls
// return nothing, mirroring a NIC queue torn down mid-run.
func (q *MockQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
}

// IsClosed reports whether Close has been called.
func (q *MockQueue) IsClosed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}

// Sent returns every buffer accepted by SendBurst so far, in order.
func (q *MockQueue) Sent() []driver.Buffer {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]driver.Buffer, len(q.sent))
	copy(out, q.sent)
	return out
}

// Seed appends more frames for future RecvBurst calls to serve.
func (q *MockQueue) Seed(frames ...[]byte) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.rx = append(q.rx, frames...)
}

// CallCounts returns the number of times each method has been called.
func (q *MockQueue) CallCounts() map[string]int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return map[string]int{
		"recv":  q.recvCalls,
		"send":  q.sendCalls,
		"alloc": q.allocCalls,
	}
}

var _ driver.Queue = (*MockQueue)(nil)
