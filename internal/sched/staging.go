package sched

import (
	"sync"

	"github.com/behrlich/flashkv/internal/driver"
)

// ResponseStagingBuffer collects built response buffers as request
// tasks complete, for the Dispatch task to submit as a single transmit
// burst on its next step rather than one SendBurst call per completed
// task.
type ResponseStagingBuffer struct {
	mu      sync.Mutex
	pending []driver.Buffer
}

// NewResponseStagingBuffer returns an empty staging buffer.
func NewResponseStagingBuffer() *ResponseStagingBuffer {
	return &ResponseStagingBuffer{}
}

// Stage appends buf to the set of responses awaiting transmit.
func (s *ResponseStagingBuffer) Stage(buf driver.Buffer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending = append(s.pending, buf)
}

// Drain removes and returns every staged buffer, in the order they were
// staged.
func (s *ResponseStagingBuffer) Drain() []driver.Buffer {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.pending
	s.pending = nil
	return out
}

// Len reports the number of responses currently staged.
func (s *ResponseStagingBuffer) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}
