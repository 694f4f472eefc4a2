// Package buffer provides the bounded producer/consumer handoff used
// between the segment writer and the stream reader.
package buffer

import (
	"sync"
	"time"
)

// ReadResult classifies the outcome of a RingBuffer read
type ReadResult int

const (
	// ReadData means bytes were returned (possibly none for a
	// non-blocking read on an empty buffer)
	ReadData ReadResult = iota
	// ReadEOF means the buffer is closed and fully drained
	ReadEOF
	// ReadTimedOut means a blocking read gave up waiting for data
	ReadTimedOut
)

// DefaultCapacity is the default buffer size in bytes
const DefaultCapacity = 16 * 1024 * 1024

// RingBuffer is a bounded byte FIFO between one producer and one consumer.
// Data is held as a deque of chunks so large writes never reallocate a
// contiguous backing array. Writes block while the buffer is full, reads
// block while it is empty; Close is terminal and wakes both sides.
// Concurrent writers or concurrent readers are not supported.
type RingBuffer struct {
	mu       sync.Mutex
	notEmpty *sync.Cond
	notFull  *sync.Cond

	chunks   [][]byte
	head     int // read offset into chunks[0]
	used     int
	capacity int
	closed   bool
}

// NewRingBuffer creates a ring buffer with the given capacity in bytes.
// Non-positive capacities fall back to DefaultCapacity.
func NewRingBuffer(capacity int) *RingBuffer {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	rb := &RingBuffer{capacity: capacity}
	rb.notEmpty = sync.NewCond(&rb.mu)
	rb.notFull = sync.NewCond(&rb.mu)
	return rb
}

// Write appends p to the buffer, blocking while no space is free. Partial
// chunks are committed as space drains, so a reader sees bytes before the
// whole write completes. Returns the number of bytes accepted; after Close
// the remainder is discarded.
func (rb *RingBuffer) Write(p []byte) int {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	written := 0
	for written < len(p) {
		if rb.closed {
			return written
		}

		free := rb.capacity - rb.used
		if free == 0 {
			rb.notFull.Wait()
			continue
		}

		n := len(p) - written
		if n > free {
			n = free
		}

		chunk := make([]byte, n)
		copy(chunk, p[written:written+n])
		rb.chunks = append(rb.chunks, chunk)
		rb.used += n
		written += n

		rb.notEmpty.Signal()
	}

	return written
}

// Read returns up to max bytes from the head of the buffer. With block set
// it waits up to timeout for data or close; a zero timeout waits forever.
// After Close it drains remaining bytes, then reports ReadEOF.
func (rb *RingBuffer) Read(max int, block bool, timeout time.Duration) ([]byte, ReadResult) {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	var timer *time.Timer
	expired := false
	if block && timeout > 0 {
		timer = time.AfterFunc(timeout, func() {
			rb.mu.Lock()
			expired = true
			rb.mu.Unlock()
			rb.notEmpty.Broadcast()
		})
		defer timer.Stop()
	}

	for rb.used == 0 {
		if rb.closed {
			return nil, ReadEOF
		}
		if !block {
			return nil, ReadData
		}
		if expired {
			return nil, ReadTimedOut
		}
		rb.notEmpty.Wait()
	}

	return rb.pop(max), ReadData
}

// ReadNoWait drains up to max bytes without blocking. Used by the filter
// pause path to discard buffered output.
func (rb *RingBuffer) ReadNoWait(max int) ([]byte, ReadResult) {
	return rb.Read(max, false, 0)
}

// pop removes up to max bytes from the chunk deque. Caller holds mu.
func (rb *RingBuffer) pop(max int) []byte {
	if max > rb.used {
		max = rb.used
	}

	out := make([]byte, 0, max)
	for len(out) < max {
		chunk := rb.chunks[0]
		avail := len(chunk) - rb.head
		n := max - len(out)
		if n >= avail {
			out = append(out, chunk[rb.head:]...)
			rb.chunks[0] = nil
			rb.chunks = rb.chunks[1:]
			rb.head = 0
		} else {
			out = append(out, chunk[rb.head:rb.head+n]...)
			rb.head += n
		}
	}

	rb.used -= len(out)
	rb.notFull.Broadcast()
	return out
}

// Close marks the buffer terminal and wakes all waiters. Idempotent.
func (rb *RingBuffer) Close() {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	if rb.closed {
		return
	}
	rb.closed = true
	rb.notEmpty.Broadcast()
	rb.notFull.Broadcast()
}

// Resize changes the buffer capacity. Buffered data is preserved even when
// the new capacity is smaller than the bytes currently held; writers stay
// blocked until the excess drains.
func (rb *RingBuffer) Resize(capacity int) {
	if capacity <= 0 {
		return
	}

	rb.mu.Lock()
	defer rb.mu.Unlock()

	rb.capacity = capacity
	rb.notFull.Broadcast()
}

// Used returns the number of buffered bytes
func (rb *RingBuffer) Used() int {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	return rb.used
}

// Free returns the remaining capacity in bytes
func (rb *RingBuffer) Free() int {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	free := rb.capacity - rb.used
	if free < 0 {
		return 0
	}
	return free
}

// IsFull reports whether no space is free
func (rb *RingBuffer) IsFull() bool {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	return rb.used >= rb.capacity
}

// Closed reports whether Close has been called
func (rb *RingBuffer) Closed() bool {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	return rb.closed
}
