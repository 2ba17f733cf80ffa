package ringbuffer

import "sync"

// RingBuffer is a fixed-capacity circular byte buffer that keeps the most
// recently written data. It backs the analyser's time-domain window: the
// render loop writes, snapshot readers copy out the newest bytes. Safe for
// one writer and any number of readers.
type RingBuffer struct {
	mu       sync.Mutex
	buf      []byte
	writePos int
	capacity int
	written  int // total bytes ever written
}

// New creates a ring buffer with the given capacity in bytes.
func New(capacity int) *RingBuffer {
	return &RingBuffer{
		buf:      make([]byte, capacity),
		capacity: capacity,
	}
}

// Write appends data, overwriting the oldest bytes when full.
func (rb *RingBuffer) Write(data []byte) {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	// Writes larger than capacity only matter for their tail.
	if len(data) > rb.capacity {
		rb.written += len(data) - rb.capacity
		data = data[len(data)-rb.capacity:]
	}

	for len(data) > 0 {
		n := copy(rb.buf[rb.writePos:], data)
		data = data[n:]
		rb.writePos = (rb.writePos + n) % rb.capacity
		rb.written += n
	}
}

// SnapshotLast returns a copy of the newest n bytes, or fewer if less has
// been written. Returns nil when the buffer is empty.
func (rb *RingBuffer) SnapshotLast(n int) []byte {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	if n > rb.capacity {
		n = rb.capacity
	}
	available := rb.written
	if available > rb.capacity {
		available = rb.capacity
	}
	if n > available {
		n = available
	}
	if n == 0 {
		return nil
	}

	out := make([]byte, n)
	start := (rb.writePos - n + rb.capacity) % rb.capacity

	if start+n <= rb.capacity {
		copy(out, rb.buf[start:start+n])
	} else {
		first := rb.capacity - start
		copy(out[:first], rb.buf[start:])
		copy(out[first:], rb.buf[:n-first])
	}
	return out
}

// Available returns the number of bytes currently stored.
func (rb *RingBuffer) Available() int {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	available := rb.written
	if available > rb.capacity {
		available = rb.capacity
	}
	return available
}
